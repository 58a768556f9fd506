// Package lexicon maps words to lexical stress patterns.
//
// A pattern is a string over {U,S}, one symbol per syllable. Lookups that miss
// every dictionary fall back to a spelling-based estimate, and the result says
// which of the two happened so callers can count out-of-vocabulary tokens.
package lexicon

import (
	"bytes"
	"compress/gzip"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed builtin_lexicon.json
var builtinLexicon []byte

// Entry is the outcome of a lookup: either dictionary patterns (Found) or a
// single heuristic guess (Estimated).
type Entry struct {
	Patterns  []string
	Estimated bool
}

// Found wraps dictionary patterns.
func Found(patterns []string) Entry {
	return Entry{Patterns: patterns}
}

// Estimated wraps a heuristic pattern.
func Estimated(pattern string) Entry {
	return Entry{Patterns: []string{pattern}, Estimated: true}
}

// Primary is the preferred pronunciation.
func (e Entry) Primary() string {
	if len(e.Patterns) == 0 {
		return ""
	}
	return e.Patterns[0]
}

// Alternates returns the other patterns with the same syllable count as the
// primary one.
func (e Entry) Alternates() []string {
	primary := e.Primary()
	var out []string
	for _, p := range e.Patterns[min(1, len(e.Patterns)):] {
		if len(p) == len(primary) && p != primary {
			out = append(out, p)
		}
	}
	return out
}

// Lexicon is an immutable word → patterns table. It is safe for concurrent
// lookups.
type Lexicon struct {
	words map[string][]string
}

// New builds a lexicon from raw word patterns, discarding invalid entries.
func New(words map[string][]string) *Lexicon {
	l := &Lexicon{words: make(map[string][]string, len(words))}
	l.merge(words)
	return l
}

// Builtin returns the lexicon compiled into the binary.
func Builtin() (*Lexicon, error) {
	words, err := decodeJSON(bytes.NewReader(builtinLexicon))
	if err != nil {
		return nil, fmt.Errorf("failed to decode builtin lexicon: %w", err)
	}
	return New(words), nil
}

// Load builds the runtime lexicon: an optional full dictionary at dictPath,
// the builtin words on top, and an optional extra lexicon at extraPath that
// overrides both. Empty paths are skipped.
func Load(dictPath, extraPath string) (*Lexicon, error) {
	l := &Lexicon{words: make(map[string][]string)}

	if dictPath != "" {
		words, err := ReadPatterns(dictPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load lexicon %s: %w", dictPath, err)
		}
		l.merge(words)
	}

	builtin, err := decodeJSON(bytes.NewReader(builtinLexicon))
	if err != nil {
		return nil, fmt.Errorf("failed to decode builtin lexicon: %w", err)
	}
	l.merge(builtin)

	if extraPath != "" {
		words, err := ReadPatterns(extraPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load extra lexicon %s: %w", extraPath, err)
		}
		l.merge(words)
	}
	return l, nil
}

// ReadPatterns reads a word → patterns file. JSON (optionally gzipped) and
// YAML are accepted, chosen by extension.
func ReadPatterns(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		var words map[string][]string
		if err := yaml.NewDecoder(r).Decode(&words); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
		return words, nil
	default:
		return decodeJSON(r)
	}
}

func decodeJSON(r io.Reader) (map[string][]string, error) {
	var words map[string][]string
	if err := json.NewDecoder(r).Decode(&words); err != nil {
		return nil, err
	}
	return words, nil
}

func (l *Lexicon) merge(words map[string][]string) {
	for word, patterns := range words {
		var clean []string
		for _, p := range patterns {
			if ValidPattern(p) {
				clean = append(clean, p)
			}
		}
		if len(clean) > 0 {
			l.words[Key(word)] = clean
		}
	}
}

// Len is the number of distinct words.
func (l *Lexicon) Len() int {
	return len(l.words)
}

// Lookup resolves word to its stress patterns. Possessives fall back to the
// base word; anything else unknown is estimated from spelling.
func (l *Lexicon) Lookup(word string) Entry {
	key := Key(word)
	if patterns, ok := l.words[key]; ok {
		return Found(patterns)
	}
	if base, ok := strings.CutSuffix(key, "'s"); ok {
		if patterns, ok := l.words[base]; ok {
			return Found(patterns)
		}
	}
	pattern := EstimateStressPattern(word)
	if pattern == "" {
		pattern = "S"
	}
	return Estimated(pattern)
}

// Key normalises a word for table lookup.
func Key(word string) string {
	w := norm.NFC.String(strings.TrimSpace(word))
	w = strings.ReplaceAll(w, "’", "'")
	return cases.Fold().String(w)
}

// ValidPattern reports whether p is a non-empty string over {U,S}.
func ValidPattern(p string) bool {
	if p == "" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] != 'U' && p[i] != 'S' {
			return false
		}
	}
	return true
}
