// Package prosody turns a line of text into tokens and syllable units, each
// unit carrying a small weighted set of stress options.
package prosody

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/valpere/metermeter/internal/lexicon"
)

// Stress is a syllable stress symbol.
type Stress byte

const (
	Unstressed Stress = 'U'
	Stressed   Stress = 'S'
)

// Flip returns the opposite symbol.
func (s Stress) Flip() Stress {
	if s == Stressed {
		return Unstressed
	}
	return Stressed
}

func (s Stress) String() string {
	return string(s)
}

// Option is one candidate stress for a syllable and what choosing it costs.
type Option struct {
	Stress Stress
	Cost   float64
}

// SyllableUnit is one syllable of a line with its stress options. Options are
// ordered by cost; ties put U first.
type SyllableUnit struct {
	Token   int
	Start   int
	End     int
	Options []Option
}

// NewSyllableUnit orders opts and returns the unit. At least one option is
// required; an empty set becomes a single zero-cost S.
func NewSyllableUnit(token, start, end int, opts ...Option) SyllableUnit {
	if len(opts) == 0 {
		opts = []Option{{Stress: Stressed}}
	}
	sorted := append([]Option(nil), opts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Cost != sorted[j].Cost {
			return sorted[i].Cost < sorted[j].Cost
		}
		return sorted[i].Stress == Unstressed && sorted[j].Stress == Stressed
	})
	return SyllableUnit{Token: token, Start: start, End: end, Options: sorted}
}

// Default is the lowest-cost stress.
func (u SyllableUnit) Default() Stress {
	return u.Options[0].Stress
}

// Cost returns what assigning s to this syllable costs, if s is an option.
func (u SyllableUnit) Cost(s Stress) (float64, bool) {
	for _, o := range u.Options {
		if o.Stress == s {
			return o.Cost, true
		}
	}
	return 0, false
}

// DefaultPattern concatenates the default stress of each unit.
func DefaultPattern(units []SyllableUnit) string {
	b := make([]byte, len(units))
	for i, u := range units {
		b[i] = byte(u.Default())
	}
	return string(b)
}

// Forced builds zero-cost single-option units from a stress pattern. Symbols
// other than U and S are skipped.
func Forced(pattern string) []SyllableUnit {
	units := make([]SyllableUnit, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		s := Stress(pattern[i])
		if s != Unstressed && s != Stressed {
			continue
		}
		n := len(units)
		units = append(units, NewSyllableUnit(n, n, n+1, Option{Stress: s}))
	}
	return units
}

var tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Token is a word of the source line. Start and End are byte offsets;
// CharStart and CharEnd count runes.
type Token struct {
	Text      string
	Start     int
	End       int
	CharStart int
	CharEnd   int
	Entry     lexicon.Entry
}

// Pattern is the token's primary lexical stress pattern.
func (t Token) Pattern() string {
	return t.Entry.Primary()
}

// Tokenize splits line into words. Digits and punctuation are dropped and a
// leading apostrophe is not part of a word.
func Tokenize(line string) []Token {
	locs := tokenRe.FindAllStringIndex(line, -1)
	tokens := make([]Token, 0, len(locs))
	for _, loc := range locs {
		charStart := utf8.RuneCountInString(line[:loc[0]])
		text := line[loc[0]:loc[1]]
		tokens = append(tokens, Token{
			Text:      text,
			Start:     loc[0],
			End:       loc[1],
			CharStart: charStart,
			CharEnd:   charStart + utf8.RuneCountInString(text),
		})
	}
	return tokens
}

// Words returns the token texts.
func Words(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// Line is a tokenised and syllabified line of verse.
type Line struct {
	Text   string
	Tokens []Token
	Units  []SyllableUnit
}

// OOVRatio is the share of tokens whose stress was estimated rather than found.
func (l Line) OOVRatio() float64 {
	if len(l.Tokens) == 0 {
		return 0
	}
	oov := 0
	for _, t := range l.Tokens {
		if t.Entry.Estimated {
			oov++
		}
	}
	return float64(oov) / float64(len(l.Tokens))
}

// OOVTokens lists the lowercase words that missed the lexicon.
func (l Line) OOVTokens() []string {
	var out []string
	for _, t := range l.Tokens {
		if t.Entry.Estimated {
			out = append(out, strings.ToLower(t.Text))
		}
	}
	return out
}

// TokenSyllables is the syllable count of each token.
func (l Line) TokenSyllables() []int {
	out := make([]int, len(l.Tokens))
	for _, u := range l.Units {
		out[u.Token]++
	}
	return out
}

// Syllabify tokenises text, looks every word up in lex and expands each word
// into syllable units. A line without words yields a Line with no units.
func Syllabify(text string, lex *lexicon.Lexicon) Line {
	line := Line{Text: text, Tokens: Tokenize(text)}
	for ti := range line.Tokens {
		tok := &line.Tokens[ti]
		tok.Entry = lex.Lookup(tok.Text)
		pattern := tok.Pattern()
		alternates := tok.Entry.Alternates()
		spans := SyllableSpans(tok.Text, len(pattern))
		estimatedStress := strings.IndexByte(pattern, byte(Stressed))

		for si := 0; si < len(pattern); si++ {
			in := OptionInput{
				Word:      tok.Text,
				Syllables: len(pattern),
				Index:     si,
				Lexical:   Stress(pattern[si]),
				Estimated: tok.Entry.Estimated,
			}
			for _, alt := range alternates {
				if alt[si] != pattern[si] {
					in.Ambiguous = true
				}
			}
			if in.Estimated && estimatedStress >= 0 {
				in.Distance = abs(si - estimatedStress)
			}
			span := spans[si]
			line.Units = append(line.Units, NewSyllableUnit(ti,
				tok.CharStart+span[0], tok.CharStart+span[1], StressOptions(in)...))
		}
	}
	return line
}

// SyllableSpans splits a token into count rune spans, relative to the token,
// that cover each syllable's audible nucleus. A monosyllable spans from its
// first vowel to the end of the word.
func SyllableSpans(token string, count int) [][2]int {
	n := utf8.RuneCountInString(token)
	if n == 0 || count <= 0 {
		return nil
	}
	groups := lexicon.VowelGroups(token, count)
	switch {
	case count == 1 && len(groups) > 0:
		return [][2]int{{groups[0][0], n}}
	case count == 1:
		return [][2]int{{0, n}}
	case len(groups) == count:
		return groups
	}
	return boundarySpans(n, groups, count)
}

// boundarySpans cuts the token midway between vowel groups; if that does not
// produce count pieces it falls back to even slices.
func boundarySpans(n int, groups [][2]int, count int) [][2]int {
	if len(groups) < 2 {
		return evenSpans(n, count)
	}
	var spans [][2]int
	start := 0
	for i := 0; i < len(groups)-1; i++ {
		leftEnd, rightStart := groups[i][1], groups[i+1][0]
		split := leftEnd
		if rightStart > leftEnd {
			split = (leftEnd + rightStart) / 2
		}
		if split <= start {
			split = min(n, start+1)
		}
		spans = append(spans, [2]int{start, split})
		start = split
	}
	spans = append(spans, [2]int{start, n})
	if len(spans) != count {
		return evenSpans(n, count)
	}
	return spans
}

func evenSpans(n, count int) [][2]int {
	count = max(1, count)
	out := make([][2]int, 0, count)
	for i := 0; i < count; i++ {
		start := i * n / count
		end := (i + 1) * n / count
		if end <= start {
			end = min(n, start+1)
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
