// Package validator checks LLM scansion responses against the deterministic
// baseline and repairs the small defects models commonly make.
//
// Every item either yields a Refinement or a rejection reason. Nothing
// partially valid leaves this package.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/valpere/metermeter/internal/lexicon"
	"github.com/valpere/metermeter/internal/meter"
	"github.com/valpere/metermeter/internal/postprocess"
)

// MaxHintRunes caps the analysis hint.
const MaxHintRunes = 220

// Rejection reasons.
const (
	ReasonMissingLineNo     = "missing_line_no"
	ReasonUnknownLineNo     = "unknown_line_no"
	ReasonDuplicateLineNo   = "duplicate_line_no"
	ReasonInvalidMeterName  = "invalid_meter_name"
	ReasonInvalidConfidence = "invalid_confidence"
	ReasonMissingPatterns   = "missing_token_patterns"
	ReasonMalformedPatterns = "malformed_token_patterns"
	ReasonTokenCount        = "token_count_mismatch"
	ReasonSyllableCount     = "syllable_count_mismatch"
	ReasonNotAnObject       = "not_an_object"
)

// ErrNoPayload is returned when a response carries no usable JSON object.
var ErrNoPayload = errors.New("no json payload")

// Refinement is a validated LLM verdict for one line.
type Refinement struct {
	MeterName     string   `json:"meter_name"`
	Confidence    float64  `json:"confidence"`
	Hint          string   `json:"analysis_hint,omitempty"`
	TokenPatterns []string `json:"token_patterns"`
	StressPattern string   `json:"stress_pattern"`
	// Repairs counts tokens whose pattern was rebuilt during validation.
	Repairs int `json:"repairs,omitempty"`
}

// Result is the outcome for one response item: a Refinement, or the reason
// the item was rejected.
type Result struct {
	LineNo     int
	Refinement *Refinement
	Reason     string
}

// Valid reports whether the item was accepted.
func (r Result) Valid() bool {
	return r.Refinement != nil
}

// Baseline is what the validator needs to know about a line.
type Baseline struct {
	LineNo         int
	Tokens         []string
	TokenSyllables []int
}

// FromAnalysis derives a Baseline from a deterministic verdict.
func FromAnalysis(a *meter.LineAnalysis) Baseline {
	return Baseline{LineNo: a.LineNo, Tokens: a.Tokens, TokenSyllables: a.TokenSyllables}
}

// ParseBatch validates the message content of a chat completion against the
// baselines it was asked about. The content may be a {"results": [...]}
// object or, when exactly one baseline is given, a bare item. Items for
// unknown or repeated line numbers are rejected. The error is non-nil only
// when the content holds no decodable payload.
func ParseBatch(content string, baselines []Baseline) ([]Result, error) {
	obj, ok := postprocess.ExtractJSONObject(content)
	if !ok {
		return nil, ErrNoPayload
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	byLine := make(map[int]Baseline, len(baselines))
	for _, b := range baselines {
		byLine[b.LineNo] = b
	}

	rawResults, hasResults := payload["results"]
	if !hasResults {
		if len(baselines) != 1 {
			return nil, ErrNoPayload
		}
		// single-line answer without the envelope
		if _, ok := payload["line_no"]; !ok {
			payload["line_no"] = json.RawMessage(strconv.Itoa(baselines[0].LineNo))
		}
		return []Result{validateItem(payload, byLine)}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawResults, &items); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoPayload
	}

	seen := make(map[int]bool, len(items))
	out := make([]Result, 0, len(items))
	for _, raw := range items {
		var item map[string]json.RawMessage
		if err := json.Unmarshal(raw, &item); err != nil || item == nil {
			out = append(out, Result{Reason: ReasonNotAnObject})
			continue
		}
		r := validateItem(item, byLine)
		if r.Valid() {
			if seen[r.LineNo] {
				r = Result{LineNo: r.LineNo, Reason: ReasonDuplicateLineNo}
			}
			seen[r.LineNo] = true
		}
		out = append(out, r)
	}
	return out, nil
}

// Accepted collects the valid results by line number.
func Accepted(results []Result) map[int]*Refinement {
	out := make(map[int]*Refinement)
	for _, r := range results {
		if r.Valid() {
			out[r.LineNo] = r.Refinement
		}
	}
	return out
}

func validateItem(item map[string]json.RawMessage, byLine map[int]Baseline) Result {
	lineNo, ok := parseLineNo(item["line_no"])
	if !ok {
		return Result{Reason: ReasonMissingLineNo}
	}
	reject := func(reason string) Result {
		return Result{LineNo: lineNo, Reason: reason}
	}

	baseline, ok := byLine[lineNo]
	if !ok {
		return reject(ReasonUnknownLineNo)
	}

	var name string
	if err := json.Unmarshal(first(item, "meter_name", "final_meter"), &name); err != nil {
		return reject(ReasonInvalidMeterName)
	}
	name = meter.NormalizeMeterName(name)
	if !meter.ValidMeterName(name) {
		return reject(ReasonInvalidMeterName)
	}

	var conf float64
	if err := json.Unmarshal(first(item, "confidence", "meter_confidence"), &conf); err != nil {
		return reject(ReasonInvalidConfidence)
	}

	rawPatterns := first(item, "token_stress_patterns", "token_patterns")
	if rawPatterns == nil {
		return reject(ReasonMissingPatterns)
	}
	var patterns []string
	if err := json.Unmarshal(rawPatterns, &patterns); err != nil {
		return reject(ReasonMalformedPatterns)
	}

	var whole string
	_ = json.Unmarshal(item["final_stress_pattern"], &whole)

	fixed, repairs, reason := repairPatterns(patterns, baseline.TokenSyllables, whole)
	if reason != "" {
		return reject(reason)
	}

	var hint string
	_ = json.Unmarshal(item["analysis_hint"], &hint)

	return Result{
		LineNo: lineNo,
		Refinement: &Refinement{
			MeterName:     name,
			Confidence:    clamp01(conf),
			Hint:          NormalizeHint(hint),
			TokenPatterns: fixed,
			StressPattern: strings.Join(fixed, ""),
			Repairs:       repairs,
		},
	}
}

// repairPatterns checks per-token patterns against the expected syllable
// counts. A length-1 pattern on a longer token is expanded in place. Any
// other length error is repaired only by re-splitting an independent whole
// line pattern of exactly the right length.
func repairPatterns(patterns []string, sizes []int, whole string) ([]string, int, string) {
	if len(patterns) != len(sizes) {
		return nil, 0, ReasonTokenCount
	}
	out := make([]string, len(patterns))
	repairs := 0
	resplit := false
	for i, p := range patterns {
		p = stressSymbols(p)
		if !lexicon.ValidPattern(p) {
			return nil, 0, ReasonMalformedPatterns
		}
		switch {
		case len(p) == sizes[i]:
			out[i] = p
		case len(p) == 1:
			out[i] = expand(p, sizes[i])
			repairs++
		default:
			resplit = true
		}
	}
	if !resplit {
		return out, repairs, ""
	}

	whole = stressSymbols(whole)
	parts := meter.SplitPattern(whole, sizes)
	if !lexicon.ValidPattern(whole) || parts == nil {
		return nil, 0, ReasonSyllableCount
	}
	repairs = 0
	for i := range parts {
		if parts[i] != stressSymbols(patterns[i]) {
			repairs++
		}
	}
	return parts, repairs, ""
}

// stressSymbols upper-cases p and keeps only U and S, dropping separators
// such as "U.S" or "S-U" that some models emit.
func stressSymbols(p string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'U', 'u':
			return 'U'
		case 'S', 's':
			return 'S'
		}
		return -1
	}, p)
}

// expand widens a single stress symbol to n syllables: S becomes U…US and U
// becomes all U.
func expand(p string, n int) string {
	if n <= 1 {
		return p
	}
	if p == "S" {
		return strings.Repeat("U", n-1) + "S"
	}
	return strings.Repeat("U", n)
}

// NormalizeHint collapses whitespace and truncates to MaxHintRunes.
func NormalizeHint(hint string) string {
	hint = strings.Join(strings.Fields(postprocess.Clean(hint)), " ")
	if utf8.RuneCountInString(hint) <= MaxHintRunes {
		return hint
	}
	return string([]rune(hint)[:MaxHintRunes])
}

// parseLineNo accepts an integer or a numeric string.
func parseLineNo(raw json.RawMessage) (int, bool) {
	if raw == nil {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func first(item map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := item[k]; ok && string(v) != "null" {
			return v
		}
	}
	return nil
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}
