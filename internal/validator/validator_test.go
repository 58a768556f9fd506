package validator

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

var testBaselines = []Baseline{
	{LineNo: 1, Tokens: []string{"Shall", "I", "compare"}, TokenSyllables: []int{1, 1, 2}},
	{LineNo: 2, Tokens: []string{"Rough", "winds"}, TokenSyllables: []int{1, 1}},
	{LineNo: 3, Tokens: []string{"beautiful", "day"}, TokenSyllables: []int{3, 1}},
}

func TestParseBatch_AllValid(t *testing.T) {
	content := `{"results": [
		{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "analysis_hint": "clean", "token_stress_patterns": ["U", "S", "US"]},
		{"line_no": "2", "final_meter": "Trochaic  Monometer", "meter_confidence": 1.4, "token_patterns": ["s", "u"]},
		{"line_no": 3, "meter_name": "dactylic monometer", "confidence": -0.2, "token_stress_patterns": ["SUU", "S"]}
	]}`

	results, err := ParseBatch(content, testBaselines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Valid() {
			t.Errorf("line %d rejected: %s", r.LineNo, r.Reason)
		}
	}

	accepted := Accepted(results)
	if got := accepted[1].StressPattern; got != "USUS" {
		t.Errorf("line 1 stress = %q, want USUS", got)
	}
	if got := accepted[2].MeterName; got != "trochaic monometer" {
		t.Errorf("line 2 meter = %q, want normalized name", got)
	}
	if got := accepted[2].Confidence; got != 1 {
		t.Errorf("line 2 confidence = %v, want clamped to 1", got)
	}
	if got := accepted[2].TokenPatterns; !reflect.DeepEqual(got, []string{"S", "U"}) {
		t.Errorf("line 2 patterns = %v, want uppercased", got)
	}
	if got := accepted[3].Confidence; got != 0 {
		t.Errorf("line 3 confidence = %v, want clamped to 0", got)
	}
}

func TestParseBatch_OneBadEntry(t *testing.T) {
	content := `{"results": [
		{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]},
		{"line_no": 2, "meter_name": "trochaic monometer", "confidence": 0.7, "token_stress_patterns": ["SU", "U"]},
		{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "token_stress_patterns": ["SUU", "S"]}
	]}`

	results, err := ParseBatch(content, testBaselines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	accepted := Accepted(results)
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted lines, got %d", len(accepted))
	}
	if _, ok := accepted[2]; ok {
		t.Error("line 2 should be rejected")
	}
	if results[1].LineNo != 2 || results[1].Reason != ReasonSyllableCount {
		t.Errorf("rejection = %+v, want line 2 %s", results[1], ReasonSyllableCount)
	}
}

func TestParseBatch_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		reason string
	}{
		{
			name:   "missing line_no",
			item:   `{"meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonMissingLineNo,
		},
		{
			name:   "non-numeric line_no",
			item:   `{"line_no": "one", "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonMissingLineNo,
		},
		{
			name:   "unknown line",
			item:   `{"line_no": 9, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonUnknownLineNo,
		},
		{
			name:   "bad meter name",
			item:   `{"line_no": 1, "meter_name": "iambic heptameter", "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonInvalidMeterName,
		},
		{
			name:   "meter name not a string",
			item:   `{"line_no": 1, "meter_name": 5, "confidence": 0.9, "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonInvalidMeterName,
		},
		{
			name:   "string confidence",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": "0.9", "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonInvalidConfidence,
		},
		{
			name:   "missing confidence",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "token_stress_patterns": ["U", "S", "US"]}`,
			reason: ReasonInvalidConfidence,
		},
		{
			name:   "missing patterns",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9}`,
			reason: ReasonMissingPatterns,
		},
		{
			name:   "patterns not strings",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": [1, 2, 3]}`,
			reason: ReasonMalformedPatterns,
		},
		{
			name:   "foreign symbols",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "x", "US"]}`,
			reason: ReasonMalformedPatterns,
		},
		{
			name:   "empty pattern",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "", "US"]}`,
			reason: ReasonMalformedPatterns,
		},
		{
			name:   "wrong token count",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "token_stress_patterns": ["U", "SUS"]}`,
			reason: ReasonTokenCount,
		},
		{
			name:   "whole pattern of wrong length",
			item:   `{"line_no": 1, "meter_name": "iambic dimeter", "confidence": 0.9, "final_stress_pattern": "USU", "token_stress_patterns": ["U", "S", "USU"]}`,
			reason: ReasonSyllableCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ParseBatch(`{"results": [`+tt.item+`]}`, testBaselines)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Valid() {
				t.Fatal("expected rejection")
			}
			if results[0].Reason != tt.reason {
				t.Errorf("reason = %q, want %q", results[0].Reason, tt.reason)
			}
		})
	}
}

func TestParseBatch_Repairs(t *testing.T) {
	tests := []struct {
		name     string
		item     string
		patterns []string
		repairs  int
	}{
		{
			name:     "expand stressed",
			item:     `{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "token_stress_patterns": ["S", "S"]}`,
			patterns: []string{"UUS", "S"},
			repairs:  1,
		},
		{
			name:     "expand unstressed",
			item:     `{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "token_stress_patterns": ["U", "S"]}`,
			patterns: []string{"UUU", "S"},
			repairs:  1,
		},
		{
			name:     "resplit from whole line",
			item:     `{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "final_stress_pattern": "SUUS", "token_stress_patterns": ["SU", "US"]}`,
			patterns: []string{"SUU", "S"},
			repairs:  2,
		},
		{
			name:     "separators dropped",
			item:     `{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "token_stress_patterns": ["S-U.U", " s "]}`,
			patterns: []string{"SUU", "S"},
			repairs:  0,
		},
		{
			name:     "resplit from spaced whole line",
			item:     `{"line_no": 3, "meter_name": "dactylic monometer", "confidence": 0.8, "final_stress_pattern": "S U U S", "token_stress_patterns": ["S.U", "U S"]}`,
			patterns: []string{"SUU", "S"},
			repairs:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ParseBatch(`{"results": [`+tt.item+`]}`, testBaselines)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !results[0].Valid() {
				t.Fatalf("rejected: %s", results[0].Reason)
			}
			ref := results[0].Refinement
			if !reflect.DeepEqual(ref.TokenPatterns, tt.patterns) {
				t.Errorf("patterns = %v, want %v", ref.TokenPatterns, tt.patterns)
			}
			if ref.Repairs != tt.repairs {
				t.Errorf("repairs = %d, want %d", ref.Repairs, tt.repairs)
			}
			if ref.StressPattern != strings.Join(tt.patterns, "") {
				t.Errorf("stress = %q, want concatenated patterns", ref.StressPattern)
			}
		})
	}
}

func TestParseBatch_Duplicate(t *testing.T) {
	item := `{"line_no": 2, "meter_name": "trochaic monometer", "confidence": 0.7, "token_stress_patterns": ["S", "U"]}`
	results, err := ParseBatch(`{"results": [`+item+`,`+item+`]}`, testBaselines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Valid() {
		t.Error("first copy should be accepted")
	}
	if results[1].Reason != ReasonDuplicateLineNo {
		t.Errorf("second copy reason = %q, want %q", results[1].Reason, ReasonDuplicateLineNo)
	}
}

func TestParseBatch_SingleItem(t *testing.T) {
	content := "<think>two words</think>\n```json\n" +
		`{"final_meter": "trochaic monometer", "meter_confidence": 0.6, "token_stress_patterns": ["S", "U"]}` +
		"\n```"

	results, err := ParseBatch(content, testBaselines[1:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Valid() {
		t.Fatalf("expected one valid result, got %+v", results)
	}
	if results[0].LineNo != 2 {
		t.Errorf("line = %d, want 2", results[0].LineNo)
	}
}

func TestParseBatch_NoPayload(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		baselines []Baseline
	}{
		{"prose", "I am unable to scan these lines.", testBaselines},
		{"empty results", `{"results": []}`, testBaselines},
		{"bare item for many lines", `{"meter_name": "iambic dimeter"}`, testBaselines},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatch(tt.content, tt.baselines)
			if !errors.Is(err, ErrNoPayload) {
				t.Errorf("err = %v, want ErrNoPayload", err)
			}
		})
	}

	if _, err := ParseBatch(`{"results": "nope"}`, testBaselines); err == nil {
		t.Error("expected error for non-array results")
	}
}

func TestParseBatch_NonObjectItem(t *testing.T) {
	results, err := ParseBatch(`{"results": ["USUS", 4]}`, testBaselines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Reason != ReasonNotAnObject {
			t.Errorf("reason = %q, want %q", r.Reason, ReasonNotAnObject)
		}
	}
}

func TestNormalizeHint(t *testing.T) {
	if got := NormalizeHint("  Initial   inversion,\n\tthen iambs. "); got != "Initial inversion, then iambs." {
		t.Errorf("NormalizeHint collapsed = %q", got)
	}
	long := strings.Repeat("é", 300)
	if got := NormalizeHint(long); len([]rune(got)) != MaxHintRunes {
		t.Errorf("NormalizeHint length = %d runes, want %d", len([]rune(got)), MaxHintRunes)
	}
	if got := NormalizeHint(""); got != "" {
		t.Errorf("NormalizeHint(\"\") = %q", got)
	}
}
