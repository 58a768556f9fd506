package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/metermeter/internal"
	"github.com/valpere/metermeter/internal/lexicon"
	"github.com/valpere/metermeter/internal/meter"
	"github.com/valpere/metermeter/internal/refiner"
	"github.com/valpere/metermeter/internal/store"
)

const (
	iambicLine   = "the light the dark the flame the ash the dawn"
	trochaicLine = "Falling petals drifting slowly"
	anapestLine  = "in the light in the dark in the dawn"
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	lex, err := lexicon.Builtin()
	require.NoError(t, err)
	if cfg.Refiner.DebugDumpPath == "" {
		cfg.Refiner.DebugDumpPath = filepath.Join(t.TempDir(), "debug.json")
	}
	return New(meter.NewEngine(lex, nil), cfg, nil)
}

func poem() []internal.ScanLine {
	return []internal.ScanLine{
		{LNum: 1, Text: iambicLine},
		{LNum: 2, Text: "   "},
		{LNum: 3, Text: trochaicLine},
		{LNum: 4, Text: "1 2 3 --"},
		{LNum: 5, Text: anapestLine},
	}
}

func ptr(f float64) *float64 { return &f }

// chatServer answers every completion with content.
func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func llm(endpoint string, maxLines int) *internal.LLMOptions {
	return &internal.LLMOptions{Enabled: true, Endpoint: endpoint, Model: "test", MaxLinesPerScan: maxLines, TimeoutMS: 5000}
}

func TestStressSpans(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		spans    [][2]int
		patterns []string
		want     [][2]int
	}{
		{"monosyllable from vowel to end", "the light", [][2]int{{0, 3}, {4, 9}}, []string{"U", "S"}, [][2]int{{5, 9}}},
		{"silent e dropped", "glance", [][2]int{{0, 6}}, []string{"S"}, [][2]int{{2, 6}}},
		{"multibyte monosyllable", "café", [][2]int{{0, 5}}, []string{"S"}, [][2]int{{1, 5}}},
		{"multibyte second syllable", "naïve", [][2]int{{0, 6}}, []string{"US"}, [][2]int{{5, 6}}},
		{"multibyte first syllable", "naïve", [][2]int{{0, 6}}, []string{"SU"}, [][2]int{{1, 4}}},
		{"unstressed only", "the the", [][2]int{{0, 3}, {4, 7}}, []string{"U", "U"}, [][2]int{}},
		{"fewer patterns than tokens", "light dark", [][2]int{{0, 5}, {6, 10}}, []string{"S"}, [][2]int{{1, 5}}},
		{"span outside text", "dark", [][2]int{{0, 9}}, []string{"S"}, [][2]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StressSpans(tt.text, tt.spans, tt.patterns))
		})
	}
}

func TestScan_Deterministic(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	s := newService(t, Config{Runs: st})
	resp := s.Scan(context.Background(), internal.ScanRequest{Source: "test.txt", Lines: poem()})

	assert.Empty(t, resp.Error)
	assert.Equal(t, 3, resp.Eval.LineCount)
	assert.Equal(t, 3, resp.Eval.ResultCount)
	assert.Zero(t, resp.Eval.MeterOverrides)
	require.Len(t, resp.Results, 3)

	first := resp.Results[0]
	assert.Equal(t, 1, first.LNum)
	assert.Equal(t, "iambic pentameter", first.MeterName)
	require.Len(t, first.StressSpans, 5)
	assert.Equal(t, [2]int{5, 9}, first.StressSpans[0])
	for _, sp := range first.StressSpans {
		assert.NotEqual(t, "he", first.Text[sp[0]:sp[1]])
	}
	assert.Equal(t, "trochaic tetrameter", resp.Results[1].MeterName)
	assert.Equal(t, "anapestic trimeter", resp.Results[2].MeterName)

	assert.NotEmpty(t, resp.Eval.DominantMeter)
	assert.Equal(t, 3, resp.Eval.DominantLineCount)
	assert.Greater(t, resp.Eval.DominantRatio, 0.0)
	assert.LessOrEqual(t, resp.Eval.DominantRatio, 1.0)

	runs, err := st.ListScanRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "test.txt", runs[0].Source)
	assert.Equal(t, 3, runs[0].ResultCount)
	assert.False(t, runs[0].LLMUsed)
}

func TestScan_LongLinesKeptInResults(t *testing.T) {
	long := "the light the dark the flame the ash the dawn the dusk the sea the end"
	s := newService(t, Config{})
	resp := s.Scan(context.Background(), internal.ScanRequest{Lines: []internal.ScanLine{
		{LNum: 1, Text: iambicLine},
		{LNum: 2, Text: long},
		{LNum: 3, Text: long + " the sky and"},
	}})

	assert.Empty(t, resp.Error)
	assert.Equal(t, 3, resp.Eval.LineCount)
	require.Len(t, resp.Results, 3)
	for _, r := range resp.Results {
		assert.True(t, meter.ValidMeterName(r.MeterName), "line %d: %q", r.LNum, r.MeterName)
		assert.NotEmpty(t, r.StressSpans, "line %d", r.LNum)
	}
	assert.Less(t, resp.Results[1].Confidence, resp.Results[0].Confidence)
}

func TestScan_ContextDominant(t *testing.T) {
	s := newService(t, Config{})
	resp := s.Scan(context.Background(), internal.ScanRequest{
		Lines: poem(),
		Context: &internal.ScanContext{
			DominantMeter:     " Iambic  Pentameter ",
			DominantRatio:     ptr(1.4),
			DominantLineCount: 12,
		},
	})
	assert.Equal(t, "iambic pentameter", resp.Eval.DominantMeter)
	assert.Equal(t, 1.0, resp.Eval.DominantRatio)
	assert.Equal(t, 12, resp.Eval.DominantLineCount)
}

func TestScan_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		llm  *internal.LLMOptions
		want string
	}{
		{"disabled", &internal.LLMOptions{Endpoint: "mock://", Model: "m", MaxLinesPerScan: 5}, ErrLLMDisabled},
		{"no endpoint", &internal.LLMOptions{Enabled: true, Model: "m", MaxLinesPerScan: 5}, ErrLLMNoEndpoint},
		{"no model", &internal.LLMOptions{Enabled: true, Endpoint: "mock://", MaxLinesPerScan: 5}, ErrLLMNoEndpoint},
		{"no line budget", &internal.LLMOptions{Enabled: true, Endpoint: "mock://", Model: "m"}, ErrLLMNoLineBudget},
	}
	s := newService(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.Scan(context.Background(), internal.ScanRequest{Lines: poem(), LLM: tt.llm})
			assert.Equal(t, tt.want, resp.Error)
			assert.NotNil(t, resp.Results)
			assert.Empty(t, resp.Results)
			assert.Equal(t, 3, resp.Eval.LineCount)
			assert.Zero(t, resp.Eval.ResultCount)
		})
	}
}

func TestScan_MockEndpoint(t *testing.T) {
	s := newService(t, Config{})
	det := s.Scan(context.Background(), internal.ScanRequest{Lines: poem()})
	resp := s.Scan(context.Background(), internal.ScanRequest{Lines: poem(), LLM: llm("mock://local", 2)})

	require.Empty(t, resp.Error)
	assert.Equal(t, 3, resp.Eval.LineCount)
	require.Len(t, resp.Results, 2)
	assert.Zero(t, resp.Eval.MeterOverrides)
	assert.Equal(t, 2, resp.Eval.DominantLineCount)
	for i, r := range resp.Results {
		assert.Equal(t, det.Results[i].LNum, r.LNum)
		assert.Equal(t, det.Results[i].MeterName, r.MeterName)
		assert.Equal(t, det.Results[i].TokenPatterns, r.TokenPatterns)
		assert.Equal(t, det.Results[i].StressSpans, r.StressSpans)
		assert.Equal(t, "mock: baseline echoed", r.AnalysisHint)
		assert.False(t, r.MeterOverridden)
	}
}

func TestScan_OverrideAndRepairs(t *testing.T) {
	content := `{"results":[
		{"line_no":1,"final_meter":"trochaic pentameter","meter_confidence":0.6,
		 "token_stress_patterns":["U","S","U","S","U","S","U","S","U","S"],"analysis_hint":"reads falling"},
		{"line_no":3,"final_meter":"Trochaic Tetrameter","meter_confidence":0.9,
		 "token_stress_patterns":["S","SU","SU","SU"]}
	]}`
	server := chatServer(t, http.StatusOK, content)
	s := newService(t, Config{})

	resp := s.Scan(context.Background(), internal.ScanRequest{
		Lines: []internal.ScanLine{{LNum: 1, Text: iambicLine}, {LNum: 3, Text: trochaicLine}},
		LLM:   llm(server.URL+"/v1", 10),
	})
	require.Empty(t, resp.Error)
	require.Len(t, resp.Results, 2)

	first := resp.Results[0]
	assert.True(t, first.MeterOverridden)
	assert.Equal(t, "iambic pentameter", first.MeterName)
	assert.LessOrEqual(t, first.Confidence, 0.6)
	assert.Contains(t, []string{"pattern_rescore", "iambic_guard", "baseline_guard"}, first.OverrideReason)
	assert.Equal(t, "reads falling", first.AnalysisHint)

	second := resp.Results[1]
	assert.Equal(t, "trochaic tetrameter", second.MeterName)
	assert.Equal(t, []string{"US", "SU", "SU", "SU"}, second.TokenPatterns)

	assert.Equal(t, 1, resp.Eval.MeterOverrides)
	assert.Equal(t, 1, resp.Eval.TokenRepairs)
	assert.Equal(t, 2, resp.Eval.ResultCount)
}

func TestScan_InvalidResponseReportedVerbatim(t *testing.T) {
	server := chatServer(t, http.StatusOK, "I'd rather not.")
	s := newService(t, Config{})

	resp := s.Scan(context.Background(), internal.ScanRequest{Lines: poem(), LLM: llm(server.URL, 5)})
	assert.True(t, strings.HasPrefix(resp.Error, "llm_invalid_response: results_failed_validation"), resp.Error)
	assert.Contains(t, resp.Error, "debug_dump=")
	assert.Empty(t, resp.Results)
}

func TestScan_TransportFailureThenCooldown(t *testing.T) {
	server := chatServer(t, http.StatusInternalServerError, "")
	s := newService(t, Config{Refiner: refiner.Config{ErrorCooldown: refiner.DefaultErrorCooldown}})
	req := internal.ScanRequest{Lines: poem(), LLM: llm(server.URL, 5)}

	resp := s.Scan(context.Background(), req)
	assert.Equal(t, ErrLLMInvalidOrEmpty, resp.Error)
	assert.Empty(t, resp.Results)

	resp = s.Scan(context.Background(), req)
	assert.True(t, strings.HasPrefix(resp.Error, "llm_cooldown"), resp.Error)

	s.ClearCaches()
	resp = s.Scan(context.Background(), req)
	assert.Equal(t, ErrLLMInvalidOrEmpty, resp.Error)
}

func TestWeightedDominant(t *testing.T) {
	name, ratio, n := weightedDominant([]verdict{
		{"iambic pentameter", 0.9},
		{"Iambic Pentameter", 0.7},
		{"trochaic tetrameter", 0.0},
		{"", 0.9},
	})
	assert.Equal(t, "iambic pentameter", name)
	assert.InDelta(t, 1.6/1.65, ratio, 1e-9)
	assert.Equal(t, 3, n)

	name, ratio, n = weightedDominant(nil)
	assert.Empty(t, name)
	assert.Zero(t, ratio)
	assert.Zero(t, n)
}

func TestMeterContext(t *testing.T) {
	assert.Equal(t, meter.Context{}, meterContext(nil))
	assert.Equal(t,
		meter.Context{DominantMeter: "dactylic trimeter", Strength: 0.4},
		meterContext(&internal.ScanContext{DominantMeter: "Dactylic Trimeter", DominantStrength: ptr(0.4), DominantRatio: ptr(0.9)}))
	assert.Equal(t,
		meter.Context{DominantMeter: "dactylic trimeter", Strength: 0.9},
		meterContext(&internal.ScanContext{DominantMeter: "dactylic trimeter", DominantRatio: ptr(0.9)}))
}
