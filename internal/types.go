package internal

// ScanLine is one line of a scan request.
type ScanLine struct {
	LNum int    `json:"lnum"`
	Text string `json:"text"`
}

// ScanContext is poem-level evidence supplied by the caller.
type ScanContext struct {
	DominantMeter string `json:"dominant_meter,omitempty"`
	// DominantStrength weights the context bonus; DominantRatio is used
	// when it is absent.
	DominantStrength  *float64 `json:"dominant_strength,omitempty"`
	DominantRatio     *float64 `json:"dominant_ratio,omitempty"`
	DominantLineCount int      `json:"dominant_line_count,omitempty"`
}

// LLMOptions asks for LLM refinement of the scan.
type LLMOptions struct {
	Enabled         bool     `json:"enabled"`
	Endpoint        string   `json:"endpoint"`
	Model           string   `json:"model"`
	TimeoutMS       int      `json:"timeout_ms,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxLinesPerScan int      `json:"max_lines_per_scan"`
	APIKey          string   `json:"api_key,omitempty"`
}

// ScanRequest is the scan interface input. Without LLM options the scan is
// purely deterministic.
type ScanRequest struct {
	Source  string       `json:"source,omitempty"`
	Lines   []ScanLine   `json:"lines"`
	Context *ScanContext `json:"context,omitempty"`
	LLM     *LLMOptions  `json:"llm,omitempty"`
}

// ScanResult is the verdict for one line. StressSpans are UTF-8 byte
// offsets of stressed syllables in Text.
type ScanResult struct {
	LNum            int      `json:"lnum"`
	Text            string   `json:"text"`
	MeterName       string   `json:"meter_name"`
	Confidence      float64  `json:"confidence"`
	TokenPatterns   []string `json:"token_patterns"`
	StressSpans     [][2]int `json:"stress_spans"`
	MeterOverridden bool     `json:"meter_overridden,omitempty"`
	OverrideReason  string   `json:"override_reason,omitempty"`
	AnalysisHint    string   `json:"analysis_hint,omitempty"`
}

// ScanEval summarises a scan.
type ScanEval struct {
	LineCount         int     `json:"line_count"`
	ResultCount       int     `json:"result_count"`
	MeterOverrides    int     `json:"meter_overrides"`
	DominantMeter     string  `json:"dominant_meter"`
	DominantRatio     float64 `json:"dominant_ratio"`
	DominantLineCount int     `json:"dominant_line_count"`
	TokenRepairs      int     `json:"token_repairs"`
}

// ScanResponse is the scan interface output. When Error is set, Results is
// empty.
type ScanResponse struct {
	Results []ScanResult `json:"results"`
	Eval    ScanEval     `json:"eval"`
	Error   string       `json:"error,omitempty"`
}
