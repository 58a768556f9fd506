package refiner

import (
	"encoding/json"
	"fmt"

	"github.com/valpere/metermeter/internal/meter"
)

// DefaultPromptVersion is part of every cache key; bump it when the prompt
// changes meaningfully.
const DefaultPromptVersion = "v2"

const (
	minMaxTokens     = 900
	maxMaxTokens     = 3200
	maxTokensPerLine = 220
	maxTokensBase    = 300
)

// lineRequest describes one line to the model.
type lineRequest struct {
	LineNo             int      `json:"line_no"`
	LineText           string   `json:"line_text"`
	Tokens             []string `json:"tokens"`
	TokenSyllables     []int    `json:"token_syllables"`
	BaselineMeter      string   `json:"baseline_meter"`
	BaselineConfidence float64  `json:"baseline_confidence"`
	BaselineStress     string   `json:"baseline_stress_pattern"`
}

type userPayload struct {
	Task          string        `json:"task"`
	DominantMeter string        `json:"dominant_meter,omitempty"`
	Lines         []lineRequest `json:"lines"`
}

// maxTokens sizes the completion budget to the batch.
func maxTokens(lines int) int {
	return min(maxMaxTokens, max(minMaxTokens, maxTokensPerLine*lines+maxTokensBase))
}

func buildRequest(model, promptVersion string, temperature float64, dominant string, lines []*meter.LineAnalysis) (ChatRequest, error) {
	payload := userPayload{
		Task:          taskPrompt(promptVersion),
		DominantMeter: dominant,
		Lines:         make([]lineRequest, 0, len(lines)),
	}
	for _, a := range lines {
		payload.Lines = append(payload.Lines, lineRequest{
			LineNo:             a.LineNo,
			LineText:           a.Text,
			Tokens:             a.Tokens,
			TokenSyllables:     a.TokenSyllables,
			BaselineMeter:      a.MeterName,
			BaselineConfidence: a.Confidence,
			BaselineStress:     a.StressPattern,
		})
	}
	user, err := json.Marshal(payload)
	if err != nil {
		return ChatRequest{}, fmt.Errorf("failed to marshal line payload: %w", err)
	}

	return ChatRequest{
		Model:          model,
		Temperature:    max(0, min(1, temperature)),
		MaxTokens:      maxTokens(len(lines)),
		ResponseFormat: &ResponseFormat{Type: "json_object"},
		Messages: []Message{
			{Role: "system", Content: systemPrompt(promptVersion)},
			{Role: "user", Content: string(user)},
		},
	}, nil
}

func systemPrompt(version string) string {
	const schema = "Return ONLY a single JSON object with key: results. " +
		"results must be a list of objects, one per input line, each with keys: " +
		"line_no, final_stress_pattern, final_meter, meter_confidence, analysis_hint, token_stress_patterns. " +
		"Use only U/S for stress strings. " +
		"token_stress_patterns must contain exactly one U/S string per input token, and concatenating them must produce final_stress_pattern. " +
		"token_stress_patterns[i] length must equal token_syllables[i]. " +
		"Example: tokens[i]=\"pregnant\" -> token_stress_patterns[i]=\"SU\". " +
		"final_meter must be one of iambic|trochaic|anapestic|dactylic plus " +
		"monometer|dimeter|trimeter|tetrameter|pentameter|hexameter. " +
		"meter_confidence must be a number from 0 to 1. " +
		"analysis_hint must be <= 220 chars, concrete, and useful to a poet."

	if version == "v1" {
		return "You are an expert in English poetic meter. " + schema
	}
	return "You are an expert in English poetic meter and scansion. " +
		"Analyze stress at the line level, not as isolated dictionary accents per word. " +
		"Prefer globally coherent rhythm over local lexical defaults, allowing common substitutions when plausible " +
		"(initial inversion, occasional pyrrhic or spondaic feet, feminine ending). " +
		"You will receive one or more lines at once. " + schema
}

func taskPrompt(version string) string {
	if version == "v1" {
		return "Improve meter classification accuracy and provide one concise craft hint."
	}
	return "Choose a single best whole-line scansion. Re-weight stress contextually across the line, " +
		"then provide one concise craft hint."
}
