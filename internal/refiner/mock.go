package refiner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valpere/metermeter/internal/meter"
)

const mockScheme = "mock://"

// IsMockEndpoint reports whether endpoint is served by MockCompleter.
func IsMockEndpoint(endpoint string) bool {
	return strings.HasPrefix(strings.TrimSpace(endpoint), mockScheme)
}

// MockCompleter answers every request in process by echoing each line's
// baseline verdict back in the response schema. It exercises the full
// request, validation and caching path without a server.
type MockCompleter struct{}

type mockItem struct {
	LineNo              int      `json:"line_no"`
	FinalStressPattern  string   `json:"final_stress_pattern"`
	FinalMeter          string   `json:"final_meter"`
	MeterConfidence     float64  `json:"meter_confidence"`
	AnalysisHint        string   `json:"analysis_hint"`
	TokenStressPatterns []string `json:"token_stress_patterns"`
}

// Complete implements Completer.
func (MockCompleter) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	payload, err := decodeUserPayload(req)
	if err != nil {
		return Completion{}, err
	}

	items := make([]mockItem, 0, len(payload.Lines))
	for _, l := range payload.Lines {
		items = append(items, mockItem{
			LineNo:              l.LineNo,
			FinalStressPattern:  l.BaselineStress,
			FinalMeter:          l.BaselineMeter,
			MeterConfidence:     l.BaselineConfidence,
			AnalysisHint:        "mock: baseline echoed",
			TokenStressPatterns: meter.SplitPattern(l.BaselineStress, l.TokenSyllables),
		})
	}
	content, err := json.Marshal(map[string]any{"results": items})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal mock response: %w", err)
	}
	raw, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": Message{Role: "assistant", Content: string(content)}}},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal mock response: %w", err)
	}
	return Completion{Content: string(content), Raw: string(raw)}, nil
}

func decodeUserPayload(req ChatRequest) (userPayload, error) {
	var payload userPayload
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		if err := json.Unmarshal([]byte(req.Messages[i].Content), &payload); err != nil {
			return userPayload{}, fmt.Errorf("failed to decode user payload: %w", err)
		}
		return payload, nil
	}
	return userPayload{}, fmt.Errorf("request has no user message")
}
