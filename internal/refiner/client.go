package refiner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the server for a particular output shape.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is an OpenAI-compatible chat completion request.
type ChatRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Messages       []Message       `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Completion is the first choice's message content plus the raw body it
// came from. Content is empty when the body carried no choices.
type Completion struct {
	Content string
	Raw     string
}

// Completer sends one chat completion request.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (Completion, error)
}

// NewCompleter picks the transport for endpoint. mock:// endpoints are
// answered in process.
func NewCompleter(endpoint, apiKey string, timeout time.Duration) Completer {
	if IsMockEndpoint(endpoint) {
		return MockCompleter{}
	}
	return NewHTTPCompleter(endpoint, apiKey, timeout)
}

// ChatURL appends /chat/completions to endpoint unless it already ends so.
func ChatURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasSuffix(endpoint, "/chat/completions") {
		return endpoint
	}
	return endpoint + "/chat/completions"
}

// HTTPCompleter talks to an OpenAI-compatible server (llama.cpp, Ollama,
// vLLM, OpenRouter and the like).
type HTTPCompleter struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPCompleter creates a completer for endpoint. The API key is sent as
// a bearer token only when non-empty.
func NewHTTPCompleter(endpoint, apiKey string, timeout time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		url:    ChatURL(endpoint),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete posts req and returns the first choice's content.
func (c *HTTPCompleter) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Completion{Raw: string(body)}, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	out := Completion{Raw: string(body)}
	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return out, nil
	}
	if len(chatResp.Choices) > 0 {
		out.Content = chatResp.Choices[0].Message.Content
	}
	return out, nil
}

// CloseIdleConnections releases pooled connections.
func (c *HTTPCompleter) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
