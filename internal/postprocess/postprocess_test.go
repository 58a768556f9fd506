package postprocess

import "testing"

func TestRemoveThinkingBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no thinking blocks",
			input:    "{\"results\": []}",
			expected: "{\"results\": []}",
		},
		{
			name:     "simple thinking block",
			input:    "Some text<thinking>Let me scan this line</thinking>More text",
			expected: "Some textMore text",
		},
		{
			name:     "reasoning block",
			input:    "Start<reasoning>Counting syllables</reasoning>End",
			expected: "StartEnd",
		},
		{
			name:     "reflection block",
			input:    "Begin<reflection>Checking context</reflection>Finish",
			expected: "BeginFinish",
		},
		{
			name:     "multiple thinking blocks",
			input:    "<thinking>First</thinking>middle<thinking>Second</thinking>",
			expected: "middle",
		},
		{
			name:     "truncated thinking block (no closing)",
			input:    "<thinking>Scansion in progress",
			expected: "",
		},
		{
			name:     "truncated reasoning block",
			input:    "<reasoning>This model was cut off",
			expected: "",
		},
		{
			name:     "truncated thinking in middle",
			input:    "Before<thinking>Incomplete",
			expected: "Before",
		},
		{
			name:     "nested thinking inside content",
			input:    "Text<thinking>Ignored</thinking> after",
			expected: "Text after",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeThinkingBlocks(tt.input)
			if result != tt.expected {
				t.Errorf("removeThinkingBlocks(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveInstructionEchoes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no echo",
			input:    `{"results": []}`,
			expected: `{"results": []}`,
		},
		{
			name:     "here is the JSON",
			input:    `Here is the JSON: {"results": []}`,
			expected: `{"results": []}`,
		},
		{
			name:     "here's the scansion",
			input:    "Here's the scansion: USUSUSUSUS",
			expected: "USUSUSUSUS",
		},
		{
			name:     "here are the results",
			input:    "Here are the results:\n{}",
			expected: "{}",
		},
		{
			name:     "the final analysis",
			input:    "The final analysis: iambic",
			expected: "iambic",
		},
		{
			name:     "sure echo",
			input:    "Sure, here is the requested JSON object: {}",
			expected: "{}",
		},
		{
			name:     "certainly echo",
			input:    "Certainly! Here's my response: {}",
			expected: "{}",
		},
		{
			name:     "echo not at start (should not match)",
			input:    "Before Here is the JSON: After",
			expected: "Before Here is the JSON: After",
		},
		{
			name:     "echo without colon (should not match)",
			input:    "Here is the scansion of the line",
			expected: "Here is the scansion of the line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeInstructionEchoes(tt.input)
			if result != tt.expected {
				t.Errorf("removeInstructionEchoes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "fence after prose",
			input:    "Result below.\n```json\n{\"a\": 1}\n```\nDone.",
			expected: `{"a": 1}`,
		},
		{
			name:     "unclosed fence",
			input:    "```json\n{\"a\": 1}",
			expected: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeCodeFences(tt.input)
			if result != tt.expected {
				t.Errorf("removeCodeFences(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveQuoteWrapping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "single char",
			input:    "a",
			expected: "a",
		},
		{
			name:     "no quotes",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "double quotes",
			input:    "\"Hello world\"",
			expected: "Hello world",
		},
		{
			name:     "single quotes",
			input:    "'Hello world'",
			expected: "Hello world",
		},
		{
			name:     "guillemets",
			input:    "«Hello world»",
			expected: "Hello world",
		},
		{
			name:     "curly double quotes",
			input:    "\u201CHello world\u201D",
			expected: "Hello world",
		},
		{
			name:     "curly single quotes",
			input:    "\u2018Hello world\u2019",
			expected: "Hello world",
		},
		{
			name:     "unmatched quotes",
			input:    "\"Hello world'",
			expected: "\"Hello world'",
		},
		{
			name:     "only opening quote",
			input:    "\"Hello world",
			expected: "\"Hello world",
		},
		{
			name:     "only closing quote",
			input:    "Hello world\"",
			expected: "Hello world\"",
		},
		{
			name:     "quotes with leading/trailing whitespace",
			input:    "\"  Hello  \"",
			expected: "Hello",
		},
		{
			name:     "content with quotes inside",
			input:    "\"He said \"hello\"\"",
			expected: "He said \"hello\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := removeQuoteWrapping(tt.input)
			if result != tt.expected {
				t.Errorf("removeQuoteWrapping(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "clean hint",
			input:    "Initial inversion, then regular iambs.",
			expected: "Initial inversion, then regular iambs.",
		},
		{
			name:     "full cleanup pipeline",
			input:    "<thinking>Thinking</thinking>Here's the analysis:\n\"Strong caesura after the third foot\"",
			expected: "Strong caesura after the third foot",
		},
		{
			name:     "thinking + fence",
			input:    "<think>hmm</think>```json\n{}\n```",
			expected: "{}",
		},
		{
			name:     "truncated thinking at end",
			input:    "Text<thinking>Incomplete",
			expected: "Text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clean(tt.input)
			if result != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{
			name:     "direct object",
			input:    `{"results": [{"line_no": 1}]}`,
			expected: `{"results": [{"line_no": 1}]}`,
			ok:       true,
		},
		{
			name:     "fenced with thinking",
			input:    "<think>counting</think>\n```json\n{\"results\": []}\n```",
			expected: `{"results": []}`,
			ok:       true,
		},
		{
			name:     "object inside prose",
			input:    `The answer is {"a": {"b": 2}} and nothing else {"c": 3}`,
			expected: `{"a": {"b": 2}}`,
			ok:       true,
		},
		{
			name:     "braces inside strings",
			input:    `note: {"hint": "use } carefully {", "n": 1} trailing`,
			expected: `{"hint": "use } carefully {", "n": 1}`,
			ok:       true,
		},
		{
			name:  "no object",
			input: "I cannot scan this line.",
		},
		{
			name:  "unbalanced",
			input: `{"results": [`,
		},
		{
			name:  "invalid json",
			input: `{results: nope}`,
		},
		{
			name:  "empty",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ExtractJSONObject(tt.input)
			if ok != tt.ok {
				t.Fatalf("ExtractJSONObject(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if result != tt.expected {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
