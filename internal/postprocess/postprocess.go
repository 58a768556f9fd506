// Package postprocess removes common LLM artifacts from model output.
//
// It is applied to the message content returned by the chat completion
// endpoint before the scansion payload is decoded, and to free-text hints
// before they reach the user.
package postprocess

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text in four phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Markdown code fence removal
//  3. Instruction echo removal (prompt leakage)
//  4. Quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeCodeFences(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// ExtractJSONObject returns the JSON object carried by an LLM message. The
// cleaned content is used whole when it is a valid object; otherwise the
// first balanced {...} span is tried. It reports false when neither is valid
// JSON.
func ExtractJSONObject(content string) (string, bool) {
	text := removeThinkingBlocks(content)
	text = removeCodeFences(text)
	text = strings.TrimSpace(removeInstructionEchoes(text))

	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return text, true
	}
	obj, ok := firstBalancedObject(text)
	if !ok || !json.Valid([]byte(obj)) {
		return "", false
	}
	return obj, true
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: code fences ---

// codeFenceRe matches a fenced block with an optional language tag and
// captures its body.
var codeFenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\n?(.*?)```")

// unclosedFenceRe matches an opening fence whose closing fence never came.
var unclosedFenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \\t]*\\n?")

func removeCodeFences(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	text = unclosedFenceRe.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(text)
}

// --- Phase 3: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to.  Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [requested|final] JSON|scansion|analysis|result[s]:"
	regexp.MustCompile(`(?i)^here(?:'s| is| are)(?: the| my)? (?:requested |final |refined )?(?:json(?: object)?|scansion|analysis|results?|response)\s*:`),
	// "[The] [final] scansion|analysis:"
	regexp.MustCompile(`(?i)^(?:the )?(?:final |refined )?(?:scansion|analysis|json)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] JSON:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is| are)(?: the| my)? (?:requested |final |refined )?(?:json(?: object)?|scansion|analysis|results?|response)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 4: quote wrapping ---

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them (a common LLM artifact).  Supported pairs:
//
//	"…"  '…'  «…»  "…"  '…'
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') || // " "
		(first == '‘' && last == '’') { //  ' '
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}

// firstBalancedObject scans for the first '{' and returns the text up to its
// matching '}'. Braces inside JSON strings are ignored.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
