// Package chunker splits work into bounded pieces: slices of lines into
// request-sized batches, and poem text into stanzas at blank lines.
package chunker

import (
	"strings"
)

// DefaultBatchSize is the batch size used when Chunk is given size ≤ 0.
const DefaultBatchSize = 3

// Chunk splits items into consecutive batches of at most size elements. The
// batches share the backing array of items. If size ≤ 0, DefaultBatchSize is
// used. An empty input yields no batches.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Stanza is a run of non-blank lines. FirstLine is the 1-based number of its
// first line in the source text.
type Stanza struct {
	FirstLine int
	Lines     []string
}

// Stanzas splits text at blank lines. Both \n and \r\n line endings are
// accepted; trailing whitespace on each line is dropped.
func Stanzas(text string) []Stanza {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []Stanza
	var cur *Stanza
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			out = append(out, Stanza{FirstLine: i + 1})
			cur = &out[len(out)-1]
		}
		cur.Lines = append(cur.Lines, line)
	}
	return out
}
