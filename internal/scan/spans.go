package scan

import (
	"github.com/valpere/metermeter/internal/prosody"
)

// StressSpans locates the stressed syllables of text. tokenSpans are the
// byte ranges of the words and patterns their stress, index for index.
// Returned spans are absolute UTF-8 byte offsets.
func StressSpans(text string, tokenSpans [][2]int, patterns []string) [][2]int {
	spans := [][2]int{}
	for i := 0; i < min(len(tokenSpans), len(patterns)); i++ {
		pat := patterns[i]
		ts := tokenSpans[i]
		if pat == "" || ts[0] < 0 || ts[1] > len(text) || ts[0] >= ts[1] {
			continue
		}
		token := text[ts[0]:ts[1]]
		syllables := prosody.SyllableSpans(token, len(pat))
		for j := 0; j < len(pat) && j < len(syllables); j++ {
			if pat[j] != byte(prosody.Stressed) {
				continue
			}
			start := ts[0] + runeToByte(token, syllables[j][0])
			end := ts[0] + runeToByte(token, syllables[j][1])
			if end > start {
				spans = append(spans, [2]int{start, end})
			}
		}
	}
	return spans
}

func runeToByte(s string, runeIdx int) int {
	if runeIdx <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runeIdx {
			return i
		}
		n++
	}
	return len(s)
}
