package lexicon

import (
	"regexp"
	"strings"
	"unicode"
)

var vowelGroupRe = regexp.MustCompile(`(?i)[aeiouyàáâäèéêëìíîïòóôöùúûü]+`)

// unstressedFunctionWords default to U when they stand alone as a monosyllable.
var unstressedFunctionWords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "from": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "nor": true, "of": true, "on": true,
	"or": true, "so": true, "than": true, "that": true, "the": true,
	"their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "to": true, "up": true, "was": true, "we": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "with": true, "you": true, "your": true,
}

// flexibleFunctionWords take stress from context more readily than content
// words; archaic pronouns and auxiliaries mostly.
var flexibleFunctionWords = map[string]bool{
	"can": true, "do": true, "hath": true, "not": true, "shall": true,
	"thee": true, "thou": true, "thy": true,
}

var stressedSuffixes = []string{"tion", "sion", "cian", "ture", "gion", "self", "selves", "ique", "eer"}

var weakSuffixes = []string{"ing", "ed", "es", "ly", "er", "est", "ous", "less", "ness"}

var elidedSyllables = map[string]int{
	"heaven": 1, "even": 1, "every": 2, "oer": 1, "o'er": 1, "power": 1,
	"hour": 1, "flower": 1, "fiery": 2, "spirit": 2,
}

// syllabicEdAdjectives keep a sounded "-ed" after consonants other than t/d.
var syllabicEdAdjectives = map[string]bool{
	"aged": true, "beloved": true, "blessed": true, "crabbed": true,
	"crooked": true, "cursed": true, "dogged": true, "jagged": true,
	"learned": true, "naked": true, "ragged": true, "rugged": true,
	"sacred": true, "wicked": true, "winged": true, "wretched": true,
}

// CleanWord lowercases word and drops everything except letters and inner
// apostrophes. Typographic apostrophes are folded to ASCII.
func CleanWord(word string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(word) {
		switch {
		case r == '\'' || r == '’':
			sb.WriteRune('\'')
		case unicode.IsLetter(r):
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "'")
}

// IsUnstressedFunctionWord reports whether word belongs to the closed set of
// function words that default to unstressed.
func IsUnstressedFunctionWord(word string) bool {
	return unstressedFunctionWords[CleanWord(word)]
}

// IsFunctionWord reports membership in the broader function-word set.
func IsFunctionWord(word string) bool {
	w := CleanWord(word)
	return unstressedFunctionWords[w] || flexibleFunctionWords[w]
}

// IsFlexibleFunctionWord reports whether word is an auxiliary or archaic
// pronoun whose stress is settled by context.
func IsFlexibleFunctionWord(word string) bool {
	return flexibleFunctionWords[CleanWord(word)]
}

// EstimateSyllables guesses the syllable count of a word from its spelling.
func EstimateSyllables(word string) int {
	clean := CleanWord(word)
	if clean == "" {
		return 0
	}
	if n, ok := elidedSyllables[clean]; ok {
		return n
	}

	syllables := len(vowelGroupRe.FindAllStringIndex(clean, -1))
	runes := []rune(clean)
	n := len(runes)

	switch {
	case strings.HasSuffix(clean, "e") && !strings.HasSuffix(clean, "le") && !strings.HasSuffix(clean, "ye") && syllables > 1:
		syllables--
	case strings.HasSuffix(clean, "ed") && n >= 4 && syllables > 1 &&
		!isVowel(runes[n-3]) && runes[n-3] != 't' && runes[n-3] != 'd' &&
		!syllabicEdAdjectives[clean] &&
		!(strings.HasSuffix(clean, "led") && !strings.HasSuffix(clean, "lled") && n >= 5 && !isVowel(runes[n-4])):
		// silent past-tense "-ed" (entwined); consonant + "led" keeps the -le syllable (trampled)
		syllables--
	}

	if syllables < 1 {
		return 1
	}
	return syllables
}

// BuildPattern returns an all-U pattern of the given length with a single S
// at stressIndex (clamped into range).
func BuildPattern(syllables, stressIndex int) string {
	if syllables <= 0 {
		return ""
	}
	if stressIndex < 0 {
		stressIndex = 0
	}
	if stressIndex > syllables-1 {
		stressIndex = syllables - 1
	}
	b := []byte(strings.Repeat("U", syllables))
	b[stressIndex] = 'S'
	return string(b)
}

// EstimateStressPattern guesses a lexical stress pattern for an unknown word.
func EstimateStressPattern(word string) string {
	clean := CleanWord(word)
	if clean == "" {
		return ""
	}
	syllables := EstimateSyllables(clean)

	if unstressedFunctionWords[clean] {
		if syllables == 1 {
			return "U"
		}
		return BuildPattern(syllables, syllables-1)
	}
	if syllables == 1 {
		return "S"
	}
	if hasAnySuffix(clean, stressedSuffixes) {
		return BuildPattern(syllables, syllables-1)
	}
	if hasAnySuffix(clean, weakSuffixes) {
		return BuildPattern(syllables, syllables-2)
	}
	return BuildPattern(syllables, 0)
}

// VowelGroups returns the rune offsets [start,end) of each vowel run in word.
// A trailing lone "e" group is dropped when it would exceed want.
func VowelGroups(word string, want int) [][2]int {
	lower := strings.ToLower(word)
	var out [][2]int
	for _, loc := range vowelGroupRe.FindAllStringIndex(lower, -1) {
		out = append(out, [2]int{runeOffset(lower, loc[0]), runeOffset(lower, loc[1])})
	}
	if want >= 1 && len(out) == want+1 && strings.HasSuffix(lower, "e") {
		last := out[len(out)-1]
		if last[1]-last[0] == 1 {
			out = out[:len(out)-1]
		}
	}
	return out
}

func runeOffset(s string, byteIdx int) int {
	return len([]rune(s[:byteIdx]))
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouy", r)
}
