// Package detector guesses the language of a poem. Scansion only knows
// English stress, so callers use it to warn about other input.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Languages the detector distinguishes between. A short list keeps model
// loading fast and covers the usual sources of mixed-language verse.
var Languages = []lingua.Language{
	lingua.English,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Latin,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Russian,
	lingua.Ukrainian,
}

// minConfidence is the English confidence below which text is reported as
// probably not English.
const minConfidence = 0.5

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(Languages...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// IsEnglish reports whether text reads as English, with the detected
// language's ISO code. Empty or undecidable text counts as English so that
// callers only warn on positive evidence.
func (d *Detector) IsEnglish(text string) (bool, string) {
	lang, ok := d.Detect(text)
	if !ok {
		return true, ""
	}
	if lang == lingua.English {
		return true, "EN"
	}
	if d.detector.ComputeLanguageConfidence(text, lingua.English) >= minConfidence {
		return true, "EN"
	}
	return false, lang.IsoCode639_1().String()
}
