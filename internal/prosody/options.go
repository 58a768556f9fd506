package prosody

import "github.com/valpere/metermeter/internal/lexicon"

// Flip costs for moving a syllable off its default stress.
const (
	FunctionWordFlipCost     = 0.25
	FlexibleWordFlipCost     = 0.15
	UsuallyStressedFlipCost  = 0.45
	MonosyllableFlipCost     = 0.25
	PolysyllableFlipCost     = 0.60
	EstimatedStressStepCost  = 0.15
	FunctionWordEarlyPenalty = 0.10
)

// usuallyStressed are monosyllables that carry stress in nearly every line of
// the reference corpora.
var usuallyStressed = map[string]bool{
	"love": true, "heart": true, "death": true, "night": true, "day": true,
	"light": true, "life": true, "soul": true, "sun": true, "moon": true,
	"sea": true, "time": true, "god": true, "king": true, "world": true,
	"dream": true, "fire": true, "earth": true, "sky": true, "star": true,
	"wind": true, "rain": true, "hand": true, "face": true, "eyes": true,
	"sweet": true, "fair": true, "dark": true, "bright": true, "deep": true,
	"long": true, "old": true, "dawn": true, "grave": true, "rose": true,
	"blood": true, "tears": true, "home": true, "fear": true, "hope": true,
	"truth": true, "breath": true, "flame": true, "stone": true, "tree": true,
	"field": true, "youth": true, "grief": true, "joy": true, "pain": true,
}

// OptionInput describes one syllable for StressOptions.
type OptionInput struct {
	// Word is the owning word as written.
	Word string
	// Syllables is the owning word's syllable count.
	Syllables int
	// Index is this syllable's position within the word.
	Index int
	// Lexical is the dictionary or estimated stress of this syllable.
	Lexical Stress
	// Ambiguous is set when alternate pronunciations disagree here.
	Ambiguous bool
	// Estimated is set when the word missed the lexicon.
	Estimated bool
	// Distance from the estimated stressed syllable, for estimated words.
	Distance int
}

// StressOptions returns the weighted stress options of one syllable, default
// first. Rules apply in order: unstressed function words, flexible function
// words, usually-stressed monosyllables, then the lexical flag.
func StressOptions(in OptionInput) []Option {
	mono := in.Syllables <= 1
	word := lexicon.CleanWord(in.Word)

	switch {
	case mono && lexicon.IsUnstressedFunctionWord(word):
		return pair(Unstressed, FunctionWordFlipCost)
	case mono && lexicon.IsFlexibleFunctionWord(word):
		return pair(in.Lexical, FlexibleWordFlipCost)
	case mono && usuallyStressed[word]:
		return pair(Stressed, UsuallyStressedFlipCost)
	case mono:
		return pair(in.Lexical, MonosyllableFlipCost)
	}

	flip := PolysyllableFlipCost
	if in.Ambiguous {
		flip = MonosyllableFlipCost
	}
	if in.Estimated && in.Lexical == Unstressed {
		// heuristic stress is a guess; moving it costs by distance instead
		flip = MonosyllableFlipCost + EstimatedStressStepCost*float64(in.Distance)
	}
	if lexicon.IsFunctionWord(word) && in.Lexical == Unstressed && in.Index < in.Syllables-1 {
		flip += FunctionWordEarlyPenalty
	}
	return pair(in.Lexical, flip)
}

func pair(def Stress, flipCost float64) []Option {
	return []Option{{Stress: def}, {Stress: def.Flip(), Cost: flipCost}}
}
