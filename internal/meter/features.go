package meter

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Line endings.
const (
	EndingMasculine = "masc"
	EndingFeminine  = "fem"
)

// Features describes how a resolved stress pattern departs from its
// template, foot by foot.
type Features struct {
	// Ending is masc for a stressed final syllable and fem otherwise.
	Ending string
	// Inversion marks a foot with its stresses reversed, e.g. SU in an
	// iambic line; InitialInversion marks one in the first foot.
	Inversion        bool
	InitialInversion bool
	// Spondee marks a foot with more than one stress, Pyrrhic one with none.
	Spondee bool
	Pyrrhic bool
}

// FeaturesFor compares pattern with t foot by foot. Syllables past the
// template, such as a feminine ending, only affect Ending.
func FeaturesFor(t Template, pattern string) Features {
	var f Features
	if pattern == "" {
		return f
	}
	if pattern[len(pattern)-1] == 'S' {
		f.Ending = EndingMasculine
	} else {
		f.Ending = EndingFeminine
	}

	unit := t.Foot.Unit()
	size := len(unit)
	if size == 0 {
		return f
	}
	inverted := reverse(unit)
	for i := 0; i < t.Count && (i+1)*size <= len(pattern); i++ {
		foot := pattern[i*size : (i+1)*size]
		if foot == unit {
			continue
		}
		switch stresses := strings.Count(foot, "S"); {
		case foot == inverted:
			f.Inversion = true
			if i == 0 {
				f.InitialInversion = true
			}
		case stresses > 1:
			f.Spondee = true
		case stresses == 0:
			f.Pyrrhic = true
		}
	}
	return f
}

// FeaturesForMeter is FeaturesFor with the template given by name. It
// reports false for an unknown meter name.
func FeaturesForMeter(meterName, pattern string) (Features, bool) {
	t, ok := ParseMeterName(meterName)
	if !ok {
		return Features{}, false
	}
	return FeaturesFor(t, strings.ToUpper(pattern)), true
}

func (f Features) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("ending", f.Ending)
	enc.AddBool("inversion", f.Inversion)
	enc.AddBool("initial_inversion", f.InitialInversion)
	enc.AddBool("spondee", f.Spondee)
	enc.AddBool("pyrrhic", f.Pyrrhic)
	return nil
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
