// Package meter classifies a syllabified line against metrical templates.
//
// Each candidate template is aligned with the line's stress lattice by a
// Viterbi pass, scored, ranked and turned into a verdict with a confidence.
// Everything here is pure; an Engine may be shared across goroutines.
package meter

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Foot is a metrical foot type.
type Foot string

const (
	Iambic    Foot = "iambic"
	Trochaic  Foot = "trochaic"
	Anapestic Foot = "anapestic"
	Dactylic  Foot = "dactylic"
)

// Feet lists foot types in candidate order.
var Feet = []Foot{Iambic, Trochaic, Anapestic, Dactylic}

const (
	MinFeet = 1
	MaxFeet = 6
)

var footUnits = map[Foot]string{
	Iambic:    "US",
	Trochaic:  "SU",
	Anapestic: "UUS",
	Dactylic:  "SUU",
}

// allowed template length deltas (n - m) per foot
var footDeltas = map[Foot][]int{
	Iambic:    {0, +1},
	Trochaic:  {-1, 0},
	Anapestic: {-1, 0},
	Dactylic:  {-1, 0},
}

var lineNames = [...]string{"", "monometer", "dimeter", "trimeter", "tetrameter", "pentameter", "hexameter"}

var meterNameRe = regexp.MustCompile(`^(iambic|trochaic|anapestic|dactylic) (mono|di|tri|tetra|penta|hexa)meter$`)

// Unit is the foot's stress string.
func (f Foot) Unit() string {
	return footUnits[f]
}

// Binary reports whether the foot has two syllables.
func (f Foot) Binary() bool {
	return len(footUnits[f]) == 2
}

// Template is a foot type repeated Count times.
type Template struct {
	Foot  Foot
	Count int
}

// Pattern is the template's expected stress string.
func (t Template) Pattern() string {
	return strings.Repeat(t.Foot.Unit(), t.Count)
}

// Len is the template's syllable length.
func (t Template) Len() int {
	return len(t.Foot.Unit()) * t.Count
}

// Name renders the canonical meter name, e.g. "iambic pentameter".
func (t Template) Name() string {
	if t.Count < MinFeet || t.Count > MaxFeet {
		return fmt.Sprintf("%s %d-foot", t.Foot, t.Count)
	}
	return string(t.Foot) + " " + lineNames[t.Count]
}

// Key is the short debug key, e.g. "iambic:5".
func (t Template) Key() string {
	return fmt.Sprintf("%s:%d", t.Foot, t.Count)
}

// ParseMeterName parses a canonical meter name. Case and runs of whitespace
// are normalised before matching.
func ParseMeterName(name string) (Template, bool) {
	m := meterNameRe.FindStringSubmatch(NormalizeMeterName(name))
	if m == nil {
		return Template{}, false
	}
	for count := MinFeet; count <= MaxFeet; count++ {
		if lineNames[count] == m[2]+"meter" {
			return Template{Foot: Foot(m[1]), Count: count}, true
		}
	}
	return Template{}, false
}

// NormalizeMeterName lowercases name and collapses whitespace.
func NormalizeMeterName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ValidMeterName reports whether name is a canonical meter name.
func ValidMeterName(name string) bool {
	_, ok := ParseMeterName(name)
	return ok
}

// Candidates lists the templates a line of n syllables may plausibly follow:
// a template qualifies when n equals its length plus one of its foot's
// allowed deltas.
func Candidates(n int) []Template {
	var out []Template
	for _, foot := range Feet {
		for count := MinFeet; count <= MaxFeet; count++ {
			t := Template{Foot: foot, Count: count}
			for _, d := range footDeltas[foot] {
				if n == t.Len()+d {
					out = append(out, t)
					break
				}
			}
		}
	}
	return out
}

// NearestCandidates lists, for every foot, the foot counts closest to a line
// of n syllables: the rounded count and its neighbours, clamped to
// MinFeet..MaxFeet. It is the fallback for lengths no template admits, such
// as 16 syllables or anything longer than 18.
func NearestCandidates(n int) []Template {
	if n <= 0 {
		return nil
	}
	var out []Template
	for _, foot := range Feet {
		unit := len(foot.Unit())
		approx := max(MinFeet, min(MaxFeet, int(math.Round(float64(n)/float64(unit)))))
		for count := max(MinFeet, approx-1); count <= min(MaxFeet, approx+1); count++ {
			out = append(out, Template{Foot: foot, Count: count})
		}
	}
	return out
}
