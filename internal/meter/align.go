package meter

import (
	"math"

	"github.com/valpere/metermeter/internal/prosody"
)

// Alignment costs.
const (
	MismatchCost           = 1.0
	BinaryFirstPosDiscount = 0.5
	LengthMismatchCost     = 0.85
	FeminineEndingCost     = 0.15
	CatalexisCost          = 0.25

	// OffLatticeCost is charged when a syllable is forced to a symbol outside
	// its option set.
	OffLatticeCost = 1.0
)

// Foot-position penalties for binary feet, added on top of a mismatch.
type footPenalties struct {
	firstFoot  float64
	spondee    float64 // stressed where weak expected
	weakStrong float64 // weak where stressed expected
}

var binaryPenalties = map[Foot]footPenalties{
	Iambic:   {firstFoot: 0.16, spondee: 0.34, weakStrong: 0.58},
	Trochaic: {firstFoot: 0.18, spondee: 0.38, weakStrong: 0.54},
}

// Alignment is the outcome of aligning one template with a line.
type Alignment struct {
	Template Template
	Cost     float64
	Resolved string
	// Feasible is false when the end state was unreachable and Resolved is
	// the default-stress fallback.
	Feasible bool
}

type move uint8

const (
	moveNone move = iota
	moveMatch
	moveDelete
	moveInsert
)

type cell struct {
	cost   float64
	move   move
	symbol prosody.Stress
}

// Align finds the cheapest assignment of the units' stress options to the
// template positions. At most one length discrepancy is tolerated: a
// trailing extra syllable for iambic lines, or one skipped template position
// (at the start for ternary feet, at the end otherwise).
func Align(units []prosody.SyllableUnit, t Template) Alignment {
	n := len(units)
	expected := t.Pattern()
	m := len(expected)

	fallback := Alignment{Template: t, Cost: math.Inf(1), Resolved: prosody.DefaultPattern(units)}
	if n-m > 1 || m-n > 1 {
		return fallback
	}

	grid := make([][]cell, n+1)
	for i := range grid {
		grid[i] = make([]cell, m+1)
		for j := range grid[i] {
			grid[i][j].cost = math.Inf(1)
		}
	}
	grid[0][0].cost = 0

	relax := func(i, j int, cost float64, mv move, sym prosody.Stress) {
		if cost < grid[i][j].cost {
			grid[i][j] = cell{cost: cost, move: mv, symbol: sym}
		}
	}

	canDelete := t.Foot == Iambic && n == m+1
	canInsert := n == m-1

	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			here := grid[i][j].cost
			if math.IsInf(here, 1) {
				continue
			}
			if i < n && j < m {
				want := prosody.Stress(expected[j])
				for _, opt := range units[i].Options {
					c := opt.Cost
					if opt.Stress != want {
						c += mismatchCost(t.Foot, j, want)
					}
					relax(i+1, j+1, here+c, moveMatch, opt.Stress)
				}
			}
			if canDelete && j == m && i < n {
				c := unstressedCost(units[i])
				if i == n-1 {
					c += FeminineEndingCost
				} else {
					c += LengthMismatchCost
				}
				relax(i+1, j, here+c, moveDelete, prosody.Unstressed)
			}
			if canInsert && j < m && insertAllowed(t.Foot, i, j, n, m) {
				c := LengthMismatchCost
				if expected[j] == byte(prosody.Unstressed) {
					c = CatalexisCost
				}
				relax(i, j+1, here+c, moveInsert, 0)
			}
		}
	}

	end := grid[n][m]
	if math.IsInf(end.cost, 1) {
		return fallback
	}

	resolved := make([]byte, 0, n)
	for i, j := n, m; i > 0 || j > 0; {
		c := grid[i][j]
		switch c.move {
		case moveMatch:
			resolved = append(resolved, byte(c.symbol))
			i, j = i-1, j-1
		case moveDelete:
			resolved = append(resolved, byte(c.symbol))
			i--
		case moveInsert:
			j--
		default:
			return fallback
		}
	}
	for l, r := 0, len(resolved)-1; l < r; l, r = l+1, r-1 {
		resolved[l], resolved[r] = resolved[r], resolved[l]
	}
	if len(resolved) != n {
		return fallback
	}
	return Alignment{Template: t, Cost: end.cost, Resolved: string(resolved), Feasible: true}
}

func insertAllowed(f Foot, i, j, n, m int) bool {
	if f.Binary() {
		return i == n && j == m-1
	}
	return i == 0 && j == 0
}

// mismatchCost prices a syllable whose symbol differs from the template's
// expected symbol at position j.
func mismatchCost(f Foot, j int, want prosody.Stress) float64 {
	p, binary := binaryPenalties[f]
	if !binary {
		return MismatchCost
	}
	c := MismatchCost
	if j == 0 {
		c = BinaryFirstPosDiscount
	}
	switch {
	case j/2 == 0:
		c += p.firstFoot
	case want == prosody.Unstressed:
		c += p.spondee
	default:
		c += p.weakStrong
	}
	return c
}

func unstressedCost(u prosody.SyllableUnit) float64 {
	if c, ok := u.Cost(prosody.Unstressed); ok {
		return c
	}
	return OffLatticeCost
}

// patternDistance is the positional (non-aligned) distance between a stress
// pattern and a template, using the same mismatch prices as Align.
func patternDistance(pattern string, t Template) float64 {
	expected := t.Pattern()
	common := min(len(pattern), len(expected))
	d := 0.0
	for j := 0; j < common; j++ {
		if pattern[j] != expected[j] {
			d += mismatchCost(t.Foot, j, prosody.Stress(expected[j]))
		}
	}
	diff := len(pattern) - len(expected)
	if diff < 0 {
		diff = -diff
	}
	return d + float64(diff)*LengthMismatchCost
}
