package meter

import (
	"math"
	"sort"

	"github.com/valpere/metermeter/internal/prosody"
)

// Line-length priors.
const (
	IambicPentameterBonus   = 0.18
	TrochaicPentameterBonus = 0.03
	TernaryMeterPenalty     = 0.14
	IambicHexameterBonus    = 0.12

	// IambicBiasThreshold lets iambic pentameter (or hexameter) win when it
	// trails the top candidate by no more than this.
	IambicBiasThreshold = 0.10
)

// Blend weights. These are tuned against the reference corpora; recalibrate
// on held-out data rather than re-deriving them.
const (
	AlignedScoreWeight = 0.5
	RawScoreWeight     = 0.5

	ConfScoreWeight  = 0.72
	ConfMarginWeight = 0.20
	ConfOOVWeight    = 0.08

	// ContextBonusMax is the bonus given to the dominant meter at full strength.
	ContextBonusMax = 0.06

	// ApproximateConfidenceScale discounts verdicts for lines no template
	// admits by length.
	ApproximateConfidenceScale = 0.8
)

// AlignmentPath is one scored template for a line.
type AlignmentPath struct {
	Template     Template
	Cost         float64
	Resolved     string
	BaseScore    float64
	ContextBonus float64
	Score        float64
	Feasible     bool
	// Approximate paths were scored positionally against a template of a
	// different length, without alignment.
	Approximate bool
}

// Context is optional poem-level evidence.
type Context struct {
	DominantMeter string
	// Strength is the confidence-weighted share of lines in the dominant
	// meter, in [0,1].
	Strength float64
}

// Verdict is the ranked outcome of evaluating every candidate.
type Verdict struct {
	Best       AlignmentPath
	Margin     float64
	Confidence float64
	// Paths holds every evaluated candidate, best first.
	Paths []AlignmentPath
	// IambicBias is set when the tie-break replaced the top candidate.
	IambicBias bool
	// Approximate is set when no template admitted the line's length and
	// the nearest templates were used instead.
	Approximate bool
}

// Evaluate aligns units against every candidate template, ranks them and
// derives margin and confidence. When no template admits the line's length
// the nearest templates are scored positionally and the verdict is marked
// Approximate with a discounted confidence. It reports false only for a
// line without syllables.
func Evaluate(units []prosody.SyllableUnit, ctx Context, oovRatio float64) (Verdict, bool) {
	n := len(units)
	if n == 0 {
		return Verdict{}, false
	}
	candidates := Candidates(n)
	approximate := len(candidates) == 0
	if approximate {
		candidates = NearestCandidates(n)
	}

	raw := prosody.DefaultPattern(units)
	dominant, hasDominant := ParseMeterName(ctx.DominantMeter)
	strength := clamp01(ctx.Strength)

	paths := make([]AlignmentPath, 0, len(candidates))
	for _, t := range candidates {
		var p AlignmentPath
		if approximate {
			p = approximatePath(raw, t)
		} else {
			p = scorePath(units, raw, t)
		}
		if hasDominant && p.Feasible && t == dominant {
			p.ContextBonus = ContextBonusMax * strength
			p.Score = clamp01(p.BaseScore + p.ContextBonus)
		}
		paths = append(paths, p)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Score > paths[j].Score
	})

	v := Verdict{Best: paths[0], Paths: paths, Approximate: approximate}
	if preferred, ok := iambicPreference(n); ok {
		for _, p := range paths[1:] {
			if p.Template == preferred && p.Feasible && p.Score >= v.Best.Score-IambicBiasThreshold {
				v.Best = p
				v.IambicBias = true
				break
			}
		}
	}

	second := 0.0
	for _, p := range paths {
		if p.Template != v.Best.Template && p.Score > second {
			second = p.Score
		}
	}
	v.Margin = math.Max(0, v.Best.Score-second)
	v.Confidence = Confidence(v.Best.Score, v.Margin, oovRatio)
	if approximate {
		v.Confidence *= ApproximateConfidenceScale
	}
	return v, true
}

// Confidence combines the best score, its margin over the runner-up and the
// out-of-vocabulary ratio into [0,1].
func Confidence(score, margin, oovRatio float64) float64 {
	return clamp01(ConfScoreWeight*score + ConfMarginWeight*margin + ConfOOVWeight*(1-clamp01(oovRatio)))
}

// scorePath aligns one template and blends the aligned score with the raw
// lexical score.
func scorePath(units []prosody.SyllableUnit, raw string, t Template) AlignmentPath {
	a := Align(units, t)
	p := AlignmentPath{Template: t, Cost: a.Cost, Resolved: a.Resolved, Feasible: a.Feasible}
	if !a.Feasible {
		return p
	}
	n := len(units)
	aligned := withPriors(costScore(a.Cost, n, t.Len()), n, t)
	lexical := withPriors(costScore(patternDistance(raw, t), len(raw), t.Len()), n, t)
	p.BaseScore = clamp01(AlignedScoreWeight*aligned + RawScoreWeight*lexical)
	p.Score = p.BaseScore
	return p
}

// approximatePath scores t against the default stress by position only;
// surplus or missing syllables cost LengthMismatchCost each. The resolved
// stress is the default stress.
func approximatePath(raw string, t Template) AlignmentPath {
	cost := patternDistance(raw, t)
	score := withPriors(costScore(cost, len(raw), t.Len()), len(raw), t)
	return AlignmentPath{
		Template:    t,
		Cost:        cost,
		Resolved:    raw,
		BaseScore:   score,
		Score:       score,
		Feasible:    true,
		Approximate: true,
	}
}

func costScore(cost float64, n, m int) float64 {
	if math.IsInf(cost, 1) {
		return 0
	}
	return clamp01(1 - cost/float64(max(n, m, 1)))
}

// withPriors applies line-length priors: 9–11 syllables favour pentameter
// and disfavour ternary feet, 12–13 favour iambic hexameter.
func withPriors(score float64, n int, t Template) float64 {
	switch {
	case n >= 9 && n <= 11:
		switch {
		case t.Foot == Iambic && t.Count == 5:
			score += IambicPentameterBonus
		case t.Foot == Trochaic && t.Count == 5:
			score += TrochaicPentameterBonus
		case !t.Foot.Binary():
			score -= TernaryMeterPenalty
		}
	case n >= 12 && n <= 13:
		if t.Foot == Iambic && t.Count == 6 {
			score += IambicHexameterBonus
		}
	}
	return clamp01(score)
}

func iambicPreference(n int) (Template, bool) {
	switch {
	case n >= 10 && n <= 11:
		return Template{Foot: Iambic, Count: 5}, true
	case n >= 12 && n <= 13:
		return Template{Foot: Iambic, Count: 6}, true
	}
	return Template{}, false
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
