// Package arbiter reconciles an LLM meter verdict with the deterministic
// evidence. A fixed, ordered list of pure rules is tried and the first one
// that matches decides. No rule may raise the stated confidence.
package arbiter

import (
	"github.com/valpere/metermeter/internal/meter"
)

// Rule reason tags.
const (
	ReasonPatternRescore    = "pattern_rescore"
	ReasonIambicGuard       = "iambic_guard"
	ReasonBaselineGuard     = "baseline_guard"
	ReasonDominantSmoothing = "dominant_smoothing"
)

const iambicPentameter = "iambic pentameter"

// Rule thresholds.
const (
	RescoreMinScore  = 0.72
	RescoreMinMargin = 0.10

	GuardMinSyllables      = 9
	GuardMaxSyllables      = 11
	IambicGuardMinScore    = 0.68
	IambicGuardMinMargin   = 0.03
	IambicGuardMaxConf     = 0.75
	BaselineGuardMinConf   = 0.75
	BaselineGuardMaxConf   = 0.85
	SmoothingMinRatio      = 0.75
	SmoothingMinLines      = 6
	SmoothingMaxConf       = 0.65
	SmoothingMinScoreDelta = 0.08
)

// Context is everything a rule may look at. Rules treat it as read-only.
type Context struct {
	// CurrentMeter and CurrentConfidence are the verdict under review,
	// normally the LLM refinement.
	CurrentMeter      string
	CurrentConfidence float64
	// StressPattern is the resolved stress of the line, one U or S per
	// syllable.
	StressPattern string

	// Pattern-best verdict: the engine's classification of StressPattern.
	PatternBestMeter  string
	PatternBestScore  float64
	PatternBestMargin float64

	BaselineMeter      string
	BaselineConfidence float64

	DominantMeter     string
	DominantRatio     float64
	DominantLineCount int
}

// WithPattern fills the pattern-best fields by classifying StressPattern.
// They stay empty when the pattern fits no template.
func (c Context) WithPattern() Context {
	c.PatternBestMeter, c.PatternBestScore, c.PatternBestMargin = "", 0, 0
	if fit, ok := meter.BestMeterForPattern(c.StressPattern); ok {
		c.PatternBestMeter = fit.MeterName
		c.PatternBestScore = fit.Score
		c.PatternBestMargin = fit.Margin
	}
	return c
}

// Decision is the arbitrated verdict.
type Decision struct {
	MeterName  string
	Confidence float64
	Reason     string
	Overridden bool
}

// Rule returns a replacement verdict, or false to pass.
type Rule struct {
	Name  string
	Apply func(c Context) (meterName string, confidence float64, ok bool)
}

// Rules is the override policy in priority order.
var Rules = []Rule{
	{Name: ReasonPatternRescore, Apply: patternRescore},
	{Name: ReasonIambicGuard, Apply: iambicGuard},
	{Name: ReasonBaselineGuard, Apply: baselineGuard},
	{Name: ReasonDominantSmoothing, Apply: dominantSmoothing},
}

// Evaluate applies Rules to c.
func Evaluate(c Context) Decision {
	return EvaluateRules(Rules, c)
}

// EvaluateRules applies rules in order and stops at the first match. Without
// a match the current verdict is returned unchanged.
func EvaluateRules(rules []Rule, c Context) Decision {
	for _, r := range rules {
		name, conf, ok := r.Apply(c)
		if !ok {
			continue
		}
		return Decision{
			MeterName:  name,
			Confidence: min(c.CurrentConfidence, conf),
			Reason:     r.Name,
			Overridden: true,
		}
	}
	return Decision{MeterName: c.CurrentMeter, Confidence: c.CurrentConfidence}
}

func same(a, b string) bool {
	return meter.NormalizeMeterName(a) == meter.NormalizeMeterName(b)
}

func guardLength(c Context) bool {
	n := len(c.StressPattern)
	return n >= GuardMinSyllables && n <= GuardMaxSyllables
}

// patternRescore trusts the engine's reading of the LLM's own stress when it
// clearly prefers another meter.
func patternRescore(c Context) (string, float64, bool) {
	if c.PatternBestMeter == "" || same(c.PatternBestMeter, c.CurrentMeter) {
		return "", 0, false
	}
	if c.PatternBestScore < RescoreMinScore || c.PatternBestMargin < RescoreMinMargin {
		return "", 0, false
	}
	return c.PatternBestMeter, c.PatternBestScore, true
}

// iambicGuard keeps pentameter-length lines iambic when the pattern leans
// that way and the model was unsure.
func iambicGuard(c Context) (string, float64, bool) {
	if !same(c.PatternBestMeter, iambicPentameter) || same(c.CurrentMeter, iambicPentameter) {
		return "", 0, false
	}
	if !guardLength(c) {
		return "", 0, false
	}
	if c.PatternBestScore < IambicGuardMinScore || c.PatternBestMargin < IambicGuardMinMargin ||
		c.CurrentConfidence > IambicGuardMaxConf {
		return "", 0, false
	}
	return iambicPentameter, c.PatternBestScore, true
}

// baselineGuard restores a confident deterministic pentameter verdict.
func baselineGuard(c Context) (string, float64, bool) {
	if !same(c.BaselineMeter, iambicPentameter) || same(c.CurrentMeter, iambicPentameter) {
		return "", 0, false
	}
	if !guardLength(c) {
		return "", 0, false
	}
	if c.BaselineConfidence < BaselineGuardMinConf || c.CurrentConfidence > BaselineGuardMaxConf {
		return "", 0, false
	}
	return iambicPentameter, c.BaselineConfidence, true
}

// dominantSmoothing pulls an unsure outlier toward the poem's meter when
// the line's stress fits that meter noticeably better.
func dominantSmoothing(c Context) (string, float64, bool) {
	if c.DominantMeter == "" || same(c.DominantMeter, c.CurrentMeter) {
		return "", 0, false
	}
	if c.DominantRatio < SmoothingMinRatio || c.DominantLineCount < SmoothingMinLines ||
		c.CurrentConfidence > SmoothingMaxConf {
		return "", 0, false
	}
	domScore, ok := meter.ScorePatternForMeter(c.StressPattern, c.DominantMeter)
	if !ok {
		return "", 0, false
	}
	curScore, ok := meter.ScorePatternForMeter(c.StressPattern, c.CurrentMeter)
	if !ok {
		return "", 0, false
	}
	if domScore < curScore+SmoothingMinScoreDelta {
		return "", 0, false
	}
	return meter.NormalizeMeterName(c.DominantMeter), domScore, true
}
