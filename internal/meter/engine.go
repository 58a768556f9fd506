package meter

import (
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal/lexicon"
	"github.com/valpere/metermeter/internal/prosody"
)

// debugTopN is how many ranked candidates are kept in DebugScores.
const debugTopN = 6

// SyllablePosition locates one syllable of the source line. Start and End
// count runes.
type SyllablePosition struct {
	Token  int
	Start  int
	End    int
	Stress prosody.Stress
}

// LineAnalysis is the deterministic verdict for one line. Downstream stages
// treat it as read-only. TokenSpans are byte offsets of each token in Text.
type LineAnalysis struct {
	LineNo         int
	Text           string
	Tokens         []string
	TokenSpans     [][2]int
	TokenSyllables []int
	StressPattern  string
	MeterName      string
	Foot           Foot
	FeetCount      int
	Confidence     float64
	Margin         float64
	TokenPatterns  []string
	Syllables      []SyllablePosition
	OOVTokens      []string
	DebugScores    map[string]float64
	// Approximate is set when no template admits the line's length; the
	// verdict is then the nearest template with a discounted confidence.
	Approximate bool
	// Features describes the line ending and foot substitutions against
	// the chosen template.
	Features Features
}

// SyllableCount is the number of syllables in the line.
func (a *LineAnalysis) SyllableCount() int {
	return len(a.StressPattern)
}

// Engine scans lines against a read-only lexicon.
type Engine struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// NewEngine creates an engine. A nil logger discards debug output.
func NewEngine(lex *lexicon.Lexicon, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{lex: lex, logger: logger}
}

// Lexicon exposes the engine's lexicon.
func (e *Engine) Lexicon() *lexicon.Lexicon {
	return e.lex
}

// AnalyzeLine scans one line. It returns nil only for lines without words;
// lines too long for every template get an approximate verdict.
func (e *Engine) AnalyzeLine(lineNo int, text string, ctx Context) *LineAnalysis {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	line := prosody.Syllabify(text, e.lex)
	if len(line.Units) == 0 {
		return nil
	}

	v, ok := Evaluate(line.Units, ctx, line.OOVRatio())
	if !ok {
		return nil
	}
	if v.Approximate {
		e.logger.Debug("no template admits line length, using nearest",
			zap.Int("line", lineNo),
			zap.Int("syllables", len(line.Units)),
			zap.String("template", v.Best.Template.Key()))
	}
	for _, p := range v.Paths {
		if !p.Feasible {
			e.logger.Debug("alignment unreachable",
				zap.Int("line", lineNo),
				zap.String("template", p.Template.Key()))
		}
	}

	counts := line.TokenSyllables()
	a := &LineAnalysis{
		LineNo:         lineNo,
		Text:           text,
		Tokens:         prosody.Words(line.Tokens),
		TokenSpans:     make([][2]int, len(line.Tokens)),
		TokenSyllables: counts,
		StressPattern:  v.Best.Resolved,
		MeterName:      v.Best.Template.Name(),
		Foot:           v.Best.Template.Foot,
		FeetCount:      v.Best.Template.Count,
		Confidence:     v.Confidence,
		Margin:         v.Margin,
		TokenPatterns:  SplitPattern(v.Best.Resolved, counts),
		OOVTokens:      line.OOVTokens(),
		DebugScores:    debugScores(v),
		Approximate:    v.Approximate,
		Features:       FeaturesFor(v.Best.Template, v.Best.Resolved),
	}
	for i, t := range line.Tokens {
		a.TokenSpans[i] = [2]int{t.Start, t.End}
	}
	e.logger.Debug("line scanned",
		zap.Int("line", lineNo),
		zap.String("meter", a.MeterName),
		zap.String("stress", a.StressPattern),
		zap.Float64("confidence", a.Confidence),
		zap.Object("features", a.Features))
	for i, u := range line.Units {
		a.Syllables = append(a.Syllables, SyllablePosition{
			Token:  u.Token,
			Start:  u.Start,
			End:    u.End,
			Stress: prosody.Stress(v.Best.Resolved[i]),
		})
	}
	return a
}

// SplitPattern cuts pattern into consecutive chunks of the given sizes. It
// returns nil when the sizes do not add up to the pattern length.
func SplitPattern(pattern string, sizes []int) []string {
	out := make([]string, 0, len(sizes))
	pos := 0
	for _, n := range sizes {
		if n < 0 || pos+n > len(pattern) {
			return nil
		}
		out = append(out, pattern[pos:pos+n])
		pos += n
	}
	if pos != len(pattern) {
		return nil
	}
	return out
}

// PatternFit is the best template for a fixed stress pattern.
type PatternFit struct {
	MeterName string
	Score     float64
	Margin    float64
	Scores    map[string]float64
}

// BestMeterForPattern classifies an already resolved stress pattern, such as
// one proposed by an LLM. Characters other than U and S are ignored. It
// reports false when no template admits the pattern's length, since an
// approximate fit is no evidence for overriding a verdict.
func BestMeterForPattern(pattern string) (PatternFit, bool) {
	units := prosody.Forced(strings.ToUpper(pattern))
	v, ok := Evaluate(units, Context{}, 0)
	if !ok || v.Approximate {
		return PatternFit{}, false
	}
	return PatternFit{
		MeterName: v.Best.Template.Name(),
		Score:     v.Best.Score,
		Margin:    v.Margin,
		Scores:    debugScores(v),
	}, true
}

// ScorePatternForMeter scores a fixed stress pattern against one named
// meter, whether or not that meter is a candidate for the pattern's length.
// It reports false for an unknown meter name or an empty pattern.
func ScorePatternForMeter(pattern, meterName string) (float64, bool) {
	t, ok := ParseMeterName(meterName)
	if !ok {
		return 0, false
	}
	units := prosody.Forced(strings.ToUpper(pattern))
	if len(units) == 0 {
		return 0, false
	}
	p := scorePath(units, prosody.DefaultPattern(units), t)
	return p.Score, true
}

func debugScores(v Verdict) map[string]float64 {
	out := make(map[string]float64, debugTopN+2)
	for i, p := range v.Paths {
		if i == debugTopN {
			break
		}
		out[p.Template.Key()] = p.Score
	}
	out["margin"] = v.Margin
	if v.IambicBias {
		out["bias:iambic"] = v.Best.Score
	}
	if v.Approximate {
		out["approximate"] = 1
	}
	return out
}
