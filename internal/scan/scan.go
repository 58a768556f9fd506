// Package scan serves the scan interface: deterministic verdicts for every
// line, optionally refined by an LLM and then arbitrated.
package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal"
	"github.com/valpere/metermeter/internal/arbiter"
	"github.com/valpere/metermeter/internal/meter"
	"github.com/valpere/metermeter/internal/refiner"
	"github.com/valpere/metermeter/internal/store"
	"github.com/valpere/metermeter/internal/validator"
)

// Scan error strings.
const (
	ErrLLMDisabled       = "llm_disabled"
	ErrLLMNoEndpoint     = "llm_not_configured: endpoint/model required"
	ErrLLMNoLineBudget   = "llm_not_configured: max_lines_per_scan must be > 0"
	ErrLLMInvalidOrEmpty = "llm_invalid_or_empty_response"
)

const (
	minDominantWeight     = 0.05
	defaultRecordedSource = "scan"
)

// RunRecorder keeps a history of scans.
type RunRecorder interface {
	SaveScanRun(ctx context.Context, run store.ScanRun) (string, error)
}

// Config holds what a Service shares across scans.
type Config struct {
	// Refiner carries defaults for refiners created on demand. Endpoint,
	// model and API key come from each request.
	Refiner refiner.Config
	// Cache persists refinements; nil keeps them in memory only.
	Cache refiner.Store
	// Runs records every scan; nil disables history.
	Runs RunRecorder
}

// Service runs scans. It is safe for concurrent use; refiners are shared
// between scans that target the same endpoint and model, so their cache and
// cooldown persist for the life of the Service.
type Service struct {
	engine *meter.Engine
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	refiners map[string]*refiner.Refiner
}

// New creates a service. A nil logger discards output.
func New(engine *meter.Engine, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		refiners: make(map[string]*refiner.Refiner),
	}
}

// Scan analyses req. Failures are reported in the response, never returned.
func (s *Service) Scan(ctx context.Context, req internal.ScanRequest) internal.ScanResponse {
	start := time.Now()
	mctx := meterContext(req.Context)

	analyses := make([]*meter.LineAnalysis, 0, len(req.Lines))
	for _, l := range req.Lines {
		if a := s.engine.AnalyzeLine(l.LNum, l.Text, mctx); a != nil {
			analyses = append(analyses, a)
		}
	}

	var resp internal.ScanResponse
	if req.LLM == nil {
		resp = s.deterministic(req.Context, analyses)
	} else {
		resp = s.refined(ctx, req, analyses)
	}
	resp.Eval.LineCount = len(analyses)
	resp.Eval.ResultCount = len(resp.Results)

	s.logger.Debug("scan finished",
		zap.Int("lines", resp.Eval.LineCount),
		zap.Int("results", resp.Eval.ResultCount),
		zap.Int("overrides", resp.Eval.MeterOverrides),
		zap.String("error", resp.Error),
		zap.Duration("elapsed", time.Since(start)))
	s.record(ctx, req, resp, time.Since(start))
	return resp
}

func (s *Service) deterministic(sc *internal.ScanContext, analyses []*meter.LineAnalysis) internal.ScanResponse {
	resp := internal.ScanResponse{Results: make([]internal.ScanResult, 0, len(analyses))}
	verdicts := make([]verdict, 0, len(analyses))
	for _, a := range analyses {
		resp.Results = append(resp.Results, internal.ScanResult{
			LNum:          a.LineNo,
			Text:          a.Text,
			MeterName:     a.MeterName,
			Confidence:    a.Confidence,
			TokenPatterns: a.TokenPatterns,
			StressSpans:   StressSpans(a.Text, a.TokenSpans, a.TokenPatterns),
		})
		verdicts = append(verdicts, verdict{a.MeterName, a.Confidence})
	}
	resp.Eval.DominantMeter, resp.Eval.DominantRatio, resp.Eval.DominantLineCount = dominant(sc, verdicts)
	return resp
}

func (s *Service) refined(ctx context.Context, req internal.ScanRequest, analyses []*meter.LineAnalysis) internal.ScanResponse {
	resp := internal.ScanResponse{Results: []internal.ScanResult{}}
	opts := req.LLM

	var refinements map[int]*validator.Refinement
	switch {
	case !opts.Enabled:
		resp.Error = ErrLLMDisabled
	case strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Model) == "":
		resp.Error = ErrLLMNoEndpoint
	case opts.MaxLinesPerScan <= 0:
		resp.Error = ErrLLMNoLineBudget
	case len(analyses) > 0:
		var err error
		refinements, err = s.refine(ctx, req, analyses[:min(opts.MaxLinesPerScan, len(analyses))])
		switch {
		case err != nil:
			resp.Error = err.Error()
		case len(refinements) == 0:
			resp.Error = ErrLLMInvalidOrEmpty
		}
	}

	verdicts := make([]verdict, 0, len(refinements))
	for _, a := range analyses {
		if ref, ok := refinements[a.LineNo]; ok {
			verdicts = append(verdicts, verdict{ref.MeterName, ref.Confidence})
		}
	}
	domMeter, domRatio, domCount := dominant(req.Context, verdicts)
	resp.Eval.DominantMeter, resp.Eval.DominantRatio, resp.Eval.DominantLineCount = domMeter, domRatio, domCount
	if resp.Error != "" {
		return resp
	}

	for _, a := range analyses {
		ref, ok := refinements[a.LineNo]
		if !ok {
			continue
		}
		d := arbiter.Evaluate(arbiter.Context{
			CurrentMeter:       ref.MeterName,
			CurrentConfidence:  ref.Confidence,
			StressPattern:      ref.StressPattern,
			BaselineMeter:      a.MeterName,
			BaselineConfidence: a.Confidence,
			DominantMeter:      domMeter,
			DominantRatio:      domRatio,
			DominantLineCount:  domCount,
		}.WithPattern())
		if d.Overridden {
			resp.Eval.MeterOverrides++
			s.logger.Debug("meter overridden",
				zap.Int("line", a.LineNo),
				zap.String("from", ref.MeterName),
				zap.String("to", d.MeterName),
				zap.String("reason", d.Reason))
		}
		resp.Eval.TokenRepairs += ref.Repairs
		resp.Results = append(resp.Results, internal.ScanResult{
			LNum:            a.LineNo,
			Text:            a.Text,
			MeterName:       d.MeterName,
			Confidence:      d.Confidence,
			TokenPatterns:   ref.TokenPatterns,
			StressSpans:     StressSpans(a.Text, a.TokenSpans, ref.TokenPatterns),
			MeterOverridden: d.Overridden,
			OverrideReason:  d.Reason,
			AnalysisHint:    ref.Hint,
		})
	}
	return resp
}

func (s *Service) refine(ctx context.Context, req internal.ScanRequest, lines []*meter.LineAnalysis) (map[int]*validator.Refinement, error) {
	r, err := s.refinerFor(req.LLM)
	if err != nil {
		if errors.Is(err, refiner.ErrNotConfigured) {
			return nil, errors.New(ErrLLMNoEndpoint)
		}
		return nil, err
	}

	p := refiner.Params{Temperature: req.LLM.Temperature}
	if req.LLM.TimeoutMS > 0 {
		p.Timeout = time.Duration(req.LLM.TimeoutMS) * time.Millisecond
	}
	if req.Context != nil {
		p.DominantMeter = meter.NormalizeMeterName(req.Context.DominantMeter)
	}

	out, err := r.RefineLines(ctx, lines, p)
	if err == nil && len(out) == 0 && r.LastError() != "" {
		s.logger.Warn("llm refinement produced nothing", zap.String("last_error", r.LastError()))
	}
	return out, err
}

// refinerFor returns the shared refiner for the request's endpoint and model.
func (s *Service) refinerFor(opts *internal.LLMOptions) (*refiner.Refiner, error) {
	key := strings.TrimSpace(opts.Endpoint) + "\x00" + strings.TrimSpace(opts.Model) + "\x00" + opts.APIKey

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refiners[key]; ok {
		return r, nil
	}

	cfg := s.cfg.Refiner
	cfg.Endpoint = strings.TrimSpace(opts.Endpoint)
	cfg.Model = strings.TrimSpace(opts.Model)
	cfg.APIKey = opts.APIKey
	r, err := refiner.New(cfg, nil, s.cfg.Cache, s.logger.Named("refiner"))
	if err != nil {
		return nil, err
	}
	s.refiners[key] = r
	return r, nil
}

// ClearCaches resets every refiner's memory cache and cooldown.
func (s *Service) ClearCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refiners {
		r.ClearCache()
	}
}

func (s *Service) record(ctx context.Context, req internal.ScanRequest, resp internal.ScanResponse, elapsed time.Duration) {
	if s.cfg.Runs == nil {
		return
	}
	source := req.Source
	if source == "" {
		source = defaultRecordedSource
	}
	_, err := s.cfg.Runs.SaveScanRun(ctx, store.ScanRun{
		Source:         source,
		LineCount:      resp.Eval.LineCount,
		ResultCount:    resp.Eval.ResultCount,
		MeterOverrides: resp.Eval.MeterOverrides,
		DominantMeter:  resp.Eval.DominantMeter,
		DominantRatio:  resp.Eval.DominantRatio,
		LLMUsed:        req.LLM != nil && req.LLM.Enabled,
		Error:          resp.Error,
		Duration:       elapsed,
	})
	if err != nil {
		s.logger.Warn("failed to record scan run", zap.Error(err))
	}
}

func meterContext(sc *internal.ScanContext) meter.Context {
	if sc == nil || strings.TrimSpace(sc.DominantMeter) == "" {
		return meter.Context{}
	}
	c := meter.Context{DominantMeter: meter.NormalizeMeterName(sc.DominantMeter)}
	switch {
	case sc.DominantStrength != nil:
		c.Strength = clamp01(*sc.DominantStrength)
	case sc.DominantRatio != nil:
		c.Strength = clamp01(*sc.DominantRatio)
	}
	return c
}

type verdict struct {
	meter      string
	confidence float64
}

// dominant takes the poem's dominant meter from the request context, or
// else derives it from verdicts weighted by confidence.
func dominant(sc *internal.ScanContext, verdicts []verdict) (string, float64, int) {
	if sc != nil && strings.TrimSpace(sc.DominantMeter) != "" {
		ratio := 0.0
		if sc.DominantRatio != nil {
			ratio = clamp01(*sc.DominantRatio)
		}
		return meter.NormalizeMeterName(sc.DominantMeter), ratio, max(0, sc.DominantLineCount)
	}
	return weightedDominant(verdicts)
}

// weightedDominant picks the meter with the largest confidence-weighted
// share. Each weight is the confidence clamped to [0.05, 1]. Ties go to the
// meter seen first.
func weightedDominant(verdicts []verdict) (string, float64, int) {
	weights := make(map[string]float64)
	var order []string
	total := 0.0
	n := 0
	for _, v := range verdicts {
		name := meter.NormalizeMeterName(v.meter)
		if name == "" {
			continue
		}
		w := max(minDominantWeight, min(1, v.confidence))
		if _, seen := weights[name]; !seen {
			order = append(order, name)
		}
		weights[name] += w
		total += w
		n++
	}
	if n == 0 || total <= 0 {
		return "", 0, 0
	}
	best := order[0]
	for _, name := range order[1:] {
		if weights[name] > weights[best] {
			best = name
		}
	}
	return best, weights[best] / total, n
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}
