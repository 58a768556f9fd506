// Package orchestrator scans many poems concurrently. Poems are independent;
// each task writes only its own result slot.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/metermeter/internal"
)

// Scanner scans one request.
type Scanner interface {
	Scan(ctx context.Context, req internal.ScanRequest) internal.ScanResponse
}

type OrchestratorConfig struct {
	// Workers bounds concurrent scans; zero means GOMAXPROCS.
	Workers int
	// Timeout bounds each poem; zero means no limit.
	Timeout time.Duration
}

// Job is one poem to scan.
type Job struct {
	Name    string
	Request internal.ScanRequest
}

type Result struct {
	Name     string
	Response internal.ScanResponse
	Err      error
	Duration time.Duration
}

type OrchestratorResult struct {
	// Results are in job order.
	Results   []Result
	Succeeded int
	Failed    int
}

type Orchestrator struct {
	scanner Scanner
	config  OrchestratorConfig
}

func New(scanner Scanner, config OrchestratorConfig) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	return &Orchestrator{
		scanner: scanner,
		config:  config,
	}
}

// Execute scans every job. A job fails when its context ends first or its
// response carries an error; other jobs are unaffected.
func (o *Orchestrator) Execute(ctx context.Context, jobs []Job) *OrchestratorResult {
	result := &OrchestratorResult{Results: make([]Result, len(jobs))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			result.Results[i] = o.scanOne(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Results {
		if r.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result
}

func (o *Orchestrator) scanOne(ctx context.Context, job Job) Result {
	res := Result{Name: job.Name}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	if job.Request.Source == "" {
		job.Request.Source = job.Name
	}
	res.Response = o.scanner.Scan(ctx, job.Request)
	res.Duration = time.Since(start)
	if res.Response.Error != "" {
		res.Err = fmt.Errorf("%s: %s", job.Name, res.Response.Error)
	}
	return res
}
