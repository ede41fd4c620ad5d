// Package engine runs the full pipeline for one contract against one
// target: load, synthesize, execute, validate and aggregate.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/y0f/apiprobe/internal/assertion"
	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/executor"
	"github.com/y0f/apiprobe/internal/run"
	"github.com/y0f/apiprobe/internal/synth"
)

// Input is everything a caller supplies for one run.
type Input struct {
	Document    []byte
	BaseURL     string
	Headers     map[string]string
	Concurrency int
	// Timeout bounds the whole run; zero means no global deadline.
	Timeout time.Duration
}

// Engine holds executor settings shared by every run it starts. Runs are
// independent: each gets its own contract, executor and aggregator.
type Engine struct {
	defaults executor.Config
	logger   *slog.Logger
}

func New(defaults executor.Config, logger *slog.Logger) *Engine {
	return &Engine{defaults: defaults, logger: logger}
}

// Run executes one contract against in.BaseURL and returns the sealed run.
// Contract and target errors abort before a run exists; every other failure
// is recorded as a verdict.
func (e *Engine) Run(ctx context.Context, in Input) (*run.Run, error) {
	c, err := contract.Load(in.Document)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}

	exec, err := executor.New(e.executorConfig(in), e.logger)
	if err != nil {
		return nil, fmt.Errorf("configure executor: %w", err)
	}
	if err := exec.Preflight(ctx); err != nil {
		return nil, err
	}

	suite := synth.Synthesize(c)
	for _, serr := range suite.Errors {
		e.logger.Warn("operation skipped", "operation", serr.OperationID, "error", serr)
	}

	r := run.New(c, in.BaseURL)
	logger := e.logger.With("run", r.ID)
	logger.Info("run started",
		"contract", c.Identity(),
		"target", in.BaseURL,
		"operations", len(c.Operations),
		"cases", len(suite.Cases),
	)

	runCtx := ctx
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	agg := run.NewAggregator(r, logger)
	aborted := exec.Execute(runCtx, c.BasePath, suite.Cases, func(o *executor.Outcome) {
		agg.Add(run.Entry{
			Case:       o.Case,
			Verdict:    assertion.Evaluate(o.Case.Operation, o),
			Duration:   o.Elapsed,
			StatusCode: o.StatusCode,
			Attempts:   o.Attempts,
			URL:        o.URL,
		})
	})
	return agg.Finish(aborted), nil
}

func (e *Engine) executorConfig(in Input) executor.Config {
	cfg := e.defaults
	cfg.BaseURL = in.BaseURL
	cfg.Headers = make(map[string]string, len(e.defaults.Headers)+len(in.Headers))
	maps.Copy(cfg.Headers, e.defaults.Headers)
	maps.Copy(cfg.Headers, in.Headers)
	if in.Concurrency != 0 {
		cfg.Concurrency = in.Concurrency
	}
	return cfg
}
