package run

import (
	"log/slog"
)

// Aggregator is the single writer of a Run. All verdicts reach the run
// through it, from one goroutine.
type Aggregator struct {
	run    *Run
	logger *slog.Logger
}

func NewAggregator(r *Run, logger *slog.Logger) *Aggregator {
	return &Aggregator{run: r, logger: logger}
}

func (a *Aggregator) Add(e Entry) {
	if err := a.run.Append(e); err != nil {
		a.logger.Error("dropping verdict", "case", e.Case.ID, "error", err)
		return
	}
	if e.Verdict.Status == Failed || e.Verdict.Status == Errored {
		a.logger.Info("case "+string(e.Verdict.Status),
			"case", e.Case.ID,
			"name", e.Case.Name(),
			"status_code", e.StatusCode,
			"explanation", e.Verdict.Explanation,
		)
	}
}

// Finish seals the run as aborted or completed and returns it.
func (a *Aggregator) Finish(aborted bool) *Run {
	status := StatusCompleted
	if aborted {
		status = StatusAborted
	}
	if err := a.run.Seal(status); err != nil {
		a.logger.Error("seal run", "run", a.run.ID, "error", err)
	}
	s := a.run.Summary()
	a.logger.Info("run sealed",
		"run", a.run.ID,
		"status", a.run.Status,
		"total", s.Total,
		"passed", s.Passed,
		"failed", s.Failed,
		"errored", s.Errored,
		"skipped", s.Skipped,
		"duration", s.Duration,
	)
	return a.run
}
