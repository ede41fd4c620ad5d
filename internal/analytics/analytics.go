// Package analytics computes quality metrics over stored run history.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/run"
	"github.com/y0f/apiprobe/internal/storage"
)

// Summary holds rates over the runs started inside a day window.
type Summary struct {
	WindowDays    int       `json:"window_days"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Runs          int       `json:"total_runs"`
	TestsExecuted int       `json:"total_tests_executed"`
	Passed        int       `json:"total_passed"`
	Failed        int       `json:"total_failed"`
	Errored       int       `json:"total_errored"`
	Skipped       int       `json:"total_skipped"`
	PassRate      float64   `json:"pass_rate"`
	FailureRate   float64   `json:"failure_rate"`
	FlakyRate     float64   `json:"flaky_rate"`
	FlakyCases    []string  `json:"flaky_cases,omitempty"`
}

// ComputeSummary aggregates the runs started in the last days days.
func ComputeSummary(ctx context.Context, store storage.Store, days int, now time.Time) (*Summary, error) {
	if days <= 0 {
		return nil, fmt.Errorf("window must be at least one day, got %d", days)
	}
	from := now.AddDate(0, 0, -days)

	runs, err := store.RunsBetween(ctx, from, now)
	if err != nil {
		return nil, err
	}
	cases, err := store.CaseResultsBetween(ctx, from, now)
	if err != nil {
		return nil, err
	}

	s := &Summary{WindowDays: days, From: from, To: now, Runs: len(runs)}
	var total run.Counts
	for _, r := range runs {
		total = sum(total, r.Counts)
	}
	s.TestsExecuted = total.Total
	s.Passed = total.Passed
	s.Failed = total.Failed
	s.Errored = total.Errored
	s.Skipped = total.Skipped
	s.PassRate = PassRate(total)
	s.FailureRate = FailureRate(total)
	s.FlakyCases, s.FlakyRate = flaky(cases)
	return s, nil
}

func sum(a, b run.Counts) run.Counts {
	return run.Counts{
		Total:   a.Total + b.Total,
		Passed:  a.Passed + b.Passed,
		Failed:  a.Failed + b.Failed,
		Errored: a.Errored + b.Errored,
		Skipped: a.Skipped + b.Skipped,
	}
}

func PassRate(c run.Counts) float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Passed) / float64(c.Total)
}

// FailureRate counts errored cases as failures.
func FailureRate(c run.Counts) float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Failed+c.Errored) / float64(c.Total)
}

// flaky returns the case names that both passed and failed (or errored)
// across the results, and their share of distinct names.
func flaky(cases []*storage.CaseResult) ([]string, float64) {
	type seen struct{ passed, failed bool }
	byName := make(map[string]*seen)
	for _, c := range cases {
		s, ok := byName[c.Name]
		if !ok {
			s = &seen{}
			byName[c.Name] = s
		}
		switch c.Status {
		case run.Passed:
			s.passed = true
		case run.Failed, run.Errored:
			s.failed = true
		}
	}

	var names []string
	for name, s := range byName {
		if s.passed && s.failed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(byName) == 0 {
		return nil, 0
	}
	return names, float64(len(names)) / float64(len(byName))
}

type Metric string

const (
	MetricPassRate    Metric = "passRate"
	MetricFailureRate Metric = "failureRate"
)

// ParsePeriod maps 7d, 30d and 90d to a day count.
func ParsePeriod(period string) (int, error) {
	switch period {
	case "7d":
		return 7, nil
	case "30d":
		return 30, nil
	case "90d":
		return 90, nil
	}
	return 0, fmt.Errorf("unknown period %q (want 7d, 30d or 90d)", period)
}

type Point struct {
	Day   string  `json:"day"`
	Value float64 `json:"value"`
	Runs  int     `json:"runs"`
}

type Trend struct {
	Metric Metric  `json:"metric"`
	Period string  `json:"period"`
	Points []Point `json:"points"`
}

// ComputeTrend evaluates metric per UTC day for the runs in period. Days
// without runs are omitted.
func ComputeTrend(ctx context.Context, store storage.Store, metric Metric, period string, now time.Time) (*Trend, error) {
	if metric != MetricPassRate && metric != MetricFailureRate {
		return nil, fmt.Errorf("unknown metric %q (want passRate or failureRate)", metric)
	}
	days, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	runs, err := store.RunsBetween(ctx, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]run.Counts)
	runsByDay := make(map[string]int)
	for _, r := range runs {
		day := r.StartedAt.UTC().Format("2006-01-02")
		byDay[day] = sum(byDay[day], r.Counts)
		runsByDay[day]++
	}

	t := &Trend{Metric: metric, Period: period, Points: []Point{}}
	for day, c := range byDay {
		v := PassRate(c)
		if metric == MetricFailureRate {
			v = FailureRate(c)
		}
		t.Points = append(t.Points, Point{Day: day, Value: v, Runs: runsByDay[day]})
	}
	sort.Slice(t.Points, func(i, j int) bool { return t.Points[i].Day < t.Points[j].Day })
	return t, nil
}

type Coverage struct {
	Contract        string   `json:"contract"`
	TotalEndpoints  int      `json:"total_endpoints"`
	TestedEndpoints int      `json:"tested_endpoints"`
	Coverage        float64  `json:"coverage"`
	Untested        []string `json:"untested,omitempty"`
}

// ComputeCoverage reports which operations of c have at least one executed
// case in history. A case counts when its method and path match the
// operation or its name contains "METHOD path". Skipped cases do not count.
func ComputeCoverage(ctx context.Context, store storage.Store, c *contract.Contract, now time.Time) (*Coverage, error) {
	cases, err := store.CaseResultsBetween(ctx, time.Unix(0, 0).UTC(), now)
	if err != nil {
		return nil, err
	}

	cov := &Coverage{Contract: c.Identity(), TotalEndpoints: len(c.Operations)}
	for _, op := range c.Operations {
		if tested(op, cases) {
			cov.TestedEndpoints++
		} else {
			cov.Untested = append(cov.Untested, op.Key())
		}
	}
	if cov.TotalEndpoints > 0 {
		cov.Coverage = float64(cov.TestedEndpoints) / float64(cov.TotalEndpoints)
	}
	return cov, nil
}

func tested(op *contract.Operation, cases []*storage.CaseResult) bool {
	key := op.Key()
	for _, cr := range cases {
		if cr.Status == run.Skipped {
			continue
		}
		if strings.EqualFold(cr.Method, op.Method) && cr.Path == op.Path {
			return true
		}
		if strings.Contains(cr.Name, key) {
			return true
		}
	}
	return false
}
