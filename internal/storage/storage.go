// Package storage persists run history: reports, their case results and
// ingested JUnit suites.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

var ErrNotFound = errors.New("not found")

// Store defines the complete storage interface.
type Store interface {
	// Runs
	SaveReport(ctx context.Context, r *report.Report) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, f RunFilter) ([]*RunRecord, error)
	RunsBetween(ctx context.Context, from, to time.Time) ([]*RunRecord, error)

	// Case results
	ListCaseResults(ctx context.Context, runID string) ([]*CaseResult, error)
	CaseResultsBetween(ctx context.Context, from, to time.Time) ([]*CaseResult, error)

	// JUnit ingestion
	SaveJUnitSuites(ctx context.Context, runID string, suites []report.Suite) error
	ListJUnitSuites(ctx context.Context, runID string) ([]*JUnitSuite, error)

	// Data retention
	PurgeOldRuns(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
}

// RunRecord is the stored header of one run.
type RunRecord struct {
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	Contract        string     `json:"contract"`
	ContractVersion string     `json:"contract_version"`
	ContractDigest  string     `json:"contract_digest"`
	Target          string     `json:"target"`
	Status          run.Status `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	DurationMs      int64      `json:"duration_ms"`
	run.Counts
}

// CaseResult is one stored case verdict. StartedAt is the run's start time.
type CaseResult struct {
	RunID       string            `json:"run_id"`
	CaseID      string            `json:"case_id"`
	Name        string            `json:"name"`
	Operation   string            `json:"operation"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Category    string            `json:"category"`
	Status      run.VerdictStatus `json:"status"`
	Explanation string            `json:"explanation"`
	StatusCode  int               `json:"status_code"`
	DurationMs  int64             `json:"duration_ms"`
	Diff        []run.Mismatch    `json:"diff,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
}

// JUnitSuite is the stored summary of one ingested testsuite.
type JUnitSuite struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	run.Counts
}

// RunFilter narrows ListRuns. Zero values match everything; Limit 0 means 50.
type RunFilter struct {
	Contract string
	Source   string
	Limit    int
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// Open picks a backend from the DSN: postgres:// and postgresql:// use
// PostgreSQL, anything else is a SQLite path (an optional sqlite:// prefix
// is stripped).
func Open(ctx context.Context, dsn string, maxReadConns int) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	case dsn == "":
		return nil, fmt.Errorf("open store: empty dsn")
	default:
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), maxReadConns)
	}
}

// LoadReport rebuilds a report from a stored run and its case results.
func LoadReport(ctx context.Context, s Store, runID string) (*report.Report, error) {
	rec, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := s.ListCaseResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	rep := &report.Report{
		RunID:           rec.ID,
		Source:          rec.Source,
		Contract:        rec.Contract,
		ContractVersion: rec.ContractVersion,
		ContractDigest:  rec.ContractDigest,
		Target:          rec.Target,
		Status:          rec.Status,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		DurationMs:      rec.DurationMs,
	}
	for _, cr := range results {
		rep.Cases = append(rep.Cases, report.Case{
			ID:          cr.CaseID,
			Name:        cr.Name,
			Operation:   cr.Operation,
			Method:      cr.Method,
			Path:        cr.Path,
			Category:    cr.Category,
			Status:      cr.Status,
			Explanation: cr.Explanation,
			Diff:        cr.Diff,
			StatusCode:  cr.StatusCode,
			DurationMs:  cr.DurationMs,
		})
	}
	rep.Recount()
	return rep, nil
}
