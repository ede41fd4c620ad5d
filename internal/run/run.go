// Package run holds the aggregate of one execution: every test case paired
// with its verdict, plus the run-level status.
package run

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/synth"
)

// ErrSealed is returned when appending to a run that has been sealed.
var ErrSealed = errors.New("run is sealed")

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

type VerdictStatus string

const (
	Passed  VerdictStatus = "passed"
	Failed  VerdictStatus = "failed"
	Errored VerdictStatus = "errored"
	Skipped VerdictStatus = "skipped"
)

// Mismatch is one schema violation found in a response body.
type Mismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

type Verdict struct {
	Status      VerdictStatus
	Explanation string
	Diff        []Mismatch
}

// Entry pairs a test case with its terminal verdict.
type Entry struct {
	Case       *synth.TestCase
	Verdict    Verdict
	Duration   time.Duration
	StatusCode int
	Attempts   int
	URL        string
}

type Run struct {
	ID        string
	Contract  *contract.Contract
	Target    string
	StartedAt time.Time
	EndedAt   time.Time
	Status    Status

	entries []Entry
}

func New(c *contract.Contract, target string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Contract:  c,
		Target:    target,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
}

// Append records an entry. Only the aggregator calls it.
func (r *Run) Append(e Entry) error {
	if r.Status != StatusRunning {
		return ErrSealed
	}
	r.entries = append(r.entries, e)
	return nil
}

// Seal freezes the run with its final status.
func (r *Run) Seal(status Status) error {
	if r.Status != StatusRunning {
		return ErrSealed
	}
	r.Status = status
	r.EndedAt = time.Now().UTC()
	return nil
}

func (r *Run) Sealed() bool { return r.Status != StatusRunning }

// Entries returns a copy of the entries ordered by case id.
func (r *Run) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Case.ID < out[j].Case.ID })
	return out
}

func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

func (c *Counts) Add(s VerdictStatus) {
	c.Total++
	switch s {
	case Passed:
		c.Passed++
	case Failed:
		c.Failed++
	case Errored:
		c.Errored++
	case Skipped:
		c.Skipped++
	}
}

type Summary struct {
	Counts
	ByCategory map[synth.Category]Counts
	Duration   time.Duration
}

func (r *Run) Summary() Summary {
	s := Summary{ByCategory: make(map[synth.Category]Counts), Duration: r.Duration()}
	for _, e := range r.entries {
		s.Add(e.Verdict.Status)
		c := s.ByCategory[e.Case.Category]
		c.Add(e.Verdict.Status)
		s.ByCategory[e.Case.Category] = c
	}
	return s
}
