// Package report renders sealed runs as JSON, JUnit XML and XLSX, reads
// them back, and compares two reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/y0f/apiprobe/internal/run"
	"github.com/y0f/apiprobe/internal/synth"
)

// Source records where a report came from.
const (
	SourceEngine = "engine"
	SourceJUnit  = "junit"
)

type Report struct {
	RunID           string                `json:"run_id"`
	Source          string                `json:"source"`
	Contract        string                `json:"contract"`
	ContractVersion string                `json:"contract_version,omitempty"`
	ContractDigest  string                `json:"contract_digest,omitempty"`
	Target          string                `json:"target,omitempty"`
	Status          run.Status            `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         time.Time             `json:"ended_at"`
	DurationMs      int64                 `json:"duration_ms"`
	Summary         run.Counts            `json:"summary"`
	Categories      map[string]run.Counts `json:"categories,omitempty"`
	Cases           []Case                `json:"cases"`
}

type Case struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Operation   string            `json:"operation"`
	Method      string            `json:"method,omitempty"`
	Path        string            `json:"path,omitempty"`
	Category    string            `json:"category,omitempty"`
	Target      string            `json:"target,omitempty"`
	Probe       string            `json:"probe,omitempty"`
	Status      run.VerdictStatus `json:"status"`
	Explanation string            `json:"explanation,omitempty"`
	Diff        []run.Mismatch    `json:"diff,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Attempts    int               `json:"attempts,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
	URL         string            `json:"url,omitempty"`
}

// Build derives a report from a sealed run. Cases are ordered by id so two
// reports of the same contract line up.
func Build(r *run.Run) *Report {
	rep := &Report{
		RunID:      r.ID,
		Source:     SourceEngine,
		Target:     r.Target,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		DurationMs: r.Duration().Milliseconds(),
		Categories: make(map[string]run.Counts),
	}
	if c := r.Contract; c != nil {
		rep.Contract = c.Title
		rep.ContractVersion = c.Version
		rep.ContractDigest = c.Digest
	}

	s := r.Summary()
	rep.Summary = s.Counts
	for cat, counts := range s.ByCategory {
		rep.Categories[string(cat)] = counts
	}

	for _, e := range r.Entries() {
		rep.Cases = append(rep.Cases, caseOf(e))
	}
	return rep
}

func caseOf(e run.Entry) Case {
	tc := e.Case
	c := Case{
		ID:          tc.ID,
		Name:        tc.Name(),
		Category:    string(tc.Category),
		Target:      tc.Target,
		Probe:       tc.Probe,
		Status:      e.Verdict.Status,
		Explanation: e.Verdict.Explanation,
		Diff:        e.Verdict.Diff,
		StatusCode:  e.StatusCode,
		Attempts:    e.Attempts,
		DurationMs:  e.Duration.Milliseconds(),
		URL:         e.URL,
	}
	if op := tc.Operation; op != nil {
		c.Operation = op.ID
		c.Method = op.Method
		c.Path = op.Path
	}
	return c
}

// Operations returns the distinct operation ids in case order.
func (r *Report) Operations() []string {
	seen := make(map[string]bool)
	var ops []string
	for _, c := range r.Cases {
		if !seen[c.Operation] {
			seen[c.Operation] = true
			ops = append(ops, c.Operation)
		}
	}
	return ops
}

// Recount recomputes Summary and Categories from the cases.
func (r *Report) Recount() {
	r.Summary = run.Counts{}
	r.Categories = make(map[string]run.Counts)
	for _, c := range r.Cases {
		r.Summary.Add(c.Status)
		if c.Category == "" {
			continue
		}
		counts := r.Categories[c.Category]
		counts.Add(c.Status)
		r.Categories[c.Category] = counts
	}
}

func (r *Report) sortCases() {
	sort.SliceStable(r.Cases, func(i, j int) bool { return r.Cases[i].ID < r.Cases[j].ID })
}

// CategoryNames lists categories in synthesis order followed by any others
// alphabetically.
func (r *Report) CategoryNames() []string {
	var out []string
	known := make(map[string]bool)
	for _, cat := range synth.Categories {
		known[string(cat)] = true
		if _, ok := r.Categories[string(cat)]; ok {
			out = append(out, string(cat))
		}
	}
	var rest []string
	for name := range r.Categories {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func ReadJSON(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	r.sortCases()
	return &r, nil
}
