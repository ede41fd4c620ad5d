package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/y0f/apiprobe/internal/diff"
	"github.com/y0f/apiprobe/internal/run"
)

// Change is a case whose verdict differs between two reports. An empty
// From or To means the case is absent on that side.
type Change struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	From run.VerdictStatus `json:"from,omitempty"`
	To   run.VerdictStatus `json:"to,omitempty"`
}

func (c Change) Regression() bool {
	return c.From == run.Passed && (c.To == run.Failed || c.To == run.Errored)
}

func (c Change) Fix() bool {
	return (c.From == run.Failed || c.From == run.Errored) && c.To == run.Passed
}

type Comparison struct {
	Old     string     `json:"old"`
	New     string     `json:"new"`
	Changes []Change   `json:"changes"`
	Before  run.Counts `json:"before"`
	After   run.Counts `json:"after"`
	Unified string     `json:"unified,omitempty"`
}

func (c *Comparison) Regressions() int {
	n := 0
	for _, ch := range c.Changes {
		if ch.Regression() {
			n++
		}
	}
	return n
}

// Compare pairs cases by id and reports verdict changes plus a unified diff
// of the verdict listings.
func Compare(old, new *Report) *Comparison {
	cmp := &Comparison{
		Old:    old.RunID,
		New:    new.RunID,
		Before: old.Summary,
		After:  new.Summary,
	}

	oldCases := indexCases(old)
	newCases := indexCases(new)
	ids := make(map[string]bool, len(oldCases)+len(newCases))
	for id := range oldCases {
		ids[id] = true
	}
	for id := range newCases {
		ids[id] = true
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		o, inOld := oldCases[id]
		n, inNew := newCases[id]
		ch := Change{ID: id}
		switch {
		case inOld && inNew:
			if o.Status == n.Status {
				continue
			}
			ch.Name, ch.From, ch.To = n.Name, o.Status, n.Status
		case inOld:
			ch.Name, ch.From = o.Name, o.Status
		default:
			ch.Name, ch.To = n.Name, n.Status
		}
		cmp.Changes = append(cmp.Changes, ch)
	}

	cmp.Unified = diff.Unified(old.RunID, new.RunID, listing(old), listing(new), 2)
	return cmp
}

func indexCases(r *Report) map[string]Case {
	m := make(map[string]Case, len(r.Cases))
	for _, c := range r.Cases {
		m[c.ID] = c
	}
	return m
}

// listing renders one line per case and mismatch, in case id order.
func listing(r *Report) string {
	cases := make([]Case, len(r.Cases))
	copy(cases, r.Cases)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })

	var buf bytes.Buffer
	for _, c := range cases {
		fmt.Fprintf(&buf, "%s %s %s\n", c.ID, c.Status, c.Explanation)
		for _, m := range c.Diff {
			fmt.Fprintf(&buf, "  %s: expected %s, got %s\n", m.Path, m.Expected, m.Actual)
		}
	}
	return buf.String()
}
