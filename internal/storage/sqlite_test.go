package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "apiprobe-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpFile.Name())
		os.Remove(tmpFile.Name() + "-wal")
		os.Remove(tmpFile.Name() + "-shm")
	})

	store, err := NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(id string, started time.Time, statuses ...run.VerdictStatus) *report.Report {
	rep := &report.Report{
		RunID:           id,
		Source:          report.SourceEngine,
		Contract:        "Items",
		ContractVersion: "1.0.0",
		Target:          "http://api.test",
		Status:          run.StatusCompleted,
		StartedAt:       started,
		EndedAt:         started.Add(2 * time.Second),
		DurationMs:      2000,
	}
	names := []string{"getItem happy_path", "getItem boundary id max+1", "createItem happy_path"}
	for i, st := range statuses {
		c := report.Case{
			ID:         []string{"T00001-getItem", "T00002-getItem", "T00003-createItem"}[i],
			Name:       names[i],
			Operation:  []string{"getItem", "getItem", "createItem"}[i],
			Method:     []string{"GET", "GET", "POST"}[i],
			Path:       []string{"/items/{id}", "/items/{id}", "/items"}[i],
			Category:   "happy_path",
			Status:     st,
			StatusCode: 200,
			DurationMs: 12,
		}
		if st == run.Failed {
			c.Explanation = "status 200, body violates schema (1 mismatch(es))"
			c.Diff = []run.Mismatch{{Path: "$.id", Expected: "integer", Actual: "string"}}
		}
		rep.Cases = append(rep.Cases, c)
	}
	rep.Recount()
	return rep
}

func TestSaveAndGetRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rep := sampleReport("run-1", started, run.Passed, run.Failed, run.Skipped)
	if err := store.SaveReport(ctx, rep); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Contract != "Items" || got.Status != run.StatusCompleted {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.Total != 3 || got.Passed != 1 || got.Failed != 1 || got.Skipped != 1 {
		t.Fatalf("unexpected counts %+v", got.Counts)
	}

	cases, err := store.ListCaseResults(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 3 {
		t.Fatalf("expected 3 case results, got %d", len(cases))
	}
	if cases[1].Status != run.Failed || len(cases[1].Diff) != 1 || cases[1].Diff[0].Path != "$.id" {
		t.Fatalf("unexpected failed case %+v", cases[1])
	}
	if cases[0].Diff != nil {
		t.Fatalf("expected nil diff for passed case, got %+v", cases[0].Diff)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveReportDuplicateFails(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	rep := sampleReport("dup", time.Now(), run.Passed)
	if err := store.SaveReport(ctx, rep); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveReport(ctx, rep); err == nil {
		t.Fatal("expected error saving the same run twice")
	}
}

func TestListRunsAndWindows(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rep := sampleReport(id, base.AddDate(0, 0, i), run.Passed, run.Failed)
		if id == "c" {
			rep.Source = report.SourceJUnit
		}
		if err := store.SaveReport(ctx, rep); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[0].ID != "c" {
		t.Fatalf("expected newest first, got %d runs", len(runs))
	}

	runs, _ = store.ListRuns(ctx, RunFilter{Source: report.SourceEngine, Limit: 1})
	if len(runs) != 1 || runs[0].ID != "b" {
		t.Fatalf("unexpected filtered runs %+v", runs)
	}

	between, err := store.RunsBetween(ctx, base.Add(time.Hour), base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(between) != 2 || between[0].ID != "b" {
		t.Fatalf("unexpected window %+v", between)
	}

	cases, err := store.CaseResultsBetween(ctx, base, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 4 {
		t.Fatalf("expected 4 case results in window, got %d", len(cases))
	}
}

func TestJUnitSuites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	suites := []report.Suite{
		{
			Name:      "checkout",
			Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			Duration:  1500 * time.Millisecond,
			Cases: []report.SuiteCase{
				{Name: "CartTest.adds", Status: run.Passed},
				{Name: "CartTest.removes", Status: run.Failed, Message: "boom"},
			},
		},
		{
			Name:  "search",
			Cases: []report.SuiteCase{{Name: "SearchTest.finds", Status: run.Passed}, {Name: "SearchTest.slow", Status: run.Skipped}},
		},
	}
	rep := report.FromJUnit("upload", suites)
	if err := store.SaveReport(ctx, rep); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveJUnitSuites(ctx, rep.RunID, suites); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListJUnitSuites(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suites, got %d", len(got))
	}
	if got[0].Status != "failed" || got[0].Total != 2 || got[0].DurationMs != 1500 {
		t.Fatalf("unexpected first suite %+v", got[0])
	}
	if got[1].Status != "mixed" || got[1].Skipped != 1 {
		t.Fatalf("unexpected second suite %+v", got[1])
	}
}

func TestPurgeOldRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := sampleReport("old", now.AddDate(0, 0, -40), run.Passed)
	fresh := sampleReport("fresh", now.AddDate(0, 0, -1), run.Passed)
	for _, rep := range []*report.Report{old, fresh} {
		if err := store.SaveReport(ctx, rep); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SaveJUnitSuites(ctx, "old", []report.Suite{{Name: "s"}}); err != nil {
		t.Fatal(err)
	}

	r := NewRetention(store, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	deleted, err := r.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 purged run, got %d", deleted)
	}
	if _, err := store.GetRun(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old run to be gone, got %v", err)
	}
	if cases, _ := store.ListCaseResults(ctx, "old"); len(cases) != 0 {
		t.Fatalf("expected old case results to be gone, got %d", len(cases))
	}
	if suites, _ := store.ListJUnitSuites(ctx, "old"); len(suites) != 0 {
		t.Fatalf("expected old suites to be gone, got %d", len(suites))
	}
	if _, err := store.GetRun(ctx, "fresh"); err != nil {
		t.Fatalf("fresh run purged: %v", err)
	}

	if n, _ := NewRetention(store, 0, slog.Default()).Purge(ctx); n != 0 {
		t.Fatalf("zero retention must keep everything, purged %d", n)
	}
}

func TestLoadReport(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rep := sampleReport("r", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), run.Passed, run.Failed)
	if err := store.SaveReport(ctx, rep); err != nil {
		t.Fatal(err)
	}

	got, err := LoadReport(ctx, store, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != rep.Summary {
		t.Fatalf("summary = %+v, want %+v", got.Summary, rep.Summary)
	}
	if cmp := report.Compare(rep, got); len(cmp.Changes) != 0 {
		t.Fatalf("expected no changes after reload, got %+v", cmp.Changes)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "apiprobe-reopen-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	first, err := NewSQLiteStore(tmpFile.Name(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SaveReport(context.Background(), sampleReport("keep", time.Now(), run.Passed)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := NewSQLiteStore(tmpFile.Name(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if _, err := second.GetRun(context.Background(), "keep"); err != nil {
		t.Fatal(err)
	}
}

func TestOpenDispatch(t *testing.T) {
	if _, err := Open(context.Background(), "", 1); err == nil {
		t.Fatal("expected error for empty dsn")
	}

	path := t.TempDir() + "/history.db"
	s, err := Open(context.Background(), "sqlite://"+path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", s)
	}
}
