package analytics

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
	"github.com/y0f/apiprobe/internal/storage"
)

func testStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "apiprobe-analytics-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type seedCase struct {
	name, method, path string
	status             run.VerdictStatus
}

func save(t *testing.T, store storage.Store, id string, started time.Time, cases ...seedCase) {
	t.Helper()
	rep := &report.Report{
		RunID:     id,
		Source:    report.SourceEngine,
		Contract:  "Items",
		Status:    run.StatusCompleted,
		StartedAt: started,
		EndedAt:   started.Add(time.Second),
	}
	for i, c := range cases {
		rep.Cases = append(rep.Cases, report.Case{
			ID:     id + "-" + string(rune('a'+i)),
			Name:   c.name,
			Method: c.method,
			Path:   c.path,
			Status: c.status,
		})
	}
	rep.Recount()
	if err := store.SaveReport(context.Background(), rep); err != nil {
		t.Fatal(err)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store := testStore(t)
	save(t, store, "r1", now.Add(-48*time.Hour),
		seedCase{"getItem happy_path", "GET", "/items/{id}", run.Passed},
		seedCase{"listItems happy_path", "GET", "/items", run.Failed},
	)
	save(t, store, "r2", now.Add(-24*time.Hour),
		seedCase{"getItem happy_path", "GET", "/items/{id}", run.Failed},
		seedCase{"listItems happy_path", "GET", "/items", run.Failed},
		seedCase{"createItem happy_path", "POST", "/items", run.Skipped},
	)
	save(t, store, "r3", now.Add(-23*time.Hour),
		seedCase{"getItem happy_path", "GET", "/items/{id}", run.Passed},
		seedCase{"listItems happy_path", "GET", "/items", run.Errored},
		seedCase{"legacy DELETE /items/{id} works", "", "", run.Passed},
	)
	save(t, store, "ancient", now.AddDate(0, 0, -60),
		seedCase{"listItems happy_path", "GET", "/items", run.Passed},
	)
	return store
}

func TestComputeSummary(t *testing.T) {
	store := seed(t)

	s, err := ComputeSummary(context.Background(), store, 7, now)
	if err != nil {
		t.Fatal(err)
	}
	if s.Runs != 3 || s.TestsExecuted != 8 {
		t.Fatalf("expected 3 runs and 8 tests, got %d and %d", s.Runs, s.TestsExecuted)
	}
	if !approx(s.PassRate, 3.0/8) {
		t.Fatalf("pass rate = %v", s.PassRate)
	}
	if !approx(s.FailureRate, 4.0/8) {
		t.Fatalf("failure rate = %v", s.FailureRate)
	}
	// 4 distinct names, only getItem both passed and failed inside the window.
	if !approx(s.FlakyRate, 0.25) || len(s.FlakyCases) != 1 || s.FlakyCases[0] != "getItem happy_path" {
		t.Fatalf("flaky = %v %v", s.FlakyRate, s.FlakyCases)
	}

	wide, err := ComputeSummary(context.Background(), store, 90, now)
	if err != nil {
		t.Fatal(err)
	}
	if wide.Runs != 4 || len(wide.FlakyCases) != 2 {
		t.Fatalf("90 day window: %d runs, flaky %v", wide.Runs, wide.FlakyCases)
	}
}

func TestComputeSummaryEmpty(t *testing.T) {
	s, err := ComputeSummary(context.Background(), testStore(t), 30, now)
	if err != nil {
		t.Fatal(err)
	}
	if s.Runs != 0 || s.PassRate != 0 || s.FlakyRate != 0 {
		t.Fatalf("unexpected empty summary %+v", s)
	}
	if _, err := ComputeSummary(context.Background(), testStore(t), 0, now); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestComputeTrend(t *testing.T) {
	store := seed(t)

	tr, err := ComputeTrend(context.Background(), store, MetricFailureRate, "7d", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Points) != 2 {
		t.Fatalf("expected 2 days, got %+v", tr.Points)
	}
	if tr.Points[0].Day != "2026-03-08" || !approx(tr.Points[0].Value, 0.5) {
		t.Fatalf("unexpected first point %+v", tr.Points[0])
	}
	// r2 and r3 fall on 2026-03-09: 2 failed and 1 errored out of 6.
	if tr.Points[1].Runs != 2 || !approx(tr.Points[1].Value, 0.5) {
		t.Fatalf("unexpected second point %+v", tr.Points[1])
	}

	pass, err := ComputeTrend(context.Background(), store, MetricPassRate, "90d", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(pass.Points) != 3 || !approx(pass.Points[0].Value, 1) {
		t.Fatalf("unexpected pass trend %+v", pass.Points)
	}

	if _, err := ComputeTrend(context.Background(), store, MetricPassRate, "1y", now); err == nil {
		t.Fatal("expected error for unknown period")
	}
	if _, err := ComputeTrend(context.Background(), store, "latency", "7d", now); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestComputeCoverage(t *testing.T) {
	store := seed(t)
	c := &contract.Contract{
		Title:   "Items",
		Version: "1.0.0",
		Operations: []*contract.Operation{
			{ID: "getItem", Method: "GET", Path: "/items/{id}"},
			{ID: "listItems", Method: "GET", Path: "/items"},
			{ID: "createItem", Method: "POST", Path: "/items"},
			{ID: "deleteItem", Method: "DELETE", Path: "/items/{id}"},
			{ID: "patchItem", Method: "PATCH", Path: "/items/{id}"},
		},
	}

	cov, err := ComputeCoverage(context.Background(), store, c, now)
	if err != nil {
		t.Fatal(err)
	}
	if cov.TotalEndpoints != 5 || cov.TestedEndpoints != 3 {
		t.Fatalf("expected 3 of 5 tested, got %d of %d", cov.TestedEndpoints, cov.TotalEndpoints)
	}
	if !approx(cov.Coverage, 0.6) {
		t.Fatalf("coverage = %v", cov.Coverage)
	}
	if len(cov.Untested) != 2 || cov.Untested[0] != "POST /items" || cov.Untested[1] != "PATCH /items/{id}" {
		t.Fatalf("untested = %v", cov.Untested)
	}
}
