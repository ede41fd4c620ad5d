package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

// newTable creates a table with the standard styling.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(c)
	}
	return row
}

func colorVerdict(s run.VerdictStatus) string {
	switch s {
	case run.Passed:
		return text.FgGreen.Sprint(s)
	case run.Failed:
		return text.FgRed.Sprint(s)
	case run.Errored:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func colorRunStatus(s run.Status) string {
	if s == run.StatusAborted {
		return text.FgYellow.Sprint(s)
	}
	return text.FgGreen.Sprint(s)
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 2, 64) + "%"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var reportWriters = map[string]struct {
	ext   string
	write func(io.Writer, *report.Report) error
}{
	"json":  {".json", report.WriteJSON},
	"junit": {".junit.xml", report.WriteJUnit},
	"xlsx":  {".xlsx", report.WriteXLSX},
}

// writeReports renders rep once per format into dir and returns the paths.
func writeReports(rep *report.Report, dir string, formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var paths []string
	for _, format := range formats {
		rw, ok := reportWriters[format]
		if !ok {
			return paths, fmt.Errorf("unknown report format %q", format)
		}
		path := filepath.Join(dir, rep.RunID+rw.ext)
		if err := writeFile(path, rep, rw.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, rep *report.Report, write func(io.Writer, *report.Report) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// printCases renders every case; passing cases are listed only when all is
// set.
func printCases(w io.Writer, rep *report.Report, all bool) {
	t := newTable(w)
	t.AppendHeader(header("ID", "CASE", "VERDICT", "HTTP", "EXPLANATION"))
	for _, c := range rep.Cases {
		if !all && c.Status == run.Passed {
			continue
		}
		code := ""
		if c.StatusCode > 0 {
			code = strconv.Itoa(c.StatusCode)
		}
		t.AppendRow(table.Row{c.ID, truncate(c.Name, 60), colorVerdict(c.Status), code, truncate(c.Explanation, 80)})
		for _, m := range c.Diff {
			t.AppendRow(table.Row{"", "  " + m.Path, "", "", fmt.Sprintf("expected %s, got %s", m.Expected, truncate(m.Actual, 40))})
		}
	}
	t.Render()
}

func printSummary(w io.Writer, rep *report.Report) {
	fmt.Fprintf(w, "%s %s  %s  %s  %dms\n",
		text.FgHiBlue.Sprint("Run"), rep.RunID,
		rep.Contract+" "+rep.ContractVersion,
		colorRunStatus(rep.Status), rep.DurationMs)

	t := newTable(w)
	t.AppendHeader(header("CATEGORY", "TOTAL", "PASSED", "FAILED", "ERRORED", "SKIPPED"))
	for _, cat := range rep.CategoryNames() {
		c := rep.Categories[cat]
		t.AppendRow(table.Row{cat, c.Total, c.Passed, c.Failed, c.Errored, c.Skipped})
	}
	s := rep.Summary
	t.AppendFooter(table.Row{"total", s.Total, s.Passed, s.Failed, s.Errored, s.Skipped})
	t.Render()
}
