package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/y0f/apiprobe/internal/run"
)

const (
	casesSheet   = "Cases"
	summarySheet = "Summary"
)

var caseColumns = []struct {
	title string
	width float64
}{
	{"ID", 22},
	{"Operation", 20},
	{"Method", 9},
	{"Path", 28},
	{"Category", 18},
	{"Target", 18},
	{"Probe", 14},
	{"Status", 10},
	{"HTTP", 7},
	{"Attempts", 9},
	{"Duration (ms)", 13},
	{"Explanation", 50},
	{"Diff", 60},
}

// WriteXLSX renders the report as a workbook with a Cases and a Summary
// sheet. Failed rows are filled red and errored rows amber.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", casesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeCases(f, r); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, r); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func fillStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
}

func writeCases(f *excelize.File, r *Report) error {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	failed, err := fillStyle(f, "#F8CBAD")
	if err != nil {
		return fmt.Errorf("failed style: %w", err)
	}
	errored, err := fillStyle(f, "#FFE699")
	if err != nil {
		return fmt.Errorf("errored style: %w", err)
	}

	for i, col := range caseColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(casesSheet, name, name, col.width)
		f.SetCellValue(casesSheet, name+"1", col.title)
	}
	last, _ := excelize.ColumnNumberToName(len(caseColumns))
	f.SetCellStyle(casesSheet, "A1", last+"1", header)

	for i, c := range r.Cases {
		row := i + 2
		values := []any{
			c.ID, c.Operation, c.Method, c.Path, c.Category, c.Target, c.Probe,
			string(c.Status), c.StatusCode, c.Attempts, c.DurationMs,
			c.Explanation, strings.TrimSpace(renderDiff(c.Diff)),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(casesSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}

		var style int
		switch c.Status {
		case run.Failed:
			style = failed
		case run.Errored:
			style = errored
		default:
			continue
		}
		f.SetCellStyle(casesSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", last, row), style)
	}

	f.SetPanes(casesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func writeSummary(f *excelize.File, r *Report) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("summary style: %w", err)
	}

	f.SetColWidth(summarySheet, "A", "A", 20)
	f.SetColWidth(summarySheet, "B", "F", 12)

	info := [][]any{
		{"Run", r.RunID},
		{"Contract", strings.TrimSpace(r.Contract + " " + r.ContractVersion)},
		{"Target", r.Target},
		{"Status", string(r.Status)},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Duration (ms)", r.DurationMs},
	}
	for i, vals := range info {
		row := i + 1
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), vals[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), vals[1])
		f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
	}

	start := len(info) + 2
	for i, title := range []string{"Category", "Total", "Passed", "Failed", "Errored", "Skipped"} {
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(summarySheet, fmt.Sprintf("%s%d", name, start), title)
	}
	f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", start), fmt.Sprintf("F%d", start), bold)

	row := start + 1
	for _, cat := range r.CategoryNames() {
		countsRow(f, row, cat, r.Categories[cat])
		row++
	}
	countsRow(f, row, "Total", r.Summary)
	f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), bold)
	return nil
}

func countsRow(f *excelize.File, row int, label string, c run.Counts) {
	values := []any{label, c.Total, c.Passed, c.Failed, c.Errored, c.Skipped}
	f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &values)
}
