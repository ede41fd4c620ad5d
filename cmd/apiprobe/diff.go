package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/run"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		asJSON           bool
		failOnRegression bool
	)

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two reports (JSON files or stored run ids)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := a.loadReport(cmd, args[0])
			if err != nil {
				return err
			}
			cur, err := a.loadReport(cmd, args[1])
			if err != nil {
				return err
			}

			cmp := report.Compare(old, cur)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, cmp); err != nil {
					return err
				}
			} else {
				printComparison(out, cmp)
			}

			if n := cmp.Regressions(); failOnRegression && n > 0 {
				return &failuresError{msg: fmt.Sprintf("%d regressions", n)}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "print the comparison as JSON")
	f.BoolVar(&failOnRegression, "fail-on-regression", false, "exit with code 2 when a passing case now fails")
	return cmd
}

func printComparison(w io.Writer, cmp *report.Comparison) {
	fmt.Fprintf(w, "%s -> %s\n", cmp.Old, cmp.New)
	if len(cmp.Changes) == 0 {
		fmt.Fprintln(w, "no verdict changes")
	} else {
		t := newTable(w)
		t.AppendHeader(header("CASE", "FROM", "TO", ""))
		for _, ch := range cmp.Changes {
			mark := ""
			switch {
			case ch.Regression():
				mark = text.FgRed.Sprint("regression")
			case ch.Fix():
				mark = text.FgGreen.Sprint("fixed")
			}
			t.AppendRow(table.Row{truncate(ch.ID, 60), side(ch.From), side(ch.To), mark})
		}
		t.Render()
	}

	t := newTable(w)
	t.AppendHeader(header("", "TOTAL", "PASSED", "FAILED", "ERRORED", "SKIPPED"))
	t.AppendRow(table.Row{"before", cmp.Before.Total, cmp.Before.Passed, cmp.Before.Failed, cmp.Before.Errored, cmp.Before.Skipped})
	t.AppendRow(table.Row{"after", cmp.After.Total, cmp.After.Passed, cmp.After.Failed, cmp.After.Errored, cmp.After.Skipped})
	t.Render()

	if cmp.Unified == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(cmp.Unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = text.Bold.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			line = text.FgCyan.Sprint(line)
		case strings.HasPrefix(line, "+"):
			line = text.FgGreen.Sprint(line)
		case strings.HasPrefix(line, "-"):
			line = text.FgRed.Sprint(line)
		}
		fmt.Fprintln(w, line)
	}
}

func side(s run.VerdictStatus) string {
	if s == "" {
		return text.FgHiBlack.Sprint("absent")
	}
	return colorVerdict(s)
}
