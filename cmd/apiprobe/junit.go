package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/report"
)

func newJUnitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "junit",
		Short: "Work with JUnit XML results produced by other tools",
	}
	cmd.AddCommand(newJUnitIngestCmd(a))
	return cmd
}

func newJUnitIngestCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Store JUnit XML files as one run in history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var suites []report.Suite
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				parsed, err := report.ParseJUnit(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				suites = append(suites, parsed...)
			}

			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			rep := report.FromJUnit(name, suites)

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveReport(ctx, rep); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
			if err := store.SaveJUnitSuites(ctx, rep.RunID, suites); err != nil {
				return fmt.Errorf("save suites: %w", err)
			}
			a.logger.Info("junit ingested", "run", rep.RunID, "suites", len(suites), "cases", rep.Summary.Total)

			out := cmd.OutOrStdout()
			t := newTable(out)
			t.AppendHeader(header("SUITE", "STATUS", "TESTS", "PASSED", "FAILED", "ERRORS", "SKIPPED", "TIME"))
			for _, s := range suites {
				c := s.Counts()
				t.AppendRow(table.Row{s.Name, colorSuiteStatus(s.Status()), c.Total, c.Passed, c.Failed, c.Errored, c.Skipped, s.Duration})
			}
			t.Render()
			fmt.Fprintf(out, "stored as run %s\n", rep.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name recorded as the run's contract (default: first file name)")
	return cmd
}

func colorSuiteStatus(s string) string {
	switch s {
	case "passed":
		return text.FgGreen.Sprint(s)
	case "failed":
		return text.FgRed.Sprint(s)
	default:
		return text.FgYellow.Sprint(s)
	}
}
