package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/storage"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"runs"},
		Short:   "Inspect and prune stored runs",
	}
	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistoryPurgeCmd(a),
	)
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var (
		filter storage.RunFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(header("RUN", "SOURCE", "CONTRACT", "STATUS", "STARTED", "TOTAL", "PASSED", "FAILED", "ERRORED", "SKIPPED"))
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID, r.Source, truncate(r.Contract+" "+r.ContractVersion, 40), colorRunStatus(r.Status),
					r.StartedAt.Local().Format(time.DateTime), r.Total, r.Passed, r.Failed, r.Errored, r.Skipped,
				})
			}
			t.Render()
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Contract, "contract", "", "only runs of this contract title")
	f.StringVar(&filter.Source, "source", "", "only runs from this source: engine or junit")
	f.IntVar(&filter.Limit, "limit", 20, "maximum number of runs")
	f.BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var (
		format  string
		outPath string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one stored run, or export it as json, junit or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rep, err := storage.LoadReport(ctx, store, args[0])
			if err != nil {
				return fmt.Errorf("load run %s: %w", args[0], err)
			}

			if format == "text" {
				out := cmd.OutOrStdout()
				printCases(out, rep, all)
				printSummary(out, rep)
				if rep.Source != report.SourceJUnit {
					return nil
				}
				suites, err := store.ListJUnitSuites(ctx, rep.RunID)
				if err != nil {
					return fmt.Errorf("list suites: %w", err)
				}
				t := newTable(out)
				t.AppendHeader(header("SUITE", "STATUS", "TESTS", "FAILED", "ERRORS", "SKIPPED", "DURATION"))
				for _, s := range suites {
					t.AppendRow(table.Row{s.Name, colorSuiteStatus(s.Status), s.Total, s.Failed, s.Errored, s.Skipped,
						(time.Duration(s.DurationMs) * time.Millisecond).String()})
				}
				t.Render()
				return nil
			}

			rw, ok := reportWriters[format]
			if !ok {
				return fmt.Errorf("unknown format %q (want text, json, junit or xlsx)", format)
			}
			if outPath == "" {
				if format == "xlsx" {
					return fmt.Errorf("xlsx output needs --output")
				}
				return rw.write(cmd.OutOrStdout(), rep)
			}
			return writeFile(outPath, rep, rw.write)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "text", "output format: text, json, junit or xlsx")
	f.StringVarP(&outPath, "output", "o", "", "write to this file instead of stdout")
	f.BoolVar(&all, "all", false, "list passing cases too (text format)")
	return cmd
}

func newHistoryPurgeCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete runs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = a.cfg.Database.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("retention must be at least one day, got %d", days)
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := storage.NewRetention(store, days, a.logger).Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d runs older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: database.retention_days)")
	return cmd
}

// loadReport resolves a report argument: an existing file is read as a JSON
// report, anything else is looked up as a stored run id.
func (a *app) loadReport(cmd *cobra.Command, arg string) (*report.Report, error) {
	if f, err := os.Open(arg); err == nil {
		defer f.Close()
		return readReport(f, arg)
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s is not a file: %w", arg, err)
	}
	defer store.Close()

	rep, err := storage.LoadReport(ctx, store, arg)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", arg, err)
	}
	return rep, nil
}

func readReport(r io.Reader, name string) (*report.Report, error) {
	rep, err := report.ReadJSON(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return rep, nil
}
