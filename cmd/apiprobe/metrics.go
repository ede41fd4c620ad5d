package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/analytics"
	"github.com/y0f/apiprobe/internal/contract"
)

func newMetricsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Quality metrics over run history",
	}
	cmd.PersistentFlags().Bool("json", false, "print the result as JSON")
	cmd.AddCommand(
		newMetricsSummaryCmd(a),
		newMetricsTrendCmd(a),
		newMetricsCoverageCmd(a),
	)
	return cmd
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func newMetricsSummaryCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Pass, failure and flaky rates over a day window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := analytics.ComputeSummary(ctx, store, days, time.Now().UTC())
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return writeJSON(cmd.OutOrStdout(), s)
			}

			out := cmd.OutOrStdout()
			t := newTable(out)
			t.SetTitle(fmt.Sprintf("Last %d days", s.WindowDays))
			t.AppendRows([]table.Row{
				{"Runs", s.Runs},
				{"Tests executed", s.TestsExecuted},
				{"Passed", s.Passed},
				{"Failed", s.Failed},
				{"Errored", s.Errored},
				{"Skipped", s.Skipped},
				{"Pass rate", percent(s.PassRate)},
				{"Failure rate", percent(s.FailureRate)},
				{"Flaky rate", percent(s.FlakyRate)},
			})
			t.Render()
			if len(s.FlakyCases) > 0 {
				fmt.Fprintln(out, text.FgYellow.Sprint("Flaky cases:"))
				for _, name := range s.FlakyCases {
					fmt.Fprintf(out, "  %s\n", name)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window size in days")
	return cmd
}

func newMetricsTrendCmd(a *app) *cobra.Command {
	var metric, period string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Daily pass or failure rate over 7d, 30d or 90d",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tr, err := analytics.ComputeTrend(ctx, store, analytics.Metric(metric), period, time.Now().UTC())
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return writeJSON(cmd.OutOrStdout(), tr)
			}

			t := newTable(cmd.OutOrStdout())
			t.SetTitle(fmt.Sprintf("%s over %s", tr.Metric, tr.Period))
			t.AppendHeader(header("DAY", "RUNS", strings.ToUpper(metric), ""))
			for _, p := range tr.Points {
				t.AppendRow(table.Row{p.Day, p.Runs, percent(p.Value), bar(p.Value, 30)})
			}
			t.Render()
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&metric, "metric", string(analytics.MetricPassRate), "metric: passRate or failureRate")
	f.StringVar(&period, "period", "7d", "period: 7d, 30d or 90d")
	return cmd
}

func newMetricsCoverageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage CONTRACT",
		Short: "Share of contract operations exercised by stored runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read contract: %w", err)
			}
			c, err := contract.Load(doc)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			cov, err := analytics.ComputeCoverage(ctx, store, c, time.Now().UTC())
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return writeJSON(cmd.OutOrStdout(), cov)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d of %d endpoints tested (%s)\n",
				cov.Contract, cov.TestedEndpoints, cov.TotalEndpoints, percent(cov.Coverage))
			if len(cov.Untested) > 0 {
				t := newTable(out)
				t.AppendHeader(header("UNTESTED"))
				for _, key := range cov.Untested {
					t.AppendRow(table.Row{text.FgYellow.Sprint(key)})
				}
				t.Render()
			}
			return nil
		},
	}
	return cmd
}

func bar(v float64, width int) string {
	n := int(v*float64(width) + 0.5)
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
