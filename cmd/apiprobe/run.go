package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/engine"
	"github.com/y0f/apiprobe/internal/report"
	"github.com/y0f/apiprobe/internal/storage"
)

const saveTimeout = 30 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var (
		baseURL       string
		headers       map[string]string
		concurrency   int
		timeout       time.Duration
		outDir        string
		formats       []string
		noHistory     bool
		showAll       bool
		failOnFailure bool
	)

	cmd := &cobra.Command{
		Use:   "run CONTRACT",
		Short: "Synthesize and execute test cases for a contract against a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read contract: %w", err)
			}

			cfg := a.cfg
			target := cfg.Target.BaseURL
			if baseURL != "" {
				target = baseURL
			}
			if target == "" {
				return fmt.Errorf("no target: pass --base-url or set target.base_url")
			}
			runTimeout := cfg.Engine.RunTimeout
			if cmd.Flags().Changed("timeout") {
				runTimeout = timeout
			}
			if !cmd.Flags().Changed("out") {
				outDir = cfg.Report.Dir
			}
			if !cmd.Flags().Changed("format") {
				formats = cfg.Report.Formats
			}

			eng := engine.New(cfg.ExecutorConfig(), a.logger)
			r, err := eng.Run(cmd.Context(), engine.Input{
				Document:    doc,
				BaseURL:     target,
				Headers:     headers,
				Concurrency: concurrency,
				Timeout:     runTimeout,
			})
			if err != nil {
				return err
			}

			rep := report.Build(r)
			paths, err := writeReports(rep, outDir, formats)
			if err != nil {
				return err
			}

			if !noHistory && cfg.Database.DSN != "" {
				if err := a.saveRun(cmd.Context(), rep); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			printCases(out, rep, showAll)
			printSummary(out, rep)
			for _, p := range paths {
				fmt.Fprintf(out, "report written: %s\n", p)
			}

			if failOnFailure && rep.Summary.Failed+rep.Summary.Errored > 0 {
				return &failuresError{msg: fmt.Sprintf("%d failed, %d errored of %d cases",
					rep.Summary.Failed, rep.Summary.Errored, rep.Summary.Total)}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&baseURL, "base-url", "", "target base URL (overrides target.base_url)")
	f.StringToStringVarP(&headers, "header", "H", nil, "extra request header as name=value")
	f.IntVar(&concurrency, "concurrency", 0, "worker count (overrides engine.concurrency)")
	f.DurationVar(&timeout, "timeout", 0, "global run timeout, 0 for none (overrides engine.run_timeout)")
	f.StringVarP(&outDir, "out", "o", "", "report directory (overrides report.dir)")
	f.StringSliceVar(&formats, "format", nil, "report formats: json, junit, xlsx (overrides report.formats)")
	f.BoolVar(&noHistory, "no-history", false, "do not store the run in history")
	f.BoolVar(&showAll, "all", false, "list passing cases too")
	f.BoolVar(&failOnFailure, "fail-on-failure", true, "exit with code 2 when any case failed or errored")
	return cmd
}

// saveRun stores rep and applies retention. It is detached from ctx's
// cancellation so a run aborted by a signal is still recorded.
func (a *app) saveRun(ctx context.Context, rep *report.Report) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveReport(ctx, rep); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	a.logger.Info("run stored", "run", rep.RunID)

	if _, err := storage.NewRetention(store, a.cfg.Database.RetentionDays, a.logger).Purge(ctx); err != nil {
		return fmt.Errorf("retention purge: %w", err)
	}
	return nil
}
