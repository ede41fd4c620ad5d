package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/synth"
)

type synthCase struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Operation       string         `json:"operation"`
	Method          string         `json:"method"`
	Path            string         `json:"path"`
	Category        string         `json:"category"`
	Target          string         `json:"target,omitempty"`
	Probe           string         `json:"probe,omitempty"`
	ExpectRejection bool           `json:"expect_rejection"`
	SkipReason      string         `json:"skip_reason,omitempty"`
	Inputs          map[string]any `json:"inputs,omitempty"`
}

func newSynthCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "synth CONTRACT",
		Short: "Print the test cases synthesized for a contract without running them",
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
			suite := synth.Synthesize(c)
			for _, e := range suite.Errors {
				a.logger.Warn("operation not synthesized", "operation", e.OperationID, "error", e)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				cases := make([]synthCase, 0, len(suite.Cases))
				for _, tc := range suite.Cases {
					cases = append(cases, synthCaseOf(tc))
				}
				return writeJSON(out, cases)
			}

			t := newTable(out)
			t.AppendHeader(header("ID", "OPERATION", "CATEGORY", "TARGET", "PROBE", "EXPECT"))
			for _, tc := range suite.Cases {
				expect := "accept"
				switch {
				case tc.SkipReason != "":
					expect = text.FgHiBlack.Sprint("skip")
				case tc.ExpectRejection:
					expect = "reject"
				}
				t.AppendRow(table.Row{tc.ID, tc.Operation.Key(), tc.Category, tc.Target, tc.Probe, expect})
			}
			t.Render()

			counts := make([]string, 0, len(synth.Categories))
			for _, cat := range synth.Categories {
				counts = append(counts, fmt.Sprintf("%s=%d", cat, suite.Count(cat)))
			}
			fmt.Fprintf(out, "%s: %d operations, %d cases (%s)\n",
				c.Identity(), len(c.Operations), len(suite.Cases), strings.Join(counts, " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print cases as JSON")
	return cmd
}

func synthCaseOf(tc *synth.TestCase) synthCase {
	sc := synthCase{
		ID:              tc.ID,
		Name:            tc.Name(),
		Operation:       tc.Operation.ID,
		Method:          tc.Operation.Method,
		Path:            tc.Operation.Path,
		Category:        string(tc.Category),
		Target:          tc.Target,
		Probe:           tc.Probe,
		ExpectRejection: tc.ExpectRejection,
		SkipReason:      tc.SkipReason,
	}
	if len(tc.Values) > 0 {
		sc.Inputs = make(map[string]any, len(tc.Values))
		for _, v := range tc.Values {
			sc.Inputs[string(v.In)+"."+v.Name] = v.Value
		}
	}
	return sc
}
