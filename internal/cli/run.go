package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"retail-bi/internal/pipeline"
	"retail-bi/internal/report"
)

const runTimeout = 5 * time.Minute

type runOptions struct {
	source            string
	outputDir         string
	formats           []string
	horizon           int
	singleMonthPolicy string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the analytics pipeline and write the result tables",
		Long: `Load a transaction table, run every analytics module and write the
derived tables to the output directory.

A module that cannot produce a result (for example a forecast over a single
month) is reported as unavailable; the other tables are still written. A
malformed source table aborts the run.

Example:
  retailbi run --source data.csv --out ./out
  retailbi run --source data.xlsx --out ./out --formats csv,xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "",
		"transaction table (.csv or .xlsx)")
	cmd.Flags().StringVar(&opts.outputDir, "out", "",
		"output directory for the derived tables")
	cmd.Flags().StringSliceVar(&opts.formats, "formats", nil,
		"output formats: csv, xlsx")
	cmd.Flags().IntVar(&opts.horizon, "horizon", 0,
		"number of months to forecast")
	cmd.Flags().StringVar(&opts.singleMonthPolicy, "single-month-policy", "",
		"forecast behaviour for a single observed month: fail or flat")

	return cmd
}

func (a *app) runRun(cmd *cobra.Command, opts *runOptions) error {
	// Override config with CLI flags
	if opts.source != "" {
		a.cfg.Data.Source = opts.source
	}
	if opts.outputDir != "" {
		a.cfg.Data.OutputDir = opts.outputDir
	}
	if len(opts.formats) > 0 {
		a.cfg.Data.Formats = opts.formats
	}
	if opts.horizon > 0 {
		a.cfg.Pipeline.ForecastHorizon = opts.horizon
	}
	if opts.singleMonthPolicy != "" {
		a.cfg.Pipeline.SingleMonthPolicy = opts.singleMonthPolicy
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	run, err := pipeline.New(a.cfg.Pipeline, a.logger, nil).ExecuteFile(ctx, a.cfg.Data.Source)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	manifest, err := report.NewWriter(a.cfg.Data, a.logger).Write(run)
	if err != nil {
		return fmt.Errorf("failed to write tables: %w", err)
	}

	return printRun(cmd, run, manifest)
}

func printRun(cmd *cobra.Command, run *pipeline.Run, manifest report.Manifest) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d transactions from %s in %s\n",
		run.ID(), run.TransactionCount(), run.Source(), run.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATUS\tDETAIL")
	for _, m := range manifest.Modules {
		detail := m.Code
		if m.Error != "" {
			detail = m.Code + ": " + m.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Module, m.Status, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d files written\n", len(manifest.Files))
	return nil
}
