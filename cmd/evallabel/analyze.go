package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/spinner"
)

type analyzeOptions struct {
	runs            []string
	metrics         []string
	noVarianceCheck bool
	confidence      float64
	format          string
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the analytics report for the saved labelling results",
		Long: `Print the analytics report for the saved labelling results.

Every snapshot in storage.results_folder is merged per run. The report holds
the progress per file, the coverage by number of users, the mean score with
its confidence interval per run, correlations between numeric metrics and
the worst scored examples.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			if !cmd.Flags().Changed("confidence") {
				opts.confidence = p.cfg.Analysis.Confidence
			}
			rep, err := buildAnalysis(cmd, p, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch opts.format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			case "markdown":
				return analysis.WriteMarkdownReport(w, rep)
			}
			return fmt.Errorf("unknown format %q (want markdown or json)", opts.format)
		},
	}

	cmd.Flags().StringSliceVar(&opts.runs, "runs", nil, "Run ids to include (default all)")
	cmd.Flags().StringSliceVar(&opts.metrics, "metrics", nil, "Numeric columns to summarise and correlate (default all)")
	cmd.Flags().BoolVar(&opts.noVarianceCheck, "no-variance-check", false, "Keep labellers whose scores barely vary")
	cmd.Flags().Float64Var(&opts.confidence, "confidence", 0, "Confidence level of the mean score interval (default from analysis.confidence)")
	cmd.Flags().StringVar(&opts.format, "format", "markdown", "Output format: markdown or json")

	return cmd
}

func buildAnalysis(cmd *cobra.Command, p *project, opts analyzeOptions) (analysis.Report, error) {
	if opts.confidence <= 0 || opts.confidence >= 1 {
		return analysis.Report{}, fmt.Errorf("--confidence must be in (0, 1), got %v", opts.confidence)
	}

	loader := p.loader()
	if opts.noVarianceCheck {
		loader = loader.WithVarianceCheck(false)
	}
	stop := spinner.Start(cmd.ErrOrStderr(), "Loading labelling results...")
	res, err := loader.Load(cmd.Context())
	stop()
	if err != nil {
		return analysis.Report{}, err
	}
	if res.Empty() {
		return analysis.Report{}, fmt.Errorf("%s: %s", p.cfg.Storage.ResultsFolder, analysis.MsgNoResultFiles)
	}

	runs := opts.runs
	if !cmd.Flags().Changed("runs") {
		runs = res.RunIDs()
	}
	selected, err := analysis.FilterRuns(res, runs)
	if err != nil {
		return analysis.Report{}, err
	}

	metrics := opts.metrics
	if !cmd.Flags().Changed("metrics") {
		metrics = analysis.MetricCandidates(selected)
	}

	return analysis.BuildReport(selected, analysis.ReportOptions{
		Confidence:    opts.confidence,
		Thresholds:    p.cfg.Analysis.CoverageThresholds,
		SummaryCols:   metrics,
		CorrelateCols: metrics,
		Worst:         p.cfg.Analysis.WorstExamples,
	}), nil
}
