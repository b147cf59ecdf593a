package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/stepstats/internal/config"
	"github.com/bgricker/stepstats/internal/ctxlog"
	"github.com/bgricker/stepstats/internal/output"
	"github.com/bgricker/stepstats/internal/provider"
	"github.com/bgricker/stepstats/internal/provider/filter"
	"github.com/bgricker/stepstats/internal/report"
	"github.com/bgricker/stepstats/internal/steps"
)

func newDurationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "durations",
		Aliases: []string{"analyze"},
		Short:   "Report per-build outcomes and durations of matching steps",
		RunE:    runDurations,
	}
}

func runDurations(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := withLogger(cmd, cfg)
	logger := ctxlog.FromContext(ctx)

	matchers, err := filter.Parse(cfg.Steps)
	if err != nil {
		return err
	}

	data, err := loadBuilds(ctx, root, cfg)
	if err != nil {
		return err
	}

	if err := provider.RequireSinglePipeline(data.builds); err != nil {
		return fmt.Errorf("%w; select one pipeline with --pipeline or --input", err)
	}

	executions, err := steps.Extract(data.builds, matchers)
	if err != nil {
		return err
	}
	outcomes, err := steps.Aggregate(executions)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "aggregated outcomes",
		"source", data.source, "builds", len(data.builds), "executions", len(executions), "outcomes", len(outcomes))

	summary := report.Summarize(outcomes)
	description := filter.Describe(matchers)
	warnings := missingStepWarnings(data.builds, matchers)

	return renderDurations(cmd, cfg, matchers, outcomes, summary, description, warnings)
}

func renderDurations(cmd *cobra.Command, cfg config.Config, matchers []filter.StepMatcher, outcomes []steps.AggregatedOutcome, summary report.Summary, description string, warnings []string) error {
	out := cmd.OutOrStdout()

	switch strings.ToLower(cfg.Format) {
	case config.FormatPretty:
		if err := output.NewPretty(out).RenderOutcomes(outcomes, summary, description); err != nil {
			return err
		}
	case config.FormatShort:
		if err := output.NewShort(out).RenderOutcomes(outcomes, summary, description); err != nil {
			return err
		}
	case config.FormatTable:
		if err := output.NewTable(out).RenderOutcomes(outcomes, summary, description); err != nil {
			return err
		}
	case config.FormatCSV:
		if err := output.NewCSV(out).RenderOutcomes(outcomes); err != nil {
			return err
		}
	case config.FormatJSON:
		jsonReport := output.Report{
			Matchers: matchers,
			Outcomes: outcomes,
			Summary:  &summary,
			Warnings: warnings,
		}
		return output.NewJSON(out).Render(jsonReport)
	default:
		return fmt.Errorf("unsupported format %q", cfg.Format)
	}

	for _, msg := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
	}
	return nil
}
