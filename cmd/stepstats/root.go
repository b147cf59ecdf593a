package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stepstats",
		Short:         "Stepstats reports durations and outcomes of Buildkite build steps",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("org", "", "Buildkite organization slug")
	persistent.String("pipeline", "", "pipeline slug (default \"tests\")")
	persistent.String("branch", "", "branch to query, '*' for all branches (default \"main\")")
	persistent.String("build-state", "", "only include builds in this state")
	persistent.String("fetch", "", "fetch mode (auto|always|never)")
	persistent.Int("max-fetches", 0, "maximum number of pages to request")
	persistent.StringArray("input", nil, "saved builds JSON file, directory or glob (repeatable)")
	persistent.StringArray("step", nil, "step matcher KEY or KEY#INDEX (repeatable)")
	persistent.String("cache", "", "path of the build page cache database")
	persistent.String("format", "pretty", "output format (pretty|short|csv|json|table)")
	persistent.String("log-level", "warn", "log level (debug|info|warn|error)")
	persistent.String("log-format", "text", "log format (text|json)")

	cmd.AddCommand(newDurationsCmd())
	cmd.AddCommand(newStepsCmd())

	return cmd
}
