package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/stepstats/internal/config"
	"github.com/bgricker/stepstats/internal/output"
	"github.com/bgricker/stepstats/internal/steps"
)

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List step keys present in the loaded builds",
		RunE:  runSteps,
	}
}

func runSteps(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := withLogger(cmd, cfg)

	data, err := loadBuilds(ctx, root, cfg)
	if err != nil {
		return err
	}

	infos := steps.Inventory(data.builds)
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No step keys found")
		return nil
	}

	switch strings.ToLower(cfg.Format) {
	case config.FormatPretty, config.FormatShort, config.FormatTable:
		return output.NewPretty(cmd.OutOrStdout()).RenderInventory(infos)
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).Render(output.Report{Steps: infos})
	default:
		return fmt.Errorf("format %q is not supported by the steps command", cfg.Format)
	}
}
