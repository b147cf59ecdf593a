package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bgricker/stepstats/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues
	var err error

	stringFlags := []struct {
		name   string
		target *config.StringFlag
	}{
		{"org", &values.Org},
		{"pipeline", &values.Pipeline},
		{"branch", &values.Branch},
		{"build-state", &values.BuildState},
		{"fetch", &values.Fetch},
		{"cache", &values.CachePath},
		{"format", &values.Format},
		{"log-level", &values.LogLevel},
		{"log-format", &values.LogFormat},
	}
	for _, f := range stringFlags {
		if *f.target, err = stringFlag(flags, f.name); err != nil {
			return values, err
		}
	}

	if values.Steps, err = sliceFlag(flags, "step"); err != nil {
		return values, err
	}
	if values.Inputs, err = sliceFlag(flags, "input"); err != nil {
		return values, err
	}

	if flags.Changed("max-fetches") {
		v, err := flags.GetInt("max-fetches")
		if err != nil {
			return values, fmt.Errorf("parse --max-fetches: %w", err)
		}
		values.MaxFetches = config.IntFlag{Value: v, Set: true}
	}

	return values, nil
}

func stringFlag(flags *pflag.FlagSet, name string) (config.StringFlag, error) {
	if !flags.Changed(name) {
		return config.StringFlag{}, nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return config.StringFlag{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return config.StringFlag{Value: v, Set: true}, nil
}

func sliceFlag(flags *pflag.FlagSet, name string) (config.SliceFlag, error) {
	if !flags.Changed(name) {
		return config.SliceFlag{}, nil
	}
	v, err := flags.GetStringArray(name)
	if err != nil {
		return config.SliceFlag{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return config.SliceFlag{Values: append([]string{}, v...)}, nil
}
