package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bgricker/stepstats/internal/cache"
	"github.com/bgricker/stepstats/internal/config"
	"github.com/bgricker/stepstats/internal/ctxlog"
	"github.com/bgricker/stepstats/internal/discovery"
	"github.com/bgricker/stepstats/internal/provider"
	"github.com/bgricker/stepstats/internal/provider/buildkite"
	"github.com/bgricker/stepstats/internal/provider/filter"
	"github.com/bgricker/stepstats/internal/steps"
)

// buildData bundles loaded builds with the place they were read from.
type buildData struct {
	source string
	builds []provider.Build
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	root, err := os.Getwd()
	if err != nil {
		return config.Config{}, "", fmt.Errorf("determine working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, "", err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return config.Config{}, "", err
	}
	config.ApplyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, root, nil
}

// withLogger attaches a stderr logger tagged with a fresh run id to the
// command context.
func withLogger(cmd *cobra.Command, cfg config.Config) context.Context {
	logger := ctxlog.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format).
		With("run_id", uuid.NewString(), "command", cmd.Name())
	return ctxlog.WithLogger(cmd.Context(), logger)
}

// loadBuilds reads saved build files when inputs are given or no organization
// is configured, and otherwise queries the API through the page cache.
func loadBuilds(ctx context.Context, root string, cfg config.Config) (buildData, error) {
	logger := ctxlog.FromContext(ctx)

	if len(cfg.Inputs) > 0 || cfg.Org == "" {
		paths, err := discovery.BuildFiles(root, cfg.Inputs)
		if err != nil {
			if errors.Is(err, discovery.ErrNoBuildFiles) {
				return buildData{}, fmt.Errorf("no build records found; specify --input or --org")
			}
			return buildData{}, err
		}
		logger.DebugContext(ctx, "parsing build files", "files", len(paths))
		builds, err := buildkite.NewParser(root).ParseFiles(paths)
		if err != nil {
			return buildData{}, err
		}
		return buildData{source: "files", builds: builds}, nil
	}

	return fetchBuilds(ctx, cfg)
}

func fetchBuilds(ctx context.Context, cfg config.Config) (buildData, error) {
	logger := ctxlog.FromContext(ctx)

	mode, err := cache.ParseFetchMode(cfg.Fetch)
	if err != nil {
		return buildData{}, err
	}
	maxAge, err := cfg.MaxAge()
	if err != nil {
		return buildData{}, err
	}

	var states []string
	if cfg.BuildState != "" {
		states = []string{cfg.BuildState}
	}
	key := cache.Key{
		Org:        cfg.Org,
		Pipeline:   cfg.Pipeline,
		Branch:     cfg.BranchFilter(),
		States:     states,
		MaxFetches: cfg.MaxFetches,
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return buildData{}, err
	}
	defer store.Close()

	client := buildkite.NewClient(ctx, buildkite.Options{
		BaseURL: cfg.BaseURL,
		Org:     cfg.Org,
		Token:   cfg.Token,
		Logger:  logger,
	})
	query := buildkite.Query{
		Pipeline:       cfg.Pipeline,
		Branch:         cfg.BranchFilter(),
		States:         states,
		IncludeRetries: true,
		MaxFetches:     cfg.MaxFetches,
	}

	pages, err := store.GetOrFetch(ctx, key, mode, maxAge, func(ctx context.Context) ([][]byte, error) {
		if cfg.Token == "" {
			logger.WarnContext(ctx, "no API token set; STEPSTATS_TOKEN or BUILDKITE_TOKEN is usually required")
		}
		logger.InfoContext(ctx, "fetching builds", "key", key.String(), "max_fetches", cfg.MaxFetches)
		return client.ListBuilds(ctx, query)
	})
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return buildData{}, fmt.Errorf("no cached builds for %s; rerun with --fetch auto or always: %w", key, err)
		}
		return buildData{}, err
	}

	builds, err := buildkite.DecodePages(pages, key.String())
	if err != nil {
		return buildData{}, err
	}
	logger.InfoContext(ctx, "loaded builds", "pages", len(pages), "builds", len(builds))
	return buildData{source: key.String(), builds: builds}, nil
}

// missingStepWarnings reports matchers whose step key appears in none of the builds.
func missingStepWarnings(builds []provider.Build, matchers []filter.StepMatcher) []string {
	if len(matchers) == 0 {
		return nil
	}
	known := make(map[string]struct{})
	for _, info := range steps.Inventory(builds) {
		known[info.StepKey] = struct{}{}
	}

	var warnings []string
	seen := make(map[string]struct{})
	for _, m := range matchers {
		if _, ok := known[m.StepKey]; ok {
			continue
		}
		if _, ok := seen[m.StepKey]; ok {
			continue
		}
		seen[m.StepKey] = struct{}{}
		warnings = append(warnings, fmt.Sprintf("step key %q not found in any build", m.StepKey))
	}
	return warnings
}
