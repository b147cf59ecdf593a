package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Pipeline != def.Pipeline || cfg.Branch != def.Branch || cfg.Format != FormatPretty || cfg.Fetch != FetchAuto {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
org: acme
pipeline: nightly
steps:
  - unit-tests
  - lint#0
max_fetches: 10
log:
  level: debug
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Org != "acme" || cfg.Pipeline != "nightly" || cfg.MaxFetches != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Steps) != 2 || cfg.Steps[1] != "lint#0" {
		t.Fatalf("unexpected steps: %v", cfg.Steps)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Branch != "main" {
		t.Fatalf("expected default branch kept, got %q", cfg.Branch)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "steps: [unterminated")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "org: from-file\npipeline: from-file\n")
	t.Setenv("STEPSTATS_ORG", "from-env")
	t.Setenv("STEPSTATS_MAX_FETCHES", "7")
	t.Setenv("BUILDKITE_TOKEN", "bk-token")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Org != "from-env" {
		t.Fatalf("expected env org, got %q", cfg.Org)
	}
	if cfg.Pipeline != "from-file" {
		t.Fatalf("expected file pipeline, got %q", cfg.Pipeline)
	}
	if cfg.MaxFetches != 7 {
		t.Fatalf("expected env max fetches, got %d", cfg.MaxFetches)
	}
	if cfg.Token != "bk-token" {
		t.Fatalf("expected BUILDKITE_TOKEN fallback, got %q", cfg.Token)
	}

	t.Setenv("STEPSTATS_TOKEN", "own-token")
	cfg, err = Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "own-token" {
		t.Fatalf("expected STEPSTATS_TOKEN to win, got %q", cfg.Token)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	ApplyFlags(&cfg, FlagValues{
		Branch:     StringFlag{Value: AllBranches, Set: true},
		Steps:      SliceFlag{Values: []string{"e2e"}},
		MaxFetches: IntFlag{Value: 1, Set: true},
		Format:     StringFlag{Value: FormatCSV, Set: true},
	})
	if cfg.BranchFilter() != "" {
		t.Fatalf("expected '*' to disable the branch filter, got %q", cfg.BranchFilter())
	}
	if len(cfg.Steps) != 1 || cfg.Steps[0] != "e2e" || cfg.MaxFetches != 1 || cfg.Format != FormatCSV {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Pipeline != "tests" {
		t.Fatalf("unset flags must not override, got pipeline %q", cfg.Pipeline)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "format", mutate: func(c *Config) { c.Format = "xml" }},
		{name: "fetch", mutate: func(c *Config) { c.Fetch = "sometimes" }},
		{name: "build state", mutate: func(c *Config) { c.BuildState = "exploded" }},
		{name: "max fetches", mutate: func(c *Config) { c.MaxFetches = -1 }},
		{name: "max age", mutate: func(c *Config) { c.CacheMaxAge = "soon" }},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "trace" }},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.BuildState = "failed"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	age, err := cfg.MaxAge()
	if err != nil || age != time.Hour {
		t.Fatalf("expected 1h max age, got %v (%v)", age, err)
	}
}
