package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/bgricker/stepstats/internal/provider"
)

// FileName is the optional config file looked up in the working directory.
const FileName = ".stepstats.yml"

// EnvPrefix prefixes environment overrides, e.g. STEPSTATS_ORG.
const EnvPrefix = "STEPSTATS_"

// Config captures CLI options sourced from config files, environment or flags.
type Config struct {
	Org        string   `yaml:"org"`
	Pipeline   string   `yaml:"pipeline"`
	Branch     string   `yaml:"branch"`
	BuildState string   `yaml:"build_state"`
	Steps      []string `yaml:"steps"`
	Inputs     []string `yaml:"inputs"`

	Fetch       string `yaml:"fetch"`
	MaxFetches  int    `yaml:"max_fetches"`
	CachePath   string `yaml:"cache_path"`
	CacheMaxAge string `yaml:"cache_max_age"`
	BaseURL     string `yaml:"base_url"`

	// Token is only read from the environment.
	Token string `yaml:"-"`

	Format string    `yaml:"format"`
	Log    LogConfig `yaml:"log"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	// FormatPretty renders one human readable line per outcome plus statistics.
	FormatPretty = "pretty"
	// FormatShort is FormatPretty without build URLs.
	FormatShort = "short"
	// FormatCSV renders machine readable rows.
	FormatCSV = "csv"
	// FormatJSON renders the full report as JSON.
	FormatJSON = "json"
	// FormatTable renders boxed tables.
	FormatTable = "table"

	// FetchAuto uses cached pages while they are fresh.
	FetchAuto = "auto"
	// FetchAlways refreshes the cache on every run.
	FetchAlways = "always"
	// FetchNever only reads the cache.
	FetchNever = "never"

	// AllBranches disables the branch filter.
	AllBranches = "*"
)

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		Pipeline:    "tests",
		Branch:      "main",
		Fetch:       FetchAuto,
		MaxFetches:  3,
		CachePath:   defaultCachePath(),
		CacheMaxAge: "1h",
		Format:      FormatPretty,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "stepstats", "builds.db")
}

// Load reads .stepstats.yml from root when present and applies environment
// overrides. Missing files are ignored.
func Load(root string) (Config, error) {
	cfg := Default()
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
		cfg = merge(cfg, fileCfg)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func merge(base, override Config) Config {
	out := base

	if override.Org != "" {
		out.Org = override.Org
	}
	if override.Pipeline != "" {
		out.Pipeline = override.Pipeline
	}
	if override.Branch != "" {
		out.Branch = override.Branch
	}
	if override.BuildState != "" {
		out.BuildState = override.BuildState
	}
	if len(override.Steps) > 0 {
		out.Steps = append([]string{}, override.Steps...)
	}
	if len(override.Inputs) > 0 {
		out.Inputs = append([]string{}, override.Inputs...)
	}
	if override.Fetch != "" {
		out.Fetch = override.Fetch
	}
	if override.MaxFetches != 0 {
		out.MaxFetches = override.MaxFetches
	}
	if override.CachePath != "" {
		out.CachePath = override.CachePath
	}
	if override.CacheMaxAge != "" {
		out.CacheMaxAge = override.CacheMaxAge
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Format != "" {
		out.Format = override.Format
	}
	if override.Log.Level != "" {
		out.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		out.Log.Format = override.Log.Format
	}

	return out
}

// applyEnv overlays STEPSTATS_* variables. BUILDKITE_TOKEN is accepted as a
// fallback for the API token.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider("BUILDKITE_", ".", func(s string) string {
		if s == "BUILDKITE_TOKEN" {
			return "token"
		}
		return ""
	}), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	override := Config{
		Org:         k.String("org"),
		Pipeline:    k.String("pipeline"),
		Branch:      k.String("branch"),
		BuildState:  k.String("build_state"),
		Fetch:       k.String("fetch"),
		MaxFetches:  k.Int("max_fetches"),
		CachePath:   k.String("cache_path"),
		CacheMaxAge: k.String("cache_max_age"),
		BaseURL:     k.String("base_url"),
		Format:      k.String("format"),
		Log: LogConfig{
			Level:  k.String("log_level"),
			Format: k.String("log_format"),
		},
	}
	*cfg = merge(*cfg, override)
	if token := k.String("token"); token != "" {
		cfg.Token = token
	}
	return nil
}

// Validate checks enumerated values and returns the first problem found.
func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case FormatPretty, FormatShort, FormatCSV, FormatJSON, FormatTable:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	switch c.Fetch {
	case FetchAuto, FetchAlways, FetchNever:
	default:
		return fmt.Errorf("unsupported fetch mode %q (auto|always|never)", c.Fetch)
	}
	if c.BuildState != "" && !provider.KnownBuildState(c.BuildState) {
		return fmt.Errorf("unsupported build state %q", c.BuildState)
	}
	if c.MaxFetches < 0 {
		return fmt.Errorf("max fetches must not be negative, got %d", c.MaxFetches)
	}
	if _, err := c.MaxAge(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// MaxAge parses CacheMaxAge.
func (c Config) MaxAge() (time.Duration, error) {
	if c.CacheMaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CacheMaxAge)
	if err != nil {
		return 0, fmt.Errorf("parse cache max age %q: %w", c.CacheMaxAge, err)
	}
	return d, nil
}

// BranchFilter returns the branch to query, empty for all branches.
func (c Config) BranchFilter() string {
	if c.Branch == AllBranches {
		return ""
	}
	return c.Branch
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.Org.Set {
		cfg.Org = flags.Org.Value
	}
	if flags.Pipeline.Set {
		cfg.Pipeline = flags.Pipeline.Value
	}
	if flags.Branch.Set {
		cfg.Branch = flags.Branch.Value
	}
	if flags.BuildState.Set {
		cfg.BuildState = flags.BuildState.Value
	}
	if len(flags.Steps.Values) > 0 {
		cfg.Steps = append([]string{}, flags.Steps.Values...)
	}
	if len(flags.Inputs.Values) > 0 {
		cfg.Inputs = append([]string{}, flags.Inputs.Values...)
	}
	if flags.Fetch.Set {
		cfg.Fetch = flags.Fetch.Value
	}
	if flags.MaxFetches.Set {
		cfg.MaxFetches = flags.MaxFetches.Value
	}
	if flags.CachePath.Set {
		cfg.CachePath = flags.CachePath.Value
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.LogLevel.Set {
		cfg.Log.Level = flags.LogLevel.Value
	}
	if flags.LogFormat.Set {
		cfg.Log.Format = flags.LogFormat.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Org        StringFlag
	Pipeline   StringFlag
	Branch     StringFlag
	BuildState StringFlag
	Steps      SliceFlag
	Inputs     SliceFlag
	Fetch      StringFlag
	MaxFetches IntFlag
	CachePath  StringFlag
	Format     StringFlag
	LogLevel   StringFlag
	LogFormat  StringFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}
