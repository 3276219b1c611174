package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/cultist-circle/internal/logging"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultThreshold      = 400000
	defaultMaxItems       = 5
	defaultSearchTimeout  = 2 * time.Second
)

// ErrInvalidConfig is returned when the resolved configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	LogLevel             string
	ItemsFile            string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int

	Search Search
	Grid   Grid
}

// Search holds the defaults applied to subset selection requests.
type Search struct {
	Threshold    int64
	MaxItems     int
	Strategy     selector.Strategy
	Slack        int64
	CandidateCap int
	NodeBudget   int
	Timeout      time.Duration
}

// Grid holds the container dimensions used by fit checks.
type Grid struct {
	Width      int
	Height     int
	NodeBudget int
}

// SelectorOptions converts the search settings into selector options.
func (s Search) SelectorOptions() selector.Options {
	opts := selector.DefaultOptions()
	opts.Strategy = s.Strategy
	opts.Slack = s.Slack
	opts.CandidateCap = s.CandidateCap
	opts.NodeBudget = s.NodeBudget
	return opts
}

// PackingOptions converts the grid settings into packing options.
func (g Grid) PackingOptions() packing.Options {
	return packing.Options{NodeBudget: g.NodeBudget}
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	LogLevel             string        `yaml:"log_level"`
	ItemsFile            string        `yaml:"items_file"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Search               yamlSearch    `yaml:"search"`
	Grid                 yamlGrid      `yaml:"grid"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlSearch struct {
	Threshold    *int64 `yaml:"threshold"`
	MaxItems     *int   `yaml:"max_items"`
	Strategy     string `yaml:"strategy"`
	Slack        *int64 `yaml:"slack"`
	CandidateCap *int   `yaml:"candidate_cap"`
	NodeBudget   *int   `yaml:"node_budget"`
	Timeout      string `yaml:"timeout"`
}

type yamlGrid struct {
	Width      *int `yaml:"width"`
	Height     *int `yaml:"height"`
	NodeBudget *int `yaml:"node_budget"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	LogLevel       *string
	ItemsFile      *string
	Threshold      *int64
	MaxItems       *int
	Strategy       *string
	SearchTimeout  *time.Duration
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if overrides != nil && overrides.EnvFile != "" {
		envFile = overrides.EnvFile
	}
	if envFile != "" {
		// Variables already present in the process environment win over the file.
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             logging.DefaultLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Search: Search{
			Threshold:    defaultThreshold,
			MaxItems:     defaultMaxItems,
			Strategy:     selector.StrategyAuto,
			Slack:        selector.DefaultSlack,
			CandidateCap: selector.DefaultCandidateCap,
			NodeBudget:   selector.DefaultNodeBudget,
			Timeout:      defaultSearchTimeout,
		},
		Grid: Grid{
			Width:      packing.DefaultWidth,
			Height:     packing.DefaultHeight,
			NodeBudget: packing.DefaultNodeBudget,
		},
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

func setDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.ItemsFile != "" {
		cfg.ItemsFile = yamlCfg.ItemsFile
	}

	durations := []struct {
		dst  *time.Duration
		raw  string
		name string
	}{
		{&cfg.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{&cfg.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout, "read_header_timeout"},
		{&cfg.WriteTimeout, yamlCfg.WriteTimeout, "write_timeout"},
		{&cfg.IdleTimeout, yamlCfg.IdleTimeout, "idle_timeout"},
		{&cfg.Search.Timeout, yamlCfg.Search.Timeout, "search.timeout"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.raw, d.name); err != nil {
			return err
		}
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	s := yamlCfg.Search
	if s.Threshold != nil {
		cfg.Search.Threshold = *s.Threshold
	}
	if s.MaxItems != nil {
		cfg.Search.MaxItems = *s.MaxItems
	}
	if s.Strategy != "" {
		strategy, err := selector.ParseStrategy(s.Strategy)
		if err != nil {
			return err
		}
		cfg.Search.Strategy = strategy
	}
	if s.Slack != nil {
		cfg.Search.Slack = *s.Slack
	}
	if s.CandidateCap != nil {
		cfg.Search.CandidateCap = *s.CandidateCap
	}
	if s.NodeBudget != nil {
		cfg.Search.NodeBudget = *s.NodeBudget
	}

	g := yamlCfg.Grid
	if g.Width != nil {
		cfg.Grid.Width = *g.Width
	}
	if g.Height != nil {
		cfg.Grid.Height = *g.Height
	}
	if g.NodeBudget != nil {
		cfg.Grid.NodeBudget = *g.NodeBudget
	}

	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, dst *int) error {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	*dst = value
	return nil
}

func envInt64(key string, dst *int64) error {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	*dst = value
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := envString("PORT"); port != "" {
		cfg.Port = port
	}
	if level := envString("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if path := envString("ITEMS_FILE"); path != "" {
		cfg.ItemsFile = path
	}

	if raw := envString("ENABLE_REQUEST_LOGGING"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("ENABLE_REQUEST_LOGGING: invalid boolean %q", raw)
		}
		cfg.EnableRequestLogging = value
	}

	if rps := envString("RATE_LIMIT_RPS"); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: invalid number %q", rps)
		}
		cfg.RateLimitRPS = value
	}

	if err := envInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst); err != nil {
		return err
	}
	if err := envInt64("THRESHOLD", &cfg.Search.Threshold); err != nil {
		return err
	}
	if err := envInt("MAX_ITEMS", &cfg.Search.MaxItems); err != nil {
		return err
	}
	if err := envInt64("SLACK", &cfg.Search.Slack); err != nil {
		return err
	}
	if err := envInt("CANDIDATE_CAP", &cfg.Search.CandidateCap); err != nil {
		return err
	}
	if err := envInt("NODE_BUDGET", &cfg.Search.NodeBudget); err != nil {
		return err
	}
	if err := envInt("GRID_WIDTH", &cfg.Grid.Width); err != nil {
		return err
	}
	if err := envInt("GRID_HEIGHT", &cfg.Grid.Height); err != nil {
		return err
	}

	if raw := envString("STRATEGY"); raw != "" {
		strategy, err := selector.ParseStrategy(raw)
		if err != nil {
			return fmt.Errorf("STRATEGY: %w", err)
		}
		cfg.Search.Strategy = strategy
	}

	return setDuration(&cfg.Search.Timeout, envString("SEARCH_TIMEOUT"), "SEARCH_TIMEOUT")
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.ItemsFile != nil && *overrides.ItemsFile != "" {
		cfg.ItemsFile = *overrides.ItemsFile
	}
	if overrides.Threshold != nil {
		cfg.Search.Threshold = *overrides.Threshold
	}
	if overrides.MaxItems != nil {
		cfg.Search.MaxItems = *overrides.MaxItems
	}
	if overrides.Strategy != nil && *overrides.Strategy != "" {
		strategy, err := selector.ParseStrategy(*overrides.Strategy)
		if err != nil {
			return fmt.Errorf("parse strategy: %w", err)
		}
		cfg.Search.Strategy = strategy
	}
	if overrides.SearchTimeout != nil && *overrides.SearchTimeout > 0 {
		cfg.Search.Timeout = *overrides.SearchTimeout
	}
	if overrides.RateLimitRPS != nil {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	switch {
	case cfg.RateLimitRPS < 0:
		return fmt.Errorf("%w: rate limit rps must be >= 0", ErrInvalidConfig)
	case cfg.RateLimitBurst < 0:
		return fmt.Errorf("%w: rate limit burst must be >= 0", ErrInvalidConfig)
	case cfg.Search.Threshold < 0:
		return fmt.Errorf("%w: threshold must be >= 0", ErrInvalidConfig)
	case cfg.Search.MaxItems < 0:
		return fmt.Errorf("%w: max items must be >= 0", ErrInvalidConfig)
	case cfg.Search.Slack < 0:
		return fmt.Errorf("%w: slack must be >= 0", ErrInvalidConfig)
	case cfg.Search.CandidateCap < 0:
		return fmt.Errorf("%w: candidate cap must be >= 0", ErrInvalidConfig)
	case cfg.Search.Timeout < 0:
		return fmt.Errorf("%w: search timeout must be >= 0", ErrInvalidConfig)
	case cfg.Grid.Width <= 0 || cfg.Grid.Height <= 0:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalidConfig, cfg.Grid.Width, cfg.Grid.Height)
	case cfg.Grid.Width > packing.MaxSide || cfg.Grid.Height > packing.MaxSide:
		return fmt.Errorf("%w: grid sides are limited to %d, got %dx%d", ErrInvalidConfig, packing.MaxSide, cfg.Grid.Width, cfg.Grid.Height)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
