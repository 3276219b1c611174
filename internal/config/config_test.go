package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eugenenazirov/cultist-circle/internal/selector"
)

// clearEnv blanks every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "ITEMS_FILE", "ENV_FILE", "ENABLE_REQUEST_LOGGING",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "THRESHOLD", "MAX_ITEMS", "SLACK",
		"CANDIDATE_CAP", "NODE_BUDGET", "GRID_WIDTH", "GRID_HEIGHT", "STRATEGY",
		"SEARCH_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
	if cfg.Search.Threshold != 400000 || cfg.Search.MaxItems != 5 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Search.Strategy != selector.StrategyAuto {
		t.Fatalf("expected auto strategy, got %q", cfg.Search.Strategy)
	}
	if cfg.Grid.Width != 9 || cfg.Grid.Height != 6 {
		t.Fatalf("unexpected grid: %+v", cfg.Grid)
	}
	if !cfg.EnableRequestLogging {
		t.Fatalf("request logging should default to enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("THRESHOLD", "350000")
	t.Setenv("MAX_ITEMS", "3")
	t.Setenv("STRATEGY", "bnb")
	t.Setenv("SEARCH_TIMEOUT", "750ms")
	t.Setenv("ENABLE_REQUEST_LOGGING", "false")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.Search.Threshold != 350000 || cfg.Search.MaxItems != 3 {
		t.Fatalf("unexpected search settings: %+v", cfg.Search)
	}
	if cfg.Search.Strategy != selector.StrategyBranchAndBound {
		t.Fatalf("expected bnb strategy, got %q", cfg.Search.Strategy)
	}
	if cfg.Search.Timeout != 750*time.Millisecond {
		t.Fatalf("unexpected timeout: %s", cfg.Search.Timeout)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging disabled")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	tests := map[string]string{
		"THRESHOLD":      "lots",
		"STRATEGY":       "genetic",
		"SEARCH_TIMEOUT": "soon",
		"RATE_LIMIT_RPS": "fast",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(nil); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("MAX_ITEMS", "4")
	t.Setenv("THRESHOLD", "100")

	path := writeFile(t, "config.yaml", `
port: "7100"
log_level: debug
enable_request_logging: false
rate_limit:
  rps: 0
search:
  max_items: 2
  strategy: dp
  timeout: 3s
grid:
  width: 10
  height: 7
`)

	cliPort := "7200"
	cfg, err := Load(&CLIOverrides{ConfigFile: path, Port: &cliPort})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "7200" {
		t.Fatalf("CLI should win over YAML, got port %s", cfg.Port)
	}
	if cfg.Search.MaxItems != 2 {
		t.Fatalf("YAML should win over env, got max items %d", cfg.Search.MaxItems)
	}
	if cfg.Search.Threshold != 100 {
		t.Fatalf("env should win over defaults, got threshold %d", cfg.Search.Threshold)
	}
	if cfg.Search.Strategy != selector.StrategyDP || cfg.Search.Timeout != 3*time.Second {
		t.Fatalf("unexpected search settings: %+v", cfg.Search)
	}
	if cfg.Grid.Width != 10 || cfg.Grid.Height != 7 {
		t.Fatalf("unexpected grid: %+v", cfg.Grid)
	}
	if cfg.LogLevel != "debug" || cfg.EnableRequestLogging || cfg.RateLimitRPS != 0 {
		t.Fatalf("unexpected ambient settings: %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("GRID_WIDTH")
	os.Unsetenv("ITEMS_FILE")
	t.Cleanup(func() {
		os.Unsetenv("GRID_WIDTH")
		os.Unsetenv("ITEMS_FILE")
	})

	path := writeFile(t, "circle.env", "GRID_WIDTH=12\nITEMS_FILE=prices.csv\n")

	cfg, err := Load(&CLIOverrides{EnvFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Grid.Width != 12 {
		t.Fatalf("expected grid width from env file, got %d", cfg.Grid.Width)
	}
	if cfg.ItemsFile != "prices.csv" {
		t.Fatalf("expected items file from env file, got %q", cfg.ItemsFile)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	clearEnv(t)

	if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing YAML file")
	}
	if _, err := Load(&CLIOverrides{EnvFile: filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative threshold", "search:\n  threshold: -1\n"},
		{"negative slack", "search:\n  slack: -5\n"},
		{"zero grid", "grid:\n  width: 0\n"},
		{"oversized grid", "grid:\n  height: 65\n"},
		{"bad log level", "log_level: chatty\n"},
		{"negative burst", "rate_limit:\n  burst: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeFile(t, "config.yaml", tt.yaml)
			_, err := Load(&CLIOverrides{ConfigFile: path})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadRejectsNegativeCLIOverrides(t *testing.T) {
	negThreshold := int64(-1)
	negMaxItems := -2
	negBurst := -3

	tests := []struct {
		name      string
		overrides CLIOverrides
	}{
		{"threshold", CLIOverrides{Threshold: &negThreshold}},
		{"max items", CLIOverrides{MaxItems: &negMaxItems}},
		{"burst", CLIOverrides{RateLimitBurst: &negBurst}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			overrides := tt.overrides
			if _, err := Load(&overrides); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSearchSelectorOptions(t *testing.T) {
	t.Parallel()

	s := Search{Strategy: selector.StrategyDP, Slack: 10, CandidateCap: 30, NodeBudget: 99}
	opts := s.SelectorOptions()
	if opts.Strategy != selector.StrategyDP || opts.Slack != 10 || opts.CandidateCap != 30 || opts.NodeBudget != 99 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.MaxTableCells != selector.DefaultMaxTableCells {
		t.Fatalf("expected default table budget, got %d", opts.MaxTableCells)
	}

	g := Grid{Width: 9, Height: 6, NodeBudget: 42}
	if g.PackingOptions().NodeBudget != 42 {
		t.Fatalf("unexpected packing options: %+v", g.PackingOptions())
	}
}
