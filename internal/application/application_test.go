package application

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/cultist-circle/internal/config"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
)

func TestNewInitializesDependencies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	data := "name,value,cost,qty\nBolts,12000,3000,2\nLEDX,600000,900000,1\nbroken,abc,1,1\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write items: %v", err)
	}

	cfg := baseTestConfig(":8085")
	cfg.ItemsFile = path
	logger := zaptest.NewLogger(t)

	app, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	items, err := app.storage.GetItems()
	if err != nil {
		t.Fatalf("GetItems returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 catalog items, got %d", len(items))
	}
	if app.server == nil || app.router == nil || app.handler == nil || app.planner == nil {
		t.Fatalf("expected server, router, planner, and handler to be initialized")
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
}

func TestNewWithoutItemsFile(t *testing.T) {
	app, err := New(baseTestConfig(":0"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	items, _ := app.storage.GetItems()
	if len(items) != 0 {
		t.Fatalf("expected empty catalog, got %d items", len(items))
	}
}

func TestNewReturnsErrorForUnusableItemsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	if err := os.WriteFile(path, []byte("name,value\nbad,abc\n"), 0o600); err != nil {
		t.Fatalf("write items: %v", err)
	}

	cfg := baseTestConfig(":0")
	cfg.ItemsFile = path

	_, err := New(cfg, zaptest.NewLogger(t))
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestPlannerSettings(t *testing.T) {
	cfg := baseTestConfig(":0")
	settings := PlannerSettings(cfg)

	if settings.Threshold != cfg.Search.Threshold || settings.MaxItems != cfg.Search.MaxItems {
		t.Fatalf("search defaults not applied: %+v", settings)
	}
	if settings.GridWidth != 9 || settings.GridHeight != 6 {
		t.Fatalf("grid not applied: %+v", settings)
	}
	if settings.Selector.Strategy != selector.StrategyAuto || settings.Timeout != time.Second {
		t.Fatalf("selector options not applied: %+v", settings)
	}
}

func TestBuildRootHandlerServesIndex(t *testing.T) {
	handler := BuildRootHandler(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestResolveProjectPathFindsGoMod(t *testing.T) {
	path, err := resolveProjectPath("go.mod")
	if err != nil {
		t.Fatalf("resolveProjectPath returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected go.mod to exist at %s: %v", path, err)
	}
}

func TestResolveProjectPathUnknownTarget(t *testing.T) {
	if _, err := resolveProjectPath("definitely-not-a-real-file"); err == nil {
		t.Fatalf("expected error for missing resource")
	}
}

func baseTestConfig(port string) config.Config {
	return config.Config{
		Port:                 port,
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: false,
		RateLimitRPS:         0,
		RateLimitBurst:       0,
		Search: config.Search{
			Threshold:  400000,
			MaxItems:   5,
			Strategy:   selector.StrategyAuto,
			Slack:      selector.DefaultSlack,
			NodeBudget: selector.DefaultNodeBudget,
			Timeout:    time.Second,
		},
		Grid: config.Grid{Width: 9, Height: 6},
	}
}
