package application

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/cultist-circle/internal/api"
	"github.com/eugenenazirov/cultist-circle/internal/config"
	"github.com/eugenenazirov/cultist-circle/internal/importer"
	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/planner"
	"github.com/eugenenazirov/cultist-circle/internal/storage"
)

// ErrNoItems is returned when the configured items file yields no usable items.
var ErrNoItems = errors.New("items file contains no usable items")

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	planner *planner.Planner
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if cfg.ItemsFile != "" {
		items, err := LoadItems(cfg.ItemsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load items: %w", err)
		}
		if err := store.SetItems(items); err != nil {
			return nil, fmt.Errorf("failed to apply initial catalog: %w", err)
		}
		logger.Info("catalog loaded", zap.String("file", cfg.ItemsFile), zap.Int("items", len(items)))
	}

	plan := planner.New(logger, PlannerSettings(cfg))
	handler := api.NewHandler(plan, store)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage: store,
		planner: plan,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// PlannerSettings maps the search and grid configuration onto planner defaults.
func PlannerSettings(cfg config.Config) planner.Settings {
	return planner.Settings{
		Threshold:  cfg.Search.Threshold,
		MaxItems:   cfg.Search.MaxItems,
		Selector:   cfg.Search.SelectorOptions(),
		GridWidth:  cfg.Grid.Width,
		GridHeight: cfg.Grid.Height,
		Packing:    cfg.Grid.PackingOptions(),
		Timeout:    cfg.Search.Timeout,
	}
}

// LoadItems imports an item list, logging row-level problems. Rows that fail
// to parse are skipped; a file with no usable rows is an error.
func LoadItems(path string, logger *zap.Logger) ([]item.Item, error) {
	resolved := path
	if _, err := os.Stat(path); err != nil && !filepath.IsAbs(path) {
		if found, findErr := resolveProjectPath(path); findErr == nil {
			resolved = found
		}
	}

	result := importer.ImportFile(resolved)
	for _, w := range result.Warnings {
		logger.Warn("import warning", zap.String("file", resolved), zap.String("detail", w))
	}
	for _, e := range result.Errors {
		logger.Warn("import error", zap.String("file", resolved), zap.String("detail", e))
	}
	if len(result.Items) == 0 {
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoItems, result.Errors[0])
		}
		return nil, ErrNoItems
	}
	return result.Items, nil
}

// BuildRootHandler constructs the root HTTP handler: API traffic under /api/
// and a short service description at /.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, indexText)
	}))
	return mux
}

const indexText = `cultist-circle

GET  /api/health
GET  /api/items
PUT  /api/items
POST /api/select
POST /api/fit
POST /api/fit/pdf
POST /api/plan
`

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
