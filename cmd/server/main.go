package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/cultist-circle/internal/application"
	"github.com/eugenenazirov/cultist-circle/internal/config"
	"github.com/eugenenazirov/cultist-circle/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "")

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// parseFlags turns command line arguments into config overrides. Numeric
// flags are only forwarded when given, so explicit negatives reach config
// validation instead of being mistaken for "unset".
func parseFlags(args []string) (*config.CLIOverrides, error) {
	app := kingpin.New("circle-server", "Cultist Circle calculator - cheapest item sets reaching a sacrifice value threshold")
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	envFile := app.Flag("env-file", "Path to a dotenv file loaded before environment variables").Envar("ENV_FILE").String()
	port := app.Flag("port", "HTTP port exposed by the service").String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").String()
	itemsFile := app.Flag("items", "CSV, XLSX or JSON file seeding the item catalog").String()
	strategy := app.Flag("strategy", "Default selection strategy (auto, dp, bnb)").String()
	searchTimeout := app.Flag("search-timeout", "Time limit for each search stage").Duration()

	var thresholdSet, maxItemsSet, rpsSet, burstSet bool
	threshold := app.Flag("threshold", "Default value threshold for selections").IsSetByUser(&thresholdSet).Int64()
	maxItems := app.Flag("max-items", "Default maximum number of items per selection").IsSetByUser(&maxItemsSet).Int()
	rateLimitRPS := app.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").IsSetByUser(&rpsSet).Float64()
	rateLimitBurst := app.Flag("rate-limit-burst", "Token bucket size per client; searches take several tokens").IsSetByUser(&burstSet).Int()

	if _, err := app.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile:    *configFile,
		EnvFile:       *envFile,
		Port:          port,
		LogLevel:      logLevel,
		ItemsFile:     itemsFile,
		Strategy:      strategy,
		SearchTimeout: searchTimeout,
	}
	if thresholdSet {
		overrides.Threshold = threshold
	}
	if maxItemsSet {
		overrides.MaxItems = maxItems
	}
	if rpsSet {
		overrides.RateLimitRPS = rateLimitRPS
	}
	if burstSet {
		overrides.RateLimitBurst = rateLimitBurst
	}
	return overrides, nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.String("signal", sig.String()), zap.Duration("grace_period", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
