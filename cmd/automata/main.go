package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/internal/engine"
	"github.com/automata-dev/automata/internal/logging"
	"github.com/automata-dev/automata/internal/scheduler"
	"github.com/automata-dev/automata/internal/store"
	"github.com/automata-dev/automata/internal/triggers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "automata:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := os.MkdirAll(automataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// Connector, credential and location implementations register here.
	// The in-memory defaults make the daemon useful for local development;
	// production wiring plugs real providers into the same interfaces.
	registry := connectors.NewRegistry()
	creds := connectors.NewMemoryCredentials()
	locations := connectors.NewStaticLocations()

	eng := engine.New(registry, creds, nil, engine.Options{
		ActionTimeout: cfg.actionTimeout(),
		ParallelLimit: cfg.ParallelLimit,
		Logger:        logger,
	})

	evaluator := triggers.NewEvaluator(locations, st, st, logger)
	sched := scheduler.New(st, evaluator, eng, clockSnapshots{}, cfg.pollInterval(), logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("automata daemon running",
		"db", filepath.Base(cfg.DBPath), "poll_interval", cfg.PollInterval)

	<-ctx.Done()
	logger.Info("shutting down")
	return sched.Stop()
}

// clockSnapshots supplies wall-clock-only snapshots. Position fixes and
// device state arrive from platform integrations that are wired separately;
// until then only time and behavioral triggers can fire.
type clockSnapshots struct{}

func (clockSnapshots) Snapshot(_ context.Context, _ string) (*triggers.Snapshot, error) {
	return &triggers.Snapshot{Now: time.Now()}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
