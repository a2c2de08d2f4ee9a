package root

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"selfrise/internal/atomicstore"
	"selfrise/internal/batch"
	"selfrise/internal/config"
	"selfrise/internal/engine"
	"selfrise/internal/events"
	"selfrise/internal/storage"
)

// app wires the ledger for one command invocation.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	backend storage.Backend
	store   *atomicstore.Store
	svc     *engine.Service
	bus     *events.Bus
	batcher *batch.Coalescer
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.driver != "" {
		cfg.Storage.Driver = flags.driver
	}
	if flags.dbPath != "" {
		cfg.Storage.Path = flags.dbPath
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func defaultBadgerDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".selfrise-badger"), nil
}

func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	sopts := cfg.StorageOptions(logger.With("component", "badger"))
	if strings.EqualFold(sopts.Driver, "badger") && sopts.Path == "" {
		dir, err := defaultBadgerDir()
		if err != nil {
			return nil, nil, err
		}
		sopts.Path, sopts.Badger.Path = dir, dir
	}
	backend, err := storage.Open(ctx, sopts)
	if err != nil {
		return nil, nil, err
	}

	store := atomicstore.New(backend, cfg.StoreOptions(logger.With("component", "atomicstore")))
	bus := events.NewBus()
	ledgerOpts, err := cfg.LedgerOptions()
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	ledgerOpts = append(ledgerOpts,
		engine.WithLogger(logger.With("component", "ledger")),
		engine.WithSink(bus),
	)
	svc := engine.NewService(store, ledgerOpts...)
	batcher := batch.New(svc, cfg.Batch, batch.WithLogger(logger.With("component", "batch")))

	a := &app{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		store:   store,
		svc:     svc,
		bus:     bus,
		batcher: batcher,
	}
	cleanup := func() {
		if err := batcher.Close(ctx); err != nil {
			logger.Warn("batch not flushed", "event", "batch_close_failed", "error", err)
		}
		if err := svc.Close(ctx); err != nil {
			logger.Warn("events not delivered", "event", "sink_close_failed", "error", err)
		}
		_ = backend.Close()
	}
	return a, cleanup, nil
}
