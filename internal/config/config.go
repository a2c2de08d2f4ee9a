// Package config loads the SelfRise YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"selfrise/internal/atomicstore"
	"selfrise/internal/batch"
	"selfrise/internal/engine"
	"selfrise/internal/storage"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Limits  LimitsConfig  `yaml:"limits"`
	Batch   batch.Config  `yaml:"batch"`
	Store   StoreConfig   `yaml:"store"`
	Ledger  LedgerConfig  `yaml:"ledger"`
}

type StorageConfig struct {
	// Driver is memory, sqlite or badger.
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path,omitempty"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type LimitsConfig struct {
	MaxSingleTransaction int64                         `yaml:"max_single_transaction"`
	GlobalDailyCap       int64                         `yaml:"global_daily_cap"`
	Sources              map[string]engine.SourceLimit `yaml:"sources"`
}

// StoreConfig tunes the atomic store.
type StoreConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxQueue   int           `yaml:"max_queue"`
}

type LedgerConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	TransactionCap    int           `yaml:"transaction_cap"`
	LevelUpHistoryCap int           `yaml:"level_up_history_cap"`
	// Timezone names the zone whose midnight resets daily limits. Empty means local.
	Timezone string `yaml:"timezone,omitempty"`
}

func Default() Config {
	limits := engine.DefaultLimits()
	sources := make(map[string]engine.SourceLimit, len(limits.Sources))
	for s, l := range limits.Sources {
		sources[string(s)] = l
	}
	store := atomicstore.DefaultOptions()
	retry := engine.DefaultRetryPolicy()
	return Config{
		Storage: StorageConfig{Driver: "sqlite"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Limits: LimitsConfig{
			MaxSingleTransaction: limits.MaxSingleTransaction,
			GlobalDailyCap:       limits.GlobalDailyCap,
			Sources:              sources,
		},
		Batch: batch.DefaultConfig(),
		Store: StoreConfig{
			MaxRetries: store.MaxRetries,
			RetryDelay: store.RetryDelay,
			MaxQueue:   store.MaxQueue,
		},
		Ledger: LedgerConfig{
			RetryAttempts:     retry.Attempts,
			RetryDelay:        retry.Delay,
			TransactionCap:    engine.DefaultTransactionCap,
			LevelUpHistoryCap: engine.DefaultLevelUpHistory,
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory", "sqlite", "badger":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Limits.MaxSingleTransaction < 0 || c.Limits.GlobalDailyCap < 0 {
		errs = append(errs, errors.New("limits: caps must not be negative"))
	}
	for name, l := range c.Limits.Sources {
		if !engine.Source(name).IsValid() {
			errs = append(errs, fmt.Errorf("limits.sources: %w: %q", engine.ErrUnknownSource, name))
		}
		if l.DailyCap < 0 || l.MinInterval < 0 {
			errs = append(errs, fmt.Errorf("limits.sources.%s: values must not be negative", name))
		}
	}
	for _, s := range c.Batch.BypassSources {
		if !s.IsValid() {
			errs = append(errs, fmt.Errorf("batch.bypass_sources: %w: %q", engine.ErrUnknownSource, s))
		}
	}
	if c.Batch.Window < 0 || c.Batch.MaxDelay < 0 || c.Batch.LargeAmount < 0 || c.Batch.MaxSources < 0 {
		errs = append(errs, errors.New("batch: values must not be negative"))
	}
	if c.Store.MaxRetries < 0 || c.Store.RetryDelay < 0 || c.Store.MaxQueue < 0 {
		errs = append(errs, errors.New("store: values must not be negative"))
	}
	if c.Ledger.RetryAttempts < 0 || c.Ledger.RetryDelay < 0 || c.Ledger.TransactionCap < 0 || c.Ledger.LevelUpHistoryCap < 0 {
		errs = append(errs, errors.New("ledger: values must not be negative"))
	}
	if c.Ledger.Timezone != "" {
		if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("ledger.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EngineLimits converts the limits section. Unknown sources are skipped;
// Validate reports them.
func (c Config) EngineLimits() engine.Limits {
	out := engine.Limits{
		MaxSingleTransaction: c.Limits.MaxSingleTransaction,
		GlobalDailyCap:       c.Limits.GlobalDailyCap,
		Sources:              make(map[engine.Source]engine.SourceLimit, len(c.Limits.Sources)),
	}
	for name, l := range c.Limits.Sources {
		if s := engine.Source(name); s.IsValid() {
			out.Sources[s] = l
		}
	}
	return out
}

func (c Config) StoreOptions(logger *slog.Logger) atomicstore.Options {
	return atomicstore.Options{
		MaxRetries: c.Store.MaxRetries,
		RetryDelay: c.Store.RetryDelay,
		MaxQueue:   c.Store.MaxQueue,
		Logger:     logger,
	}
}

func (c Config) StorageOptions(logger *slog.Logger) storage.Options {
	return storage.Options{
		Driver: c.Storage.Driver,
		Path:   c.Storage.Path,
		Badger: storage.BadgerConfig{
			Path:       c.Storage.Path,
			SyncWrites: c.Storage.SyncWrites,
			Logger:     logger,
		},
	}
}

// LedgerOptions returns the engine options this configuration implies.
func (c Config) LedgerOptions() ([]engine.Option, error) {
	opts := []engine.Option{
		engine.WithLimits(c.EngineLimits()),
		engine.WithRetryPolicy(engine.RetryPolicy{Attempts: c.Ledger.RetryAttempts, Delay: c.Ledger.RetryDelay}),
	}
	if c.Ledger.TransactionCap > 0 {
		opts = append(opts, engine.WithTransactionCap(c.Ledger.TransactionCap))
	}
	if c.Ledger.LevelUpHistoryCap > 0 {
		opts = append(opts, engine.WithLevelUpHistoryCap(c.Ledger.LevelUpHistoryCap))
	}
	if c.Ledger.Timezone != "" {
		loc, err := time.LoadLocation(c.Ledger.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		opts = append(opts, engine.WithLocation(loc))
	}
	return opts, nil
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
