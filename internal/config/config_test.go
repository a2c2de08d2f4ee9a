package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfrise/internal/engine"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	limits := cfg.EngineLimits()
	assert.Equal(t, engine.DefaultLimits().GlobalDailyCap, limits.GlobalDailyCap)
	assert.Equal(t, engine.DefaultLimits().For(engine.SourceEngagement), limits.For(engine.SourceEngagement))
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.Window)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
storage:
  driver: badger
  path: /tmp/xp
log:
  level: debug
limits:
  global_daily_cap: 2000
  sources:
    engagement:
      daily_cap: 80
      min_interval: 1m
batch:
  window: 250ms
  bypass_sources: [achievement-unlock, monthly-challenge]
ledger:
  timezone: UTC
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, int64(2000), cfg.Limits.GlobalDailyCap)
	assert.Equal(t, Default().Limits.MaxSingleTransaction, cfg.Limits.MaxSingleTransaction)
	assert.Equal(t, engine.SourceLimit{DailyCap: 80, MinInterval: time.Minute}, cfg.Limits.Sources["engagement"])
	// Sources not named in the file keep their defaults.
	assert.Equal(t, Default().Limits.Sources["habit-completion"], cfg.Limits.Sources["habit-completion"])
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Window)
	assert.Equal(t, 2*time.Second, cfg.Batch.MaxDelay)
	assert.Len(t, cfg.Batch.BypassSources, 2)

	opts, err := cfg.LedgerOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	so := cfg.StorageOptions(nil)
	assert.Equal(t, "/tmp/xp", so.Badger.Path)
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "storage:\n  drvier: sqlite\n",
		"unknown driver": "storage:\n  driver: postgres\n",
		"bad level":      "log:\n  level: loud\n",
		"bad source":     "limits:\n  sources:\n    gardening:\n      daily_cap: 5\n",
		"negative cap":   "limits:\n  global_daily_cap: -1\n",
		"bad timezone":   "ledger:\n  timezone: Mars/Olympus\n",
		"bad bypass":     "batch:\n  bypass_sources: [naps]\n",
	}
	for name, data := range cases {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "selfrise.yaml")
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Limits.Sources["journal-entry"] = engine.SourceLimit{DailyCap: 120, MinInterval: 15 * time.Second}

	require.NoError(t, Write(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestResolvePathUsesEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/selfrise.yaml")
	p, err := ResolvePath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/selfrise.yaml", p)

	t.Setenv(EnvConfig, "")
	p, err = ResolvePath()
	require.NoError(t, err)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".selfrise.yaml"), p)
}

func TestParseLevel(t *testing.T) {
	for in, ok := range map[string]bool{"": true, "DEBUG": true, "warning": true, "error": true, "trace": false} {
		_, err := ParseLevel(in)
		assert.Equal(t, ok, err == nil, in)
	}
}
