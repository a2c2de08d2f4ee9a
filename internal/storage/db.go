package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// EnvDBPath overrides the default database location.
const EnvDBPath = "SELFRISE_DB"

// DefaultDBPath returns the default SelfRise DB location.
func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".selfrise.db"), nil
}

// ResolveDBPath prefers $SELFRISE_DB and falls back to DefaultDBPath.
func ResolveDBPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvDBPath)); p != "" {
		return p, nil
	}
	return DefaultDBPath()
}

// OpenSQLite opens (and creates if missing) the SQLite database at the provided path
// and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the atomic store already serializes per key.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Options selects and configures a backend.
type Options struct {
	// Driver is one of "memory", "sqlite" or "badger". Empty means sqlite.
	Driver string
	// Path is the sqlite file or the badger directory.
	Path   string
	Badger BadgerConfig
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "memory":
		return NewMemoryBackend(), nil
	case "", "sqlite":
		path := opts.Path
		if path == "" {
			p, err := ResolveDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteBackend(db), nil
	case "badger":
		cfg := opts.Badger
		if cfg.Path == "" {
			cfg.Path = opts.Path
		}
		return OpenBadger(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
