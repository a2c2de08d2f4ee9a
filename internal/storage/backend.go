// Package storage provides the flat key-value backends the ledger persists to.
//
// Backends store opaque bytes under string keys. Serialization and
// per-key atomicity belong to the caller (see internal/atomicstore).
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by a backend used after Close.
var ErrClosed = errors.New("storage: backend closed")

// Backend is a flat key-value store with bulk operations.
type Backend interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error

	// MultiGet returns only the keys that exist.
	MultiGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// MultiSet writes all pairs or none.
	MultiSet(ctx context.Context, values map[string][]byte) error
	MultiRemove(ctx context.Context, keys []string) error

	// Keys lists every stored key in ascending order.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
