package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Backend {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	bdg, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)

	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": NewSQLiteBackend(db),
		"badger": bdg,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			_ = b.Close()
		}
	})
	return backends
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()
	for name, b := range openBackends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			_, ok, err := b.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Set(ctx, "total-xp", []byte("42")))
			v, ok, err := b.Get(ctx, "total-xp")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("42"), v)

			require.NoError(t, b.Set(ctx, "total-xp", []byte("43")))
			v, _, err = b.Get(ctx, "total-xp")
			require.NoError(t, err)
			assert.Equal(t, []byte("43"), v)

			require.NoError(t, b.MultiSet(ctx, map[string][]byte{
				"a": []byte("1"),
				"b": []byte("2"),
			}))
			got, err := b.MultiGet(ctx, []string{"a", "b", "nope"})
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, got)

			keys, err := b.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "total-xp"}, keys)

			require.NoError(t, b.MultiRemove(ctx, []string{"a", "b"}))
			require.NoError(t, b.Remove(ctx, "total-xp"))
			keys, err = b.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewSQLiteBackend(db).Set(ctx, "k", []byte("v")))
	require.NoError(t, db.Close())

	db2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db2.Close()
	v, ok, err := NewSQLiteBackend(db2).Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "k", []byte("v")))
	require.NoError(t, b.Close())

	b2, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer b2.Close()
	v, ok, err := b2.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Options{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)
	require.NoError(t, b.Close())

	b, err = Open(ctx, Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = Open(ctx, Options{Driver: "etcd"})
	require.Error(t, err)
}

func TestMemoryBackendClosed(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Close())
	_, _, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Set(ctx, "k", nil), ErrClosed)
}

func TestResolveDBPathFromEnv(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/custom.db")
	p, err := ResolveDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", p)
}
