package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsresolve/internal/core/ports"
)

func openBackends(t *testing.T) map[string]ports.DurableStore {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := Open(Config{Backend: BackendSQLite, Path: filepath.Join(dir, "cache.db"), Namespace: "https://esm.sh"})
	require.NoError(t, err)
	badgerStore, err := Open(Config{Backend: BackendBadger, Path: filepath.Join(dir, "badger"), Namespace: "https://esm.sh"})
	require.NoError(t, err)
	memoryStore, err := Open(Config{Backend: BackendMemory, Namespace: "https://esm.sh"})
	require.NoError(t, err)

	stores := map[string]ports.DurableStore{
		BackendSQLite: sqliteStore,
		BackendBadger: badgerStore,
		BackendMemory: memoryStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "content:missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, "types:https://esm.sh/react@18", "https://esm.sh/v135/@types/react@18.2.0/index.d.ts"))
			value, ok, err := s.Get(ctx, "types:https://esm.sh/react@18")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "https://esm.sh/v135/@types/react@18.2.0/index.d.ts", value)

			require.NoError(t, s.Put(ctx, "types:https://esm.sh/react@18", "updated"))
			value, _, err = s.Get(ctx, "types:https://esm.sh/react@18")
			require.NoError(t, err)
			assert.Equal(t, "updated", value)
		})
	}
}

func TestStores_PutBatch(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			batch := []ports.WriteRequest{
				{Key: "content:a", Value: "A"},
				{Key: "content:b", Value: "B"},
				{Key: "content:a", Value: "A2"},
			}
			require.NoError(t, s.PutBatch(ctx, batch))
			require.NoError(t, s.PutBatch(ctx, nil))

			a, _, err := s.Get(ctx, "content:a")
			require.NoError(t, err)
			assert.Equal(t, "A2", a)
			b, _, err := s.Get(ctx, "content:b")
			require.NoError(t, err)
			assert.Equal(t, "B", b)
		})
	}
}

func TestSQLiteStore_NamespacesAndTTL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	a, err := OpenSQLite(path, "https://esm.sh", time.Hour)
	require.NoError(t, err)
	require.NoError(t, a.Put(ctx, "content:x", "x"))
	require.NoError(t, a.Close())

	b, err := OpenSQLite(path, "https://registry.example.com", 0)
	require.NoError(t, err)
	defer b.Close()
	_, ok, err := b.Get(ctx, "content:x")
	require.NoError(t, err)
	assert.False(t, ok, "entry must not leak across namespaces")

	a, err = OpenSQLite(path, "https://esm.sh", time.Hour)
	require.NoError(t, err)
	defer a.Close()
	_, ok, err = a.Get(ctx, "content:x")
	require.NoError(t, err)
	assert.True(t, ok, "entry must survive reopen")

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok, err = a.Get(ctx, "content:x")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must read as a miss")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Config{Backend: "redis"})
	assert.Error(t, err)

	_, err = Open(Config{Backend: BackendSQLite, Path: " "})
	assert.Error(t, err)

	_, err = Open(Config{Backend: BackendBadger})
	assert.Error(t, err)
}
