package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"eduauthd/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore(t))
}

// Without a single-statement take the store falls back to the transaction
// path that YDB uses
func TestSQLiteStore_ContractWithTransactionalTake(t *testing.T) {
	store := newTestSQLiteStore(t)
	store.dialect.take = ""

	runStoreContract(t, store)
}

func TestSQLiteStore_TakeExpired(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "pending:a", []byte("short"), 5*time.Minute))
	now = now.Add(10 * time.Minute)

	_, err := store.Take(ctx, "pending:a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&rows))
	assert.Zero(t, rows)
}

func TestSQLiteStore_ExpiryAndSweep(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "pending:a", []byte("short"), 5*time.Minute))
	require.NoError(t, store.Put(ctx, "token:a", []byte("long"), time.Hour))

	now = now.Add(10 * time.Minute)

	_, err := store.Get(ctx, "pending:a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	value, err := store.Get(ctx, "token:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("long"), value)

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "token:x", []byte("kept"), time.Hour))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	value, err := second.Get(context.Background(), "token:x")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), value)
}
