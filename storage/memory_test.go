package storage

import (
	"context"
	"testing"
	"time"

	"eduauthd/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	runStoreContract(t, store)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "pending:x", []byte("v"), 50*time.Millisecond))

	_, err := store.Get(ctx, "pending:x")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, "pending:x")
		return err == core.ErrNotFound
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMemoryStore_CopiesValue(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value, time.Hour))
	value[0] = 'x'

	stored, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), stored)
}
