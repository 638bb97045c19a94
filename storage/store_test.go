package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"eduauthd/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior every SessionStore shares
func runStoreContract(t *testing.T, store core.SessionStore) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "token:a", []byte("sealed-a"), time.Hour))

		value, err := store.Get(ctx, "token:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed-a"), value)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "token:b", []byte("first"), time.Hour))
		require.NoError(t, store.Put(ctx, "token:b", []byte("second"), time.Hour))

		value, err := store.Get(ctx, "token:b")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), value)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pending:c", []byte("verifier"), time.Hour))
		require.NoError(t, store.Delete(ctx, "pending:c"))

		_, err := store.Get(ctx, "pending:c")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-stored"))
	})

	t.Run("non-positive ttl is never readable", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "token:d", []byte("gone"), 0))

		_, err := store.Get(ctx, "token:d")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("take returns once", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pending:e", []byte("verifier"), time.Hour))

		value, err := store.Take(ctx, "pending:e")
		require.NoError(t, err)
		assert.Equal(t, []byte("verifier"), value)

		_, err = store.Take(ctx, "pending:e")
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = store.Get(ctx, "pending:e")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("take missing key", func(t *testing.T) {
		_, err := store.Take(ctx, "never-stored")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("concurrent take has one winner", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pending:f", []byte("verifier"), time.Hour))

		const callers = 8
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			wins  int
			start = make(chan struct{})
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.Take(ctx, "pending:f")
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, core.ErrNotFound)
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, wins)
	})
}
