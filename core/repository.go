package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// SessionStore is a key/value store with per-key expiry. Get returns
// ErrNotFound for keys that are absent or expired.
type SessionStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error

	// Take returns the value and removes the key in one step. Of several
	// concurrent callers at most one gets the value; the rest get ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)

	// DeleteExpired removes expired entries for stores that do not evict on
	// their own and reports how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)

	Close() error
}
