package storage

import (
	"context"
	"time"

	"eduauthd/core"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps sessions in process. Entries vanish on restart.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	go cache.Start()

	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	// ttlcache reads non-positive ttls as "default" or "never expire"
	if ttl <= 0 {
		s.cache.Delete(key)
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.cache.Set(key, stored, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, core.ErrNotFound
	}
	return item.Value(), nil
}

func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	item, ok := s.cache.GetAndDelete(key)
	if !ok || item == nil || item.IsExpired() {
		return nil, core.ErrNotFound
	}
	return item.Value(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// DeleteExpired is a no-op count; ttlcache evicts on its own
func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.cache.DeleteExpired()
	return 0, nil
}

func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
