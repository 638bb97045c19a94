package storage

import (
	"context"
	"sync"
	"time"

	"eduauthd/core"
)

type mockEntry struct {
	value     []byte
	expiresAt time.Time
}

// MockStore is a map-backed SessionStore for tests. Setting Err makes every
// call fail with it.
type MockStore struct {
	mu      sync.Mutex
	entries map[string]mockEntry

	Err error

	// Track method calls for verification
	PutCalls    int
	GetCalls    int
	TakeCalls   int
	DeleteCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string]mockEntry),
	}
}

func (m *MockStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++

	if m.Err != nil {
		return m.Err
	}

	m.entries[key] = mockEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++

	if m.Err != nil {
		return nil, m.Err
	}

	entry, ok := m.entries[key]
	if !ok || !time.Now().Before(entry.expiresAt) {
		return nil, core.ErrNotFound
	}
	return entry.value, nil
}

func (m *MockStore) Take(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TakeCalls++

	if m.Err != nil {
		return nil, m.Err
	}

	entry, ok := m.entries[key]
	delete(m.entries, key)
	if !ok || !time.Now().Before(entry.expiresAt) {
		return nil, core.ErrNotFound
	}
	return entry.value, nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++

	if m.Err != nil {
		return m.Err
	}

	delete(m.entries, key)
	return nil
}

// DeleteExpired removes expired entries and returns the amount of such
func (m *MockStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

// Len reports stored entries, expired ones included
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Expire moves every entry past its expiry
func (m *MockStore) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		entry.expiresAt = time.Now().Add(-time.Second)
		m.entries[key] = entry
	}
}

func (m *MockStore) Close() error {
	return nil
}
