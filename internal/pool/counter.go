package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CounterStore owns the live usage counters. Every mutation is atomic with
// respect to concurrent callers.
type CounterStore interface {
	// Reserve increments the resource's usage for the window starting at
	// window if it is below limit. It reports the resulting usage and
	// whether a slot was taken.
	Reserve(ctx context.Context, resourceID string, window time.Time, limit int, ttl time.Duration) (int, bool, error)

	// Refund gives back one reserved slot. Usage never drops below zero.
	Refund(ctx context.Context, resourceID string, window time.Time) error

	// Usage returns the resource's usage for the window.
	Usage(ctx context.Context, resourceID string, window time.Time) (int, error)

	// RecordFailure extends the resource's consecutive failure streak and
	// returns its new length.
	RecordFailure(ctx context.Context, resourceID string) (int, error)

	// ResetFailures ends the failure streak.
	ResetFailures(ctx context.Context, resourceID string) error
}

func usageKey(resourceID string, window time.Time) string {
	return fmt.Sprintf("pool:usage:%s:%d", resourceID, window.Unix())
}

func failureKey(resourceID string) string {
	return "pool:failures:" + resourceID
}

// MemoryCounterStore is a process-local CounterStore guarded by one mutex.
type MemoryCounterStore struct {
	mu       sync.Mutex
	usage    map[string]int
	expires  map[string]time.Time
	failures map[string]int
	now      func() time.Time
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		usage:    make(map[string]int),
		expires:  make(map[string]time.Time),
		failures: make(map[string]int),
		now:      time.Now,
	}
}

func (m *MemoryCounterStore) Reserve(_ context.Context, resourceID string, window time.Time, limit int, ttl time.Duration) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()

	key := usageKey(resourceID, window)
	cur := m.usage[key]
	if cur >= limit {
		return cur, false, nil
	}
	cur++
	m.usage[key] = cur
	if _, ok := m.expires[key]; !ok {
		m.expires[key] = m.now().Add(ttl)
	}
	return cur, true, nil
}

func (m *MemoryCounterStore) Refund(_ context.Context, resourceID string, window time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := usageKey(resourceID, window)
	if m.usage[key] > 0 {
		m.usage[key]--
	}
	return nil
}

func (m *MemoryCounterStore) Usage(_ context.Context, resourceID string, window time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[usageKey(resourceID, window)], nil
}

func (m *MemoryCounterStore) RecordFailure(_ context.Context, resourceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[resourceID]++
	return m.failures[resourceID], nil
}

func (m *MemoryCounterStore) ResetFailures(_ context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, resourceID)
	return nil
}

// prune drops counters of windows that have expired. Caller holds mu.
func (m *MemoryCounterStore) prune() {
	now := m.now()
	for key, exp := range m.expires {
		if now.After(exp) {
			delete(m.usage, key)
			delete(m.expires, key)
		}
	}
}
