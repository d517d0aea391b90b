/*
Package cache provides TTL caching for the slow-changing incentive tables.

PURPOSE:
  The schedule, the visibility rules, contract flags and name history change
  rarely but are read on every report. Source wraps a payout.Source and
  serves those reads from a Store; activity and payroll always go to the
  backing store.

BACKENDS:
  Memory: process-local map, used by default and in tests
  Redis:  shared between instances (go-redis)

ENCODING:
  Values are stored as JSON (goccy/go-json) in both backends so switching
  backend never changes what is cached.

FAILURE POLICY:
  A cache that errors is skipped, never fatal: reads fall through to the
  backing store and the error is logged at warn level.

SEE ALSO:
  - source.go: payout.Source decorator
  - warmer.go: cron-driven refresh
*/
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Store is a TTL key/value store for JSON-encodable values.
type Store interface {
	// Get decodes the value under key into dst. found is false on a miss.
	Get(ctx context.Context, key string, dst any) (found bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type item struct {
	data    []byte
	expires time.Time // zero: never
}

// Memory is an in-process Store. Expired entries are dropped on read and
// by Sweep.
type Memory struct {
	mu    sync.Mutex
	items map[string]item

	// Now is the clock; tests replace it.
	Now func() time.Time
}

var (
	_ Store   = (*Memory)(nil)
	_ Sweeper = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]item),
		Now:   time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	it, ok := m.items[key]
	if ok && !it.expires.IsZero() && !m.Now().Before(it.expires) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(it.data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	var expires time.Time
	if ttl > 0 {
		expires = m.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{data: data, expires: expires}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Sweep drops every expired entry and returns how many went.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	n := 0
	for k, it := range m.items {
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
