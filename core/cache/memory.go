package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/frame"
)

// Memory is a process-local map backend.
//
// TTL is accepted for interface compatibility but never enforced: entries live
// until Clear or process exit, whatever ttl Set is called with.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]dataframe.DataFrame
	ttl     time.Duration
}

// NewMemory returns an empty in-memory backend. ttl is recorded only.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{entries: map[string]dataframe.DataFrame{}, ttl: ttl}
}

func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, key string) (dataframe.DataFrame, error) {
	m.mu.RLock()
	df, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return frame.Empty(), ErrNotFound
	}
	return frame.Clone(df), nil
}

// Set stores a copy of df. ttl is ignored.
func (m *Memory) Set(_ context.Context, key string, df dataframe.DataFrame, _ time.Duration) error {
	cp := frame.Clone(df)
	m.mu.Lock()
	m.entries[key] = cp
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = map[string]dataframe.DataFrame{}
	m.mu.Unlock()
}

// TTL returns the nominal ttl the backend was built with.
func (m *Memory) TTL() time.Duration { return m.ttl }

func (m *Memory) Close() error { return nil }
