// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process RevocationStore. Each entry carries its own
// expiry, checked on access; Sweep drops the ones nobody asked about.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	nowFunc func() time.Time
}

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.nowFunc = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.nowFunc().Add(ttl)
	// never shorten an existing entry
	if current, ok := m.entries[tokenID]; ok && current.After(expiresAt) {
		return nil
	}
	m.entries[tokenID] = expiresAt
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !m.nowFunc().Before(expiresAt) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Available is always true; there is nothing to connect to.
func (m *MemoryStore) Available() bool {
	return true
}

func (m *MemoryStore) State() State {
	return Ready
}

// Sweep removes expired entries and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	removed := 0
	for id, expiresAt := range m.entries {
		if !now.Before(expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Run sweeps every interval until ctx is cancelled.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
