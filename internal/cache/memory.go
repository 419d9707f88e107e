package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultCleanupInterval = 5 * time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Cache used when no Redis address is configured.
// Expired entries are reaped by a background goroutine until Close.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool
	done    chan struct{}
}

// NewMemory creates an in-memory cache and starts its cleanup loop.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Set stores value as JSON under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = entry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get loads the JSON value stored under key into value.
func (m *Memory) Get(_ context.Context, key string, value any) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok || time.Now().After(e.expiresAt) {
		return ErrNotFound
	}
	if err := json.Unmarshal(e.data, value); err != nil {
		return fmt.Errorf("unmarshaling cache value for %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

// Close stops the cleanup loop and drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.entries = nil
	return nil
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
