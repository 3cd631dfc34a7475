// Package keylock provides mutual exclusion scoped to a key, so work on
// different items or auctions never contends on a shared lock.
package keylock

import (
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	mu   sync.RWMutex
	refs int
}

// Map hands out one RWMutex per key. Entries are created on demand and
// dropped once no goroutine holds or waits on them.
type Map struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

func New() *Map {
	return &Map{entries: make(map[uuid.UUID]*entry)}
}

func (m *Map) acquire(key uuid.UUID) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key uuid.UUID, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock takes the exclusive lock for key and returns its release func.
func (m *Map) Lock(key uuid.UUID) (unlock func()) {
	e := m.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.release(key, e)
	}
}

// RLock takes the shared lock for key and returns its release func.
func (m *Map) RLock(key uuid.UUID) (unlock func()) {
	e := m.acquire(key)
	e.mu.RLock()
	return func() {
		e.mu.RUnlock()
		m.release(key, e)
	}
}

// Len is the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
