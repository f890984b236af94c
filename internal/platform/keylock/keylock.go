// Package keylock provides in-process exclusive locks keyed by string, acquired
// in ascending key order so that overlapping lock sets never deadlock.
package keylock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrOutOfOrder is returned when a guard is extended with a key that sorts
// before a key it already holds.
var ErrOutOfOrder = errors.New("keylock: key acquired out of order")

// Manager hands out per-key locks.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{slots: make(map[string]*slot)}
}

// Guard tracks the keys held by one caller.
type Guard struct {
	m    *Manager
	held []string
	set  map[string]struct{}
}

// Acquire locks every key in ascending order and returns the guard holding them.
func (m *Manager) Acquire(ctx context.Context, keys ...string) (*Guard, error) {
	g := &Guard{m: m, set: make(map[string]struct{})}
	if err := g.Extend(ctx, keys...); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

// Extend locks additional keys. Keys already held are skipped; new keys must
// sort after every held key.
func (g *Guard) Extend(ctx context.Context, keys ...string) error {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := g.set[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pending = append(pending, key)
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Strings(pending)
	if n := len(g.held); n > 0 && pending[0] < g.held[n-1] {
		return ErrOutOfOrder
	}
	for _, key := range pending {
		if err := g.m.lock(ctx, key); err != nil {
			return err
		}
		g.held = append(g.held, key)
		g.set[key] = struct{}{}
	}
	return nil
}

// Holds reports whether key is held by the guard.
func (g *Guard) Holds(key string) bool {
	if g == nil {
		return false
	}
	_, ok := g.set[key]
	return ok
}

// Release unlocks every held key in reverse order. Safe to call more than once.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	for i := len(g.held) - 1; i >= 0; i-- {
		g.m.unlock(g.held[i])
	}
	g.held = nil
	g.set = make(map[string]struct{})
}

func (m *Manager) lock(ctx context.Context, key string) error {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		m.drop(key, s)
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *Manager) unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return
	}
	<-s.sem
	m.drop(key, s)
}

func (m *Manager) drop(key string, s *slot) {
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}
