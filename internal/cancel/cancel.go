// Package cancel holds the cancel flags polled by the orchestrator between jobs.
package cancel

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long an unobserved flag is kept.
const DefaultTTL = 24 * time.Hour

// Registry stores cancel flags keyed by job or batch ID.
type Registry interface {
	Cancel(ctx context.Context, id string) error
	IsCancelled(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context, id string) error
}

// Memory is an in-process Registry.
type Memory struct {
	mu    sync.Mutex
	flags map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

// NewMemory creates an in-process registry. A zero ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{flags: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Cancel sets the flag for id.
func (m *Memory) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, at := range m.flags {
		if now.Sub(at) > m.ttl {
			delete(m.flags, k)
		}
	}
	m.flags[id] = now
	return nil
}

// IsCancelled reports whether the flag for id is set.
func (m *Memory) IsCancelled(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.flags[id]
	if !ok {
		return false, nil
	}
	if m.now().Sub(at) > m.ttl {
		delete(m.flags, id)
		return false, nil
	}
	return true, nil
}

// Clear removes the flag for id.
func (m *Memory) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, id)
	return nil
}
