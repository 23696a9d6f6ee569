package progress

import (
	"sync"
	"time"
)

// DefaultRetention is how long a finished job stays pollable.
const DefaultRetention = 15 * time.Minute

type hubEntry struct {
	ch       *Channel
	openedAt time.Time
}

// Hub maps job IDs to their channels so pollers and cancellers can find
// them. Finished channels are dropped after the retention period.
type Hub struct {
	mu        sync.Mutex
	entries   map[string]*hubEntry
	retention time.Duration
	now       func() time.Time
}

// NewHub creates a hub. A zero retention uses DefaultRetention.
func NewHub(retention time.Duration) *Hub {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Hub{
		entries:   make(map[string]*hubEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Open registers a new channel for jobID, replacing any previous one.
func (h *Hub) Open(jobID string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sweepLocked()
	ch := NewChannel()
	h.entries[jobID] = &hubEntry{ch: ch, openedAt: h.now()}
	return ch
}

// Get returns the channel for jobID.
func (h *Hub) Get(jobID string) (*Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[jobID]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Snapshot returns the latest event for jobID.
func (h *Hub) Snapshot(jobID string) (Event, bool) {
	ch, ok := h.Get(jobID)
	if !ok {
		return Event{}, false
	}
	return ch.Snapshot()
}

// Len returns the number of tracked jobs.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *Hub) sweepLocked() {
	cutoff := h.now().Add(-h.retention)
	for id, e := range h.entries {
		if !e.ch.Done() {
			continue
		}
		last, _ := e.ch.Snapshot()
		finished := last.At
		if finished.IsZero() {
			finished = e.openedAt
		}
		if finished.Before(cutoff) {
			delete(h.entries, id)
		}
	}
}
