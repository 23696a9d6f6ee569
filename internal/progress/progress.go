// Package progress carries incremental progress of long-running generation to
// whatever transport consumes it: SSE streams, pollers or a CLI.
package progress

import "time"

// Status is the outcome carried by a terminal event.
type Status string

// Status values
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusBudget    Status = "budget_exceeded"
)

// Event is a progress update. Percent is in [0, 100]. Done marks the terminal event.
type Event struct {
	JobID   string    `json:"job_id"`
	Percent int       `json:"percent"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Done    bool      `json:"done"`
	Status  Status    `json:"status,omitempty"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}

// Emitter receives progress events. Emit must not block the producer for long.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Multi forwards each event to every emitter in order.
type Multi []Emitter

// Emit forwards e.
func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// OrDiscard returns e, or Discard when e is nil.
func OrDiscard(e Emitter) Emitter {
	if e == nil {
		return Discard
	}
	return e
}
