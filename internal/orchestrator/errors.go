package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNoKeywordAvailable is returned when the eligible keyword pool is empty.
// The job is skipped and the batch continues.
var ErrNoKeywordAvailable = errors.New("no keyword available")

// ErrBudgetExceeded is recorded when CostGuard refuses a job. It stops the batch.
var ErrBudgetExceeded = errors.New("budget exceeded")

// PersistenceError is a failed durable write. The job is marked failed and an
// operator alert is raised.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
