package producer

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when a producer call exceeds its deadline.
var ErrTimeout = errors.New("producer timed out")

// Error is a failed producer call.
type Error struct {
	Producer string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s producer: %s: %v", e.Producer, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s producer: %s", e.Producer, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a producer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// classify wraps err as a producer Error, mapping deadline expiry to ErrTimeout.
func classify(producer, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Producer: producer, Message: message, Cause: ErrTimeout}
	}
	return &Error{Producer: producer, Message: message, Cause: err}
}
