// Package notify delivers operator alerts such as budget warnings and
// persistence failures.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Kind identifies the alert type.
type Kind string

// Alert kinds
const (
	KindBudgetWarning    Kind = "budget_warning"
	KindBudgetExceeded   Kind = "budget_exceeded"
	KindSchedulesPaused  Kind = "schedules_paused"
	KindPersistenceError Kind = "persistence_error"
	KindTickPanic        Kind = "tick_panic"
)

// Severity of an alert.
type Severity string

// Severity values
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single alert.
type Event struct {
	Kind     Kind           `json:"kind"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
	At       time.Time      `json:"at"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier logging through logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs the event at a level matching its severity.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	var ev *zerolog.Event
	switch event.Severity {
	case SeverityCritical:
		ev = n.logger.Error().Bool("critical", true)
	case SeverityWarning:
		ev = n.logger.Warn()
	default:
		ev = n.logger.Info()
	}
	ev.Str("kind", string(event.Kind)).Fields(event.Fields).Msg(event.Message)
	return nil
}

// WebhookNotifier POSTs each alert as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. A nil client uses a 10s timeout client.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

// Notify sends the event. Non-2xx responses are errors.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers to all notifiers even if some fail.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) error { return nil }
