package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	err := n.Notify(context.Background(), Event{
		Kind:     KindPersistenceError,
		Severity: SeverityCritical,
		Message:  "job result uncertain",
		Fields:   map[string]any{"job_id": "abc"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, true, line["critical"])
	assert.Equal(t, "persistence_error", line["kind"])
	assert.Equal(t, "abc", line["job_id"])
	assert.Equal(t, "job result uncertain", line["message"])
}

func TestWebhookNotifier(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.Notify(context.Background(), Event{Kind: KindBudgetWarning, Severity: SeverityWarning, Message: "80% used", At: at})
	require.NoError(t, err)

	assert.Equal(t, KindBudgetWarning, received.Kind)
	assert.Equal(t, "80% used", received.Message)
	assert.True(t, at.Equal(received.At))
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, srv.Client()).Notify(context.Background(), Event{Kind: KindTickPanic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	failing := &recorder{err: assert.AnError}
	ok := &recorder{}

	err := Multi{failing, nil, ok}.Notify(context.Background(), Event{Kind: KindSchedulesPaused})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}
