package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSEWriter writes a Server-Sent Events stream. Events carry increasing ids
// so a client can tell which progress it has already seen.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int
}

// NewSSEWriter prepares w for streaming. It fails when w cannot flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher, nextID: 1}, nil
}

// WriteEvent sends one named event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.nextID, event, payload); err != nil {
		return err
	}
	s.nextID++
	s.flusher.Flush()
	return nil
}

// WriteRetry tells the client how long to wait before reconnecting.
func (s *SSEWriter) WriteRetry(d time.Duration) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
