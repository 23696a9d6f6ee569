package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/progress"
)

const writeTimeout = 2 * time.Second

// ProgressSnapshots stores the latest progress event per job so that other
// processes can poll it. It is a progress.Emitter.
type ProgressSnapshots struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

var _ progress.Emitter = (*ProgressSnapshots)(nil)

// NewProgressSnapshots creates the store. Snapshots expire after ttl.
func NewProgressSnapshots(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *ProgressSnapshots {
	if ttl <= 0 {
		ttl = progress.DefaultRetention
	}
	return &ProgressSnapshots{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "rediskv").Logger(),
	}
}

// Emit overwrites the snapshot for e.JobID. Failures are logged, not returned.
func (p *ProgressSnapshots) Emit(e progress.Event) {
	if e.JobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.Put(ctx, e); err != nil {
		p.logger.Warn().Err(err).Str("job_id", e.JobID).Msg("failed to store progress snapshot")
	}
}

// Put overwrites the snapshot for e.JobID.
func (p *ProgressSnapshots) Put(ctx context.Context, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return p.client.Set(ctx, key(p.prefix, "progress", e.JobID), data, p.ttl).Err()
}

// Get returns the latest snapshot for jobID.
func (p *ProgressSnapshots) Get(ctx context.Context, jobID string) (progress.Event, bool, error) {
	data, err := p.client.Get(ctx, key(p.prefix, "progress", jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return progress.Event{}, false, nil
		}
		return progress.Event{}, false, fmt.Errorf("failed to read progress: %w", err)
	}

	var e progress.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return progress.Event{}, false, fmt.Errorf("failed to decode progress: %w", err)
	}
	return e, true, nil
}
