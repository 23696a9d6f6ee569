// Package runner drives the schedule engine from a cron tick and runs due
// batches one after another.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// DefaultSpec fires every minute.
const DefaultSpec = "* * * * *"

// Engine is the schedule state the runner needs.
type Engine interface {
	Due(ctx context.Context, now time.Time) ([]types.Schedule, error)
	Get(ctx context.Context, id int64) (*types.Schedule, error)
	MarkFired(ctx context.Context, id int64, now time.Time) error
	Location() *time.Location
}

// BatchRunner executes a batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, req orchestrator.BatchRequest, emitter progress.Emitter) (*types.BatchResult, error)
}

// Runner evaluates due schedules on each tick.
type Runner struct {
	engine   Engine
	batches  BatchRunner
	notifier notify.Notifier
	emitter  progress.Emitter
	spec     string
	now      func() time.Time
	logger   zerolog.Logger
	mu       sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets where tick panics are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithEmitter receives progress for every scheduled batch.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Runner) { r.emitter = e }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the runner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a runner ticking on spec, a standard five-field cron expression.
func New(engine Engine, batches BatchRunner, spec string, opts ...Option) (*Runner, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, &types.ValidationError{Field: "tick_spec", Message: err.Error()}
	}

	r := &Runner{
		engine:   engine,
		batches:  batches,
		notifier: notify.Nop{},
		emitter:  progress.Discard,
		spec:     spec,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "runner").Logger()
	return r, nil
}

// OnTimerTick runs every schedule due at now, earliest next_run first, and
// marks each one fired whatever the batch outcome. Only a failure to read
// due schedules is returned; batch failures and panics are logged.
func (r *Runner) OnTimerTick(ctx context.Context, now time.Time) ([]*types.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due, err := r.engine.Due(ctx, now)
	if err != nil {
		observability.RecordTickError()
		return nil, fmt.Errorf("failed to load due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}
	r.logger.Info().Int("due", len(due)).Time("tick", now).Msg("tick")

	results := make([]*types.BatchResult, 0, len(due))
	for i := range due {
		if ctx.Err() != nil {
			r.logger.Warn().Int("remaining", len(due)-i).Msg("tick interrupted, remaining schedules stay due")
			break
		}

		s, ok := r.stillDue(ctx, due[i], now)
		if !ok {
			continue
		}
		result, err := r.runSchedule(ctx, s)
		switch {
		case err != nil:
			observability.RecordTickError()
			r.logger.Error().Err(err).Str("schedule", s.Name).Msg("schedule batch failed")
		case result != nil:
			results = append(results, result)
		}

		if err := r.engine.MarkFired(context.WithoutCancel(ctx), s.ID, now); err != nil {
			observability.RecordTickError()
			r.logger.Error().Err(err).Str("schedule", s.Name).Msg("failed to mark schedule fired")
		}
	}
	return results, nil
}

// stillDue re-reads a schedule loaded at the start of the tick. A schedule
// paused, deleted or moved by an earlier batch or an operator is skipped.
func (r *Runner) stillDue(ctx context.Context, loaded types.Schedule, now time.Time) (*types.Schedule, bool) {
	s, err := r.engine.Get(ctx, loaded.ID)
	if err != nil {
		r.logger.Info().Err(err).Str("schedule", loaded.Name).Msg("schedule gone, skipped")
		return nil, false
	}
	if !s.Active() || s.NextRun == nil || s.NextRun.After(now) {
		r.logger.Info().Str("schedule", s.Name).Str("status", string(s.Status)).Msg("schedule no longer due, skipped")
		return nil, false
	}
	return s, true
}

// runSchedule runs one batch, converting a panic into an error.
func (r *Runner) runSchedule(ctx context.Context, s *types.Schedule) (result *types.BatchResult, err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		err = fmt.Errorf("panic while running schedule %q: %v", s.Name, p)
		r.logger.Error().
			Bool("critical", true).
			Str("schedule", s.Name).
			Str("stack", string(debug.Stack())).
			Msg("recovered panic in tick handler")
		event := notify.Event{
			Kind:     notify.KindTickPanic,
			Severity: notify.SeverityCritical,
			Message:  err.Error(),
			Fields:   map[string]any{"schedule_id": s.ID, "schedule": s.Name},
			At:       r.now(),
		}
		if nerr := r.notifier.Notify(context.WithoutCancel(ctx), event); nerr != nil {
			r.logger.Warn().Err(nerr).Msg("failed to deliver panic alert")
		}
	}()

	req := orchestrator.BatchForSchedule(s)
	req.BatchID = uuid.New()
	r.logger.Info().
		Str("schedule", s.Name).
		Str("batch_id", req.BatchID.String()).
		Int("batch_size", s.BatchSize).
		Msg("firing schedule")
	return r.batches.RunBatch(ctx, req, r.emitter)
}

// Start ticks until ctx is done, then waits for a running tick to finish.
// Overlapping ticks are skipped.
func (r *Runner) Start(ctx context.Context) error {
	clog := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLocation(r.engine.Location()),
		cron.WithLogger(clog),
		cron.WithChain(cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(r.spec, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("failed to register tick: %w", err)
	}

	c.Start()
	r.logger.Info().Str("spec", r.spec).Str("timezone", r.engine.Location().String()).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info().Msg("scheduler stopped")
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.OnTimerTick(ctx, r.now()); err != nil {
		r.logger.Error().Err(err).Msg("tick failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
