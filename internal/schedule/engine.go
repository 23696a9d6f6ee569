// Package schedule maps wall-clock time to the named schedules that should fire.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// ErrNotFound is returned when a schedule ID or name does not exist.
var ErrNotFound = errors.New("schedule not found")

// Store is the persistence the engine needs.
type Store interface {
	CreateSchedule(ctx context.Context, s *types.Schedule) (int64, error)
	UpdateSchedule(ctx context.Context, s *types.Schedule) error
	GetSchedule(ctx context.Context, id int64) (*types.Schedule, error)
	GetScheduleByName(ctx context.Context, name string) (*types.Schedule, error)
	ListSchedules(ctx context.Context) ([]types.Schedule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]types.Schedule, error)
	UpdateScheduleRun(ctx context.Context, id int64, lastRun, nextRun *time.Time) error
	SetScheduleStatus(ctx context.Context, id int64, status types.ScheduleStatus, nextRun *time.Time) error
	DeleteSchedule(ctx context.Context, id int64) (bool, error)
}

// Engine owns next-run computation. It holds no schedule state between calls.
type Engine struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine computing custom times in loc.
func NewEngine(store Store, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		store:  store,
		loc:    loc,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "schedule").Logger()
	return e
}

// Location returns the operator time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// NextRun computes the next firing of s after now.
// Standard frequencies fire at now+interval. Custom schedules fire at the next
// occurrence of CustomTime in the engine location, strictly after now.
func (e *Engine) NextRun(s *types.Schedule, now time.Time) (time.Time, error) {
	if interval, ok := s.Frequency.Interval(); ok {
		return now.Add(interval), nil
	}
	if s.Frequency != types.FrequencyCustom {
		return time.Time{}, &types.ValidationError{Field: "frequency", Message: fmt.Sprintf("unrecognized frequency %q", s.Frequency)}
	}

	target, err := e.targetOn(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if !target.After(now) {
		local := now.In(e.loc)
		target, err = e.targetOn(s, time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, e.loc))
		if err != nil {
			return time.Time{}, err
		}
	}
	return target, nil
}

// targetOn returns the custom wall-clock time on the local calendar day of t.
func (e *Engine) targetOn(s *types.Schedule, t time.Time) (time.Time, error) {
	hour, minute, err := types.ParseClock(s.CustomTime)
	if err != nil {
		return time.Time{}, &types.ValidationError{Field: "custom_time", Message: err.Error()}
	}
	local := t.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, e.loc), nil
}

// Upsert validates def and creates or replaces the schedule with the same name.
// next_run is recomputed from now; paused schedules keep no next_run.
// An empty Status keeps the stored status of an existing schedule.
func (e *Engine) Upsert(ctx context.Context, def *types.Schedule) (int64, error) {
	keepStatus := def.Status == ""
	if err := def.Validate(); err != nil {
		return 0, err
	}

	existing, err := e.store.GetScheduleByName(ctx, def.Name)
	if err != nil {
		return 0, err
	}
	if existing != nil && keepStatus {
		def.Status = existing.Status
	}

	now := e.now()
	def.NextRun = nil
	if def.Active() {
		next, err := e.NextRun(def, now)
		if err != nil {
			return 0, err
		}
		def.NextRun = &next
	}

	if existing == nil {
		def.LastRun = nil
		id, err := e.store.CreateSchedule(ctx, def)
		if err != nil {
			return 0, err
		}
		e.logger.Info().Int64("schedule_id", id).Str("name", def.Name).Time("next_run", timeOrZero(def.NextRun)).Msg("schedule created")
		return id, nil
	}

	def.ID = existing.ID
	def.LastRun = existing.LastRun
	if err := e.store.UpdateSchedule(ctx, def); err != nil {
		return 0, err
	}
	e.logger.Info().Int64("schedule_id", def.ID).Str("name", def.Name).Time("next_run", timeOrZero(def.NextRun)).Msg("schedule updated")
	return def.ID, nil
}

// Due returns the active schedules due at now, earliest next_run first.
//
// A custom schedule whose next_run is today's target fires even if it already
// ran earlier today under a previous custom_time. One whose next_run is stale
// (missed while the process was down) fires only if today's target time has
// passed and it has not run today. Otherwise it is realigned to its next
// occurrence and skipped.
func (e *Engine) Due(ctx context.Context, now time.Time) ([]types.Schedule, error) {
	candidates, err := e.store.DueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}

	due := make([]types.Schedule, 0, len(candidates))
	for i := range candidates {
		s := &candidates[i]
		if s.Frequency != types.FrequencyCustom {
			due = append(due, *s)
			continue
		}

		fire, err := e.customShouldFire(s, now)
		if err != nil {
			e.logger.Error().Err(err).Int64("schedule_id", s.ID).Msg("invalid custom schedule skipped")
			continue
		}
		if fire {
			due = append(due, *s)
			continue
		}

		next, err := e.NextRun(s, now)
		if err != nil {
			return nil, err
		}
		if err := e.store.UpdateScheduleRun(ctx, s.ID, s.LastRun, &next); err != nil {
			return nil, fmt.Errorf("failed to realign schedule %d: %w", s.ID, err)
		}
		e.logger.Info().Int64("schedule_id", s.ID).Str("name", s.Name).Time("next_run", next).Msg("missed custom run realigned")
	}
	return due, nil
}

func (e *Engine) customShouldFire(s *types.Schedule, now time.Time) (bool, error) {
	target, err := e.targetOn(s, now)
	if err != nil {
		return false, err
	}
	if target.After(now) {
		return false, nil
	}
	if s.LastRun == nil {
		return true, nil
	}
	// next_run set for today's target and not yet consumed is on time
	if s.NextRun != nil && !s.NextRun.Before(target) && s.LastRun.Before(*s.NextRun) {
		return true, nil
	}
	return !sameDay(s.LastRun.In(e.loc), now.In(e.loc)), nil
}

// MarkFired records a firing at now and recomputes next_run, whatever the
// outcome of the batch. A schedule paused during the batch stays paused.
func (e *Engine) MarkFired(ctx context.Context, id int64, now time.Time) error {
	s, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	var next *time.Time
	if s.Active() {
		n, err := e.NextRun(s, now)
		if err != nil {
			return err
		}
		next = &n
	}
	last := now
	return e.store.UpdateScheduleRun(ctx, id, &last, next)
}

// Pause deactivates a schedule and clears next_run.
func (e *Engine) Pause(ctx context.Context, id int64) error {
	if _, err := e.mustGet(ctx, id); err != nil {
		return err
	}
	if err := e.store.SetScheduleStatus(ctx, id, types.SchedulePaused, nil); err != nil {
		return err
	}
	e.logger.Info().Int64("schedule_id", id).Msg("schedule paused")
	return nil
}

// Resume activates a schedule with next_run computed from now.
func (e *Engine) Resume(ctx context.Context, id int64) error {
	s, err := e.mustGet(ctx, id)
	if err != nil {
		return err
	}
	next, err := e.NextRun(s, e.now())
	if err != nil {
		return err
	}
	if err := e.store.SetScheduleStatus(ctx, id, types.ScheduleActive, &next); err != nil {
		return err
	}
	e.logger.Info().Int64("schedule_id", id).Time("next_run", next).Msg("schedule resumed")
	return nil
}

// Delete removes a schedule and all of its future firings.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	deleted, err := e.store.DeleteSchedule(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	e.logger.Info().Int64("schedule_id", id).Msg("schedule deleted")
	return nil
}

// Get returns a schedule by ID.
func (e *Engine) Get(ctx context.Context, id int64) (*types.Schedule, error) {
	return e.mustGet(ctx, id)
}

// GetByName returns a schedule by name.
func (e *Engine) GetByName(ctx context.Context, name string) (*types.Schedule, error) {
	s, err := e.store.GetScheduleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s, nil
}

// List returns every schedule.
func (e *Engine) List(ctx context.Context) ([]types.Schedule, error) {
	return e.store.ListSchedules(ctx)
}

func (e *Engine) mustGet(ctx context.Context, id int64) (*types.Schedule, error) {
	s, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
