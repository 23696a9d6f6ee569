package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/memstore"
	"github.com/jonathan/seo-autopilot/internal/types"
)

var taipei = time.FixedZone("Asia/Taipei", 8*3600)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestEngine(t *testing.T, now time.Time) (*Engine, *memstore.Store, *fakeClock) {
	t.Helper()
	store := memstore.New()
	clock := &fakeClock{t: now}
	return NewEngine(store, taipei, WithClock(clock.Now)), store, clock
}

func dailyDef(name string) *types.Schedule {
	return &types.Schedule{Name: name, KeywordType: types.AffinityGeneral, Frequency: types.FrequencyDaily, BatchSize: 3}
}

func TestNextRun_StandardFrequencies(t *testing.T) {
	e, _, _ := newTestEngine(t, time.Now())
	now := time.Date(2026, 4, 10, 13, 37, 12, 0, taipei)

	tests := []struct {
		freq types.Frequency
		want time.Duration
	}{
		{types.FrequencyEvery30Min, 30 * time.Minute},
		{types.FrequencyHourly, time.Hour},
		{types.FrequencyEvery3h, 3 * time.Hour},
		{types.FrequencyEvery6h, 6 * time.Hour},
		{types.FrequencyTwiceDaily, 12 * time.Hour},
		{types.FrequencyDaily, 24 * time.Hour},
		{types.FrequencyWeekly, 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			next, err := e.NextRun(&types.Schedule{Frequency: tt.freq}, now)
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.want), next)
		})
	}
}

func TestNextRun_Custom(t *testing.T) {
	e, _, _ := newTestEngine(t, time.Now())
	s := &types.Schedule{Frequency: types.FrequencyCustom, CustomTime: "09:30"}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 4, 10, 8, 0, 0, 0, taipei),
			want: time.Date(2026, 4, 10, 9, 30, 0, 0, taipei),
		},
		{
			name: "already passed today",
			now:  time.Date(2026, 4, 10, 10, 0, 0, 0, taipei),
			want: time.Date(2026, 4, 11, 9, 30, 0, 0, taipei),
		},
		{
			name: "exactly now counts as passed",
			now:  time.Date(2026, 4, 10, 9, 30, 0, 0, taipei),
			want: time.Date(2026, 4, 11, 9, 30, 0, 0, taipei),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 4, 30, 23, 0, 0, 0, taipei),
			want: time.Date(2026, 5, 1, 9, 30, 0, 0, taipei),
		},
		{
			name: "now given in UTC uses operator zone",
			now:  time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), // 08:00 in Taipei
			want: time.Date(2026, 4, 10, 9, 30, 0, 0, taipei),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := e.NextRun(s, tt.now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(next), "want %s, got %s", tt.want, next)
		})
	}
}

func TestUpsert_Validation(t *testing.T) {
	e, store, _ := newTestEngine(t, time.Now())
	ctx := context.Background()

	tests := []struct {
		name  string
		def   *types.Schedule
		field string
	}{
		{"unknown frequency", &types.Schedule{Name: "x", KeywordType: types.AffinityGeneral, Frequency: "fortnightly", BatchSize: 1}, "frequency"},
		{"zero batch", &types.Schedule{Name: "x", KeywordType: types.AffinityGeneral, Frequency: types.FrequencyDaily, BatchSize: 0}, "batch_size"},
		{"custom without time", &types.Schedule{Name: "x", KeywordType: types.AffinityGeneral, Frequency: types.FrequencyCustom, BatchSize: 1}, "custom_time"},
		{"custom bad time", &types.Schedule{Name: "x", KeywordType: types.AffinityGeneral, Frequency: types.FrequencyCustom, CustomTime: "25:00", BatchSize: 1}, "custom_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Upsert(ctx, tt.def)
			require.Error(t, err)
			var ve *types.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	all, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "invalid definitions must not be stored")
}

func TestUpsert_CustomPassedSchedulesTomorrow(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := e.Upsert(ctx, &types.Schedule{Name: "morning", KeywordType: types.AffinityMixed,
		Frequency: types.FrequencyCustom, CustomTime: "09:00", BatchSize: 1})
	require.NoError(t, err)

	s, err := e.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s.NextRun)
	assert.True(t, s.NextRun.Equal(time.Date(2026, 4, 11, 9, 0, 0, 0, taipei)))

	due, err := e.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "must not fire immediately")
}

func TestUpsert_UpdateRecomputesAndKeepsStatus(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, clock := newTestEngine(t, now)
	ctx := context.Background()

	id, err := e.Upsert(ctx, dailyDef("general-daily"))
	require.NoError(t, err)
	require.NoError(t, e.Pause(ctx, id))

	clock.t = now.Add(time.Hour)
	def := dailyDef("general-daily")
	def.Frequency = types.FrequencyHourly
	id2, err := e.Upsert(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	s, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.SchedulePaused, s.Status)
	assert.Nil(t, s.NextRun)
	assert.Equal(t, types.FrequencyHourly, s.Frequency)

	def = dailyDef("general-daily")
	def.Status = types.ScheduleActive
	_, err = e.Upsert(ctx, def)
	require.NoError(t, err)
	s, err = e.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s.NextRun)
	assert.True(t, s.NextRun.Equal(clock.t.Add(24*time.Hour)))
}

func TestDue_RoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	for _, def := range []*types.Schedule{
		dailyDef("general-daily"),
		{Name: "custom", KeywordType: types.AffinityGeneral, Frequency: types.FrequencyCustom, CustomTime: "18:00", BatchSize: 1},
	} {
		id, err := e.Upsert(ctx, def)
		require.NoError(t, err)
		s, err := e.Get(ctx, id)
		require.NoError(t, err)

		before, err := e.Due(ctx, s.NextRun.Add(-time.Second))
		require.NoError(t, err)
		assert.NotContains(t, names(before), s.Name)

		at, err := e.Due(ctx, *s.NextRun)
		require.NoError(t, err)
		assert.Contains(t, names(at), s.Name)
	}
}

func TestMarkFired_NoCatchUpDrift(t *testing.T) {
	created := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, created)
	ctx := context.Background()

	def := dailyDef("general-daily")
	def.Frequency = types.FrequencyHourly
	id, err := e.Upsert(ctx, def)
	require.NoError(t, err)

	// fired five and a half hours late
	late := created.Add(6*time.Hour + 30*time.Minute)
	require.NoError(t, e.MarkFired(ctx, id, late))

	s, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.NextRun.Equal(late.Add(time.Hour)))
	assert.True(t, s.LastRun.Equal(late))
}

func TestMarkFired_PausedStaysPaused(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := e.Upsert(ctx, dailyDef("general-daily"))
	require.NoError(t, err)
	require.NoError(t, e.Pause(ctx, id))
	require.NoError(t, e.MarkFired(ctx, id, now))

	s, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.SchedulePaused, s.Status)
	assert.Nil(t, s.NextRun)
	assert.True(t, s.LastRun.Equal(now))
}

func TestPauseResume(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, clock := newTestEngine(t, now)
	ctx := context.Background()

	id, err := e.Upsert(ctx, dailyDef("general-daily"))
	require.NoError(t, err)

	require.NoError(t, e.Pause(ctx, id))
	due, err := e.Due(ctx, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.t = now.Add(5 * time.Hour)
	require.NoError(t, e.Resume(ctx, id))
	s, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ScheduleActive, s.Status)
	assert.True(t, s.NextRun.Equal(clock.t.Add(24*time.Hour)))

	assert.ErrorIs(t, e.Pause(ctx, 999), ErrNotFound)
	assert.ErrorIs(t, e.Resume(ctx, 999), ErrNotFound)
}

func TestDelete(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := e.Upsert(ctx, dailyDef("general-daily"))
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, id))

	due, err := e.Due(ctx, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.ErrorIs(t, e.Delete(ctx, id), ErrNotFound)
}

func TestDue_IndependentAffinities(t *testing.T) {
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, taipei)
	e, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	general := dailyDef("general-hourly")
	general.Frequency = types.FrequencyHourly
	gid, err := e.Upsert(ctx, general)
	require.NoError(t, err)

	promo := dailyDef("promo-6h")
	promo.KeywordType = types.AffinityPromotional
	promo.Frequency = types.FrequencyEvery6h
	pid, err := e.Upsert(ctx, promo)
	require.NoError(t, err)

	tick := now.Add(time.Hour)
	due, err := e.Due(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, []string{"general-hourly"}, names(due))
	require.NoError(t, e.MarkFired(ctx, gid, tick))

	p, err := e.Get(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.NextRun.Equal(now.Add(6*time.Hour)), "firing one schedule must not move another")
}

func TestDue_MissedCustomRun(t *testing.T) {
	ctx := context.Background()
	def := func() *types.Schedule {
		return &types.Schedule{Name: "morning", KeywordType: types.AffinityGeneral,
			Frequency: types.FrequencyCustom, CustomTime: "09:00", BatchSize: 1}
	}

	t.Run("fires after restart when target passed and not run today", func(t *testing.T) {
		created := time.Date(2026, 4, 10, 8, 0, 0, 0, taipei)
		e, _, _ := newTestEngine(t, created)
		_, err := e.Upsert(ctx, def())
		require.NoError(t, err)

		// process down until the next day at 11:00
		restart := time.Date(2026, 4, 11, 11, 0, 0, 0, taipei)
		due, err := e.Due(ctx, restart)
		require.NoError(t, err)
		assert.Equal(t, []string{"morning"}, names(due))
	})

	t.Run("realigns when today's target not reached", func(t *testing.T) {
		created := time.Date(2026, 4, 10, 8, 0, 0, 0, taipei)
		e, _, _ := newTestEngine(t, created)
		id, err := e.Upsert(ctx, def())
		require.NoError(t, err)

		restart := time.Date(2026, 4, 11, 7, 0, 0, 0, taipei)
		due, err := e.Due(ctx, restart)
		require.NoError(t, err)
		assert.Empty(t, due)

		s, err := e.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.NextRun.Equal(time.Date(2026, 4, 11, 9, 0, 0, 0, taipei)))
	})

	t.Run("realigns without firing when already run today", func(t *testing.T) {
		created := time.Date(2026, 4, 10, 8, 0, 0, 0, taipei)
		e, store, _ := newTestEngine(t, created)
		id, err := e.Upsert(ctx, def())
		require.NoError(t, err)

		ranAt := time.Date(2026, 4, 11, 9, 0, 5, 0, taipei)
		stale := time.Date(2026, 4, 11, 9, 0, 0, 0, taipei)
		require.NoError(t, store.UpdateScheduleRun(ctx, id, &ranAt, &stale))

		due, err := e.Due(ctx, time.Date(2026, 4, 11, 9, 5, 0, 0, taipei))
		require.NoError(t, err)
		assert.Empty(t, due)

		s, err := e.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.NextRun.Equal(time.Date(2026, 4, 12, 9, 0, 0, 0, taipei)))
	})

	t.Run("fires at edited time after running earlier today", func(t *testing.T) {
		e, _, clock := newTestEngine(t, time.Date(2026, 4, 10, 7, 0, 0, 0, taipei))
		early := def()
		early.CustomTime = "08:00"
		id, err := e.Upsert(ctx, early)
		require.NoError(t, err)

		fired := time.Date(2026, 4, 10, 8, 0, 0, 0, taipei)
		due, err := e.Due(ctx, fired)
		require.NoError(t, err)
		require.Equal(t, []string{"morning"}, names(due))
		require.NoError(t, e.MarkFired(ctx, id, fired))

		clock.t = time.Date(2026, 4, 10, 8, 30, 0, 0, taipei)
		_, err = e.Upsert(ctx, def())
		require.NoError(t, err)

		s, err := e.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, s.NextRun.Equal(time.Date(2026, 4, 10, 9, 0, 0, 0, taipei)))

		due, err = e.Due(ctx, *s.NextRun)
		require.NoError(t, err)
		assert.Equal(t, []string{"morning"}, names(due))
	})
}

func names(schedules []types.Schedule) []string {
	out := make([]string, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, s.Name)
	}
	return out
}
