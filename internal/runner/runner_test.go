package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/budget"
	"github.com/jonathan/seo-autopilot/internal/memstore"
	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/producer"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/schedule"
	"github.com/jonathan/seo-autopilot/internal/types"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type staticContent struct{}

func (staticContent) Generate(_ context.Context, req producer.ContentRequest) (*producer.Content, error) {
	return &producer.Content{
		Title:     "About " + req.Keyword,
		HTML:      "<p>" + req.Keyword + "</p>",
		WordCount: 900,
		Model:     "gemini-2.5-flash",
		Usage:     producer.TokenUsage{InputTokens: 500, OutputTokens: 1200},
	}, nil
}

type fakeBatches struct {
	mu      sync.Mutex
	order   []string
	panicOn string
	err     error
	onRun   func(name string)
}

func (f *fakeBatches) RunBatch(_ context.Context, req orchestrator.BatchRequest, _ progress.Emitter) (*types.BatchResult, error) {
	f.mu.Lock()
	f.order = append(f.order, req.ScheduleName)
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(req.ScheduleName)
	}
	if req.ScheduleName == f.panicOn {
		panic("producer client is nil")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.BatchResult{BatchID: req.BatchID, ScheduleName: req.ScheduleName, Requested: req.Count, Succeeded: req.Count}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func daily(name string, affinity types.Affinity, size int) *types.Schedule {
	return &types.Schedule{Name: name, KeywordType: affinity, Frequency: types.FrequencyDaily, BatchSize: size}
}

func TestOnTimerTick_TwoSchedulesRunInNextRunOrder(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := &clock{t: t0}

	store := memstore.New()
	store.Now = clk.Now
	engine := schedule.NewEngine(store, time.UTC, schedule.WithClock(clk.Now))

	for _, kw := range []types.Keyword{
		{Text: "tea ceremony", Type: types.KeywordGeneral, SearchVolume: 100},
		{Text: "tea tasting tour", Type: types.KeywordPromotional, SearchVolume: 100},
	} {
		_, err := store.UpsertKeyword(ctx, &kw)
		require.NoError(t, err)
	}

	generalID, err := engine.Upsert(ctx, daily("general-daily", types.AffinityGeneral, 3))
	require.NoError(t, err)
	clk.Set(t0.Add(time.Minute))
	promoID, err := engine.Upsert(ctx, daily("promo-daily", types.AffinityPromotional, 2))
	require.NoError(t, err)

	guard := budget.NewGuard(store, budget.Config{}, time.UTC, budget.WithClock(clk.Now))
	orch := orchestrator.New(store, guard, staticContent{}, budget.DefaultPricing(1), orchestrator.Config{},
		orchestrator.WithDelay(orchestrator.FixedDelay(0)),
		orchestrator.WithClock(clk.Now),
	)
	r, err := New(engine, orch, "", WithClock(clk.Now))
	require.NoError(t, err)

	tick := t0.Add(24*time.Hour + 2*time.Minute)
	clk.Set(tick)
	results, err := r.OnTimerTick(ctx, tick)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "general-daily", results[0].ScheduleName)
	assert.Equal(t, "promo-daily", results[1].ScheduleName)

	logs := store.Logs()
	require.Len(t, logs, 5)
	for i, entry := range logs {
		require.NotNil(t, entry.ScheduleID)
		want := generalID
		if i >= 3 {
			want = promoID
		}
		assert.Equal(t, want, *entry.ScheduleID, "entry %d", i)
		assert.Equal(t, types.LogSuccess, entry.Status)
		assert.Equal(t, types.OriginScheduled, entry.Origin)
	}

	for _, id := range []int64{generalID, promoID} {
		s, err := engine.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, s.LastRun)
		require.NotNil(t, s.NextRun)
		assert.Equal(t, tick, *s.LastRun)
		assert.Equal(t, tick.Add(24*time.Hour), *s.NextRun)
	}

	again, err := r.OnTimerTick(ctx, tick)
	require.NoError(t, err)
	assert.Empty(t, again, "a repeated tick fires nothing")
	assert.Len(t, store.Logs(), 5)
}

func TestOnTimerTick_PanicIsContained(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := &clock{t: t0}
	store := memstore.New()
	engine := schedule.NewEngine(store, time.UTC, schedule.WithClock(clk.Now))

	_, err := engine.Upsert(ctx, &types.Schedule{Name: "first", KeywordType: types.AffinityMixed, Frequency: types.FrequencyHourly, BatchSize: 1})
	require.NoError(t, err)
	clk.Set(t0.Add(time.Minute))
	_, err = engine.Upsert(ctx, &types.Schedule{Name: "second", KeywordType: types.AffinityMixed, Frequency: types.FrequencyHourly, BatchSize: 1})
	require.NoError(t, err)

	batches := &fakeBatches{panicOn: "first"}
	notifier := &recordingNotifier{}
	r, err := New(engine, batches, "*/5 * * * *", WithNotifier(notifier), WithClock(clk.Now))
	require.NoError(t, err)

	tick := t0.Add(2 * time.Hour)
	results, err := r.OnTimerTick(ctx, tick)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, batches.order)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].ScheduleName)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, notify.KindTickPanic, notifier.events[0].Kind)
	assert.Equal(t, notify.SeverityCritical, notifier.events[0].Severity)

	schedules, err := engine.List(ctx)
	require.NoError(t, err)
	for _, s := range schedules {
		require.NotNil(t, s.LastRun, "schedule %s is marked fired", s.Name)
		assert.Equal(t, tick.Add(time.Hour), *s.NextRun)
	}
}

func TestOnTimerTick_BatchErrorStillMarksFired(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := &clock{t: t0}
	engine := schedule.NewEngine(memstore.New(), time.UTC, schedule.WithClock(clk.Now))

	id, err := engine.Upsert(ctx, daily("general-daily", types.AffinityGeneral, 2))
	require.NoError(t, err)

	r, err := New(engine, &fakeBatches{err: errors.New("invalid settings")}, "")
	require.NoError(t, err)

	tick := t0.Add(25 * time.Hour)
	results, err := r.OnTimerTick(ctx, tick)
	require.NoError(t, err)
	assert.Empty(t, results)

	s, err := engine.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s.NextRun)
	assert.Equal(t, tick.Add(24*time.Hour), *s.NextRun)
}

func TestOnTimerTick_SkipsSchedulesPausedDuringTick(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := &clock{t: t0}
	store := memstore.New()
	engine := schedule.NewEngine(store, time.UTC, schedule.WithClock(clk.Now))

	_, err := engine.Upsert(ctx, daily("general-daily", types.AffinityGeneral, 2))
	require.NoError(t, err)
	clk.Set(t0.Add(time.Minute))
	promoID, err := engine.Upsert(ctx, daily("promo-daily", types.AffinityPromotional, 2))
	require.NoError(t, err)
	clk.Set(t0.Add(2 * time.Minute))
	deletedID, err := engine.Upsert(ctx, daily("seasonal-daily", types.AffinityGeneral, 1))
	require.NoError(t, err)

	// the first batch exhausts the budget and pauses everything
	batches := &fakeBatches{onRun: func(name string) {
		if name != "general-daily" {
			return
		}
		_, err := store.PauseAllSchedules(ctx)
		require.NoError(t, err)
		require.NoError(t, engine.Delete(ctx, deletedID))
	}}
	r, err := New(engine, batches, "")
	require.NoError(t, err)

	results, err := r.OnTimerTick(ctx, t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"general-daily"}, batches.order)

	promo, err := engine.Get(ctx, promoID)
	require.NoError(t, err)
	assert.Equal(t, types.SchedulePaused, promo.Status)
	assert.Nil(t, promo.LastRun)
}

func TestOnTimerTick_NothingDue(t *testing.T) {
	engine := schedule.NewEngine(memstore.New(), time.UTC)
	batches := &fakeBatches{}
	r, err := New(engine, batches, "")
	require.NoError(t, err)

	results, err := r.OnTimerTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, batches.order)
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	engine := schedule.NewEngine(memstore.New(), time.UTC)

	_, err := New(engine, &fakeBatches{}, "every minute")
	require.Error(t, err)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tick_spec", verr.Field)
}

func TestStart_ReturnsWhenContextDone(t *testing.T) {
	engine := schedule.NewEngine(memstore.New(), time.UTC)
	r, err := New(engine, &fakeBatches{}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
