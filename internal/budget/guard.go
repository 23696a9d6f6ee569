// Package budget authorizes generation jobs against daily and monthly spend limits.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// Period is a budget window.
type Period string

// Period values
const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

// Store is the ledger persistence the guard needs.
type Store interface {
	InsertCostEntry(ctx context.Context, entry *types.CostLedgerEntry) (bool, error)
	SumCost(ctx context.Context, from, to time.Time) (float64, error)
	SumCostByService(ctx context.Context, from, to time.Time) (map[types.Service]float64, error)
	MarkNotified(ctx context.Context, kind string, day time.Time) (bool, error)
	PauseAllSchedules(ctx context.Context) (int, error)
}

// Config holds the limits. Zero budgets are unlimited.
type Config struct {
	DailyBudget      float64
	MonthlyBudget    float64
	WarningThreshold float64 // percent of budget
	PauseOnExceed    bool
	Currency         string
}

// Spend is one cost to record against a job.
type Spend struct {
	JobID   uuid.UUID
	Service types.Service
	Model   string
	Units   int
	Cost    float64
}

// Usage summarizes spend for dashboards.
type Usage = types.BudgetUsage

// Guard is the single source of truth for whether more spend is allowed.
// Authorize and RecordSpend are serialized so checks run against one running total.
type Guard struct {
	mu       sync.Mutex
	store    Store
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	notifier notify.Notifier
	logger   zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithNotifier sets where threshold alerts go.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithLogger sets the guard logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a guard. Days and months are evaluated in loc.
func NewGuard(store Store, cfg Config, loc *time.Location, opts ...Option) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	g := &Guard{
		store:    store,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		notifier: notify.Nop{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "budget").Logger()
	return g
}

// Config returns the configured limits.
func (g *Guard) Config() Config {
	return g.cfg
}

// Authorize reports whether estimated can be spent without exceeding the
// daily or the monthly budget. Refusal raises the exceeded side effects.
func (g *Guard) Authorize(ctx context.Context, estimated float64) (bool, error) {
	if g.cfg.DailyBudget <= 0 && g.cfg.MonthlyBudget <= 0 {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().In(g.loc)
	for _, period := range []Period{Daily, Monthly} {
		limit := g.limit(period)
		if limit <= 0 {
			continue
		}
		spent, err := g.spent(ctx, period, now)
		if err != nil {
			return false, err
		}
		if spent+estimated > limit {
			g.logger.Warn().
				Str("period", string(period)).
				Float64("spent", spent).
				Float64("estimated", estimated).
				Float64("budget", limit).
				Msg("budget would be exceeded")
			g.exceeded(ctx, period, now, spent)
			return false, nil
		}
	}
	return true, nil
}

// RecordSpend appends a ledger entry with the cost rounded to the ledger's
// four decimal places. A second call for the same job and service is ignored
// and returns false.
func (g *Guard) RecordSpend(ctx context.Context, s Spend) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s.Cost = round4(s.Cost)

	now := g.now().In(g.loc)
	inserted, err := g.store.InsertCostEntry(ctx, &types.CostLedgerEntry{
		JobID:   s.JobID,
		Day:     now,
		Service: s.Service,
		Model:   s.Model,
		Units:   s.Units,
		Cost:    s.Cost,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		g.logger.Debug().Str("job_id", s.JobID.String()).Str("service", string(s.Service)).Msg("duplicate spend ignored")
		return false, nil
	}
	observability.RecordSpend(string(s.Service), s.Cost)

	g.checkThresholds(ctx, now)
	return true, nil
}

// UsagePercentage returns spend in the period as a percentage of its budget.
// An unlimited period reports 0.
func (g *Guard) UsagePercentage(ctx context.Context, period Period) (float64, error) {
	limit := g.limit(period)
	if limit <= 0 {
		return 0, nil
	}
	spent, err := g.spent(ctx, period, g.now().In(g.loc))
	if err != nil {
		return 0, err
	}
	return spent / limit * 100, nil
}

// Usage returns spend for today and the current month.
func (g *Guard) Usage(ctx context.Context) (*Usage, error) {
	now := g.now().In(g.loc)
	daily, err := g.spent(ctx, Daily, now)
	if err != nil {
		return nil, err
	}
	monthly, err := g.spent(ctx, Monthly, now)
	if err != nil {
		return nil, err
	}
	from, to := g.window(Daily, now)
	byService, err := g.store.SumCostByService(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return &Usage{
		Currency:       g.cfg.Currency,
		DailyBudget:    g.cfg.DailyBudget,
		DailySpent:     daily,
		DailyPercent:   percent(daily, g.cfg.DailyBudget),
		MonthlyBudget:  g.cfg.MonthlyBudget,
		MonthlySpent:   monthly,
		MonthlyPercent: percent(monthly, g.cfg.MonthlyBudget),
		TodayByService: byService,
	}, nil
}

func (g *Guard) checkThresholds(ctx context.Context, now time.Time) {
	for _, period := range []Period{Daily, Monthly} {
		limit := g.limit(period)
		if limit <= 0 {
			continue
		}
		spent, err := g.spent(ctx, period, now)
		if err != nil {
			g.logger.Error().Err(err).Msg("failed to evaluate budget thresholds")
			return
		}

		pct := spent / limit * 100
		switch {
		case pct >= 100:
			g.exceeded(ctx, period, now, spent)
		case g.cfg.WarningThreshold > 0 && pct >= g.cfg.WarningThreshold:
			g.notifyOnce(ctx, notify.Event{
				Kind:     notify.KindBudgetWarning,
				Severity: notify.SeverityWarning,
				Message:  fmt.Sprintf("%s budget %.0f%% used (%.2f of %.2f %s)", period, pct, spent, limit, g.cfg.Currency),
				Fields:   map[string]any{"period": string(period), "spent": spent, "budget": limit},
				At:       now,
			}, period)
		}
	}
}

// exceeded sends the exceeded alert once per day and, if configured,
// pauses every schedule.
func (g *Guard) exceeded(ctx context.Context, period Period, now time.Time, spent float64) {
	first := g.notifyOnce(ctx, notify.Event{
		Kind:     notify.KindBudgetExceeded,
		Severity: notify.SeverityCritical,
		Message:  fmt.Sprintf("%s budget exhausted (%.2f of %.2f %s)", period, spent, g.limit(period), g.cfg.Currency),
		Fields:   map[string]any{"period": string(period), "spent": spent, "budget": g.limit(period)},
		At:       now,
	}, period)
	if !first || !g.cfg.PauseOnExceed {
		return
	}

	paused, err := g.store.PauseAllSchedules(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to pause schedules after budget exceeded")
		return
	}
	g.logger.Warn().Int("paused", paused).Msg("all schedules paused: budget exceeded")
	g.send(ctx, notify.Event{
		Kind:     notify.KindSchedulesPaused,
		Severity: notify.SeverityWarning,
		Message:  fmt.Sprintf("%d schedules paused after %s budget was exceeded", paused, period),
		Fields:   map[string]any{"paused": paused, "period": string(period)},
		At:       now,
	})
}

// notifyOnce sends event unless it was already sent today for this period.
func (g *Guard) notifyOnce(ctx context.Context, event notify.Event, period Period) bool {
	first, err := g.store.MarkNotified(ctx, string(event.Kind)+":"+string(period), event.At)
	if err != nil {
		g.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("failed to record notification")
		return false
	}
	if !first {
		return false
	}
	g.send(ctx, event)
	return true
}

func (g *Guard) send(ctx context.Context, event notify.Event) {
	if err := g.notifier.Notify(ctx, event); err != nil {
		g.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("failed to send notification")
	}
}

func (g *Guard) limit(period Period) float64 {
	if period == Monthly {
		return g.cfg.MonthlyBudget
	}
	return g.cfg.DailyBudget
}

func (g *Guard) spent(ctx context.Context, period Period, now time.Time) (float64, error) {
	from, to := g.window(period, now)
	total, err := g.store.SumCost(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s spend: %w", period, err)
	}
	return total, nil
}

// window returns [start, end) of the period containing now, in the guard location.
func (g *Guard) window(period Period, now time.Time) (time.Time, time.Time) {
	local := now.In(g.loc)
	if period == Monthly {
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, g.loc)
		return start, start.AddDate(0, 1, 0)
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

func percent(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spent / limit * 100
}
