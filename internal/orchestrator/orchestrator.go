// Package orchestrator runs generation jobs: keyword selection, budget
// authorization, producer calls, durable logging and progress reporting.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/budget"
	"github.com/jonathan/seo-autopilot/internal/cancel"
	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/producer"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// DefaultProducerTimeout bounds each producer call when Config leaves it zero.
const DefaultProducerTimeout = 60 * time.Second

// Store is the persistence the orchestrator needs.
type Store interface {
	ListEligibleKeywords(ctx context.Context, kinds []types.KeywordType) ([]types.Keyword, error)
	FindKeyword(ctx context.Context, text string, kind types.KeywordType) (*types.Keyword, error)
	SaveArticle(ctx context.Context, a *types.Article) (int64, error)
	RecordJobOutcome(ctx context.Context, entry *types.GenerationLogEntry, keywordID *int64, usedAt time.Time) (int64, error)
}

// Budget authorizes and records spend.
type Budget interface {
	Authorize(ctx context.Context, estimated float64) (bool, error)
	RecordSpend(ctx context.Context, s budget.Spend) (bool, error)
}

// Config holds orchestration settings.
type Config struct {
	ProducerTimeout time.Duration
	InterJobDelay   time.Duration
	DefaultModel    string
}

// Orchestrator executes batches and on-demand jobs one at a time.
type Orchestrator struct {
	store    Store
	budget   Budget
	content  producer.ContentProducer
	images   producer.ImageProducer
	pricing  budget.Pricing
	cancels  cancel.Registry
	notifier notify.Notifier
	delay    Delay
	resolve  func(string) string
	random   func() float64
	now      func() time.Time
	cfg      Config
	sem      chan struct{}
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithImageProducer enables illustrations.
func WithImageProducer(p producer.ImageProducer) Option {
	return func(o *Orchestrator) { o.images = p }
}

// WithCancelRegistry sets where cancel flags are read from.
func WithCancelRegistry(r cancel.Registry) Option {
	return func(o *Orchestrator) { o.cancels = r }
}

// WithNotifier sets where persistence alerts go.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithDelay overrides the inter-job delay.
func WithDelay(d Delay) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithModelResolver maps tier names to concrete models for pricing.
func WithModelResolver(fn func(string) string) Option {
	return func(o *Orchestrator) { o.resolve = fn }
}

// WithRandom overrides the source used for weighted keyword selection.
func WithRandom(fn func() float64) Option {
	return func(o *Orchestrator) { o.random = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator.
func New(store Store, guard Budget, content producer.ContentProducer, pricing budget.Pricing, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ProducerTimeout <= 0 {
		cfg.ProducerTimeout = DefaultProducerTimeout
	}
	o := &Orchestrator{
		store:    store,
		budget:   guard,
		content:  content,
		pricing:  pricing,
		cancels:  cancel.NewMemory(cancel.DefaultTTL),
		notifier: notify.Nop{},
		delay:    FixedDelay(cfg.InterJobDelay),
		resolve:  func(s string) string { return s },
		random:   rand.Float64,
		now:      time.Now,
		cfg:      cfg,
		sem:      make(chan struct{}, 1),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "orchestrator").Logger()
	return o
}

// BatchRequest describes one batch.
type BatchRequest struct {
	BatchID      uuid.UUID
	ScheduleID   *int64
	ScheduleName string
	Affinity     types.Affinity
	Count        int
	Settings     types.ContentSettings
	Origin       types.Origin
}

// BatchForSchedule builds the request for a schedule firing.
func BatchForSchedule(s *types.Schedule) BatchRequest {
	id := s.ID
	return BatchRequest{
		ScheduleID:   &id,
		ScheduleName: s.Name,
		Affinity:     s.KeywordType,
		Count:        s.BatchSize,
		Settings:     s.Settings,
		Origin:       types.OriginScheduled,
	}
}

func (r *BatchRequest) validate() error {
	if r.Count <= 0 {
		return &types.ValidationError{Field: "count", Message: "must be greater than 0"}
	}
	switch r.Affinity {
	case types.AffinityGeneral, types.AffinityPromotional, types.AffinityMixed:
	case "":
		r.Affinity = types.AffinityMixed
	default:
		return &types.ValidationError{Field: "keyword_type", Message: fmt.Sprintf("unknown keyword type %q", r.Affinity)}
	}
	if r.Origin == "" {
		r.Origin = types.OriginScheduled
	}
	return r.Settings.Validate()
}

// OnDemandRequest describes a single interactive job. When Keyword is empty
// a keyword of KeywordType is drawn from the pool; an empty KeywordType draws
// from both types.
type OnDemandRequest struct {
	JobID       uuid.UUID
	Keyword     string
	KeywordType types.KeywordType
	Settings    types.ContentSettings
	Origin      types.Origin
}

func (r *OnDemandRequest) validate() error {
	if r.KeywordType != "" && !r.KeywordType.Valid() {
		return &types.ValidationError{Field: "keyword_type", Message: fmt.Sprintf("unknown keyword type %q", r.KeywordType)}
	}
	if len(strings.TrimSpace(r.Keyword)) > 200 {
		return &types.ValidationError{Field: "keyword", Message: "must be at most 200 characters"}
	}
	if r.Origin == "" {
		r.Origin = types.OriginOnDemand
	}
	return r.Settings.Validate()
}

// plan is a validated run of count jobs.
type plan struct {
	id           uuid.UUID
	single       bool
	scheduleID   *int64
	scheduleName string
	origin       types.Origin
	count        int
	settings     types.ContentSettings
	pick         keywordPicker
}

func (p *plan) jobID() uuid.UUID {
	if p.single {
		return p.id
	}
	return uuid.New()
}

// RunBatch runs req.Count jobs sequentially. Per-job failures, budget stops
// and cancellation are reported in the result; only an invalid request
// returns an error, before any side effect.
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest, emitter progress.Emitter) (*types.BatchResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.BatchID == uuid.Nil {
		req.BatchID = uuid.New()
	}

	p := &plan{
		id:           req.BatchID,
		scheduleID:   req.ScheduleID,
		scheduleName: req.ScheduleName,
		origin:       req.Origin,
		count:        req.Count,
		settings:     req.Settings,
		pick:         o.poolPicker(req.Affinity.KeywordTypes()),
	}

	emitter = progress.OrDiscard(emitter)
	result := o.run(ctx, p, emitter)
	o.finish(emitter, p, result, result)
	return result, nil
}

// RunOnDemand runs one job and returns a caller-facing result.
func (o *Orchestrator) RunOnDemand(ctx context.Context, req OnDemandRequest, emitter progress.Emitter) (*types.OnDemandResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.JobID == uuid.Nil {
		req.JobID = uuid.New()
	}

	p := &plan{
		id:       req.JobID,
		single:   true,
		origin:   req.Origin,
		count:    1,
		settings: req.Settings,
	}
	if req.Keyword != "" {
		kind := req.KeywordType
		if kind == "" {
			kind = types.KeywordGeneral
		}
		p.pick = o.explicitPicker(req.Keyword, kind)
	} else if req.KeywordType != "" {
		p.pick = o.poolPicker([]types.KeywordType{req.KeywordType})
	} else {
		p.pick = o.poolPicker(types.AffinityMixed.KeywordTypes())
	}

	emitter = progress.OrDiscard(emitter)
	batch := o.run(ctx, p, emitter)
	result := onDemandResult(req.JobID, batch)
	o.finish(emitter, p, batch, result)
	return result, nil
}

// Cancel sets the cancel flag for a batch or on-demand job. It is observed
// before the next job starts; an in-flight producer call is not interrupted.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	if err := o.cancels.Cancel(ctx, id); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	o.logger.Info().Str("id", id).Msg("cancel requested")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, p *plan, emitter progress.Emitter) *types.BatchResult {
	key := p.id.String()
	start := o.now()
	result := &types.BatchResult{
		BatchID:      p.id,
		ScheduleID:   p.scheduleID,
		ScheduleName: p.scheduleName,
		Origin:       p.origin,
		Requested:    p.count,
		StopReason:   types.StopCompleted,
		Jobs:         make([]types.JobOutcome, 0, p.count),
	}
	logger := o.logger.With().Str("batch_id", key).Str("origin", string(p.origin)).Logger()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		result.Cancelled = p.count
		result.StopReason = types.StopCancelled
		return result
	}
	defer func() {
		if err := o.cancels.Clear(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn().Err(err).Msg("failed to clear cancel flag")
		}
	}()

	logger.Info().Int("count", p.count).Str("schedule", p.scheduleName).Msg("batch started")
	emitter.Emit(progress.Event{
		JobID:   key,
		Step:    "start",
		Message: fmt.Sprintf("Starting %d job(s)", p.count),
		Status:  progress.StatusRunning,
		At:      o.now(),
	})

loop:
	for i := 1; i <= p.count; i++ {
		if o.cancelled(ctx, key, logger) {
			result.Cancelled = p.count - i + 1
			result.StopReason = types.StopCancelled
			break
		}

		out, stop := o.runJob(ctx, p, i, emitter, logger)
		result.Jobs = append(result.Jobs, out)
		result.Cost += out.Cost

		switch {
		case stop:
			result.SkippedForBudget = p.count - i + 1
			result.StopReason = types.StopBudget
			break loop
		case out.Status == types.LogSuccess:
			result.Succeeded++
		default:
			result.Failed++
		}

		if i < p.count {
			if err := o.delay.Wait(ctx); err != nil {
				result.Cancelled = p.count - i
				result.StopReason = types.StopCancelled
				break
			}
		}
	}

	result.Cost = roundCost(result.Cost)
	result.Seconds = o.now().Sub(start).Seconds()
	observability.RecordBatch(string(result.StopReason))

	logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped_for_budget", result.SkippedForBudget).
		Int("cancelled", result.Cancelled).
		Str("stop_reason", string(result.StopReason)).
		Float64("cost", result.Cost).
		Msg("batch finished")
	return result
}

func (o *Orchestrator) cancelled(ctx context.Context, key string, logger zerolog.Logger) bool {
	if ctx.Err() != nil {
		return true
	}
	flagged, err := o.cancels.IsCancelled(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read cancel flag")
		return false
	}
	return flagged
}

// finish emits the terminal progress event.
func (o *Orchestrator) finish(emitter progress.Emitter, p *plan, result *types.BatchResult, data any) {
	emitter.Emit(progress.Event{
		JobID:   p.id.String(),
		Percent: len(result.Jobs) * 100 / p.count,
		Step:    "done",
		Message: summarize(result),
		Done:    true,
		Status:  batchStatus(result),
		Data:    data,
		At:      o.now(),
	})
}

func batchStatus(r *types.BatchResult) progress.Status {
	switch {
	case r.StopReason == types.StopBudget:
		return progress.StatusBudget
	case r.StopReason == types.StopCancelled:
		return progress.StatusCancelled
	case r.Failed == 0:
		return progress.StatusCompleted
	case r.Succeeded == 0:
		return progress.StatusFailed
	default:
		return progress.StatusPartial
	}
}

func summarize(r *types.BatchResult) string {
	msg := fmt.Sprintf("%d succeeded, %d failed", r.Succeeded, r.Failed)
	switch r.StopReason {
	case types.StopBudget:
		msg += fmt.Sprintf(", %d skipped (budget exceeded)", r.SkippedForBudget)
	case types.StopCancelled:
		msg += fmt.Sprintf(", %d cancelled", r.Cancelled)
	}
	return msg
}

func onDemandResult(jobID uuid.UUID, batch *types.BatchResult) *types.OnDemandResult {
	res := &types.OnDemandResult{
		JobID:      jobID,
		StopReason: batch.StopReason,
		Cost:       batch.Cost,
	}
	if len(batch.Jobs) == 0 {
		res.Message = "job cancelled"
		return res
	}

	job := batch.Jobs[0]
	res.LogID = job.LogID
	res.Title = job.Title
	res.PostReference = job.PostReference
	res.Success = job.Status == types.LogSuccess

	switch {
	case res.Success:
		res.Message = fmt.Sprintf("generated %q for keyword %q", job.Title, job.Keyword)
	case batch.StopReason == types.StopBudget:
		res.Message = ErrBudgetExceeded.Error()
	default:
		res.Message = job.Error
	}
	return res
}

func roundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}
