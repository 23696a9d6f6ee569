package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/seo-autopilot/internal/budget"
	"github.com/jonathan/seo-autopilot/internal/cancel"
	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/db"
	"github.com/jonathan/seo-autopilot/internal/llm"
	"github.com/jonathan/seo-autopilot/internal/memstore"
	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/producer"
	"github.com/jonathan/seo-autopilot/internal/rediskv"
	"github.com/jonathan/seo-autopilot/internal/schedule"
	"github.com/jonathan/seo-autopilot/internal/server"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// store is everything the commands need from persistence.
type store interface {
	orchestrator.Store
	schedule.Store
	budget.Store
	server.Store
	UpsertKeyword(ctx context.Context, kw *types.Keyword) (*types.Keyword, error)
	ListKeywords(ctx context.Context, kind types.KeywordType, includeArchived bool) ([]types.Keyword, error)
	ArchiveKeyword(ctx context.Context, id int64) (bool, error)
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*memstore.Store)(nil)
)

// app holds the process-wide collaborators built from the config.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   store
	redis   *redis.Client
	closers []func()
}

// newApp loads the config and opens the store and, when configured, Redis.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newAppWithConfig(ctx, cfg)
}

func newAppWithConfig(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.AppEnv, cfg.Log.Level),
	}

	if cfg.Database.URL == "" {
		a.logger.Warn().Msg("DATABASE_URL not set, using the in-memory store; nothing survives this process")
		a.store = memstore.New()
	} else {
		database, err := db.Connect(ctx, cfg.Database.URL, db.WithMaxConns(cfg.Database.MaxConns))
		if err != nil {
			return nil, err
		}
		a.store = database
		a.closers = append(a.closers, database.Close)
	}

	if cfg.Redis.URL != "" {
		client, err := rediskv.Open(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}
	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) notifier() notify.Notifier {
	n := notify.Multi{notify.NewLogNotifier(a.logger)}
	if url := a.cfg.Notify.WebhookURL; url != "" {
		n = append(n, notify.NewWebhookNotifier(url, &http.Client{Timeout: a.cfg.Notify.Timeout}))
	}
	return n
}

func (a *app) engine() *schedule.Engine {
	return schedule.NewEngine(a.store, a.cfg.Location(), schedule.WithLogger(a.logger))
}

func (a *app) guard(n notify.Notifier) *budget.Guard {
	b := a.cfg.Budget
	return budget.NewGuard(a.store, budget.Config{
		DailyBudget:      b.DailyBudget,
		MonthlyBudget:    b.MonthlyBudget,
		WarningThreshold: b.WarningThreshold,
		PauseOnExceed:    b.PauseOnExceed,
		Currency:         b.Currency,
	}, a.cfg.Location(), budget.WithNotifier(n), budget.WithLogger(a.logger))
}

// cancels uses Redis flags when Redis is configured so that a cancel issued
// from one process reaches a job running in another.
func (a *app) cancels() cancel.Registry {
	if a.redis == nil {
		return cancel.NewMemory(a.cfg.Redis.CancelTTL)
	}
	return rediskv.NewCancelFlags(a.redis, a.cfg.Redis.Prefix, a.cfg.Redis.CancelTTL)
}

// snapshots returns nil without Redis.
func (a *app) snapshots() *rediskv.ProgressSnapshots {
	if a.redis == nil {
		return nil
	}
	return rediskv.NewProgressSnapshots(a.redis, a.cfg.Redis.Prefix, a.cfg.Redis.ProgressTTL, a.logger)
}

// orchestrator builds the generation pipeline. The returned func closes the
// content service client.
func (a *app) orchestrator(ctx context.Context, guard *budget.Guard, n notify.Notifier) (*orchestrator.Orchestrator, func(), error) {
	p := a.cfg.Producer
	if p.GeminiAPIKey == "" {
		return nil, nil, fmt.Errorf("GEMINI_API_KEY is required to generate content")
	}

	llmCfg := llm.DefaultGeminiConfig()
	llmCfg.Temperature = p.Temperature
	client, err := llm.NewGeminiClient(ctx, llmCfg, p.GeminiAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create content client: %w", err)
	}

	content := producer.NewGeminiProducer(client, producer.ContentConfig{
		DefaultModel:      p.DefaultModel,
		Tone:              p.Tone,
		Language:          p.Language,
		RequestsPerMinute: p.RequestsPerMinute,
	}, a.logger)

	opts := []orchestrator.Option{
		orchestrator.WithCancelRegistry(a.cancels()),
		orchestrator.WithNotifier(n),
		orchestrator.WithModelResolver(client.ResolveModel),
		orchestrator.WithLogger(a.logger),
	}
	if p.ImagesEnabled() {
		images := producer.NewHTTPImageProducer(producer.ImageConfig{
			BaseURL:           p.ImageAPIURL,
			APIKey:            p.ImageAPIKey,
			Model:             p.ImageModel,
			Size:              p.ImageSize,
			RequestsPerMinute: p.ImageRequestsPerMinute,
		}, &http.Client{Timeout: p.Timeout}, a.logger)
		opts = append(opts, orchestrator.WithImageProducer(images))
	} else {
		a.logger.Info().Msg("IMAGE_API_KEY not set, articles are generated without illustrations")
	}

	o := orchestrator.New(a.store, guard, content, budget.DefaultPricing(a.cfg.Budget.ExchangeRate), orchestrator.Config{
		ProducerTimeout: p.Timeout,
		InterJobDelay:   a.cfg.Schedule.InterJobDelay,
		DefaultModel:    p.DefaultModel,
	}, opts...)

	closeClient := func() {
		if err := client.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close content client")
		}
	}
	return o, closeClient, nil
}

// location is used by the printers.
func (a *app) location() *time.Location {
	return a.cfg.Location()
}
