package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonathan/seo-autopilot/internal/budget"
	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/server/middleware"
	"github.com/jonathan/seo-autopilot/internal/server/ratelimit"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Generator runs and cancels on-demand jobs.
type Generator interface {
	RunOnDemand(ctx context.Context, req orchestrator.OnDemandRequest, emitter progress.Emitter) (*types.OnDemandResult, error)
	Cancel(ctx context.Context, id string) error
}

// Schedules manages schedule definitions.
type Schedules interface {
	List(ctx context.Context) ([]types.Schedule, error)
	Get(ctx context.Context, id int64) (*types.Schedule, error)
	Upsert(ctx context.Context, def *types.Schedule) (int64, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Store reads the generation log.
type Store interface {
	ListLogs(ctx context.Context, filter types.LogFilter) ([]types.GenerationLogEntry, error)
	SetLogPostReference(ctx context.Context, id int64, ref string) (bool, error)
	Stats(ctx context.Context, from, to time.Time) (*types.GenerationStats, error)
}

// BudgetReporter reports current spend.
type BudgetReporter interface {
	Usage(ctx context.Context) (*budget.Usage, error)
}

// SnapshotSource returns the latest progress event recorded by any process.
type SnapshotSource interface {
	Get(ctx context.Context, jobID string) (progress.Event, bool, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Generator Generator
	Schedules Schedules
	Store     Store
	Budget    BudgetReporter
	Tokens    *TokenService
}

func (d Deps) validate() error {
	switch {
	case d.Generator == nil:
		return fmt.Errorf("server: generator is required")
	case d.Schedules == nil:
		return fmt.Errorf("server: schedules are required")
	case d.Store == nil:
		return fmt.Errorf("server: store is required")
	case d.Budget == nil:
		return fmt.Errorf("server: budget is required")
	case d.Tokens == nil:
		return fmt.Errorf("server: token service is required")
	}
	return nil
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	deps       Deps

	hub         *progress.Hub
	snapshots   SnapshotSource
	emitter     progress.Emitter
	rateLimiter *ratelimit.Limiter
	metrics     http.Handler
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger

	// detached jobs outlive their request and are awaited on shutdown
	jobs sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithSnapshots adds a shared progress source consulted when a job is not
// running in this process.
func WithSnapshots(src SnapshotSource) Option {
	return func(s *Server) { s.snapshots = src }
}

// WithEmitter adds an emitter that receives every job's progress.
func WithEmitter(e progress.Emitter) Option {
	return func(s *Server) { s.emitter = e }
}

// WithRateLimiter replaces the limiter built from the config.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.rateLimiter = l }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLocation sets the zone used for date query parameters.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a new server instance
func New(cfg config.ServerConfig, deps Deps, opts ...Option) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		hub:     progress.NewHub(cfg.ProgressRetention),
		emitter: progress.Discard,
		metrics: promhttp.Handler(),
		loc:     time.UTC,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.NewConfig(cfg.RateLimitPerMinute))
	}
	s.logger = s.logger.With().Str("component", "server").Logger()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /generate", s.handleGenerate)
	api.HandleFunc("POST /generate/stream", s.handleGenerateStream)
	api.HandleFunc("GET /jobs/{id}/progress", s.handleJobProgress)
	api.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)

	api.HandleFunc("GET /schedules", s.handleListSchedules)
	api.HandleFunc("POST /schedules", s.handleUpsertSchedule)
	api.HandleFunc("GET /schedules/{id}", s.handleGetSchedule)
	api.HandleFunc("DELETE /schedules/{id}", s.handleDeleteSchedule)
	api.HandleFunc("POST /schedules/{id}/pause", s.handlePauseSchedule)
	api.HandleFunc("POST /schedules/{id}/resume", s.handleResumeSchedule)

	api.HandleFunc("GET /logs", s.handleListLogs)
	api.HandleFunc("POST /logs/{id}/post-reference", s.handleSetPostReference)
	api.HandleFunc("GET /budget", s.handleBudget)
	api.HandleFunc("GET /stats", s.handleStats)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics)
	mux.Handle("/", middleware.AuthMiddleware(s.deps.Tokens.AsTokenValidator())(api))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start serves until ctx is cancelled, then shuts down gracefully and waits
// for detached jobs within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("server starting")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn().Msg("shutdown timed out waiting for running jobs")
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 15 * time.Second
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging. It forwards
// Flush so SSE keeps working behind the logging middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.Method, r.URL.Path)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID uses the IP address from RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	retry := int(info.RetryAfter.Round(time.Second).Seconds())
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	s.logger.Warn().Int("limit", info.Limit).Int("retry_after", retry).Msg("rate limit exceeded")
	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Rate limit exceeded. Please try again later.",
		"limit":       info.Limit,
		"retry_after": retry,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status. Internal errors are logged, not exposed.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &types.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// pathID parses an integer path value.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &types.ValidationError{Field: "id", Message: fmt.Sprintf("invalid id %q", raw)}
	}
	return id, nil
}
