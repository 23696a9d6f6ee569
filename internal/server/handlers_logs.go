package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/seo-autopilot/internal/types"
)

const (
	defaultLogLimit  = 50
	maxLogLimit      = 500
	defaultStatsDays = 30
)

// handleListLogs returns generation log entries, newest first.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	logs, err := s.deps.Store.ListLogs(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []types.GenerationLogEntry{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func parseLogFilter(r *http.Request) (types.LogFilter, error) {
	q := r.URL.Query()
	filter := types.LogFilter{Limit: defaultLogLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, &types.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		filter.Limit = min(n, maxLogLimit)
	}

	switch status := types.LogStatus(q.Get("status")); status {
	case "", types.LogSuccess, types.LogFailed:
		filter.Status = status
	default:
		return filter, &types.ValidationError{Field: "status", Message: fmt.Sprintf("must be one of [success failed], got %q", status)}
	}

	if raw := q.Get("schedule_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, &types.ValidationError{Field: "schedule_id", Message: "must be an integer"}
		}
		filter.ScheduleID = &id
	}
	return filter, nil
}

type postReferenceRequest struct {
	PostReference string `json:"post_reference"`
}

// handleSetPostReference fills in a log entry's post reference once.
func (s *Server) handleSetPostReference(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req postReferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ref := strings.TrimSpace(req.PostReference)
	if ref == "" {
		s.writeError(w, &types.ValidationError{Field: "post_reference", Message: "is required"})
		return
	}

	updated, err := s.deps.Store.SetLogPostReference(r.Context(), id, ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !updated {
		s.writeError(w, fmt.Errorf("%w: log %d is missing or already has a post reference", ErrConflict, id))
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"id": id, "post_reference": ref})
}

// handleBudget reports daily and monthly spend against the limits.
func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Budget.Usage(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, usage)
}

// StatsResponse wraps stats with the period they cover.
type StatsResponse struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	*types.GenerationStats
}

// handleStats aggregates the log over [from, to). Dates are YYYY-MM-DD in
// the configured zone; to is inclusive and defaults to today.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.statsWindow(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	stats, err := s.deps.Store.Stats(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, StatsResponse{From: from, To: to, GenerationStats: stats})
}

func (s *Server) statsWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	to := today.AddDate(0, 0, 1)
	if raw := q.Get("to"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, &types.ValidationError{Field: "to", Message: "must be YYYY-MM-DD"}
		}
		to = d.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -defaultStatsDays)
	if raw := q.Get("from"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, &types.ValidationError{Field: "from", Message: "must be YYYY-MM-DD"}
		}
		from = d
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "from", Message: "must not be after to"}
	}
	return from, to, nil
}
