package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/server/middleware"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// GenerateRequest is the body of POST /generate. An empty keyword draws
// one from the pool.
type GenerateRequest struct {
	Keyword     string                `json:"keyword,omitempty"`
	KeywordType types.KeywordType     `json:"keyword_type,omitempty"`
	Settings    types.ContentSettings `json:"content_settings"`
}

func (req *GenerateRequest) validate() error {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.KeywordType != "" && !req.KeywordType.Valid() {
		return &types.ValidationError{Field: "keyword_type", Message: "must be one of [general promotional]"}
	}
	if len(req.Keyword) > 200 {
		return &types.ValidationError{Field: "keyword", Message: "must be at most 200 characters"}
	}
	return req.Settings.Validate()
}

func (req *GenerateRequest) onDemand(jobID uuid.UUID) orchestrator.OnDemandRequest {
	return orchestrator.OnDemandRequest{
		JobID:       jobID,
		Keyword:     req.Keyword,
		KeywordType: req.KeywordType,
		Settings:    req.Settings,
		Origin:      types.OriginOnDemand,
	}
}

// AcceptedResponse is returned for jobs that continue in the background.
type AcceptedResponse struct {
	JobID       string `json:"job_id"`
	ProgressURL string `json:"progress_url"`
	CancelURL   string `json:"cancel_url"`
}

func accepted(jobID uuid.UUID) AcceptedResponse {
	id := jobID.String()
	return AcceptedResponse{
		JobID:       id,
		ProgressURL: "/jobs/" + id + "/progress",
		CancelURL:   "/jobs/" + id + "/cancel",
	}
}

// startJob registers a progress channel and runs the job. The job is
// detached from the request so a disconnecting client does not abort it;
// POST /jobs/{id}/cancel does.
func (s *Server) startJob(r *http.Request, req *GenerateRequest) (uuid.UUID, *progress.Channel, func() (*types.OnDemandResult, error)) {
	jobID := uuid.New()
	ch := s.hub.Open(jobID.String())
	ctx := context.WithoutCancel(r.Context())
	operator, _ := middleware.Subject(r)

	run := func() (*types.OnDemandResult, error) {
		s.logger.Info().Str("job_id", jobID.String()).Str("operator", operator).Str("keyword", req.Keyword).Msg("on-demand job started")
		res, err := s.deps.Generator.RunOnDemand(ctx, req.onDemand(jobID), progress.Multi{ch, s.emitter})
		if err != nil {
			ch.Emit(progress.Event{
				JobID:   jobID.String(),
				Done:    true,
				Status:  progress.StatusFailed,
				Message: err.Error(),
				At:      s.now(),
			})
		}
		return res, err
	}
	return jobID, ch, run
}

// handleGenerate runs one job. With ?async=true it returns 202 at once and
// the job is followed through the progress endpoint.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	jobID, _, run := s.startJob(r, &req)

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			if _, err := run(); err != nil {
				s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("background job failed")
			}
		}()
		s.jsonResponse(w, http.StatusAccepted, accepted(jobID))
		return
	}

	result, err := run()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// streamRetry is the reconnect delay suggested to stream clients. A client
// that reconnects follows the job through the progress endpoint.
const streamRetry = 3 * time.Second

// handleGenerateStream runs one job and streams its progress as SSE.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobID, ch, run := s.startJob(r, &req)
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		run() //nolint:errcheck // reported on the channel
	}()

	w.Header().Set("X-Job-ID", jobID.String())
	if err := sse.WriteRetry(streamRetry); err != nil {
		return
	}
	if err := sse.WriteEvent("accepted", accepted(jobID)); err != nil {
		return
	}

	for {
		event, ok := ch.Next(r.Context())
		if !ok {
			return
		}
		name := "progress"
		if event.Done {
			name = "complete"
		}
		if err := sse.WriteEvent(name, event); err != nil {
			s.logger.Debug().Err(err).Str("job_id", jobID.String()).Msg("stream client went away")
			return
		}
		if event.Done {
			return
		}
	}
}

// handleJobProgress returns the latest progress event for a job.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if ch, ok := s.hub.Get(id); ok {
		event, started := ch.Snapshot()
		if !started {
			event = progress.Event{JobID: id, Step: "queued", Status: progress.StatusRunning, At: s.now()}
		}
		s.jsonResponse(w, http.StatusOK, event)
		return
	}

	if s.snapshots != nil {
		event, ok, err := s.snapshots.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ok {
			s.jsonResponse(w, http.StatusOK, event)
			return
		}
	}

	s.errorResponse(w, http.StatusNotFound, "no progress recorded for job "+id)
}

// handleCancelJob sets the cancel flag for a job or batch.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, &types.ValidationError{Field: "id", Message: "must be a UUID"})
		return
	}

	if err := s.deps.Generator.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel_requested"})
}
