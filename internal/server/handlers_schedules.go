package server

import (
	"net/http"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// handleListSchedules returns every schedule.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.deps.Schedules.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []types.Schedule{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"schedules": schedules, "count": len(schedules)})
}

// handleUpsertSchedule creates a schedule or updates the one with the same name.
func (s *Server) handleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	var def types.Schedule
	if err := decodeJSON(r, &def); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.deps.Schedules.Upsert(r.Context(), &def)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSchedule(w, r, id, http.StatusOK)
}

// handleGetSchedule returns one schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSchedule(w, r, id, http.StatusOK)
}

// handleDeleteSchedule removes a schedule and its future firings.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Schedules.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Schedules.Pause(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSchedule(w, r, id, http.StatusOK)
}

func (s *Server) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Schedules.Resume(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSchedule(w, r, id, http.StatusOK)
}

func (s *Server) respondSchedule(w http.ResponseWriter, r *http.Request, id int64, status int) {
	sched, err := s.deps.Schedules.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, status, sched)
}
