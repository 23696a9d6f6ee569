package types

import "github.com/google/uuid"

// StopReason is why a batch stopped iterating.
type StopReason string

// StopReason values. StopCompleted means every iteration ran, whether or not
// each job succeeded.
const (
	StopCompleted StopReason = "completed"
	StopBudget    StopReason = "budget_exceeded"
	StopCancelled StopReason = "cancelled"
)

// Exit codes for CLI-style invocations.
const (
	ExitOK         = 0
	ExitPartial    = 1
	ExitBudget     = 2
	ExitValidation = 3
)

// JobOutcome summarizes one job of a batch.
type JobOutcome struct {
	JobID         uuid.UUID `json:"job_id"`
	LogID         int64     `json:"log_id,omitempty"`
	Keyword       string    `json:"keyword,omitempty"`
	Status        LogStatus `json:"status"`
	Title         string    `json:"title,omitempty"`
	PostReference string    `json:"post_reference,omitempty"`
	Images        int       `json:"images"`
	Cost          float64   `json:"cost"`
	Seconds       float64   `json:"seconds"`
	Error         string    `json:"error,omitempty"`
}

// BatchResult aggregates a batch run. Succeeded + Failed + Cancelled +
// SkippedForBudget equals Requested, where the budget-blocked job counts as
// skipped even though it writes a failed log entry.
type BatchResult struct {
	BatchID          uuid.UUID    `json:"batch_id"`
	ScheduleID       *int64       `json:"schedule_id,omitempty"`
	ScheduleName     string       `json:"schedule_name,omitempty"`
	Origin           Origin       `json:"origin"`
	Requested        int          `json:"requested"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	SkippedForBudget int          `json:"skipped_for_budget"`
	Cancelled        int          `json:"cancelled"`
	StopReason       StopReason   `json:"stop_reason"`
	Cost             float64      `json:"cost"`
	Seconds          float64      `json:"seconds"`
	Jobs             []JobOutcome `json:"jobs"`
}

// ExitCode maps the result to 0 (all succeeded), 1 (some jobs failed or were
// cancelled) or 2 (stopped by the budget).
func (r *BatchResult) ExitCode() int {
	switch {
	case r.StopReason == StopBudget:
		return ExitBudget
	case r.Failed > 0 || r.Cancelled > 0:
		return ExitPartial
	default:
		return ExitOK
	}
}

// OnDemandResult is returned to interactive callers of a single job.
type OnDemandResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	JobID         uuid.UUID  `json:"job_id"`
	LogID         int64      `json:"log_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	PostReference string     `json:"post_reference,omitempty"`
	Cost          float64    `json:"cost"`
	StopReason    StopReason `json:"stop_reason"`
}

// ExitCode maps the result the same way as BatchResult.ExitCode.
func (r *OnDemandResult) ExitCode() int {
	switch {
	case r.Success:
		return ExitOK
	case r.StopReason == StopBudget:
		return ExitBudget
	default:
		return ExitPartial
	}
}
