package types

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies who started a generation job.
type Origin string

// Origin values
const (
	OriginScheduled Origin = "scheduled"
	OriginOnDemand  Origin = "on_demand"
	OriginCLI       Origin = "cli"
)

// LogStatus is the outcome recorded for a job.
type LogStatus string

// LogStatus values
const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// GenerationLogEntry is the durable, append-only record of one job.
// PostReference is the only field that may be filled in after insert.
type GenerationLogEntry struct {
	ID             int64     `json:"id"`
	JobID          uuid.UUID `json:"job_id"`
	BatchID        uuid.UUID `json:"batch_id"`
	ScheduleID     *int64    `json:"schedule_id,omitempty"`
	Origin         Origin    `json:"origin"`
	PostReference  *string   `json:"post_reference,omitempty"`
	KeywordsUsed   []string  `json:"keywords_used"`
	GenerationTime float64   `json:"generation_time"`
	APICost        float64   `json:"api_cost"`
	Status         LogStatus `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LogFilter narrows log listings.
type LogFilter struct {
	Status     LogStatus
	ScheduleID *int64
	Limit      int
}

// Service is a billable external service.
type Service string

// Service values
const (
	ServiceText  Service = "text_generation"
	ServiceImage Service = "image_generation"
)

// CostLedgerEntry records spend for one job and service. (JobID, Service) is unique.
type CostLedgerEntry struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Day       time.Time `json:"day"`
	Service   Service   `json:"service"`
	Model     string    `json:"model"`
	Units     int       `json:"units"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleStatus is the publication state of a generated article.
type ArticleStatus string

// ArticleStatus values
const (
	ArticleDraft     ArticleStatus = "draft"
	ArticleScheduled ArticleStatus = "scheduled"
)

// Article is the content artifact produced by a successful job.
type Article struct {
	ID              int64         `json:"id"`
	JobID           uuid.UUID     `json:"job_id"`
	KeywordID       *int64        `json:"keyword_id,omitempty"`
	Keyword         string        `json:"keyword"`
	Title           string        `json:"title"`
	HTML            string        `json:"html"`
	MetaDescription string        `json:"meta_description"`
	Tags            []string      `json:"tags"`
	ImageURLs       []string      `json:"image_urls"`
	WordCount       int           `json:"word_count"`
	Status          ArticleStatus `json:"status"`
	PublishAt       *time.Time    `json:"publish_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// GenerationStats aggregates log entries over a period.
type GenerationStats struct {
	Succeeded         int     `json:"succeeded"`
	Failed            int     `json:"failed"`
	TotalCost         float64 `json:"total_cost"`
	AvgGenerationTime float64 `json:"avg_generation_time"`
}
