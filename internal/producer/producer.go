// Package producer holds the external content and image generation services
// invoked once per job by the orchestrator.
package producer

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// ContentRequest is the prompt context for one article.
type ContentRequest struct {
	JobID       uuid.UUID
	Keyword     string
	KeywordType types.KeywordType
	MinWords    int
	MaxWords    int
	Model       string
	Tone        string
	Language    string
	ImageCount  int
}

// TokenUsage is the provider-reported token accounting.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Content is a generated article.
type Content struct {
	Title           string
	MetaDescription string
	HTML            string
	Tags            []string
	ImagePrompts    []string
	WordCount       int
	Model           string
	Usage           TokenUsage
}

// ContentProducer writes articles. Generate must return once ctx is done.
type ContentProducer interface {
	Generate(ctx context.Context, req ContentRequest) (*Content, error)
}

// ImageRequest is the prompt for one illustration.
type ImageRequest struct {
	JobID   uuid.UUID
	Keyword string
	Prompt  string
}

// Image is a generated illustration, either hosted or inline.
type Image struct {
	URL   string
	Data  []byte
	Model string
}

// ImageProducer creates illustrations. Generate must return once ctx is done.
type ImageProducer interface {
	Generate(ctx context.Context, req ImageRequest) (*Image, error)
	// Model is the image model billed per call.
	Model() string
}

// newLimiter allows requestsPerMinute calls; zero or less is unlimited.
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
}
