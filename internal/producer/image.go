package producer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jonathan/seo-autopilot/internal/prompts"
)

// ImageConfig configures an OpenAI-compatible image generation endpoint.
type ImageConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Size              string
	RequestsPerMinute int
}

// HTTPImageProducer calls an OpenAI-compatible /images/generations endpoint.
type HTTPImageProducer struct {
	cfg     ImageConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewHTTPImageProducer creates an image producer. A nil client uses
// http.DefaultClient; deadlines come from the request context.
func NewHTTPImageProducer(cfg ImageConfig, client *http.Client, logger zerolog.Logger) *HTTPImageProducer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	return &HTTPImageProducer{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(cfg.RequestsPerMinute),
		logger:  logger.With().Str("component", "image_producer").Logger(),
	}
}

// Model returns the configured image model.
func (p *HTTPImageProducer) Model() string {
	return p.cfg.Model
}

type imageRequestBody struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponseBody struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate creates one image. An empty prompt falls back to a generic
// header prompt for the keyword.
func (p *HTTPImageProducer) Generate(ctx context.Context, req ImageRequest) (*Image, error) {
	prompt, err := p.prompt(req)
	if err != nil {
		return nil, &Error{Producer: "image", Message: "failed to build prompt", Cause: err}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, classify("image", "rate limiter wait aborted", err)
	}

	payload, err := json.Marshal(imageRequestBody{Model: p.cfg.Model, Prompt: prompt, N: 1, Size: p.cfg.Size})
	if err != nil {
		return nil, &Error{Producer: "image", Message: "failed to encode request", Cause: err}
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Producer: "image", Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classify("image", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, classify("image", "failed to read response", err)
	}

	var parsed imageResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return nil, &Error{Producer: "image", Message: "invalid response body", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg += ": " + parsed.Error.Message
		}
		return nil, &Error{Producer: "image", Message: msg}
	}
	if len(parsed.Data) == 0 {
		return nil, &Error{Producer: "image", Message: "response contained no images"}
	}

	img := &Image{URL: parsed.Data[0].URL, Model: p.cfg.Model}
	if img.URL == "" && parsed.Data[0].B64JSON != "" {
		img.Data, err = base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
		if err != nil {
			return nil, &Error{Producer: "image", Message: "invalid base64 image", Cause: err}
		}
	}
	if img.URL == "" && len(img.Data) == 0 {
		return nil, &Error{Producer: "image", Message: "response contained an empty image"}
	}

	p.logger.Debug().Str("job_id", req.JobID.String()).Str("model", p.cfg.Model).Msg("image generated")
	return img, nil
}

func (p *HTTPImageProducer) prompt(req ImageRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return prompts.Render(prompts.ImagesFile, "fallback", map[string]string{"Keyword": req.Keyword})
	}
	return prompts.Render(prompts.ImagesFile, "illustration", map[string]string{
		"Subject": strings.TrimSpace(req.Prompt),
		"Keyword": req.Keyword,
	})
}
