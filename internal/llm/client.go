package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Request is a single generation call.
type Request struct {
	// Model is a tier name ("lite", "standard", "advanced") or a concrete model ID.
	Model           string
	System          string
	Prompt          string
	JSON            bool
	Temperature     float32
	MaxOutputTokens int32
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the text and usage of a generation call.
type Response struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

// Client is an abstraction over LLM providers
type Client interface {
	// Generate runs one prompt. It must honour ctx cancellation and deadline.
	Generate(ctx context.Context, req Request) (*Response, error)
	// ResolveModel maps a tier name or model ID to the model that will be called
	ResolveModel(name string) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Generate calls the resolved Gemini model.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	modelName := c.ResolveModel(req.Model)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for %q", req.Model)
	}

	model := c.client.GenerativeModel(modelName)
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	model.SetTemperature(temperature)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}
	if req.JSON {
		text = CleanJSONBlock(text)
	}

	out := &Response{Text: text, Model: modelName}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = resp.Candidates[0].FinishReason.String()
	}
	return out, nil
}

// ResolveModel maps a tier name or model ID to a model ID
func (c *GeminiClient) ResolveModel(name string) string {
	return c.config.ResolveModel(name)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
