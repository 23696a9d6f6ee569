// Package llm provides the LLM client used to write articles, with model
// tiers so schedules can pick a model by capability rather than by ID.
package llm

import "strings"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for short pieces and meta descriptions
	TierLite ModelTier = "lite"
	// TierStandard is the default article writer
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form articles
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// DefaultTemperature suits prose: varied wording, stable structure.
const DefaultTemperature float32 = 0.7

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: DefaultTemperature,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}

	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}

	return "" // No model configured
}

// ResolveModel accepts a tier name or a concrete model ID.
// An empty name resolves to the standard tier.
func (c *Config) ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.GetModel(TierStandard)
	}
	if model, ok := c.Models[ModelTier(strings.ToLower(name))]; ok {
		return model
	}
	return name
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
