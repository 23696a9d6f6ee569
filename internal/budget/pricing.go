package budget

import "math"

// Token estimation for text generation.
const (
	TokensPerWord        = 1.4
	PromptOverheadTokens = 400
)

// ModelPrice is the list price of a model in USD.
type ModelPrice struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
	PerImage    float64 `json:"per_image" yaml:"per_image"`
}

// Pricing converts usage into local-currency cost.
type Pricing struct {
	Models       map[string]ModelPrice
	Fallback     ModelPrice
	ExchangeRate float64
}

// DefaultPricing returns list prices for the supported models.
// exchangeRate converts USD into the local currency.
func DefaultPricing(exchangeRate float64) Pricing {
	if exchangeRate <= 0 {
		exchangeRate = 1
	}
	return Pricing{
		Models: map[string]ModelPrice{
			"gemini-2.5-pro":        {InputPer1K: 0.00125, OutputPer1K: 0.01},
			"gemini-2.5-flash":      {InputPer1K: 0.0003, OutputPer1K: 0.0025},
			"gemini-2.5-flash-lite": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
			"gemini-2.0-flash":      {InputPer1K: 0.0001, OutputPer1K: 0.0004},
			"dall-e-3":              {PerImage: 0.04},
			"gpt-image-1":           {PerImage: 0.042},
			"imagen-3.0-generate":   {PerImage: 0.03},
		},
		Fallback:     ModelPrice{InputPer1K: 0.00125, OutputPer1K: 0.01, PerImage: 0.04},
		ExchangeRate: exchangeRate,
	}
}

func (p Pricing) price(model string) ModelPrice {
	if mp, ok := p.Models[model]; ok {
		return mp
	}
	return p.Fallback
}

// TextCost is the local cost of a text generation call.
func (p Pricing) TextCost(model string, inputTokens, outputTokens int) float64 {
	mp := p.price(model)
	usd := float64(inputTokens)/1000*mp.InputPer1K + float64(outputTokens)/1000*mp.OutputPer1K
	return round4(usd * p.ExchangeRate)
}

// ImageCost is the local cost of generating n images.
func (p Pricing) ImageCost(model string, n int) float64 {
	return round4(float64(n) * p.price(model).PerImage * p.ExchangeRate)
}

// EstimateJob is the worst-case local cost of one job: maxWords of output
// plus prompt overhead, and imageCount images.
func (p Pricing) EstimateJob(model string, maxWords int, imageModel string, imageCount int) float64 {
	outputTokens := int(math.Ceil(float64(maxWords) * TokensPerWord))
	cost := p.TextCost(model, PromptOverheadTokens, outputTokens)
	if imageCount > 0 {
		cost += p.ImageCost(imageModel, imageCount)
	}
	return round4(cost)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
