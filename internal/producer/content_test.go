package producer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/llm"
	"github.com/jonathan/seo-autopilot/internal/types"
)

type fakeLLM struct {
	text string
	err  error
	wait bool
	last llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.last = req
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Text:  f.text,
		Model: "gemini-2.5-flash",
		Usage: llm.Usage{InputTokens: 420, OutputTokens: 1800},
	}, nil
}

func (f *fakeLLM) ResolveModel(name string) string { return name }
func (f *fakeLLM) Close() error                    { return nil }

const validArticle = `{
  "title": "How to Brew Oolong Tea",
  "meta_description": "A practical guide to brewing oolong.",
  "html": "<h1>Brewing Oolong</h1><p onclick=\"x()\">Oolong tea rewards patience and good water.</p><script>alert(1)</script><h2>Water</h2><p>Use water just off the boil.</p>",
  "tags": ["tea", "Tea", " oolong "],
  "image_prompts": ["a clay teapot on a wooden table"]
}`

func newRequest() ContentRequest {
	return ContentRequest{
		JobID:       uuid.New(),
		Keyword:     "oolong tea",
		KeywordType: types.KeywordGeneral,
		MinWords:    10,
		MaxWords:    2000,
		ImageCount:  1,
	}
}

func TestGeminiProducer_Generate(t *testing.T) {
	client := &fakeLLM{text: validArticle}
	p := NewGeminiProducer(client, ContentConfig{DefaultModel: "standard"}, zerolog.Nop())

	content, err := p.Generate(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, "How to Brew Oolong Tea", content.Title)
	assert.Equal(t, []string{"tea", "oolong"}, content.Tags)
	assert.Equal(t, []string{"a clay teapot on a wooden table"}, content.ImagePrompts)
	assert.NotContains(t, content.HTML, "<script")
	assert.NotContains(t, content.HTML, "onclick")
	assert.NotContains(t, content.HTML, "<h1>")
	assert.Contains(t, content.HTML, "<h2>Water</h2>")
	assert.Equal(t, 14, content.WordCount)
	assert.Equal(t, "gemini-2.5-flash", content.Model)
	assert.Equal(t, TokenUsage{InputTokens: 420, OutputTokens: 1800}, content.Usage)

	assert.Equal(t, "standard", client.last.Model)
	assert.True(t, client.last.JSON)
	assert.Contains(t, client.last.Prompt, `"oolong tea"`)
	assert.Contains(t, client.last.System, "English")
}

func TestGeminiProducer_PromotionalPrompt(t *testing.T) {
	client := &fakeLLM{text: validArticle}
	p := NewGeminiProducer(client, ContentConfig{Language: "Traditional Chinese"}, zerolog.Nop())

	req := newRequest()
	req.KeywordType = types.KeywordPromotional
	req.Model = "advanced"
	_, err := p.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, client.last.Prompt, "call to action")
	assert.Contains(t, client.last.System, "Traditional Chinese")
	assert.Equal(t, "advanced", client.last.Model)
}

func TestGeminiProducer_InvalidOutput(t *testing.T) {
	client := &fakeLLM{text: `{"title": "Short article title"}`}
	p := NewGeminiProducer(client, ContentConfig{}, zerolog.Nop())

	_, err := p.Generate(context.Background(), newRequest())
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "content", perr.Producer)
	assert.Equal(t, "invalid article output", perr.Message)
	assert.False(t, IsTimeout(err))
}

func TestGeminiProducer_ProviderError(t *testing.T) {
	client := &fakeLLM{err: errors.New("quota exhausted")}
	p := NewGeminiProducer(client, ContentConfig{}, zerolog.Nop())

	_, err := p.Generate(context.Background(), newRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
	assert.False(t, IsTimeout(err))
}

func TestGeminiProducer_Timeout(t *testing.T) {
	client := &fakeLLM{wait: true}
	p := NewGeminiProducer(client, ContentConfig{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, newRequest())
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "latin", text: "Hello, brave new world.", want: 4},
		{name: "joined words", text: "state-of-the-art isn't hard", want: 3},
		{name: "han characters", text: "烏龍茶", want: 3},
		{name: "mixed", text: "Hello world, 你好", want: 4},
		{name: "whitespace only", text: " \n\t ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWords(tt.text))
		})
	}
}

func TestSanitizeHTML_TitleFallsBackToHeading(t *testing.T) {
	raw := `{"title": "     ", "meta_description": "", "html": "<h1>Fallback Heading</h1><p>` +
		strings.Repeat("word ", 20) + `</p>"}`

	content, err := parseArticle(raw)
	require.NoError(t, err)
	assert.Equal(t, "Fallback Heading", content.Title)
	assert.Equal(t, 20, content.WordCount)
	assert.Empty(t, content.Tags)
}
