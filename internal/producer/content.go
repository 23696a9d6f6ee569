package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jonathan/seo-autopilot/internal/llm"
	"github.com/jonathan/seo-autopilot/internal/prompts"
	"github.com/jonathan/seo-autopilot/internal/schemas"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// ContentConfig holds defaults applied when a request leaves them empty.
type ContentConfig struct {
	DefaultModel      string
	Tone              string
	Language          string
	RequestsPerMinute int
}

// GeminiProducer writes articles through an llm.Client.
type GeminiProducer struct {
	client  llm.Client
	cfg     ContentConfig
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGeminiProducer creates a content producer.
func NewGeminiProducer(client llm.Client, cfg ContentConfig, logger zerolog.Logger) *GeminiProducer {
	if cfg.Tone == "" {
		cfg.Tone = "friendly and informative"
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	return &GeminiProducer{
		client:  client,
		cfg:     cfg,
		limiter: newLimiter(cfg.RequestsPerMinute),
		logger:  logger.With().Str("component", "content_producer").Logger(),
	}
}

type articleOutput struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	HTML            string   `json:"html"`
	Tags            []string `json:"tags"`
	ImagePrompts    []string `json:"image_prompts"`
}

// Generate writes one article for req.Keyword.
func (p *GeminiProducer) Generate(ctx context.Context, req ContentRequest) (*Content, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, classify("content", "rate limiter wait aborted", err)
	}

	system, prompt, err := p.buildPrompts(req)
	if err != nil {
		return nil, &Error{Producer: "content", Message: "failed to build prompt", Cause: err}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	resp, err := p.client.Generate(ctx, llm.Request{
		Model:           model,
		System:          system,
		Prompt:          prompt,
		JSON:            true,
		MaxOutputTokens: int32(req.MaxWords*3 + 1024),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return nil, classify("content", "generation failed", err)
	}

	content, err := parseArticle(resp.Text)
	if err != nil {
		return nil, &Error{Producer: "content", Message: "invalid article output", Cause: err}
	}
	content.Model = resp.Model
	content.Usage = TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}

	if content.WordCount < req.MinWords || (req.MaxWords > 0 && content.WordCount > req.MaxWords) {
		p.logger.Warn().
			Str("job_id", req.JobID.String()).
			Int("word_count", content.WordCount).
			Int("min_words", req.MinWords).
			Int("max_words", req.MaxWords).
			Msg("article length outside requested range")
	}
	return content, nil
}

func (p *GeminiProducer) buildPrompts(req ContentRequest) (string, string, error) {
	tone := req.Tone
	if tone == "" {
		tone = p.cfg.Tone
	}
	language := req.Language
	if language == "" {
		language = p.cfg.Language
	}

	system, err := prompts.Render(prompts.ArticlesFile, "system", map[string]string{"Language": language})
	if err != nil {
		return "", "", err
	}

	key := "article-general"
	if req.KeywordType == types.KeywordPromotional {
		key = "article-promotional"
	}
	body, err := prompts.Render(prompts.ArticlesFile, key, map[string]string{
		"Keyword":    req.Keyword,
		"MinWords":   fmt.Sprint(req.MinWords),
		"MaxWords":   fmt.Sprint(req.MaxWords),
		"Tone":       tone,
		"ImageCount": fmt.Sprint(req.ImageCount),
	})
	if err != nil {
		return "", "", err
	}
	return system, llm.BuildStructuredPrompt(body, llm.ArticleOutputSchema()), nil
}

// parseArticle validates raw model output and normalizes the HTML body.
func parseArticle(raw string) (*Content, error) {
	if err := schemas.Validate(schemas.Article, []byte(raw)); err != nil {
		return nil, err
	}

	var out articleOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}

	html, text, heading, err := sanitizeHTML(out.HTML)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = heading
	}

	return &Content{
		Title:           title,
		MetaDescription: strings.TrimSpace(out.MetaDescription),
		HTML:            html,
		Tags:            cleanList(out.Tags),
		ImagePrompts:    cleanList(out.ImagePrompts),
		WordCount:       CountWords(text),
	}, nil
}

// sanitizeHTML drops active content and the leading <h1>, which duplicates
// the title. It returns the cleaned HTML, its text and the removed heading.
func sanitizeHTML(fragment string) (string, string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to parse article html: %w", err)
	}

	body := doc.Find("body")
	body.Find("script, style, iframe, object, embed, form").Remove()
	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		var handlers []string
		for _, attr := range s.Nodes[0].Attr {
			if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				handlers = append(handlers, attr.Key)
			}
		}
		for _, key := range handlers {
			s.RemoveAttr(key)
		}
	})

	h1 := body.Find("h1").First()
	heading := strings.TrimSpace(h1.Text())
	h1.Remove()

	html, err := body.Html()
	if err != nil {
		return "", "", "", fmt.Errorf("failed to render article html: %w", err)
	}
	var parts []string
	body.Find("*").AddBack().Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			parts = append(parts, s.Text())
		}
	})
	return strings.TrimSpace(html), strings.Join(parts, " "), heading, nil
}

// CountWords counts whitespace-separated words, with each Han, Hiragana,
// Katakana or Hangul character counted as one word.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			count++
			inWord = false
		case unicode.IsSpace(r) || (unicode.IsPunct(r) && !isWordJoiner(r)):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

func isWordJoiner(r rune) bool {
	return r == '\'' || r == '-' || r == '\u2019'
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
