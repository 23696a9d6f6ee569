package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/seo-autopilot/internal/budget"
	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/producer"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// job carries the state of one iteration.
type job struct {
	p       *plan
	index   int
	id      uuid.UUID
	start   time.Time
	keyword *types.Keyword
	out     types.JobOutcome
	emitter progress.Emitter
	now     func() time.Time
	logger  zerolog.Logger
}

func (j *job) emit(fraction float64, step, message string) {
	percent := int((float64(j.index-1) + fraction) * 100 / float64(j.p.count))
	j.emitter.Emit(progress.Event{
		JobID:   j.p.id.String(),
		Percent: percent,
		Step:    step,
		Message: fmt.Sprintf("Job %d/%d: %s", j.index, j.p.count, message),
		Status:  progress.StatusRunning,
		At:      j.now(),
	})
}

func (j *job) keywords() []string {
	if j.keyword == nil {
		return []string{}
	}
	return []string{j.keyword.Text}
}

// runJob executes iteration i. It reports true when the budget refused the
// job and the batch must stop.
func (o *Orchestrator) runJob(ctx context.Context, p *plan, i int, emitter progress.Emitter, logger zerolog.Logger) (types.JobOutcome, bool) {
	j := &job{
		p:       p,
		index:   i,
		id:      p.jobID(),
		start:   o.now(),
		emitter: emitter,
		now:     o.now,
	}
	j.out = types.JobOutcome{JobID: j.id, Status: types.LogFailed}
	j.logger = logger.With().Str("job_id", j.id.String()).Int("job", i).Logger()

	j.emit(0, "select_keyword", "selecting keyword")
	kw, err := p.pick(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("job skipped, no keyword")
		o.fail(ctx, j, err)
		return j.out, false
	}
	j.keyword = kw
	j.out.Keyword = kw.Text

	model := o.resolve(firstNonEmpty(p.settings.Model, o.cfg.DefaultModel))
	imageModel, imageCount := "", 0
	if o.images != nil {
		imageModel, imageCount = o.images.Model(), p.settings.ImageCount
	}

	estimate := o.pricing.EstimateJob(model, p.settings.MaxWords, imageModel, imageCount)
	ok, err := o.budget.Authorize(ctx, estimate)
	if err != nil {
		j.logger.Error().Err(err).Msg("budget check failed")
		o.fail(ctx, j, fmt.Errorf("budget check failed: %w", err))
		return j.out, false
	}
	if !ok {
		j.logger.Warn().Float64("estimate", estimate).Msg("budget exceeded, stopping batch")
		o.fail(ctx, j, ErrBudgetExceeded)
		return j.out, true
	}

	j.emit(0.1, "generate_content", fmt.Sprintf("writing article for %q", kw.Text))
	content, err := o.generateContent(ctx, j, model, imageCount)
	if err != nil {
		j.logger.Error().Err(err).Str("keyword", kw.Text).Msg("content generation failed")
		o.fail(ctx, j, err)
		return j.out, false
	}

	textModel := firstNonEmpty(content.Model, model)
	textCost := o.pricing.TextCost(textModel, content.Usage.InputTokens, content.Usage.OutputTokens)
	o.recordSpend(ctx, j, budget.Spend{
		JobID:   j.id,
		Service: types.ServiceText,
		Model:   textModel,
		Units:   content.Usage.InputTokens + content.Usage.OutputTokens,
		Cost:    textCost,
	})
	j.out.Cost = textCost

	images := o.generateImages(ctx, j, content, imageCount)
	if n := len(images); n > 0 {
		imageCost := o.pricing.ImageCost(imageModel, n)
		o.recordSpend(ctx, j, budget.Spend{
			JobID:   j.id,
			Service: types.ServiceImage,
			Model:   imageModel,
			Units:   n,
			Cost:    imageCost,
		})
		j.out.Cost += imageCost
	}
	j.out.Images = len(images)
	j.out.Cost = roundCost(j.out.Cost)

	j.emit(0.9, "save", "saving article")
	o.save(ctx, j, content, images)
	return j.out, false
}

func (o *Orchestrator) generateContent(ctx context.Context, j *job, model string, imageCount int) (*producer.Content, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.ProducerTimeout)
	defer cancel()

	content, err := o.content.Generate(cctx, producer.ContentRequest{
		JobID:       j.id,
		Keyword:     j.keyword.Text,
		KeywordType: j.keyword.Type,
		MinWords:    j.p.settings.MinWords,
		MaxWords:    j.p.settings.MaxWords,
		Model:       model,
		Tone:        j.p.settings.Tone,
		ImageCount:  imageCount,
	})
	if err == nil {
		return content, nil
	}
	if producer.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("content generation timed out after %s: %w", o.cfg.ProducerTimeout, producer.ErrTimeout)
	}
	return nil, err
}

// generateImages returns references for the images that succeeded. Failed
// images are logged and skipped.
func (o *Orchestrator) generateImages(ctx context.Context, j *job, content *producer.Content, count int) []string {
	refs := make([]string, 0, count)
	for n := 0; n < count; n++ {
		prompt := ""
		if n < len(content.ImagePrompts) {
			prompt = content.ImagePrompts[n]
		}
		j.emit(0.3+0.5*float64(n)/float64(count), "generate_image", fmt.Sprintf("generating image %d/%d", n+1, count))

		ictx, cancel := context.WithTimeout(ctx, o.cfg.ProducerTimeout)
		img, err := o.images.Generate(ictx, producer.ImageRequest{
			JobID:   j.id,
			Keyword: j.keyword.Text,
			Prompt:  prompt,
		})
		cancel()
		if err != nil {
			j.logger.Warn().Err(err).Int("image", n+1).Msg("image generation failed, continuing without it")
			continue
		}
		refs = append(refs, imageRef(img))
	}
	return refs
}

func imageRef(img *producer.Image) string {
	if img.URL != "" {
		return img.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(img.Data), base64.StdEncoding.EncodeToString(img.Data))
}

// save stores the article, then the log entry and keyword usage together.
func (o *Orchestrator) save(ctx context.Context, j *job, content *producer.Content, images []string) {
	ctx = context.WithoutCancel(ctx)
	now := o.now()

	article := &types.Article{
		JobID:           j.id,
		KeywordID:       keywordID(j.keyword),
		Keyword:         j.keyword.Text,
		Title:           content.Title,
		HTML:            content.HTML,
		MetaDescription: content.MetaDescription,
		Tags:            content.Tags,
		ImageURLs:       images,
		WordCount:       content.WordCount,
		Status:          types.ArticleDraft,
		CreatedAt:       now,
	}
	if d := j.p.settings.PublishDelayMinutes; d > 0 {
		at := now.Add(time.Duration(d) * time.Minute)
		article.Status = types.ArticleScheduled
		article.PublishAt = &at
	}

	articleID, err := o.store.SaveArticle(ctx, article)
	if err != nil {
		perr := &PersistenceError{Op: "save article", Cause: err}
		o.persistenceFailure(ctx, j, perr)
		o.fail(ctx, j, perr)
		return
	}
	ref := fmt.Sprintf("article:%d", articleID)

	entry := o.newEntry(j, types.LogSuccess)
	entry.PostReference = &ref
	logID, err := o.store.RecordJobOutcome(ctx, entry, keywordID(j.keyword), now)
	if err != nil {
		perr := &PersistenceError{Op: "record job outcome", Cause: err}
		o.persistenceFailure(ctx, j, perr)
		o.fail(ctx, j, perr)
		return
	}

	j.out.LogID = logID
	j.out.Status = types.LogSuccess
	j.out.Title = content.Title
	j.out.PostReference = ref
	j.out.Seconds = entry.GenerationTime
	observability.RecordJob(string(j.p.origin), string(types.LogSuccess), entry.GenerationTime)

	j.logger.Info().
		Str("keyword", j.keyword.Text).
		Str("post_reference", ref).
		Int("word_count", content.WordCount).
		Int("images", len(images)).
		Float64("cost", j.out.Cost).
		Msg("job succeeded")
	j.emit(1, "done", fmt.Sprintf("published %q", content.Title))
}

// fail records a failed log entry for the job. Keyword usage is not updated.
func (o *Orchestrator) fail(ctx context.Context, j *job, cause error) {
	ctx = context.WithoutCancel(ctx)
	entry := o.newEntry(j, types.LogFailed)
	msg := cause.Error()
	entry.ErrorMessage = &msg

	j.out.Status = types.LogFailed
	j.out.Error = msg
	j.out.Seconds = entry.GenerationTime
	observability.RecordJob(string(j.p.origin), string(types.LogFailed), entry.GenerationTime)

	logID, err := o.store.RecordJobOutcome(ctx, entry, nil, o.now())
	if err != nil {
		o.persistenceFailure(ctx, j, &PersistenceError{Op: "record failed job", Cause: err})
	} else {
		j.out.LogID = logID
	}
	j.emit(1, "failed", msg)
}

func (o *Orchestrator) newEntry(j *job, status types.LogStatus) *types.GenerationLogEntry {
	return &types.GenerationLogEntry{
		JobID:          j.id,
		BatchID:        j.p.id,
		ScheduleID:     j.p.scheduleID,
		Origin:         j.p.origin,
		KeywordsUsed:   j.keywords(),
		GenerationTime: roundCost(o.now().Sub(j.start).Seconds()),
		APICost:        j.out.Cost,
		Status:         status,
	}
}

func (o *Orchestrator) recordSpend(ctx context.Context, j *job, s budget.Spend) {
	if _, err := o.budget.RecordSpend(context.WithoutCancel(ctx), s); err != nil {
		o.persistenceFailure(ctx, j, &PersistenceError{Op: "record spend", Cause: err})
	}
}

func (o *Orchestrator) persistenceFailure(ctx context.Context, j *job, err error) {
	j.logger.Error().Bool("critical", true).Err(err).Msg("persistence failure")
	event := notify.Event{
		Kind:     notify.KindPersistenceError,
		Severity: notify.SeverityCritical,
		Message:  err.Error(),
		Fields: map[string]any{
			"job_id":   j.id.String(),
			"batch_id": j.p.id.String(),
		},
		At: o.now(),
	}
	if nerr := o.notifier.Notify(context.WithoutCancel(ctx), event); nerr != nil {
		j.logger.Warn().Err(nerr).Msg("failed to deliver persistence alert")
	}
}

func keywordID(kw *types.Keyword) *int64 {
	if kw == nil || kw.ID == 0 {
		return nil
	}
	id := kw.ID
	return &id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
