package story

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"fable-ai-api/internal/application/chapterparse"
	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/metrics"
	"fable-ai-api/pkg/tracer"
)

const maxFailureMessageLength = 500

// Translator 故事级翻译
type Translator interface {
	TranslateStory(ctx context.Context, res language.Resolution, in translation.StoryText) (translation.StoryText, error)
}

// WorkerConfig 生成任务执行配置
type WorkerConfig struct {
	// MaxAttempts 与队列的重投上限一致，最后一次失败时标记故事失败
	MaxAttempts     int
	GenerateTimeout time.Duration
}

// Worker 消费生成任务：生成、解析、翻译、配图，然后提交结果
type Worker struct {
	stories    repository.StoryRepository
	orch       *Orchestrator
	text       service.StoryTextGenerator
	translator Translator
	covers     service.CoverImageGenerator
	progress   service.ProgressReporter
	cfg        WorkerConfig
}

// NewWorker 创建生成任务执行器，covers 与 progress 可为 nil
func NewWorker(
	stories repository.StoryRepository,
	orch *Orchestrator,
	text service.StoryTextGenerator,
	translator Translator,
	covers service.CoverImageGenerator,
	progress service.ProgressReporter,
	cfg WorkerConfig,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 5 * time.Minute
	}
	return &Worker{
		stories:    stories,
		orch:       orch,
		text:       text,
		translator: translator,
		covers:     covers,
		progress:   progress,
		cfg:        cfg,
	}
}

// Handle 处理一次投递；attempt 从 1 开始
// 返回错误表示需要队列重投，返回 nil 表示消息可以确认
func (w *Worker) Handle(ctx context.Context, job service.GenerationJob, attempt int) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.JobID)
	ctx = logger.WithContext(ctx, logger.StoryIDKey, job.StoryID)
	ctx, span := tracer.Start(ctx, "story.Worker.Handle")
	defer span.End()

	s, err := w.stories.GetByID(ctx, job.StoryID)
	if err != nil {
		return fmt.Errorf("load story: %w", err)
	}

	switch jobState(s, job.JobID) {
	case jobNotReady:
		if attempt < w.cfg.MaxAttempts {
			return errJobNotReady
		}
		logger.Warn(ctx, "generation job never became visible, dropping", "attempt", attempt)
		return nil
	case jobStale:
		logger.Info(ctx, "dropping stale generation job")
		return nil
	}

	w.report(ctx, job.JobID, 5, "started")
	out, err := w.generate(ctx, *s)
	if err == nil {
		_, err = w.orch.Complete(ctx, s.ID, job.JobID, out)
		if err == nil || errors.Is(err, ErrStaleJob) {
			w.report(ctx, job.JobID, 100, "done")
			return nil
		}
	}

	tracer.RecordError(ctx, err)
	if retryable(err) && attempt < w.cfg.MaxAttempts {
		logger.Warn(ctx, "generation attempt failed, will retry", "attempt", attempt, "error", err)
		return err
	}

	logger.Error(ctx, "generation failed permanently", err, "attempt", attempt)
	if _, ferr := w.orch.Fail(ctx, s.ID, job.JobID, failureMessage(err)); ferr != nil && !errors.Is(ferr, ErrStaleJob) {
		return ferr
	}
	return nil
}

type liveness int

const (
	jobLive liveness = iota
	jobNotReady
	jobStale
)

// jobState 判断任务与故事当前状态的关系
// 派发事务提交前消费者可能已读到消息，此时故事尚未记录该任务
func jobState(s *entity.Story, jobID string) liveness {
	switch {
	case s == nil:
		return jobNotReady
	case s.HasLiveJob(jobID):
		return jobLive
	case s.LastJobID != jobID &&
		(s.GenerationStatus == entity.GenerationPending || s.GenerationStatus == entity.GenerationFailed):
		return jobNotReady
	default:
		return jobStale
	}
}

func (w *Worker) generate(ctx context.Context, s entity.Story) (GenerationOutput, error) {
	res, err := w.orch.resolver.Resolve(s.Language.Code)
	if err != nil {
		return GenerationOutput{}, err
	}

	w.report(ctx, s.JobID, 10, "writing")
	genCtx, cancel := context.WithTimeout(ctx, w.cfg.GenerateTimeout)
	defer cancel()
	text, err := w.text.GenerateStory(genCtx, service.StoryPrompt{
		Language:         res.GenerationLanguage,
		Title:            s.Title,
		Synopsis:         s.Synopsis,
		Protagonist:      s.Protagonist,
		Species:          s.Species,
		ChildAge:         s.ChildAge,
		NumberOfChapters: s.NumberOfChapters,
		Theme:            s.Theme.Name,
		ThemeDescription: s.Theme.Description,
		Tone:             s.Tone.Name,
		ToneDescription:  s.Tone.Description,
	})
	if err != nil {
		return GenerationOutput{}, fmt.Errorf("generate story text: %w", err)
	}

	w.report(ctx, s.JobID, 60, "parsing")
	parsed := chapterparse.Parse(text)
	preamble := chapterparse.ParsePreamble(text)
	metrics.StoryParseChapters.Observe(float64(len(parsed.Chapters)))

	out := GenerationOutput{
		Conclusion: parsed.Conclusion,
		Chapters:   make([]entity.ChapterDraft, len(parsed.Chapters)),
	}
	for i, c := range parsed.Chapters {
		out.Chapters[i] = entity.ChapterDraft{Title: c.Title, Content: c.Content}
	}
	// 用户提供的标题与简介保持原样
	if s.Title == "" {
		out.Title = preamble.Title
	}
	if s.Synopsis == "" {
		out.Synopsis = preamble.Synopsis
	}

	// 结构不符时交给 Complete 标记失败，不浪费翻译与配图调用
	if outputProblem(s, out) != "" {
		logger.Warn(ctx, "generated text does not match requested structure",
			"chapters", len(parsed.Chapters), "expected", s.NumberOfChapters)
		return out, nil
	}

	if res.Tier.NeedsTranslation() {
		w.report(ctx, s.JobID, 70, "translating")
		if out, err = w.translate(ctx, res, out); err != nil {
			return GenerationOutput{}, err
		}
	}

	if w.covers != nil {
		w.report(ctx, s.JobID, 90, "illustrating")
		title, synopsis := firstNonEmpty(s.Title, out.Title), firstNonEmpty(s.Synopsis, out.Synopsis)
		url, err := w.covers.GenerateCover(ctx, title, synopsis)
		if err != nil {
			logger.Warn(ctx, "cover generation failed, continuing without cover", "error", err)
		} else {
			out.CoverImageURL = url
		}
	}
	return out, nil
}

func (w *Worker) translate(ctx context.Context, res language.Resolution, out GenerationOutput) (GenerationOutput, error) {
	in := translation.StoryText{
		Title:      out.Title,
		Synopsis:   out.Synopsis,
		Conclusion: out.Conclusion,
		Chapters:   make([]translation.ChapterText, len(out.Chapters)),
	}
	for i, c := range out.Chapters {
		in.Chapters[i] = translation.ChapterText{Title: c.Title, Content: c.Content}
	}

	tr, err := w.translator.TranslateStory(ctx, res, in)
	if err != nil {
		return GenerationOutput{}, fmt.Errorf("translate story to %s: %w", res.Code, err)
	}

	translated := GenerationOutput{
		Title:      tr.Title,
		Synopsis:   tr.Synopsis,
		Conclusion: tr.Conclusion,
		Chapters:   make([]entity.ChapterDraft, len(tr.Chapters)),
	}
	for i, c := range tr.Chapters {
		translated.Chapters[i] = entity.ChapterDraft{Title: c.Title, Content: c.Content}
	}
	return translated, nil
}

func (w *Worker) report(ctx context.Context, jobID string, progress int, stage string) {
	if w.progress == nil {
		return
	}
	if err := w.progress.ReportProgress(ctx, jobID, progress, stage); err != nil {
		logger.Debug(ctx, "progress report failed", "stage", stage, "error", err)
	}
}

// retryable 语言校验失败与永久的提供商错误不重试，其余交给队列重投
func retryable(err error) bool {
	var tve *language.TranslationValidationError
	if errors.As(err, &tve) {
		return false
	}
	var pe *translation.ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var inv *entity.InvariantViolationError
	var ist *entity.InvalidStateTransitionError
	return !errors.As(err, &inv) && !errors.As(err, &ist)
}

func failureMessage(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) > maxFailureMessageLength {
		msg = string([]rune(msg)[:maxFailureMessageLength])
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
