package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/metrics"
	"fable-ai-api/pkg/tracer"
)

// OrchestratorConfig 编排器超时配置
type OrchestratorConfig struct {
	EnqueueTimeout time.Duration
	StatusTimeout  time.Duration
}

// GenerationOutput 生成结果（已解析、已翻译）
type GenerationOutput struct {
	Chapters      []entity.ChapterDraft
	Conclusion    string
	CoverImageURL string
	// Title / Synopsis 仅用于补全创建时留空的字段
	Title    string
	Synopsis string
}

// GenerationProgress 生成进度视图，Progress 为 nil 表示未知
type GenerationProgress struct {
	StoryID  string                  `json:"story_id"`
	Status   entity.GenerationStatus `json:"status"`
	JobID    string                  `json:"job_id,omitempty"`
	Progress *int                    `json:"progress"`
	Stage    string                  `json:"stage,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Orchestrator 驱动故事生成状态机并与任务队列协作
type Orchestrator struct {
	stories  repository.StoryRepository
	tx       repository.Transactor
	queue    service.JobQueue
	events   service.EventPublisher
	slugs    *SlugGenerator
	resolver *language.Resolver
	cfg      OrchestratorConfig

	now      func() time.Time
	newJobID func() string
}

// NewOrchestrator 创建生成编排器
func NewOrchestrator(
	stories repository.StoryRepository,
	tx repository.Transactor,
	queue service.JobQueue,
	events service.EventPublisher,
	resolver *language.Resolver,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 2 * time.Second
	}
	return &Orchestrator{
		stories:  stories,
		tx:       tx,
		queue:    queue,
		events:   events,
		slugs:    NewSlugGenerator(stories),
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
		newJobID: uuid.NewString,
	}
}

type transition func(s entity.Story, jobID string, now time.Time) (entity.Story, error)

// Dispatch pending -> processing 并入队
// 状态写入与入队在同一事务内，入队失败时回滚
func (o *Orchestrator) Dispatch(ctx context.Context, storyID string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "story.Orchestrator.Dispatch")
	defer span.End()

	var dispatched entity.Story
	err := o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		s, err := o.load(txCtx, storyID)
		if err != nil {
			return err
		}
		dispatched, err = o.dispatchInTx(txCtx, *s, entity.Story.Dispatch)
		return err
	})
	if err != nil {
		tracer.RecordError(ctx, err)
		return nil, err
	}

	o.afterDispatch(ctx, entity.EventTypeGenerationDispatch, dispatched)
	return &dispatched, nil
}

// Retry failed -> processing，仅所有者可操作
func (o *Orchestrator) Retry(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "story.Orchestrator.Retry")
	defer span.End()

	var retried entity.Story
	err := o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		s, err := o.load(txCtx, storyID)
		if err != nil {
			return err
		}
		if !s.IsOwnedBy(ownerID) {
			return ErrForbidden
		}
		retried, err = o.dispatchInTx(txCtx, *s, entity.Story.Retry)
		return err
	})
	if err != nil {
		tracer.RecordError(ctx, err)
		return nil, err
	}

	o.afterDispatch(ctx, entity.EventTypeGenerationRetried, retried)
	return &retried, nil
}

// dispatchInTx 在调用方事务内完成状态迁移、持久化与入队
func (o *Orchestrator) dispatchInTx(ctx context.Context, s entity.Story, apply transition) (entity.Story, error) {
	res, err := o.resolver.Resolve(s.Language.Code)
	if err != nil {
		return entity.Story{}, err
	}

	next, err := apply(s, o.newJobID(), o.now())
	if err != nil {
		return entity.Story{}, err
	}
	if err := o.save(ctx, &next); err != nil {
		return entity.Story{}, err
	}

	enqCtx, cancel := context.WithTimeout(ctx, o.cfg.EnqueueTimeout)
	defer cancel()
	if err := o.queue.Enqueue(enqCtx, jobFor(next, res, o.now())); err != nil {
		return entity.Story{}, ErrEnqueueFailed.WithError(err)
	}
	return next, nil
}

func (o *Orchestrator) afterDispatch(ctx context.Context, eventType entity.DomainEventType, s entity.Story) {
	ctx = logger.WithContext(ctx, logger.JobIDKey, s.JobID)
	logger.Info(ctx, "generation job dispatched", "story_id", s.ID, "event", string(eventType))

	label := "dispatch"
	if eventType == entity.EventTypeGenerationRetried {
		label = "retry"
	}
	metrics.StoryGenerationTotal.WithLabelValues(label).Inc()
	o.publish(ctx, entity.NewStoryEvent(eventType, s, o.now(), map[string]string{"job_id": s.JobID}))
}

// Complete 挂载生成结果；章节数不符或结语为空时转为失败
// 返回的故事可能处于 completed 或 failed
func (o *Orchestrator) Complete(ctx context.Context, storyID, jobID string, out GenerationOutput) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "story.Orchestrator.Complete")
	defer span.End()

	s, err := o.complete(ctx, storyID, jobID, out, false)
	if errors.Is(err, repository.ErrDuplicateSlug) {
		// 失败语句会使整个事务失效，带后缀重新执行一次
		logger.Warn(ctx, "slug collided on save, regenerating", "story_id", storyID)
		s, err = o.complete(ctx, storyID, jobID, out, true)
		if errors.Is(err, repository.ErrDuplicateSlug) {
			err = ErrDuplicateSlug.WithError(err)
		}
	}
	if err != nil {
		tracer.RecordError(ctx, err)
		return nil, err
	}

	o.afterFinish(ctx, *s)
	return s, nil
}

func (o *Orchestrator) complete(ctx context.Context, storyID, jobID string, out GenerationOutput, forceSuffix bool) (*entity.Story, error) {
	var result entity.Story
	err := o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		s, err := o.loadLive(txCtx, storyID, jobID)
		if err != nil {
			return err
		}

		if msg := outputProblem(*s, out); msg != "" {
			result, err = o.failInTx(txCtx, *s, msg)
			return err
		}

		title := s.Title
		if title == "" {
			title = out.Title
		}
		slug, err := o.slugs.Generate(txCtx, title, forceSuffix)
		if err != nil {
			return err
		}

		next, err := s.AttachGeneratedContent(entity.GeneratedContent{
			Chapters:      entity.NewChapters(out.Chapters),
			Conclusion:    out.Conclusion,
			CoverImageURL: out.CoverImageURL,
			Slug:          slug,
			Title:         out.Title,
			Synopsis:      out.Synopsis,
		}, o.now())
		if err != nil {
			var inv *entity.InvariantViolationError
			if errors.As(err, &inv) {
				result, err = o.failInTx(txCtx, *s, "generated content rejected: "+inv.Error())
			}
			return err
		}
		if err := o.save(txCtx, &next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// outputProblem 返回不可挂载的原因
func outputProblem(s entity.Story, out GenerationOutput) string {
	if len(out.Chapters) != s.NumberOfChapters {
		return fmt.Sprintf("generated %d chapters, expected %d", len(out.Chapters), s.NumberOfChapters)
	}
	if strings.TrimSpace(out.Conclusion) == "" {
		return "generated story has no conclusion"
	}
	return ""
}

// Fail processing -> failed，仅对当前任务生效
func (o *Orchestrator) Fail(ctx context.Context, storyID, jobID, message string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "story.Orchestrator.Fail")
	defer span.End()

	var failed entity.Story
	err := o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		s, err := o.loadLive(txCtx, storyID, jobID)
		if err != nil {
			return err
		}
		failed, err = o.failInTx(txCtx, *s, message)
		return err
	})
	if err != nil {
		tracer.RecordError(ctx, err)
		return nil, err
	}

	o.afterFinish(ctx, failed)
	return &failed, nil
}

func (o *Orchestrator) failInTx(ctx context.Context, s entity.Story, message string) (entity.Story, error) {
	next, err := s.MarkFailed(message, o.now())
	if err != nil {
		return entity.Story{}, err
	}
	if err := o.save(ctx, &next); err != nil {
		return entity.Story{}, err
	}
	return next, nil
}

func (o *Orchestrator) afterFinish(ctx context.Context, s entity.Story) {
	eventType := entity.EventTypeGenerationCompleted
	label := "succeed"
	payload := map[string]string{"slug": s.SlugValue()}
	if s.GenerationStatus == entity.GenerationFailed {
		eventType = entity.EventTypeGenerationFailed
		label = "fail"
		payload = map[string]string{"error": s.GenerationError}
		logger.Warn(ctx, "story generation failed", "story_id", s.ID, "reason", s.GenerationError)
	} else {
		logger.Info(ctx, "story generation completed", "story_id", s.ID, "slug", s.SlugValue())
	}

	metrics.StoryGenerationTotal.WithLabelValues(label).Inc()
	if s.GenerationStartedAt != nil {
		metrics.StoryGenerationDuration.
			WithLabelValues(string(s.GenerationStatus), o.tierLabel(s)).
			Observe(o.now().Sub(*s.GenerationStartedAt).Seconds())
	}
	o.publish(ctx, entity.NewStoryEvent(eventType, s, o.now(), payload))
}

// Progress 查询生成进度；队列查询失败时返回未知进度而不报错
func (o *Orchestrator) Progress(ctx context.Context, ownerID, storyID string) (*GenerationProgress, error) {
	s, err := o.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !s.IsOwnedBy(ownerID) {
		return nil, ErrForbidden
	}

	view := &GenerationProgress{
		StoryID: s.ID,
		Status:  s.GenerationStatus,
		JobID:   s.JobID,
		Error:   s.GenerationError,
	}
	switch s.GenerationStatus {
	case entity.GenerationPending:
		view.Progress = intPtr(0)
	case entity.GenerationCompleted:
		view.Progress = intPtr(100)
	case entity.GenerationProcessing:
		qctx, cancel := context.WithTimeout(ctx, o.cfg.StatusTimeout)
		defer cancel()
		job, err := o.queue.GetJob(qctx, s.JobID)
		if err != nil {
			logger.Warn(ctx, "job status lookup failed", "story_id", s.ID, "job_id", s.JobID, "error", err)
			break
		}
		if job != nil {
			view.Progress = intPtr(job.Progress)
			view.Stage = job.Stage
		}
	}
	return view, nil
}

func (o *Orchestrator) load(ctx context.Context, storyID string) (*entity.Story, error) {
	s, err := o.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrStoryNotFound
	}
	return s, nil
}

func (o *Orchestrator) loadLive(ctx context.Context, storyID, jobID string) (*entity.Story, error) {
	s, err := o.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !s.HasLiveJob(jobID) {
		return nil, ErrStaleJob
	}
	return s, nil
}

// save 乐观锁更新，版本冲突转换为 ErrConcurrentModification
func (o *Orchestrator) save(ctx context.Context, s *entity.Story) error {
	err := o.stories.Update(ctx, s)
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrConcurrentModification.WithError(err)
	}
	return err
}

func (o *Orchestrator) publish(ctx context.Context, event entity.DomainEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(ctx, event); err != nil {
		logger.Error(ctx, "failed to publish story event", err, "type", string(event.Type), "story_id", event.StoryID)
	}
}

func (o *Orchestrator) tierLabel(s entity.Story) string {
	res, err := o.resolver.Resolve(s.Language.Code)
	if err != nil {
		return "unknown"
	}
	return res.Tier.String()
}

func jobFor(s entity.Story, res language.Resolution, now time.Time) service.GenerationJob {
	return service.GenerationJob{
		JobID:            s.JobID,
		StoryID:          s.ID,
		Title:            s.Title,
		Synopsis:         s.Synopsis,
		Theme:            s.Theme.Name,
		Protagonist:      s.Protagonist,
		ChildAge:         s.ChildAge,
		NumberOfChapters: s.NumberOfChapters,
		Language:         res.Code,
		Tone:             s.Tone.Name,
		Species:          s.Species,
		OwnerID:          s.OwnerID,
		IsPublic:         s.IsPublic,
		EnqueuedAt:       now.UTC(),
	}
}

func intPtr(v int) *int {
	return &v
}
