package story

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/tracer"
)

// QuotaChecker 配额策略
type QuotaChecker interface {
	CheckAndReserve(ctx context.Context, ownerID string, isPremium bool, now time.Time) (entity.QuotaDecision, error)
	Status(ctx context.Context, ownerID string, isPremium bool) (entity.QuotaDecision, error)
}

// PublicStoryCache 公开故事读缓存
type PublicStoryCache interface {
	GetStory(ctx context.Context, slug string) (*entity.Story, bool, error)
	SetStory(ctx context.Context, story *entity.Story) error
	Invalidate(ctx context.Context, slug string) error
}

// Service 故事应用服务
type Service struct {
	stories repository.StoryRepository
	owners  repository.OwnerRepository
	tx      repository.Transactor
	quota   QuotaChecker
	orch    *Orchestrator
	events  service.EventPublisher
	cache   PublicStoryCache

	group singleflight.Group
	now   func() time.Time
}

// NewService 创建故事服务，cache 可为 nil
func NewService(
	stories repository.StoryRepository,
	owners repository.OwnerRepository,
	tx repository.Transactor,
	quota QuotaChecker,
	orch *Orchestrator,
	events service.EventPublisher,
	cache PublicStoryCache,
) *Service {
	return &Service{
		stories: stories,
		owners:  owners,
		tx:      tx,
		quota:   quota,
		orch:    orch,
		events:  events,
		cache:   cache,
		now:     time.Now,
	}
}

// Create 检查配额、创建故事并派发生成任务
// 整个过程在一个事务内，被拒绝或无法入队时不会留下记录
func (s *Service) Create(ctx context.Context, params entity.NewStoryParams) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "story.Service.Create")
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.orch.resolver.Resolve(params.Language.Code); err != nil {
		return nil, err
	}

	var created, dispatched entity.Story
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		owner, err := s.owners.LockForQuota(txCtx, params.OwnerID)
		if err != nil {
			return err
		}
		now := s.now()
		decision, err := s.quota.CheckAndReserve(txCtx, owner.ID, owner.Premium, now)
		if err != nil {
			return err
		}
		created, err = entity.NewStory(params, decision, now)
		if err != nil {
			return err
		}
		if err := s.stories.Create(txCtx, &created); err != nil {
			return err
		}
		dispatched, err = s.orch.dispatchInTx(txCtx, created, entity.Story.Dispatch)
		return err
	})
	if err != nil {
		tracer.RecordError(ctx, err)
		return nil, err
	}

	ctx = logger.WithContext(ctx, logger.StoryIDKey, created.ID)
	logger.Info(ctx, "story created", "owner_id", created.OwnerID, "language", created.Language.Code)
	s.orch.publish(ctx, entity.NewStoryEvent(entity.EventTypeStoryCreated, created, s.now(), nil))
	s.orch.afterDispatch(ctx, entity.EventTypeGenerationDispatch, dispatched)
	return &dispatched, nil
}

// Get 所有者可读任意状态，其他人只能读已完成的公开故事
func (s *Service) Get(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	st, err := s.orch.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !st.VisibleTo(ownerID) {
		return nil, ErrForbidden
	}
	return st, nil
}

// GetPublicBySlug 按 slug 读取公开故事，读穿缓存
func (s *Service) GetPublicBySlug(ctx context.Context, slug string) (*entity.Story, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetStory(ctx, slug)
		if err != nil {
			logger.Warn(ctx, "public story cache lookup failed", "slug", slug, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	v, err, _ := s.group.Do(slug, func() (any, error) {
		st, err := s.stories.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if st == nil || !st.IsPublic || st.GenerationStatus != entity.GenerationCompleted {
			return nil, ErrStoryNotFound
		}
		if s.cache != nil {
			if err := s.cache.SetStory(ctx, st); err != nil {
				logger.Warn(ctx, "public story cache write failed", "slug", slug, "error", err)
			}
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*entity.Story)
	return &cp, nil
}

// ListByOwner 分页列出所有者的故事
func (s *Service) ListByOwner(ctx context.Context, ownerID string, filter *repository.StoryFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	return s.stories.ListByOwner(ctx, ownerID, filter, pagination)
}

// Retry 重新派发失败的故事
func (s *Service) Retry(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return s.orch.Retry(ctx, ownerID, storyID)
}

// Progress 查询生成进度
func (s *Service) Progress(ctx context.Context, ownerID, storyID string) (*GenerationProgress, error) {
	return s.orch.Progress(ctx, ownerID, storyID)
}

// Publish 公开已完成的故事
func (s *Service) Publish(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return s.setVisibility(ctx, ownerID, storyID, true)
}

// Unpublish 取消公开
func (s *Service) Unpublish(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return s.setVisibility(ctx, ownerID, storyID, false)
}

func (s *Service) setVisibility(ctx context.Context, ownerID, storyID string, public bool) (*entity.Story, error) {
	var result entity.Story
	changed := false
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		st, err := s.orch.load(txCtx, storyID)
		if err != nil {
			return err
		}
		if !st.IsOwnedBy(ownerID) {
			return ErrForbidden
		}

		next, err := st.Publish()
		if !public {
			next, err = st.Unpublish()
		}
		if err != nil {
			return err
		}
		if next.IsPublic == st.IsPublic {
			result = *st
			return nil
		}
		next.UpdatedAt = s.now().UTC()
		if err := s.orch.save(txCtx, &next); err != nil {
			return err
		}
		result, changed = next, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &result, nil
	}

	s.invalidate(ctx, result.SlugValue())
	eventType := entity.EventTypeStoryPublished
	if !public {
		eventType = entity.EventTypeStoryUnpublished
	}
	logger.Info(ctx, "story visibility changed", "story_id", result.ID, "public", public)
	s.orch.publish(ctx, entity.NewStoryEvent(eventType, result, s.now(), map[string]string{"slug": result.SlugValue()}))
	return &result, nil
}

// Delete 软删除故事，不退还本月额度
func (s *Service) Delete(ctx context.Context, ownerID, storyID string) error {
	st, err := s.orch.load(ctx, storyID)
	if err != nil {
		return err
	}
	if !st.IsOwnedBy(ownerID) {
		return ErrForbidden
	}
	if err := s.stories.Delete(ctx, storyID); err != nil {
		return err
	}

	s.invalidate(ctx, st.SlugValue())
	logger.Info(ctx, "story deleted", "story_id", st.ID)
	s.orch.publish(ctx, entity.NewStoryEvent(entity.EventTypeStoryDeleted, *st, s.now(), nil))
	return nil
}

// QuotaStatus 查询本月额度使用情况
func (s *Service) QuotaStatus(ctx context.Context, ownerID string) (entity.QuotaDecision, error) {
	owner, err := s.owners.Get(ctx, ownerID)
	if err != nil {
		return entity.QuotaDecision{}, err
	}
	premium := owner != nil && owner.Premium
	return s.quota.Status(ctx, ownerID, premium)
}

func (s *Service) invalidate(ctx context.Context, slug string) {
	if s.cache == nil || slug == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, slug); err != nil {
		logger.Warn(ctx, "public story cache invalidation failed", "slug", slug, "error", err)
	}
}
