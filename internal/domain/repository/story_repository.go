package repository

import (
	"context"
	"time"

	"fable-ai-api/internal/domain/entity"
)

// StoryFilter 故事列表过滤条件
type StoryFilter struct {
	Status   entity.GenerationStatus
	IsPublic *bool
}

// StoryRepository 故事仓储接口
type StoryRepository interface {
	// Create 创建故事
	Create(ctx context.Context, story *entity.Story) error

	// GetByID 根据 ID 获取故事，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Story, error)

	// GetBySlug 根据 slug 获取故事，不存在时返回 nil, nil
	GetBySlug(ctx context.Context, slug string) (*entity.Story, error)

	// Update 整记录更新，以 story.Version 作为期望版本
	// 版本不匹配返回 ErrVersionConflict，slug 冲突返回 ErrDuplicateSlug；成功后 story.Version 递增
	Update(ctx context.Context, story *entity.Story) error

	// Delete 软删除
	Delete(ctx context.Context, id string) error

	// CountCreatedBetween 统计 [start, end) 内创建的故事数量，包含已软删除的记录
	CountCreatedBetween(ctx context.Context, ownerID string, start, end time.Time) (int, error)

	// SlugExists 检查 slug 是否已被占用（含软删除记录）
	SlugExists(ctx context.Context, slug string) (bool, error)

	// ListByOwner 获取所有者的故事列表
	ListByOwner(ctx context.Context, ownerID string, filter *StoryFilter, pagination Pagination) (*PagedResult[*entity.Story], error)
}

// OwnerRepository 所有者仓储接口
type OwnerRepository interface {
	// Get 获取所有者，不存在时返回 nil, nil
	Get(ctx context.Context, id string) (*entity.Owner, error)

	// LockForQuota 确保所有者记录存在并在当前事务内加行锁
	LockForQuota(ctx context.Context, id string) (*entity.Owner, error)

	// SetSubscription 更新订阅状态与付费标记
	SetSubscription(ctx context.Context, id string, status entity.SubscriptionStatus, changedAt time.Time) error
}

// ProcessedEventRepository 外部事件去重仓储
type ProcessedEventRepository interface {
	// Record 记录事件，已存在时返回 inserted=false
	Record(ctx context.Context, event *entity.ProcessedEvent) (inserted bool, err error)
}
