package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
)

// StoryRepository 故事仓储实现
type StoryRepository struct {
	client *Client
}

// NewStoryRepository 创建故事仓储
func NewStoryRepository(client *Client) *StoryRepository {
	return &StoryRepository{client: client}
}

// Create 创建故事
func (r *StoryRepository) Create(ctx context.Context, story *entity.Story) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(story).Error; err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateSlug
		}
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取故事
func (r *StoryRepository) GetByID(ctx context.Context, id string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var story entity.Story
	if err := db.First(&story, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &story, nil
}

// GetBySlug 根据 slug 获取故事
func (r *StoryRepository) GetBySlug(ctx context.Context, slug string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetBySlug")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var story entity.Story
	if err := db.First(&story, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story by slug: %w", err)
	}
	return &story, nil
}

// Update 以 version 为条件整记录更新
func (r *StoryRepository) Update(ctx context.Context, story *entity.Story) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Update")
	defer span.End()

	expected := story.Version
	next := *story
	next.Version = expected + 1

	db := getDB(ctx, r.client.db)
	res := db.Model(&next).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(&next)
	if res.Error != nil {
		span.RecordError(res.Error)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateSlug
		}
		return fmt.Errorf("failed to update story: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionConflict
	}

	story.Version = next.Version
	story.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete 软删除故事
func (r *StoryRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Story{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// CountCreatedBetween 统计时间窗口内创建的故事，软删除的记录同样计数
func (r *StoryRepository) CountCreatedBetween(ctx context.Context, ownerID string, start, end time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.CountCreatedBetween")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	err := db.Unscoped().Model(&entity.Story{}).
		Where("owner_id = ? AND created_at >= ? AND created_at < ?", ownerID, start, end).
		Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}
	return int(count), nil
}

// SlugExists 检查 slug 是否已占用，包含软删除记录
func (r *StoryRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.SlugExists")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Unscoped().Model(&entity.Story{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return count > 0, nil
}

// ListByOwner 获取所有者的故事列表
func (r *StoryRepository) ListByOwner(ctx context.Context, ownerID string, filter *repository.StoryFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.ListByOwner")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Story{}).Where("owner_id = ?", ownerID)

	if filter != nil {
		if filter.Status != "" {
			query = query.Where("generation_status = ?", filter.Status)
		}
		if filter.IsPublic != nil {
			query = query.Where("is_public = ?", *filter.IsPublic)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	var stories []*entity.Story
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&stories).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	return repository.NewPagedResult(stories, total, pagination), nil
}
