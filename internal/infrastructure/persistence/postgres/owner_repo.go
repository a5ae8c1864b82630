package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fable-ai-api/internal/domain/entity"
)

// OwnerRepository 所有者仓储实现
type OwnerRepository struct {
	client *Client
}

// NewOwnerRepository 创建所有者仓储
func NewOwnerRepository(client *Client) *OwnerRepository {
	return &OwnerRepository{client: client}
}

// Get 获取所有者
func (r *OwnerRepository) Get(ctx context.Context, id string) (*entity.Owner, error) {
	ctx, span := tracer.Start(ctx, "postgres.OwnerRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var owner entity.Owner
	if err := db.First(&owner, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return &owner, nil
}

// LockForQuota 不存在时先插入，再以 FOR UPDATE 锁定该行
// 必须在事务内调用，锁在事务结束时释放
func (r *OwnerRepository) LockForQuota(ctx context.Context, id string) (*entity.Owner, error) {
	ctx, span := tracer.Start(ctx, "postgres.OwnerRepository.LockForQuota")
	defer span.End()

	db := getDB(ctx, r.client.db)
	seed := entity.Owner{ID: id, SubscriptionStatus: entity.SubscriptionNone}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to ensure owner: %w", err)
	}

	var owner entity.Owner
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&owner, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock owner: %w", err)
	}
	return &owner, nil
}

// SetSubscription 写入订阅状态，付费标记由状态推导
func (r *OwnerRepository) SetSubscription(ctx context.Context, id string, status entity.SubscriptionStatus, changedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.OwnerRepository.SetSubscription")
	defer span.End()

	db := getDB(ctx, r.client.db)
	owner := entity.Owner{
		ID:                    id,
		Premium:               status.GrantsPremium(),
		SubscriptionStatus:    status,
		SubscriptionChangedAt: &changedAt,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"premium", "subscription_status", "subscription_changed_at", "updated_at"}),
	}).Create(&owner).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return nil
}
