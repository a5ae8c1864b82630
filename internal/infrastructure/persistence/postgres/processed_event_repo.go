package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"fable-ai-api/internal/domain/entity"
)

// ProcessedEventRepository 外部事件去重仓储实现
type ProcessedEventRepository struct {
	client *Client
}

// NewProcessedEventRepository 创建事件去重仓储
func NewProcessedEventRepository(client *Client) *ProcessedEventRepository {
	return &ProcessedEventRepository{client: client}
}

// Record 插入事件记录，主键冲突时不报错并返回 false
func (r *ProcessedEventRepository) Record(ctx context.Context, event *entity.ProcessedEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProcessedEventRepository.Record")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to record processed event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
