package service

import (
	"context"

	"fable-ai-api/internal/domain/entity"
)

// EventPublisher 领域事件发布
type EventPublisher interface {
	Publish(ctx context.Context, event entity.DomainEvent) error
}
