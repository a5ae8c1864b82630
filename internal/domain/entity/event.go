package entity

import (
	"time"

	"github.com/google/uuid"
)

// DomainEventType 领域事件类型
type DomainEventType string

const (
	EventTypeStoryCreated        DomainEventType = "story.created"
	EventTypeGenerationDispatch  DomainEventType = "story.generation_dispatched"
	EventTypeGenerationCompleted DomainEventType = "story.generation_completed"
	EventTypeGenerationFailed    DomainEventType = "story.generation_failed"
	EventTypeGenerationRetried   DomainEventType = "story.generation_retried"
	EventTypeStoryPublished      DomainEventType = "story.published"
	EventTypeStoryUnpublished    DomainEventType = "story.unpublished"
	EventTypeStoryDeleted        DomainEventType = "story.deleted"
)

// DomainEvent 故事生命周期事件
type DomainEvent struct {
	ID         string            `json:"id"`
	Type       DomainEventType   `json:"type"`
	StoryID    string            `json:"story_id"`
	OwnerID    string            `json:"owner_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// NewStoryEvent 基于故事当前值创建事件
func NewStoryEvent(t DomainEventType, s Story, now time.Time, payload map[string]string) DomainEvent {
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       t,
		StoryID:    s.ID,
		OwnerID:    s.OwnerID,
		OccurredAt: now.UTC(),
		Payload:    payload,
	}
}
