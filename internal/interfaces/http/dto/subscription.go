package dto

import (
	"time"

	"fable-ai-api/internal/application/subscription"
	"fable-ai-api/internal/domain/entity"
)

// SubscriptionWebhookRequest 支付方推送的订阅变更
type SubscriptionWebhookRequest struct {
	Provider   string     `json:"provider" binding:"required"`
	EventID    string     `json:"event_id" binding:"required"`
	EventType  string     `json:"event_type"`
	OwnerID    string     `json:"owner_id" binding:"required"`
	Status     string     `json:"status" binding:"required"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// ToEvent raw 为原始请求体，随事件一起落库
func (r *SubscriptionWebhookRequest) ToEvent(raw []byte) subscription.Event {
	ev := subscription.Event{
		Provider:  r.Provider,
		EventID:   r.EventID,
		EventType: r.EventType,
		OwnerID:   r.OwnerID,
		Status:    entity.SubscriptionStatus(r.Status),
		Payload:   raw,
	}
	if r.OccurredAt != nil {
		ev.OccurredAt = *r.OccurredAt
	}
	return ev
}

// SubscriptionWebhookResponse 处理结果
type SubscriptionWebhookResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Applied   bool   `json:"applied"`
}
