// Package subscription 处理支付方推送的订阅变更
package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	apperrors "fable-ai-api/pkg/errors"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/metrics"
)

// Event 订阅变更事件
type Event struct {
	Provider   string
	EventID    string
	EventType  string
	OwnerID    string
	Status     entity.SubscriptionStatus
	OccurredAt time.Time
	Payload    []byte
}

// Result 处理结果
type Result struct {
	// Duplicate 同一事件已处理过
	Duplicate bool
	// Applied 所有者状态被更新；过期事件为 false
	Applied bool
}

// Processor 幂等地应用订阅事件
type Processor struct {
	tx        repository.Transactor
	owners    repository.OwnerRepository
	processed repository.ProcessedEventRepository
	now       func() time.Time
}

// NewProcessor 创建订阅事件处理器
func NewProcessor(tx repository.Transactor, owners repository.OwnerRepository, processed repository.ProcessedEventRepository) *Processor {
	return &Processor{
		tx:        tx,
		owners:    owners,
		processed: processed,
		now:       time.Now,
	}
}

func (e Event) validate() error {
	switch {
	case strings.TrimSpace(e.Provider) == "":
		return apperrors.ErrInvalidParam.WithDetail("provider is required")
	case strings.TrimSpace(e.EventID) == "":
		return apperrors.ErrInvalidParam.WithDetail("event_id is required")
	case strings.TrimSpace(e.OwnerID) == "":
		return apperrors.ErrInvalidParam.WithDetail("owner_id is required")
	}
	switch e.Status {
	case entity.SubscriptionNone, entity.SubscriptionActive, entity.SubscriptionPastDue, entity.SubscriptionCanceled:
		return nil
	}
	return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown subscription status %q", e.Status))
}

// Process 先记录事件再更新所有者，两者在同一事务内
// 重复投递返回 Duplicate=true 且不报错
func (p *Processor) Process(ctx context.Context, ev Event) (Result, error) {
	if err := ev.validate(); err != nil {
		return Result{}, err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now()
	}
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, ev.OwnerID)

	var res Result
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		inserted, err := p.processed.Record(txCtx, &entity.ProcessedEvent{
			Provider:    ev.Provider,
			EventID:     ev.EventID,
			EventType:   ev.EventType,
			Payload:     datatypes.JSON(ev.Payload),
			ProcessedAt: p.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			res.Duplicate = true
			return nil
		}

		owner, err := p.owners.LockForQuota(txCtx, ev.OwnerID)
		if err != nil {
			return err
		}
		if owner.SubscriptionChangedAt != nil && ev.OccurredAt.Before(*owner.SubscriptionChangedAt) {
			logger.Info(txCtx, "ignoring out-of-order subscription event",
				"event_id", ev.EventID, "occurred_at", ev.OccurredAt, "current_since", *owner.SubscriptionChangedAt)
			return nil
		}
		if err := p.owners.SetSubscription(txCtx, ev.OwnerID, ev.Status, ev.OccurredAt.UTC()); err != nil {
			return err
		}
		res.Applied = true
		return nil
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Provider, "error").Inc()
		return Result{}, err
	}

	outcome := "processed"
	if res.Duplicate {
		outcome = "duplicate"
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Provider, outcome).Inc()
	logger.Info(ctx, "subscription event handled",
		"provider", ev.Provider, "event_id", ev.EventID, "status", string(ev.Status), "outcome", outcome, "applied", res.Applied)
	return res, nil
}
