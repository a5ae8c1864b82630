// Package quota 提供故事创建配额相关能力
package quota

import (
	"context"
	"fmt"
	"time"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/pkg/metrics"
)

// DefaultFreeMonthlyLimit 免费用户每自然月可创建的故事数
const DefaultFreeMonthlyLimit = 3

// StoryCounter 统计时间窗口内创建的故事数
type StoryCounter interface {
	CountCreatedBetween(ctx context.Context, ownerID string, start, end time.Time) (int, error)
}

// StoryQuotaPolicy 按 UTC 自然月限制免费用户创建故事
type StoryQuotaPolicy struct {
	counter StoryCounter
	limit   int
	now     func() time.Time
}

// NewStoryQuotaPolicy 创建配额策略，limit<=0 时使用默认值
func NewStoryQuotaPolicy(counter StoryCounter, limit int) *StoryQuotaPolicy {
	if limit <= 0 {
		limit = DefaultFreeMonthlyLimit
	}
	return &StoryQuotaPolicy{
		counter: counter,
		limit:   limit,
		now:     time.Now,
	}
}

// Limit 免费额度
func (p *StoryQuotaPolicy) Limit() int {
	return p.limit
}

// CheckAndReserve 在创建故事前检查额度
// 付费用户直接放行且不计数；调用方须在持有所有者行锁的事务内调用，保证计数与创建原子
func (p *StoryQuotaPolicy) CheckAndReserve(ctx context.Context, ownerID string, isPremium bool, now time.Time) (entity.QuotaDecision, error) {
	start, end := MonthWindow(now)
	if isPremium {
		return entity.QuotaDecision{Allowed: true, Premium: true, ResetDate: end}, nil
	}

	count, err := p.counter.CountCreatedBetween(ctx, ownerID, start, end)
	if err != nil {
		return entity.QuotaDecision{}, fmt.Errorf("count stories for quota: %w", err)
	}

	decision := entity.QuotaDecision{
		Allowed:      count < p.limit,
		CurrentCount: count,
		Limit:        p.limit,
		ResetDate:    end,
	}
	if !decision.Allowed {
		metrics.QuotaRejectionsTotal.Inc()
	}
	return decision, nil
}

// Status 查询当前额度使用情况，不用于放行判断
func (p *StoryQuotaPolicy) Status(ctx context.Context, ownerID string, isPremium bool) (entity.QuotaDecision, error) {
	start, end := MonthWindow(p.now())
	if isPremium {
		return entity.QuotaDecision{Allowed: true, Premium: true, ResetDate: end}, nil
	}
	count, err := p.counter.CountCreatedBetween(ctx, ownerID, start, end)
	if err != nil {
		return entity.QuotaDecision{}, fmt.Errorf("count stories for quota: %w", err)
	}
	return entity.QuotaDecision{
		Allowed:      count < p.limit,
		CurrentCount: count,
		Limit:        p.limit,
		ResetDate:    end,
	}, nil
}

// MonthWindow 返回 now 所在 UTC 自然月的 [start, end)
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
