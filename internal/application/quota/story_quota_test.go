package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable-ai-api/internal/domain/entity"
)

// memCounter 记录创建时间的内存计数器
type memCounter struct {
	created map[string][]time.Time
	calls   int
	err     error
}

func newMemCounter() *memCounter {
	return &memCounter{created: map[string][]time.Time{}}
}

func (c *memCounter) CountCreatedBetween(_ context.Context, ownerID string, start, end time.Time) (int, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	n := 0
	for _, t := range c.created[ownerID] {
		if !t.Before(start) && t.Before(end) {
			n++
		}
	}
	return n, nil
}

func TestMonthWindow(t *testing.T) {
	start, end := MonthWindow(time.Date(2024, 12, 31, 23, 59, 0, 0, time.FixedZone("x", -3600)))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), start, "converted to UTC first")
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestCheckAndReserve_LimitBoundaryAndRollover(t *testing.T) {
	counter := newMemCounter()
	policy := NewStoryQuotaPolicy(counter, 3)
	ctx := context.Background()
	march := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		now := march.Add(time.Duration(i) * time.Hour)
		d, err := policy.CheckAndReserve(ctx, "owner-1", false, now)
		require.NoError(t, err)
		require.True(t, d.Allowed, "story %d", i)
		counter.created["owner-1"] = append(counter.created["owner-1"], now)
	}

	d, err := policy.CheckAndReserve(ctx, "owner-1", false, march.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	var qe *entity.StoryQuotaExceededError
	require.True(t, errors.As(d.Err(), &qe))
	assert.Equal(t, 3, qe.CurrentCount)
	assert.Equal(t, 3, qe.Limit)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), qe.ResetDate)

	d, err = policy.CheckAndReserve(ctx, "owner-1", false, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.CurrentCount)
}

func TestCheckAndReserve_PremiumSkipsCount(t *testing.T) {
	counter := newMemCounter()
	policy := NewStoryQuotaPolicy(counter, 3)

	d, err := policy.CheckAndReserve(context.Background(), "owner-1", true, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Premium)
	assert.Zero(t, counter.calls)
}

func TestCheckAndReserve_CounterError(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("db down")
	policy := NewStoryQuotaPolicy(counter, 0)
	assert.Equal(t, DefaultFreeMonthlyLimit, policy.Limit())

	_, err := policy.CheckAndReserve(context.Background(), "owner-1", false, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, counter.err)
}

func TestStatus_UsesClock(t *testing.T) {
	counter := newMemCounter()
	counter.created["owner-1"] = []time.Time{time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}
	policy := NewStoryQuotaPolicy(counter, 3)
	policy.now = func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) }

	d, err := policy.Status(context.Background(), "owner-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentCount)
	assert.Equal(t, 2, d.Remaining())
}
