package entity

import "time"

// QuotaDecision 配额检查结果
type QuotaDecision struct {
	Allowed      bool      `json:"allowed"`
	Premium      bool      `json:"premium"`
	CurrentCount int       `json:"current_count"`
	Limit        int       `json:"limit"`
	ResetDate    time.Time `json:"reset_date"`
}

// Remaining 剩余额度，premium 返回 -1
func (d QuotaDecision) Remaining() int {
	if d.Premium {
		return -1
	}
	if left := d.Limit - d.CurrentCount; left > 0 {
		return left
	}
	return 0
}

// Err 被拒绝时返回 *StoryQuotaExceededError
func (d QuotaDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &StoryQuotaExceededError{
		CurrentCount: d.CurrentCount,
		Limit:        d.Limit,
		ResetDate:    d.ResetDate,
	}
}
