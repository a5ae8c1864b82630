package entity

import (
	"fmt"
	"time"

	apperrors "fable-ai-api/pkg/errors"
)

// InvalidStateTransitionError 非法的生成状态迁移
type InvalidStateTransitionError struct {
	From   GenerationStatus
	To     GenerationStatus
	Event  GenerationEvent
	Reason string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s on %s: %s", e.From, e.To, e.Event, e.Reason)
}

// ErrorKind 实现 apperrors.Kinded
func (e *InvalidStateTransitionError) ErrorKind() apperrors.Kind {
	return apperrors.KindDomain
}

// InvariantViolationError 聚合不变量被破坏
type InvariantViolationError struct {
	Field  string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	if e.Field == "" {
		return "invariant violation: " + e.Reason
	}
	return fmt.Sprintf("invariant violation on %s: %s", e.Field, e.Reason)
}

// ErrorKind 实现 apperrors.Kinded
func (e *InvariantViolationError) ErrorKind() apperrors.Kind {
	return apperrors.KindDomain
}

func violation(field, format string, args ...any) error {
	return &InvariantViolationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StoryQuotaExceededError 免费额度已用完
type StoryQuotaExceededError struct {
	CurrentCount int
	Limit        int
	ResetDate    time.Time
}

func (e *StoryQuotaExceededError) Error() string {
	return fmt.Sprintf("monthly story quota exceeded: %d/%d, resets at %s",
		e.CurrentCount, e.Limit, e.ResetDate.Format(time.RFC3339))
}

// ErrorKind 实现 apperrors.Kinded
func (e *StoryQuotaExceededError) ErrorKind() apperrors.Kind {
	return apperrors.KindApplication
}
