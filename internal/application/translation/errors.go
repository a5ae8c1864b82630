// Package translation 负责按档位决策调用翻译提供商
package translation

import (
	"context"
	"errors"
	"fmt"

	"fable-ai-api/internal/application/language"
	apperrors "fable-ai-api/pkg/errors"
)

// ErrProviderNotConfigured 档位需要的提供商未注册
var ErrProviderNotConfigured = errors.New("translation provider not configured")

// ProviderError 翻译提供商调用失败
type ProviderError struct {
	Provider   string
	Transient  bool
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrorKind 实现 apperrors.Kinded
func (e *ProviderError) ErrorKind() apperrors.Kind {
	return apperrors.KindProvider
}

// IsTransient 判断错误是否可重试
// 超时视为临时错误，语言校验失败与未识别错误视为永久错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var tve *language.TranslationValidationError
	if errors.As(err, &tve) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTransientStatus 429 与 5xx 可重试
func IsTransientStatus(code int) bool {
	return code == 429 || code >= 500
}
