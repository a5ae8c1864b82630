package dto

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/domain/entity"
	apperrors "fable-ai-api/pkg/errors"
	"fable-ai-api/pkg/logger"
)

// FromError 把各层的类型化错误转换为 AppError
func FromError(err error) *apperrors.AppError {
	var (
		appErr *apperrors.AppError
		quota  *entity.StoryQuotaExceededError
		ist    *entity.InvalidStateTransitionError
		inv    *entity.InvariantViolationError
		tve    *language.TranslationValidationError
		pe     *translation.ProviderError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &quota):
		return apperrors.Wrap(err, apperrors.CodeQuotaExceeded, "monthly story quota exceeded").
			WithField("current_count", quota.CurrentCount).
			WithField("limit", quota.Limit).
			WithField("reset_date", quota.ResetDate.UTC().Format(time.RFC3339))
	case errors.As(err, &ist):
		return apperrors.Wrap(err, apperrors.CodeInvalidStateTransition, "invalid state transition").
			WithDetail(ist.Reason).
			WithField("from", ist.From).
			WithField("event", ist.Event)
	case errors.As(err, &inv):
		return apperrors.Wrap(err, apperrors.CodeInvariantViolation, "invalid story").
			WithDetail(inv.Reason).
			WithField("field", inv.Field)
	case errors.As(err, &tve):
		return apperrors.Wrap(err, apperrors.CodeTranslationValidation, "unsupported language").
			WithDetail(tve.Reason).
			WithField("language", tve.Code)
	case errors.As(err, &pe):
		return apperrors.Wrap(err, apperrors.CodeTranslationUnavailable, "translation provider unavailable").
			WithField("provider", pe.Provider)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrServiceUnavailable.WithError(err)
	default:
		return apperrors.ErrInternalError.WithError(err)
	}
}

// Fail 写出错误响应；5xx 记录错误日志，内部细节不返回给调用方
func Fail(c *gin.Context, err error) {
	appErr := FromError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath(), "code", appErr.Code)
		ErrorWithDetail(c, status, appErr.Message, &ErrorDetail{
			ErrorCode: string(appErr.Code),
			Kind:      string(appErr.Kind),
		})
		return
	}

	ErrorWithDetail(c, status, appErr.Message, &ErrorDetail{
		ErrorCode: string(appErr.Code),
		Kind:      string(appErr.Kind),
		Details:   appErr.Detail,
		Fields:    appErr.Fields,
	})
}
