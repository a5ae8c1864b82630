// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeStoryNotFound ErrorCode = "3001"
	CodeOwnerNotFound ErrorCode = "3002"

	// 领域错误 (4xxx)
	CodeInvalidStateTransition ErrorCode = "4001"
	CodeInvariantViolation     ErrorCode = "4002"
	CodeQuotaExceeded          ErrorCode = "4003"
	CodeDuplicateSlug          ErrorCode = "4004"
	CodeConcurrentModification ErrorCode = "4005"
	CodeGenerationFailed       ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeDatabaseError          ErrorCode = "5001"
	CodeCacheError             ErrorCode = "5002"
	CodeQueueError             ErrorCode = "5003"
	CodeLLMProviderError       ErrorCode = "5004"
	CodeTranslationValidation  ErrorCode = "5101"
	CodeTranslationUnavailable ErrorCode = "5102"
)

// Kind 错误分层标签
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindDomain      Kind = "domain"
	KindApplication Kind = "application"
	KindProvider    Kind = "provider"
)

// Kinded 由各层的类型化错误实现，用于在边界处归类
type Kinded interface {
	ErrorKind() Kind
}

// AppError 应用错误
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	Detail     string         `json:"detail,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorKind 实现 Kinded
func (e *AppError) ErrorKind() Kind {
	return e.Kind
}

// WithDetail 返回带详细信息的副本
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithField 返回附加结构化字段的副本
func (e *AppError) WithField(key string, value any) *AppError {
	cp := *e
	cp.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Kind:       codeToKind(code),
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Kind:       codeToKind(code),
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeStoryNotFound, CodeOwnerNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidStateTransition, CodeDuplicateSlug, CodeConcurrentModification:
		return http.StatusConflict
	case CodeInvariantViolation, CodeTranslationValidation:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeLLMProviderError, CodeTranslationUnavailable, CodeQueueError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// codeToKind 错误码归属的层
func codeToKind(code ErrorCode) Kind {
	switch code {
	case CodeInvalidStateTransition, CodeInvariantViolation:
		return KindDomain
	case CodeLLMProviderError, CodeTranslationValidation, CodeTranslationUnavailable,
		CodeQueueError, CodeDatabaseError, CodeCacheError:
		return KindProvider
	case CodeUnknown, CodeInternalError:
		return KindUnknown
	default:
		return KindApplication
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrStoryNotFound = New(CodeStoryNotFound, "story not found")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// KindOf 返回错误所属的层，无法识别时返回 KindUnknown
func KindOf(err error) Kind {
	var k Kinded
	if stderrors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}

// HasCode 判断错误链中是否存在指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
