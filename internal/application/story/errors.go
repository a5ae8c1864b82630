// Package story 编排故事的创建、生成与发布
package story

import (
	"errors"

	apperrors "fable-ai-api/pkg/errors"
)

var (
	// ErrStoryNotFound 故事不存在或已删除
	ErrStoryNotFound = apperrors.ErrStoryNotFound
	// ErrForbidden 故事不属于调用方
	ErrForbidden = apperrors.New(apperrors.CodeForbidden, "story belongs to another owner")
	// ErrConcurrentModification 读取后故事已被其他请求修改
	ErrConcurrentModification = apperrors.New(apperrors.CodeConcurrentModification, "story was modified concurrently")
	// ErrDuplicateSlug 重新生成后 slug 仍冲突
	ErrDuplicateSlug = apperrors.New(apperrors.CodeDuplicateSlug, "story slug already taken")
	// ErrEnqueueFailed 任务未能入队，故事状态已回滚
	ErrEnqueueFailed = apperrors.New(apperrors.CodeQueueError, "generation job could not be enqueued")

	// ErrStaleJob 任务已不是故事当前的任务，结果被丢弃
	ErrStaleJob = errors.New("story: stale generation job")

	// errJobNotReady 派发事务尚未对消费者可见，交给队列重投
	errJobNotReady = errors.New("story: generation job not visible yet")
)
