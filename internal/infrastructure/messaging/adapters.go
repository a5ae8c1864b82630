package messaging

import (
	"context"
	"fmt"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/logger"
)

// JobStatusStore 任务进度存储
type JobStatusStore interface {
	service.ProgressReporter
	GetJob(ctx context.Context, jobID string) (*service.JobProgress, error)
}

// JobQueue 以生成任务流实现 service.JobQueue
type JobQueue struct {
	producer *Producer
	status   JobStatusStore
}

var _ service.JobQueue = (*JobQueue)(nil)

// NewJobQueue 创建任务队列
func NewJobQueue(producer *Producer, status JobStatusStore) *JobQueue {
	return &JobQueue{producer: producer, status: status}
}

// Enqueue XADD 成功即视为入队确认
func (q *JobQueue) Enqueue(ctx context.Context, job service.GenerationJob) error {
	id, err := q.producer.PublishGenerationJob(ctx, job)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "generation job enqueued", "job_id", job.JobID, "stream_id", id)

	if err := q.status.ReportProgress(ctx, job.JobID, 0, "queued"); err != nil {
		logger.Warn(ctx, "failed to seed job status", "job_id", job.JobID, "error", err)
	}
	return nil
}

// GetJob 查询任务进度
func (q *JobQueue) GetJob(ctx context.Context, jobID string) (*service.JobProgress, error) {
	return q.status.GetJob(ctx, jobID)
}

// EventPublisher 把领域事件写入事件流
type EventPublisher struct {
	producer *Producer
}

var _ service.EventPublisher = (*EventPublisher)(nil)

func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func (p *EventPublisher) Publish(ctx context.Context, event entity.DomainEvent) error {
	_, err := p.producer.PublishEvent(ctx, event)
	return err
}

// GenerationJobHandler 把生成任务消息交给 handle 执行
// 载荷无法解析的消息直接确认，不进入重试
func GenerationJobHandler(handle func(ctx context.Context, job service.GenerationJob, attempt int) error) MessageHandler {
	return func(ctx context.Context, msg *Message, attempt int) error {
		var job service.GenerationJob
		if err := msg.UnmarshalPayload(&job); err != nil {
			logger.Error(ctx, "discarding malformed generation job", err, "message_id", msg.ID)
			return nil
		}
		if job.JobID == "" || job.StoryID == "" {
			logger.Warn(ctx, "discarding generation job without ids", "message_id", msg.ID)
			return nil
		}
		if err := handle(ctx, job, attempt); err != nil {
			return fmt.Errorf("job %s attempt %d: %w", job.JobID, attempt, err)
		}
		return nil
	}
}
