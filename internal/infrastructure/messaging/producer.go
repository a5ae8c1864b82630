package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/service"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流，返回流内消息 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	msg.stampContext(ctx)
	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishGenerationJob 发布生成任务
func (p *Producer) PublishGenerationJob(ctx context.Context, job service.GenerationJob) (string, error) {
	msg, err := NewMessage(job.JobID, TypeGenerateStory, job)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("story_id", job.StoryID)
	return p.Publish(ctx, StreamGenerationJobs, msg)
}

// PublishEvent 发布领域事件
func (p *Producer) PublishEvent(ctx context.Context, event entity.DomainEvent) (string, error) {
	msg, err := NewMessage(event.ID, string(event.Type), event)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("story_id", event.StoryID)
	return p.Publish(ctx, StreamStoryEvents, msg)
}
