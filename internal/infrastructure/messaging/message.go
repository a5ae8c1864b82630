// Package messaging 基于 Redis Streams 的任务队列与事件流
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fable-ai-api/pkg/logger"
)

// Message 流中的消息信封
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据，空值忽略
func (m *Message) SetMetadata(key, value string) {
	if value == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// 跨进程传递的日志上下文
var propagatedKeys = []logger.ContextKey{logger.RequestIDKey, logger.TraceIDKey, logger.OwnerIDKey}

// stampContext 把请求链路上的日志字段写入元数据
func (m *Message) stampContext(ctx context.Context) {
	for _, key := range propagatedKeys {
		if v, ok := ctx.Value(key).(string); ok {
			m.SetMetadata(string(key), v)
		}
	}
}

// restoreContext 消费侧还原日志字段
func (m *Message) restoreContext(ctx context.Context) context.Context {
	for _, key := range propagatedKeys {
		if v := m.GetMetadata(string(key)); v != "" {
			ctx = logger.WithContext(ctx, key, v)
		}
	}
	return ctx
}

// Stream 流定义
type Stream string

const (
	StreamGenerationJobs Stream = "stream:story:gen"
	StreamStoryEvents    Stream = "stream:story:events"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupGenWorker ConsumerGroup = "cg-gen-worker"
)

// 消息类型
const (
	TypeGenerateStory = "story.generate"
)

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 第 retryCount 次重投前的等待时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			backoff = c.Max
			break
		}
	}
	return backoff
}
