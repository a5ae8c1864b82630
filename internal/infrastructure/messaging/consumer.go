package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/metrics"
)

// MessageHandler 消息处理函数；attempt 为该消息的投递次数，从 1 开始
// 返回错误时消息保留在 pending 列表，按退避重投
type MessageHandler func(ctx context.Context, msg *Message, attempt int) error

// Consumer 消费者组中的一个消费者
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	// ReclaimIdle 其他消费者的消息空闲超过该时间后被接管
	ReclaimIdle time.Duration
	RetryLimit  int
	Backoff     BackoffConfig
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = maxDuration(5*time.Minute, cfg.Backoff.Max*2)
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   cfg.ReclaimIdle,
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := EnsureGroup(ctx, c.client, c.stream, c.group); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	go c.run(ctx)
	return nil
}

// EnsureGroup 确保消费者组存在
func EnsureGroup(ctx context.Context, client *redis.Client, stream Stream, group ConsumerGroup) error {
	err := client.XGroupCreateMkStream(ctx, string(stream), string(group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}
	return nil
}

// Stop 停止消费并等待当前消息处理完
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	done := c.done
	c.mu.Unlock()
	<-done
}

func (c *Consumer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// run 消费循环
func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	logger.Info(ctx, "consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)

	lastClaim := time.Now().Add(-c.claimInterval)

	for !c.stopped(ctx) {
		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || c.stopped(ctx) {
				continue
			}
			logger.Error(ctx, "failed to read from stream", err, "stream", c.stream)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
	logger.Info(ctx, "consumer stopped", "stream", c.stream, "consumer", c.consumerName)
}

// decode 解析流消息；格式错误的消息直接确认丢弃
func (c *Consumer) decode(ctx context.Context, xmsg redis.XMessage) (*Message, bool) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		logger.Warn(ctx, "invalid message format", "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return nil, false
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		logger.Error(ctx, "failed to unmarshal message", err, "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return nil, false
	}
	return &msg, true
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, ok := c.decode(ctx, xmsg)
	if !ok {
		c.record("invalid")
		return
	}
	ctx = msg.restoreContext(ctx)
	attempt := c.deliveryCount(ctx, xmsg.ID)

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.Int("message.attempt", attempt),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		c.record("unhandled")
		return
	}

	if err := handler(ctx, msg, attempt); err != nil {
		span.RecordError(err)
		c.handleFailure(ctx, xmsg.ID, msg, attempt, err)
		return
	}

	c.ack(ctx, xmsg.ID)
	c.record("acked")
}

func (c *Consumer) record(status string) {
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), status).Inc()
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

// handleFailure 达到重试上限移入死信队列，否则留在 pending 等待重投
func (c *Consumer) handleFailure(ctx context.Context, id string, msg *Message, attempt int, err error) {
	if attempt >= c.retryLimit {
		logger.Error(ctx, "message moved to DLQ after max retries", err,
			"message_id", msg.ID,
			"attempt", attempt,
		)
		c.moveToDLQ(ctx, msg, err)
		c.ack(ctx, id)
		c.record("dead_lettered")
		return
	}
	logger.Warn(ctx, "message left pending for retry",
		"message_id", msg.ID,
		"attempt", attempt,
		"error", err,
	)
	c.record("retried")
}

// deliveryCount 通过 XPENDING 获取消息的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, messageID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 || pending[0].RetryCount < 1 {
		return 1
	}
	return int(pending[0].RetryCount)
}

// moveToDLQ 移入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, err error) {
	dlqMsg := map[string]interface{}{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           err.Error(),
		"failed_at":       time.Now().Unix(),
	}

	data, _ := json.Marshal(dlqMsg)
	if xerr := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); xerr != nil {
		logger.Error(ctx, "failed to write DLQ entry", xerr, "message_id", msg.ID)
	}
}

// claim 认领 pending 消息；超过重试上限的直接进入死信队列
func (c *Consumer) claim(ctx context.Context, p redis.XPendingExt, minIdle time.Duration) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		logger.Error(ctx, "failed to claim pending message", err, "message_id", p.ID)
		return
	}

	for _, xmsg := range claimed {
		if int(p.RetryCount) < c.retryLimit {
			c.processMessage(ctx, xmsg)
			continue
		}
		msg, ok := c.decode(ctx, xmsg)
		if !ok {
			continue
		}
		c.moveToDLQ(ctx, msg, fmt.Errorf("message exceeded %d deliveries", c.retryLimit))
		c.ack(ctx, xmsg.ID)
		c.record("dead_lettered")
	}
}

// processDuePending 重投本消费者退避期已过的消息
func (c *Consumer) processDuePending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: c.consumerName,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !c.stopped(ctx) {
			logger.Error(ctx, "failed to query pending messages", err)
		}
		return
	}

	for _, p := range pending {
		if int(p.RetryCount) >= c.retryLimit {
			c.claim(ctx, p, 0)
			continue
		}
		backoff := c.backoff.CalculateBackoff(int(p.RetryCount))
		if p.Idle < backoff {
			continue
		}
		c.claim(ctx, p, backoff)
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  "-",
		End:    "+",
		Count:  20,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !c.stopped(ctx) {
			logger.Error(ctx, "failed to query pending messages for reclaim", err)
		}
		return
	}

	for _, p := range pending {
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		c.claim(ctx, p, c.reclaimIdle)
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// MonitorDLQ 死信队列积压超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, interval time.Duration, alertThreshold int64) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dlqStream := c.stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlqStream).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages",
					"stream", dlqStream,
					"count", n,
				)
			}
		}
	}
}
