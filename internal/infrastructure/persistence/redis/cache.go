package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fable-ai-api/internal/domain/entity"
)

var cacheTracer = otel.Tracer("redis.cache")

const (
	publicStoryKeyPrefix = "fable:story:public:"
	translationKeyPrefix = "fable:tr:"
)

// Cache JSON 缓存
type Cache struct {
	client *Client
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetJSON 读取并反序列化，未命中返回 false
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return false, nil
		}
		return false, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// SetJSON 序列化并写入
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, bytes, ttl)
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...)
}

// PublicStoryCache 按 slug 缓存公开故事
type PublicStoryCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewPublicStoryCache 创建公开故事缓存
func NewPublicStoryCache(cache *Cache, ttl time.Duration) *PublicStoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PublicStoryCache{cache: cache, ttl: ttl}
}

// GetStory 读取缓存的故事
func (c *PublicStoryCache) GetStory(ctx context.Context, slug string) (*entity.Story, bool, error) {
	var cached storySnapshot
	ok, err := c.cache.GetJSON(ctx, publicStoryKeyPrefix+slug, &cached)
	if err != nil || !ok {
		return nil, false, err
	}
	s := cached.toStory()
	return &s, true, nil
}

// SetStory 写入故事
func (c *PublicStoryCache) SetStory(ctx context.Context, story *entity.Story) error {
	slug := story.SlugValue()
	if slug == "" {
		return nil
	}
	return c.cache.SetJSON(ctx, publicStoryKeyPrefix+slug, snapshotOf(story), c.ttl)
}

// Invalidate 删除 slug 对应的缓存
func (c *PublicStoryCache) Invalidate(ctx context.Context, slug string) error {
	return c.cache.Delete(ctx, publicStoryKeyPrefix+slug)
}

// storySnapshot 缓存用的完整快照，包含 JSON 输出中隐藏的字段
type storySnapshot struct {
	entity.Story
	LastJobID string `json:"last_job_id,omitempty"`
	Version   int64  `json:"version"`
}

func snapshotOf(s *entity.Story) storySnapshot {
	return storySnapshot{Story: *s, LastJobID: s.LastJobID, Version: s.Version}
}

func (s storySnapshot) toStory() entity.Story {
	out := s.Story
	out.LastJobID = s.LastJobID
	out.Version = s.Version
	return out
}

// TranslationCache 已翻译字段缓存
type TranslationCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewTranslationCache 创建翻译缓存
func NewTranslationCache(cache *Cache, ttl time.Duration) *TranslationCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TranslationCache{cache: cache, ttl: ttl}
}

// Get 读取翻译结果
func (c *TranslationCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.cache.client.Get(ctx, translationKeyPrefix+key)
	if err != nil {
		if IsNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set 写入翻译结果
func (c *TranslationCache) Set(ctx context.Context, key, value string) error {
	return c.cache.client.Set(ctx, translationKeyPrefix+key, value, c.ttl)
}
