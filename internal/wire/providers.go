package wire

import (
	"context"
	"fmt"
	"os"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/quota"
	"fable-ai-api/internal/application/story"
	"fable-ai-api/internal/application/subscription"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/internal/infrastructure/image"
	"fable-ai-api/internal/infrastructure/llm"
	"fable-ai-api/internal/infrastructure/messaging"
	"fable-ai-api/internal/infrastructure/persistence/postgres"
	"fable-ai-api/internal/infrastructure/persistence/redis"
	"fable-ai-api/internal/infrastructure/translator"
	"fable-ai-api/internal/interfaces/http/handler"
	"fable-ai-api/internal/interfaces/http/middleware"
	"fable-ai-api/internal/interfaces/http/router"
	"fable-ai-api/pkg/logger"
)

// GenerationWorker 生成任务消费端
type GenerationWorker struct {
	Consumer *messaging.Consumer
	Worker   *story.Worker
}

// Run 阻塞直到 ctx 取消；取消后等待正在处理的任务结束
func (w *GenerationWorker) Run(ctx context.Context) error {
	w.Consumer.RegisterHandler(messaging.TypeGenerateStory, messaging.GenerationJobHandler(w.Worker.Handle))
	if err := w.Consumer.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	w.Consumer.Stop()
	return nil
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

func ProvideJobStatusStore(client *redis.Client, cfg *config.Config) *redis.JobStatusStore {
	return redis.NewJobStatusStore(client, cfg.Generation.JobStatusTTL)
}

func ProvidePublicStoryCache(cache *redis.Cache, cfg *config.Config) *redis.PublicStoryCache {
	return redis.NewPublicStoryCache(cache, cfg.Cache.PublicStoryTTL)
}

func ProvideTranslationCache(cache *redis.Cache, cfg *config.Config) *redis.TranslationCache {
	return redis.NewTranslationCache(cache, cfg.Translation.CacheTTL)
}

// ProvideResolver 使用内置语言表
func ProvideResolver() *language.Resolver {
	return language.NewResolver(language.DefaultTables())
}

func ProvideOrchestrator(
	stories repository.StoryRepository,
	tx repository.Transactor,
	queue service.JobQueue,
	events service.EventPublisher,
	resolver *language.Resolver,
	cfg *config.Config,
) *story.Orchestrator {
	return story.NewOrchestrator(stories, tx, queue, events, resolver, story.OrchestratorConfig{
		EnqueueTimeout: cfg.Generation.EnqueueTimeout,
		StatusTimeout:  cfg.Generation.StatusTimeout,
	})
}

func ProvideStoryQuotaPolicy(stories repository.StoryRepository, cfg *config.Config) *quota.StoryQuotaPolicy {
	return quota.NewStoryQuotaPolicy(stories, cfg.Quota.FreeMonthlyLimit)
}

// ProvideHealthHandler postgres 与 redis 均为就绪必需
func ProvideHealthHandler(pg *postgres.Client, rdb *redis.Client, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rdb,
	})
}

func ProvideWebhookHandler(processor *subscription.Processor, cfg *config.Config) *handler.WebhookHandler {
	return handler.NewWebhookHandler(processor, cfg.Security.WebhookSecret)
}

func ProvideRouter(cfg *config.Config, handlers router.Handlers, limiter *redis.RateLimiter) *router.Router {
	return router.New(cfg, handlers, router.RateLimit{
		Limiter: limiter,
		KeyFunc: redis.BuildRateLimitKey,
	})
}

// ProvideTranslationGateway 注册已配置密钥的提供商
func ProvideTranslationGateway(ctx context.Context, cfg *config.Config, cache translation.FieldCache) (*translation.Gateway, error) {
	tc := cfg.Translation
	gw := translation.NewGateway(translation.Config{
		RequestTimeout: tc.RequestTimeout,
		MaxAttempts:    tc.MaxAttempts,
		Backoff: translation.Backoff{
			Initial:    tc.Backoff.Initial,
			Max:        tc.Backoff.Max,
			Multiplier: tc.Backoff.Multiplier,
		},
		Concurrency:   tc.Concurrency,
		MaxTextLength: tc.MaxTextLength,
	}, cache)
	if err := translator.RegisterAll(ctx, gw, &tc); err != nil {
		return nil, err
	}
	return gw, nil
}

// ProvideStoryGenerator 模板文件未配置时使用内置模板
func ProvideStoryGenerator(cfg *config.Config) (*llm.StoryGenerator, error) {
	tmpl, err := llm.LoadStoryTemplate(cfg.Generation.SystemPromptFile, cfg.Generation.UserPromptFile)
	if err != nil {
		return nil, err
	}
	return llm.NewStoryGenerator(llm.NewEinoFactory(&cfg.LLM), cfg.GenerationProvider(), tmpl), nil
}

// ProvideCoverGenerator 未启用配图时返回 nil
func ProvideCoverGenerator(ctx context.Context, cfg *config.Config) (service.CoverImageGenerator, error) {
	if !cfg.Image.Enabled {
		return nil, nil
	}
	covers, err := image.NewCoverGenerator(&cfg.Image)
	if err != nil {
		return nil, fmt.Errorf("cover generator: %w", err)
	}
	logger.Info(ctx, "cover generation enabled", "model", cfg.Image.Model)
	return covers, nil
}

// ProvideWorker 最大尝试次数与队列重投上限一致
func ProvideWorker(
	stories repository.StoryRepository,
	orch *story.Orchestrator,
	text *llm.StoryGenerator,
	gw *translation.Gateway,
	covers service.CoverImageGenerator,
	progress service.ProgressReporter,
	cfg *config.Config,
) *story.Worker {
	return story.NewWorker(stories, orch, text, gw, covers, progress, story.WorkerConfig{
		MaxAttempts:     cfg.Messaging.RedisStream.RetryLimit,
		GenerateTimeout: cfg.Generation.GenerateTimeout,
	})
}

func ProvideConsumer(redisClient *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamGenerationJobs,
		Group:         messaging.ConsumerGroupGenWorker,
		ConsumerName:  consumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

var _ middleware.RateLimiter = (*redis.RateLimiter)(nil)
