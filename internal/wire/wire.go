//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"fable-ai-api/internal/application/quota"
	"fable-ai-api/internal/application/story"
	"fable-ai-api/internal/application/subscription"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/internal/infrastructure/messaging"
	"fable-ai-api/internal/infrastructure/persistence/postgres"
	"fable-ai-api/internal/infrastructure/persistence/redis"
	"fable-ai-api/internal/interfaces/http/handler"
	"fable-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		StorySet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化生成任务消费端
func InitializeWorker(ctx context.Context, cfg *config.Config) (*GenerationWorker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		ProvideResolver,
		ProvideOrchestrator,
		WorkerSet,
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	wire.Build(ProvidePostgresClient)
	return nil, nil, nil
}

// RepoSet PostgreSQL 仓储与接口绑定
var RepoSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewStoryRepository,
	postgres.NewOwnerRepository,
	postgres.NewProcessedEventRepository,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.StoryRepository), new(*postgres.StoryRepository)),
	wire.Bind(new(repository.OwnerRepository), new(*postgres.OwnerRepository)),
	wire.Bind(new(repository.ProcessedEventRepository), new(*postgres.ProcessedEventRepository)),
)

// RedisSet Redis 缓存、进度与限流
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideJobStatusStore,
	ProvidePublicStoryCache,
	ProvideTranslationCache,
	wire.Bind(new(messaging.JobStatusStore), new(*redis.JobStatusStore)),
	wire.Bind(new(service.ProgressReporter), new(*redis.JobStatusStore)),
	wire.Bind(new(story.PublicStoryCache), new(*redis.PublicStoryCache)),
	wire.Bind(new(translation.FieldCache), new(*redis.TranslationCache)),
)

// MessagingSet 任务队列与事件流
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	messaging.NewJobQueue,
	messaging.NewEventPublisher,
	wire.Bind(new(service.JobQueue), new(*messaging.JobQueue)),
	wire.Bind(new(service.EventPublisher), new(*messaging.EventPublisher)),
)

// StorySet 故事与订阅用例
var StorySet = wire.NewSet(
	ProvideResolver,
	ProvideOrchestrator,
	ProvideStoryQuotaPolicy,
	story.NewService,
	subscription.NewProcessor,
	wire.Bind(new(story.QuotaChecker), new(*quota.StoryQuotaPolicy)),
)

// RouterSet HTTP 处理器与路由
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewStoryHandler,
	ProvideWebhookHandler,
	wire.Bind(new(handler.StoryService), new(*story.Service)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)

// WorkerSet 生成、翻译、配图与消费者
var WorkerSet = wire.NewSet(
	ProvideTranslationGateway,
	ProvideStoryGenerator,
	ProvideCoverGenerator,
	ProvideWorker,
	ProvideConsumer,
	wire.Struct(new(GenerationWorker), "*"),
)
