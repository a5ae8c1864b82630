// Package main 故事生成任务消费者入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fable-ai-api/internal/config"
	"fable-ai-api/internal/infrastructure/llm"
	"fable-ai-api/internal/wire"
	"fable-ai-api/pkg/logger"
	"fable-ai-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "generation-worker",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 模型调用的指标与追踪
	llm.InitCallbacks()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	go worker.Consumer.MonitorDLQ(ctx, time.Minute, dlqAlertThreshold)

	logger.Info(ctx, "generation-worker started",
		"retry_limit", cfg.Messaging.RedisStream.RetryLimit,
		"provider", cfg.GenerationProvider(),
	)
	if err := worker.Run(ctx); err != nil {
		logger.Error(ctx, "generation-worker stopped with error", err)
		return
	}
	logger.Info(ctx, "generation-worker exited")
}
