package translator

import (
	"context"

	"golang.org/x/time/rate"

	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
	"fable-ai-api/pkg/logger"
)

// Limiter 按每秒请求数构造限速器，<=0 表示不限速
func Limiter(cfg config.TranslatorConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// RegisterAll 注册已配置密钥的提供商，未配置的档位在调用时报 provider 未配置
func RegisterAll(ctx context.Context, gw *translation.Gateway, cfg *config.TranslationConfig) error {
	if cfg.Primary.APIKey != "" {
		deepl, err := NewDeepL(cfg.Primary, cfg.MaxTextLength, cfg.RequestTimeout)
		if err != nil {
			return err
		}
		gw.Register(deepl, Limiter(cfg.Primary))
	} else {
		logger.Warn(ctx, "primary translation provider not configured")
	}

	if cfg.Fallback.APIKey != "" {
		google, err := NewGoogle(ctx, cfg.Fallback, cfg.MaxTextLength)
		if err != nil {
			return err
		}
		gw.Register(google, Limiter(cfg.Fallback))
	} else {
		logger.Warn(ctx, "fallback translation provider not configured")
	}
	return nil
}
