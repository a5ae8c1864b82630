// Package router 提供 HTTP 路由配置
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fable-ai-api/internal/config"
	"fable-ai-api/internal/interfaces/http/handler"
	"fable-ai-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Story   *handler.StoryHandler
	Webhook *handler.WebhookHandler
}

// RateLimit 限流依赖；Limiter 为 nil 时不限流
type RateLimit struct {
	Limiter middleware.RateLimiter
	KeyFunc func(subject, endpoint string) string
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limit    RateLimit
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limit RateLimit) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if limit.KeyFunc == nil {
		limit.KeyFunc = func(subject, endpoint string) string { return "ratelimit:" + subject + ":" + endpoint }
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limit:    limit,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS, r.cfg.Security.UserHeader))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) rateLimit(scope string, limit int, window time.Duration) gin.HandlerFunc {
	rl := r.cfg.Security.RateLimit
	if !rl.Enabled || r.limit.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(r.limit.Limiter, limit, window, middleware.ByOwner(scope, r.limit.KeyFunc))
}

func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	perSecond := r.rateLimit("rps", r.cfg.Security.RateLimit.RequestsPerSecond, time.Second)

	v1 := r.engine.Group("/v1")
	{
		// 公开读取与回调不需要调用方身份
		v1.GET("/public/stories/:slug", perSecond, h.Story.GetPublicStory)
		v1.POST("/webhooks/subscriptions", h.Webhook.SubscriptionEvent)

		authed := v1.Group("", middleware.Owner(r.cfg.Security.UserHeader), perSecond)
		{
			stories := authed.Group("/stories")
			{
				stories.POST("", r.rateLimit("create", r.cfg.Security.RateLimit.CreatesPerMinute, time.Minute), h.Story.CreateStory)
				stories.GET("", h.Story.ListStories)
				stories.GET("/:sid", h.Story.GetStory)
				stories.GET("/:sid/progress", h.Story.GetProgress)
				stories.POST("/:sid/retry", h.Story.RetryStory)
				stories.POST("/:sid/publish", h.Story.PublishStory)
				stories.POST("/:sid/unpublish", h.Story.UnpublishStory)
				stories.DELETE("/:sid", h.Story.DeleteStory)
			}
			authed.GET("/quota", h.Story.GetQuota)
		}
	}
}
