package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/interfaces/http/dto"
	apperrors "fable-ai-api/pkg/errors"
	"fable-ai-api/pkg/logger"
)

// RateLimitRemainingHeader 剩余额度响应头
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimiter 滑动窗口限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// KeyFunc 由请求构建限流键
type KeyFunc func(c *gin.Context) string

// RateLimit 限流中间件；limiter 为 nil 或 limit<=0 时不限流
// 限流器故障时放行
func RateLimit(limiter RateLimiter, limit int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	if limiter == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		allowed, remaining, err := limiter.Allow(ctx, key(c), limit, window)
		if err != nil {
			logger.Warn(ctx, "rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			dto.ErrorWithDetail(c, http.StatusTooManyRequests, "rate limit exceeded", &dto.ErrorDetail{
				ErrorCode: string(apperrors.CodeTooManyRequests),
			})
			return
		}
		c.Next()
	}
}

// ByOwner 按调用方、路由与限流维度区分；匿名请求按客户端 IP
// 不同窗口的限流必须使用不同 scope
func ByOwner(scope string, build func(subject, endpoint string) string) KeyFunc {
	return func(c *gin.Context) string {
		subject := GetOwnerID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		return build(subject, scope+":"+c.Request.Method+" "+c.FullPath())
	}
}
