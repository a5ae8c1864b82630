package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/config"
)

// CORS 跨域中间件；用户头需要出现在允许列表中
func CORS(cfg config.CORSConfig, userHeader string) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	headers := append([]string{}, cfg.AllowedHeaders...)
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", RequestIDHeader}
	}
	if userHeader != "" && !containsFold(headers, userHeader) {
		headers = append(headers, userHeader)
	}

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: []string{RequestIDHeader, "X-Trace-ID", RateLimitRemainingHeader},
		// 通配来源不能携带凭证
		AllowCredentials: !containsFold(origins, "*"),
		MaxAge:           12 * time.Hour,
	})
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
