package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/interfaces/http/dto"
	"fable-ai-api/pkg/logger"
)

const ownerIDKey = "owner_id"

// DefaultUserHeader 上游网关注入的用户 ID 头
const DefaultUserHeader = "X-User-ID"

// Owner 从用户头读取调用方身份；缺失时返回 401
func Owner(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(header))
		if ownerID == "" {
			dto.Unauthorized(c, "missing "+header+" header")
			return
		}

		c.Set(ownerIDKey, ownerID)
		ctx := logger.WithContext(c.Request.Context(), logger.OwnerIDKey, ownerID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetOwnerID 返回当前调用方，未认证时为空
func GetOwnerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}
