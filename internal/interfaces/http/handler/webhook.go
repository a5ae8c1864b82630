package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/application/subscription"
	"fable-ai-api/internal/interfaces/http/dto"
	apperrors "fable-ai-api/pkg/errors"
	"fable-ai-api/pkg/logger"
)

// SignatureHeader 回调签名头，值为请求体 HMAC-SHA256 的十六进制
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 64 << 10

// SubscriptionProcessor 订阅事件处理
type SubscriptionProcessor interface {
	Process(ctx context.Context, ev subscription.Event) (subscription.Result, error)
}

// WebhookHandler 支付方回调处理器
type WebhookHandler struct {
	processor SubscriptionProcessor
	secret    []byte
}

// NewWebhookHandler secret 为空时不校验签名
func NewWebhookHandler(processor SubscriptionProcessor, secret string) *WebhookHandler {
	h := &WebhookHandler{processor: processor}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// SubscriptionEvent 接收订阅变更
// @Summary 订阅回调
// @Description 重复投递返回 200 且 duplicate=true
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.Response[dto.SubscriptionWebhookResponse]
// @Failure 401 {object} dto.ErrorResponse "签名无效"
// @Router /v1/webhooks/subscriptions [post]
func (h *WebhookHandler) SubscriptionEvent(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		dto.BadRequest(c, "unreadable request body")
		return
	}
	if !h.verify(raw, c.GetHeader(SignatureHeader)) {
		logger.Warn(ctx, "webhook signature mismatch")
		dto.Fail(c, apperrors.ErrUnauthorized.WithDetail("invalid webhook signature"))
		return
	}

	var req dto.SubscriptionWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.processor.Process(ctx, req.ToEvent(raw))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.SubscriptionWebhookResponse{
		EventID:   req.EventID,
		Duplicate: res.Duplicate,
		Applied:   res.Applied,
	})
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if h.secret == nil {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
