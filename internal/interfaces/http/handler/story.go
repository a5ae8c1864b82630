// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/application/story"
	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/interfaces/http/dto"
	"fable-ai-api/internal/interfaces/http/middleware"
)

// StoryService 故事用例
type StoryService interface {
	Create(ctx context.Context, params entity.NewStoryParams) (*entity.Story, error)
	Get(ctx context.Context, ownerID, storyID string) (*entity.Story, error)
	GetPublicBySlug(ctx context.Context, slug string) (*entity.Story, error)
	ListByOwner(ctx context.Context, ownerID string, filter *repository.StoryFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error)
	Retry(ctx context.Context, ownerID, storyID string) (*entity.Story, error)
	Progress(ctx context.Context, ownerID, storyID string) (*story.GenerationProgress, error)
	Publish(ctx context.Context, ownerID, storyID string) (*entity.Story, error)
	Unpublish(ctx context.Context, ownerID, storyID string) (*entity.Story, error)
	Delete(ctx context.Context, ownerID, storyID string) error
	QuotaStatus(ctx context.Context, ownerID string) (entity.QuotaDecision, error)
}

// StoryHandler 故事处理器
type StoryHandler struct {
	stories StoryService
}

// NewStoryHandler 创建故事处理器
func NewStoryHandler(stories StoryService) *StoryHandler {
	return &StoryHandler{stories: stories}
}

// CreateStory 创建故事并派发生成任务
// @Summary 创建故事
// @Description 校验配额后创建故事，生成在后台异步进行
// @Tags Stories
// @Accept json
// @Produce json
// @Param body body dto.CreateStoryRequest true "故事参数"
// @Success 202 {object} dto.Response[dto.StoryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse "超出本月额度"
// @Router /v1/stories [post]
func (h *StoryHandler) CreateStory(c *gin.Context) {
	var req dto.CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	s, err := h.stories.Create(c.Request.Context(), req.ToParams(middleware.GetOwnerID(c)))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Accepted(c, dto.ToStoryResponse(s))
}

// ListStories 列出调用方的故事
// @Summary 故事列表
// @Tags Stories
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "生成状态"
// @Param is_public query bool false "是否公开"
// @Success 200 {object} dto.Response[[]dto.StorySummary]
// @Router /v1/stories [get]
func (h *StoryHandler) ListStories(c *gin.Context) {
	page := dto.BindPage(c)
	filter, err := dto.BindStoryFilter(c)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	result, err := h.stories.ListByOwner(c.Request.Context(), middleware.GetOwnerID(c), filter,
		repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToStorySummaries(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetStory 获取故事详情；非所有者只能读取公开故事
// @Summary 故事详情
// @Tags Stories
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 200 {object} dto.Response[dto.StoryResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid} [get]
func (h *StoryHandler) GetStory(c *gin.Context) {
	ownerID := middleware.GetOwnerID(c)
	s, err := h.stories.Get(c.Request.Context(), ownerID, dto.BindStoryID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	if s.IsOwnedBy(ownerID) {
		dto.Success(c, dto.ToStoryResponse(s))
		return
	}
	dto.Success(c, dto.ToPublicStoryResponse(s))
}

// GetProgress 查询生成进度
// @Summary 生成进度
// @Tags Stories
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 200 {object} dto.Response[story.GenerationProgress]
// @Router /v1/stories/{sid}/progress [get]
func (h *StoryHandler) GetProgress(c *gin.Context) {
	p, err := h.stories.Progress(c.Request.Context(), middleware.GetOwnerID(c), dto.BindStoryID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, p)
}

// RetryStory 重新派发失败的生成
// @Summary 重试生成
// @Tags Stories
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 202 {object} dto.Response[dto.StoryResponse]
// @Failure 409 {object} dto.ErrorResponse "故事不处于失败状态"
// @Router /v1/stories/{sid}/retry [post]
func (h *StoryHandler) RetryStory(c *gin.Context) {
	s, err := h.stories.Retry(c.Request.Context(), middleware.GetOwnerID(c), dto.BindStoryID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Accepted(c, dto.ToStoryResponse(s))
}

// PublishStory 公开故事
func (h *StoryHandler) PublishStory(c *gin.Context) {
	s, err := h.stories.Publish(c.Request.Context(), middleware.GetOwnerID(c), dto.BindStoryID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToStoryResponse(s))
}

// UnpublishStory 取消公开
func (h *StoryHandler) UnpublishStory(c *gin.Context) {
	s, err := h.stories.Unpublish(c.Request.Context(), middleware.GetOwnerID(c), dto.BindStoryID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToStoryResponse(s))
}

// DeleteStory 软删除故事；已用额度不返还
// @Summary 删除故事
// @Tags Stories
// @Param sid path string true "故事 ID"
// @Success 204
// @Router /v1/stories/{sid} [delete]
func (h *StoryHandler) DeleteStory(c *gin.Context) {
	if err := h.stories.Delete(c.Request.Context(), middleware.GetOwnerID(c), dto.BindStoryID(c)); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// GetPublicStory 按 slug 读取公开故事，无需身份
// @Summary 公开故事
// @Tags Public
// @Produce json
// @Param slug path string true "故事 slug"
// @Success 200 {object} dto.Response[dto.StoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/public/stories/{slug} [get]
func (h *StoryHandler) GetPublicStory(c *gin.Context) {
	s, err := h.stories.GetPublicBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToPublicStoryResponse(s))
}

// GetQuota 查询本月创建额度
// @Summary 配额状态
// @Tags Quota
// @Produce json
// @Success 200 {object} dto.Response[dto.QuotaResponse]
// @Router /v1/quota [get]
func (h *StoryHandler) GetQuota(c *gin.Context) {
	d, err := h.stories.QuotaStatus(c.Request.Context(), middleware.GetOwnerID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToQuotaResponse(d))
}
