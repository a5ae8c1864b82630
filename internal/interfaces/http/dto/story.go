package dto

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
)

// ReferenceRequest 主题、语气引用
type ReferenceRequest struct {
	ID          string `json:"id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// LanguageRequest 目标语言
type LanguageRequest struct {
	ID   string `json:"id" binding:"required"`
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// CreateStoryRequest 创建故事请求
type CreateStoryRequest struct {
	Title            string           `json:"title"`
	Synopsis         string           `json:"synopsis"`
	Protagonist      string           `json:"protagonist" binding:"required"`
	Species          string           `json:"species" binding:"required"`
	ChildAge         int              `json:"child_age" binding:"required"`
	NumberOfChapters int              `json:"number_of_chapters" binding:"required"`
	Theme            ReferenceRequest `json:"theme" binding:"required"`
	Tone             ReferenceRequest `json:"tone" binding:"required"`
	Language         LanguageRequest  `json:"language" binding:"required"`
	IsPublic         bool             `json:"is_public"`
}

// ToParams 转为领域层创建参数
func (r *CreateStoryRequest) ToParams(ownerID string) entity.NewStoryParams {
	return entity.NewStoryParams{
		Title:            r.Title,
		Synopsis:         r.Synopsis,
		Protagonist:      r.Protagonist,
		Species:          r.Species,
		ChildAge:         r.ChildAge,
		NumberOfChapters: r.NumberOfChapters,
		Theme:            entity.ReferenceData{ID: r.Theme.ID, Name: r.Theme.Name, Description: r.Theme.Description},
		Tone:             entity.ReferenceData{ID: r.Tone.ID, Name: r.Tone.Name, Description: r.Tone.Description},
		Language:         entity.Language{ID: r.Language.ID, Code: r.Language.Code, Name: r.Language.Name},
		OwnerID:          ownerID,
		IsPublic:         r.IsPublic,
	}
}

// ChapterResponse 章节
type ChapterResponse struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// StoryResponse 故事详情
type StoryResponse struct {
	ID                    string                  `json:"id"`
	Slug                  string                  `json:"slug,omitempty"`
	Title                 string                  `json:"title"`
	Synopsis              string                  `json:"synopsis"`
	Protagonist           string                  `json:"protagonist"`
	Species               string                  `json:"species"`
	ChildAge              int                     `json:"child_age"`
	NumberOfChapters      int                     `json:"number_of_chapters"`
	Theme                 entity.ReferenceData    `json:"theme"`
	Tone                  entity.ReferenceData    `json:"tone"`
	Language              entity.Language         `json:"language"`
	Chapters              []ChapterResponse       `json:"chapters"`
	Conclusion            string                  `json:"conclusion"`
	CoverImageURL         string                  `json:"cover_image_url,omitempty"`
	OwnerID               string                  `json:"owner_id,omitempty"`
	IsPublic              bool                    `json:"is_public"`
	GenerationStatus      entity.GenerationStatus `json:"generation_status"`
	JobID                 string                  `json:"job_id,omitempty"`
	GenerationError       string                  `json:"generation_error,omitempty"`
	GenerationStartedAt   *time.Time              `json:"generation_started_at,omitempty"`
	GenerationCompletedAt *time.Time              `json:"generation_completed_at,omitempty"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
}

// ToStoryResponse 所有者视角
func ToStoryResponse(s *entity.Story) *StoryResponse {
	if s == nil {
		return nil
	}
	resp := &StoryResponse{
		ID:                    s.ID,
		Slug:                  s.SlugValue(),
		Title:                 s.Title,
		Synopsis:              s.Synopsis,
		Protagonist:           s.Protagonist,
		Species:               s.Species,
		ChildAge:              s.ChildAge,
		NumberOfChapters:      s.NumberOfChapters,
		Theme:                 s.Theme,
		Tone:                  s.Tone,
		Language:              s.Language,
		Chapters:              make([]ChapterResponse, len(s.Chapters)),
		Conclusion:            s.Conclusion,
		CoverImageURL:         s.CoverImageURL,
		OwnerID:               s.OwnerID,
		IsPublic:              s.IsPublic,
		GenerationStatus:      s.GenerationStatus,
		JobID:                 s.JobID,
		GenerationError:       s.GenerationError,
		GenerationStartedAt:   s.GenerationStartedAt,
		GenerationCompletedAt: s.GenerationCompletedAt,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
	for i, c := range s.Chapters {
		resp.Chapters[i] = ChapterResponse{Position: c.Position, Title: c.Title, Content: c.Content}
		if c.Image != nil {
			resp.Chapters[i].ImageURL = c.Image.URL
		}
	}
	return resp
}

// ToPublicStoryResponse 公开访问时隐藏所有者与任务信息
func ToPublicStoryResponse(s *entity.Story) *StoryResponse {
	resp := ToStoryResponse(s)
	if resp == nil {
		return nil
	}
	resp.OwnerID = ""
	resp.JobID = ""
	resp.GenerationError = ""
	resp.GenerationStartedAt = nil
	return resp
}

// StorySummary 列表项
type StorySummary struct {
	ID               string                  `json:"id"`
	Slug             string                  `json:"slug,omitempty"`
	Title            string                  `json:"title"`
	Language         string                  `json:"language"`
	CoverImageURL    string                  `json:"cover_image_url,omitempty"`
	IsPublic         bool                    `json:"is_public"`
	GenerationStatus entity.GenerationStatus `json:"generation_status"`
	CreatedAt        time.Time               `json:"created_at"`
}

// ToStorySummaries 转换列表
func ToStorySummaries(items []*entity.Story) []StorySummary {
	out := make([]StorySummary, 0, len(items))
	for _, s := range items {
		out = append(out, StorySummary{
			ID:               s.ID,
			Slug:             s.SlugValue(),
			Title:            s.Title,
			Language:         s.Language.NormalizedCode(),
			CoverImageURL:    s.CoverImageURL,
			IsPublic:         s.IsPublic,
			GenerationStatus: s.GenerationStatus,
			CreatedAt:        s.CreatedAt,
		})
	}
	return out
}

// BindStoryFilter 解析 status 与 is_public 查询参数
func BindStoryFilter(c *gin.Context) (*repository.StoryFilter, error) {
	status := entity.GenerationStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	public, ok := parseBool(c.Query("is_public"))
	if !ok {
		return nil, fmt.Errorf("is_public must be a boolean")
	}
	if status == "" && public == nil {
		return nil, nil
	}
	return &repository.StoryFilter{Status: status, IsPublic: public}, nil
}

// QuotaResponse 配额状态
type QuotaResponse struct {
	Premium      bool      `json:"premium"`
	CurrentCount int       `json:"current_count"`
	Limit        *int      `json:"limit"`
	Remaining    *int      `json:"remaining"`
	ResetDate    time.Time `json:"reset_date"`
}

// ToQuotaResponse premium 用户的 limit 与 remaining 为 null
func ToQuotaResponse(d entity.QuotaDecision) QuotaResponse {
	resp := QuotaResponse{
		Premium:      d.Premium,
		CurrentCount: d.CurrentCount,
		ResetDate:    d.ResetDate,
	}
	if !d.Premium {
		limit, remaining := d.Limit, d.Remaining()
		resp.Limit, resp.Remaining = &limit, &remaining
	}
	return resp
}
