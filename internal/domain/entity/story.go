package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Story 故事聚合根
//
// 所有变更方法都是值接收者，返回新的 Story 或错误，不会部分修改。
// Version 由持久层在整记录更新时递增，用于乐观并发控制。
type Story struct {
	ID               string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	Slug             *string       `json:"slug,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	Title            string        `json:"title" gorm:"type:varchar(255)"`
	Synopsis         string        `json:"synopsis" gorm:"type:text"`
	Protagonist      string        `json:"protagonist" gorm:"type:varchar(255);not null"`
	Species          string        `json:"species" gorm:"type:varchar(255);not null"`
	ChildAge         int           `json:"child_age" gorm:"not null"`
	NumberOfChapters int           `json:"number_of_chapters" gorm:"not null"`
	Theme            ReferenceData `json:"theme" gorm:"type:jsonb;serializer:json"`
	Language         Language      `json:"language" gorm:"type:jsonb;serializer:json"`
	Tone             ReferenceData `json:"tone" gorm:"type:jsonb;serializer:json"`
	Conclusion       string        `json:"conclusion" gorm:"type:text"`
	CoverImageURL    string        `json:"cover_image_url,omitempty" gorm:"type:text"`
	OwnerID          string        `json:"owner_id" gorm:"type:varchar(64);not null;index:idx_stories_owner_created,priority:1"`
	IsPublic         bool          `json:"is_public" gorm:"not null;default:false"`
	Chapters         []Chapter     `json:"chapters" gorm:"type:jsonb;serializer:json"`

	GenerationStatus      GenerationStatus `json:"generation_status" gorm:"type:varchar(32);not null;index"`
	JobID                 string           `json:"job_id,omitempty" gorm:"type:varchar(64)"`
	LastJobID             string           `json:"-" gorm:"type:varchar(64)"`
	GenerationStartedAt   *time.Time       `json:"generation_started_at,omitempty"`
	GenerationCompletedAt *time.Time       `json:"generation_completed_at,omitempty"`
	GenerationError       string           `json:"generation_error,omitempty" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at" gorm:"not null;index:idx_stories_owner_created,priority:2"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	Version   int64          `json:"-" gorm:"not null;default:1"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (Story) TableName() string {
	return "stories"
}

// NewStoryParams 创建故事的输入
type NewStoryParams struct {
	Title            string
	Synopsis         string
	Protagonist      string
	Species          string
	ChildAge         int
	NumberOfChapters int
	Theme            ReferenceData
	Language         Language
	Tone             ReferenceData
	OwnerID          string
	IsPublic         bool
}

// Validate 校验必填字段
func (p NewStoryParams) Validate() error {
	switch {
	case strings.TrimSpace(p.OwnerID) == "":
		return violation("owner_id", "is required")
	case strings.TrimSpace(p.Protagonist) == "":
		return violation("protagonist", "is required")
	case strings.TrimSpace(p.Species) == "":
		return violation("species", "is required")
	case p.ChildAge <= 0:
		return violation("child_age", "must be a positive integer, got %d", p.ChildAge)
	case p.NumberOfChapters <= 0:
		return violation("number_of_chapters", "must be a positive integer, got %d", p.NumberOfChapters)
	case p.Theme.IsZero():
		return violation("theme", "is required")
	case p.Tone.IsZero():
		return violation("tone", "is required")
	case p.Language.NormalizedCode() == "":
		return violation("language", "is required")
	}
	return nil
}

// NewStory 创建 pending 状态、没有章节的故事
// decision 必须来自配额策略，被拒绝时返回 *StoryQuotaExceededError
func NewStory(params NewStoryParams, decision QuotaDecision, now time.Time) (Story, error) {
	if err := params.Validate(); err != nil {
		return Story{}, err
	}
	if err := decision.Err(); err != nil {
		return Story{}, err
	}
	lang := params.Language
	lang.Code = lang.NormalizedCode()
	return Story{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(params.Title),
		Synopsis:         strings.TrimSpace(params.Synopsis),
		Protagonist:      strings.TrimSpace(params.Protagonist),
		Species:          strings.TrimSpace(params.Species),
		ChildAge:         params.ChildAge,
		NumberOfChapters: params.NumberOfChapters,
		Theme:            params.Theme,
		Language:         lang,
		Tone:             params.Tone,
		OwnerID:          strings.TrimSpace(params.OwnerID),
		IsPublic:         params.IsPublic,
		Chapters:         []Chapter{},
		GenerationStatus: GenerationPending,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
		Version:          1,
	}, nil
}

// clone 复制可变引用，保证返回值与原值互不影响
func (s Story) clone() Story {
	cp := s
	cp.Chapters = cloneChapters(s.Chapters)
	if s.Slug != nil {
		slug := *s.Slug
		cp.Slug = &slug
	}
	return cp
}

// Dispatch pending -> processing，分配任务 ID
func (s Story) Dispatch(jobID string, now time.Time) (Story, error) {
	to, err := s.GenerationStatus.Apply(EventDispatch)
	if err != nil {
		return s, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return s, violation("job_id", "dispatch requires a job id")
	}

	next := s.clone()
	started := now.UTC()
	next.GenerationStatus = to
	next.JobID = jobID
	next.LastJobID = jobID
	next.GenerationStartedAt = &started
	next.UpdatedAt = started
	return next, nil
}

// GeneratedContent 生成完成后挂载到故事的内容
type GeneratedContent struct {
	Chapters      []Chapter
	Conclusion    string
	CoverImageURL string
	Slug          string
	// Title / Synopsis 仅在创建时未提供时填充
	Title    string
	Synopsis string
}

// AttachGeneratedContent processing -> completed
func (s Story) AttachGeneratedContent(content GeneratedContent, now time.Time) (Story, error) {
	to, err := s.GenerationStatus.Apply(EventSucceed)
	if err != nil {
		return s, err
	}
	if len(content.Chapters) != s.NumberOfChapters {
		return s, violation("chapters", "got %d chapters, requested %d", len(content.Chapters), s.NumberOfChapters)
	}
	if err := validateChapterPositions(content.Chapters); err != nil {
		return s, err
	}
	conclusion := strings.TrimSpace(content.Conclusion)
	if conclusion == "" {
		return s, violation("conclusion", "must not be empty on completion")
	}
	slug := strings.TrimSpace(content.Slug)
	if slug == "" {
		return s, violation("slug", "must be set on completion")
	}
	if s.Slug != nil {
		return s, violation("slug", "already set to %q", *s.Slug)
	}

	next := s.clone()
	completed := now.UTC()
	next.GenerationStatus = to
	next.Chapters = cloneChapters(content.Chapters)
	next.Conclusion = conclusion
	next.CoverImageURL = strings.TrimSpace(content.CoverImageURL)
	next.Slug = &slug
	next.JobID = ""
	next.GenerationError = ""
	next.GenerationCompletedAt = &completed
	next.UpdatedAt = completed
	if next.Title == "" {
		next.Title = strings.TrimSpace(content.Title)
	}
	if next.Synopsis == "" {
		next.Synopsis = strings.TrimSpace(content.Synopsis)
	}
	return next, nil
}

// MarkFailed processing -> failed，清空 JobID
func (s Story) MarkFailed(message string, now time.Time) (Story, error) {
	to, err := s.GenerationStatus.Apply(EventFail)
	if err != nil {
		return s, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return s, violation("generation_error", "failure requires an error message")
	}

	next := s.clone()
	next.GenerationStatus = to
	next.GenerationError = message
	next.JobID = ""
	next.GenerationCompletedAt = nil
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Retry failed -> processing，新任务 ID 不得与上一次相同
func (s Story) Retry(newJobID string, now time.Time) (Story, error) {
	to, err := s.GenerationStatus.Apply(EventRetry)
	if err != nil {
		return s, err
	}
	newJobID = strings.TrimSpace(newJobID)
	if newJobID == "" {
		return s, violation("job_id", "retry requires a new job id")
	}
	if newJobID == s.LastJobID {
		return s, violation("job_id", "retry must not reuse job id %q", newJobID)
	}

	next := s.clone()
	started := now.UTC()
	next.GenerationStatus = to
	next.JobID = newJobID
	next.LastJobID = newJobID
	next.GenerationStartedAt = &started
	next.GenerationCompletedAt = nil
	next.GenerationError = ""
	next.UpdatedAt = started
	return next, nil
}

// Publish 公开故事，已公开时原样返回
func (s Story) Publish() (Story, error) {
	return s.setVisibility(true)
}

// Unpublish 取消公开，未公开时原样返回
func (s Story) Unpublish() (Story, error) {
	return s.setVisibility(false)
}

func (s Story) setVisibility(public bool) (Story, error) {
	if s.GenerationStatus != GenerationCompleted {
		return s, violation("is_public", "visibility can only change once generation is completed (status %s)", s.GenerationStatus)
	}
	if s.IsPublic == public {
		return s, nil
	}
	next := s.clone()
	next.IsPublic = public
	return next, nil
}

// IsOwnedBy 是否属于 ownerID
func (s Story) IsOwnedBy(ownerID string) bool {
	return ownerID != "" && s.OwnerID == ownerID
}

// VisibleTo 所有者总是可见，其他人只能看到已完成且公开的故事
func (s Story) VisibleTo(ownerID string) bool {
	if s.IsOwnedBy(ownerID) {
		return true
	}
	return s.IsPublic && s.GenerationStatus == GenerationCompleted
}

// HasLiveJob jobID 是否为当前正在执行的任务
func (s Story) HasLiveJob(jobID string) bool {
	return s.GenerationStatus == GenerationProcessing && jobID != "" && s.JobID == jobID
}

// SlugValue 返回 slug，未设置时为空串
func (s Story) SlugValue() string {
	if s.Slug == nil {
		return ""
	}
	return *s.Slug
}
