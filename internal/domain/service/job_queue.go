// Package service 定义领域层依赖的外部服务端口
package service

import (
	"context"
	"time"
)

// GenerationJob 入队的生成任务描述
// Title / Synopsis 为空时由生成结果补全
type GenerationJob struct {
	JobID            string    `json:"job_id"`
	StoryID          string    `json:"story_id"`
	Title            string    `json:"title,omitempty"`
	Synopsis         string    `json:"synopsis,omitempty"`
	Theme            string    `json:"theme"`
	Protagonist      string    `json:"protagonist"`
	ChildAge         int       `json:"child_age"`
	NumberOfChapters int       `json:"number_of_chapters"`
	Language         string    `json:"language"`
	Tone             string    `json:"tone"`
	Species          string    `json:"species"`
	OwnerID          string    `json:"owner_id"`
	IsPublic         bool      `json:"is_public"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
}

// JobProgress 任务进度
type JobProgress struct {
	JobID     string    `json:"job_id"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobQueue 生成任务队列
type JobQueue interface {
	// Enqueue 入队，返回即表示队列已确认
	Enqueue(ctx context.Context, job GenerationJob) error

	// GetJob 查询任务进度，任务不存在、已完成或过期时返回 nil, nil
	GetJob(ctx context.Context, jobID string) (*JobProgress, error)
}

// ProgressReporter 由执行任务的一方上报进度
type ProgressReporter interface {
	ReportProgress(ctx context.Context, jobID string, progress int, stage string) error
}
