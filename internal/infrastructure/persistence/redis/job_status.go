package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fable-ai-api/internal/domain/service"
)

const jobStatusKeyPrefix = "fable:job:"

// JobStatusStore 以 hash 保存任务进度，到期自动清理
type JobStatusStore struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time
}

// NewJobStatusStore 创建任务进度存储
func NewJobStatusStore(client *Client, ttl time.Duration) *JobStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobStatusStore{client: client, ttl: ttl, now: time.Now}
}

// ReportProgress 写入进度并刷新过期时间
func (s *JobStatusStore) ReportProgress(ctx context.Context, jobID string, progress int, stage string) error {
	ctx, span := tracer.Start(ctx, "redis.JobStatus.Report",
		trace.WithAttributes(attribute.String("job.id", jobID), attribute.Int("job.progress", progress)))
	defer span.End()

	key := jobStatusKeyPrefix + jobID
	pipe := s.client.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"progress", progress,
		"stage", stage,
		"updated_at", s.now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to report job progress: %w", err)
	}
	return nil
}

// GetJob 读取进度，不存在或已过期返回 nil, nil
func (s *JobStatusStore) GetJob(ctx context.Context, jobID string) (*service.JobProgress, error) {
	ctx, span := tracer.Start(ctx, "redis.JobStatus.Get",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	fields, err := s.client.rdb.HGetAll(ctx, jobStatusKeyPrefix+jobID).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	progress, err := strconv.Atoi(fields["progress"])
	if err != nil {
		return nil, fmt.Errorf("malformed job progress %q: %w", fields["progress"], err)
	}
	updated, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &service.JobProgress{
		JobID:     jobID,
		Progress:  progress,
		Stage:     fields["stage"],
		UpdatedAt: updated,
	}, nil
}
