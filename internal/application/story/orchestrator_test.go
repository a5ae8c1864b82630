package story

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
	apperrors "fable-ai-api/pkg/errors"
)

func seedPending(t *testing.T, h *harness, owner string) entity.Story {
	t.Helper()
	s, err := entity.NewStory(validParams(owner), entity.QuotaDecision{Allowed: true}, testNow)
	require.NoError(t, err)
	require.NoError(t, h.stories.Create(context.Background(), &s))
	return s
}

func TestDispatch(t *testing.T) {
	h := newHarness()
	s := seedPending(t, h, "owner-1")

	got, err := h.orch.Dispatch(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationProcessing, got.GenerationStatus)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, got.JobID, h.queue.last().JobID)

	_, err = h.orch.Dispatch(context.Background(), s.ID)
	var ist *entity.InvalidStateTransitionError
	assert.True(t, errors.As(err, &ist), "processing story cannot be dispatched again")
}

func TestDispatch_NotFound(t *testing.T) {
	h := newHarness()
	_, err := h.orch.Dispatch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}

func TestDispatch_VersionConflict(t *testing.T) {
	h := newHarness()
	s := seedPending(t, h, "owner-1")
	h.stories.updateErr = repository.ErrVersionConflict

	_, err := h.orch.Dispatch(context.Background(), s.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrentModification))
	assert.Empty(t, h.queue.jobs)

	stored, _ := h.stories.GetByID(context.Background(), s.ID)
	assert.Equal(t, entity.GenerationPending, stored.GenerationStatus)
}

func TestDispatch_EnqueueFailureKeepsPending(t *testing.T) {
	h := newHarness()
	s := seedPending(t, h, "owner-1")
	h.queue.enqueueErr = errBoom

	_, err := h.orch.Dispatch(context.Background(), s.ID)
	require.Error(t, err)

	stored, _ := h.stories.GetByID(context.Background(), s.ID)
	assert.Equal(t, entity.GenerationPending, stored.GenerationStatus)
	assert.Empty(t, stored.JobID)
}

func TestComplete(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)
	h.clock = testNow.Add(2 * time.Minute)

	done, err := h.orch.Complete(ctx, s.ID, s.JobID, twoChapters())
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationCompleted, done.GenerationStatus)
	assert.Equal(t, "pip-et-la-lune", done.SlugValue())
	assert.Equal(t, "Pip et la lune", done.Title)
	assert.Empty(t, done.JobID)
	require.Len(t, done.Chapters, 2)
	assert.Equal(t, 2, done.Chapters[1].Position)
	assert.Equal(t, entity.EventTypeGenerationCompleted, h.events.types()[len(h.events.types())-1])
}

func TestComplete_StaleJob(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	_, err = h.orch.Complete(ctx, s.ID, "other-job", twoChapters())
	assert.ErrorIs(t, err, ErrStaleJob)

	_, err = h.orch.Complete(ctx, s.ID, s.JobID, twoChapters())
	require.NoError(t, err)
	_, err = h.orch.Complete(ctx, s.ID, s.JobID, twoChapters())
	assert.ErrorIs(t, err, ErrStaleJob, "a completed story ignores late deliveries")
}

func TestComplete_ChapterMismatchMarksFailed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	out := twoChapters()
	out.Chapters = out.Chapters[:1]
	got, err := h.orch.Complete(ctx, s.ID, s.JobID, out)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationFailed, got.GenerationStatus)
	assert.Contains(t, got.GenerationError, "1 chapters, expected 2")
	assert.Nil(t, got.Slug)
	assert.Equal(t, entity.EventTypeGenerationFailed, h.events.types()[len(h.events.types())-1])
}

func TestComplete_EmptyConclusionMarksFailed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	out := twoChapters()
	out.Conclusion = "  "
	got, err := h.orch.Complete(ctx, s.ID, s.JobID, out)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationFailed, got.GenerationStatus)
}

func TestComplete_DuplicateSlugOnSaveRetriesWithSuffix(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)
	h.stories.updateErr = repository.ErrDuplicateSlug

	done, err := h.orch.Complete(ctx, s.ID, s.JobID, twoChapters())
	require.NoError(t, err)
	assert.Equal(t, "pip-et-la-lune-x1y2z3", done.SlugValue())
}

func TestComplete_TakenSlugGetsSuffix(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.stories.takenSlug["pip-et-la-lune"] = true
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	done, err := h.orch.Complete(ctx, s.ID, s.JobID, twoChapters())
	require.NoError(t, err)
	assert.Equal(t, "pip-et-la-lune-x1y2z3", done.SlugValue())
}

func TestFailThenRetry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	failed, err := h.orch.Fail(ctx, s.ID, s.JobID, "llm unavailable")
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationFailed, failed.GenerationStatus)
	assert.Empty(t, failed.JobID)

	_, err = h.orch.Retry(ctx, "owner-2", s.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	retried, err := h.orch.Retry(ctx, "owner-1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationProcessing, retried.GenerationStatus)
	assert.NotEqual(t, s.JobID, retried.JobID)
	assert.Empty(t, retried.GenerationError)
	assert.Equal(t, retried.JobID, h.queue.last().JobID)
	assert.Equal(t, entity.EventTypeGenerationRetried, h.events.types()[len(h.events.types())-1])

	_, err = h.orch.Fail(ctx, s.ID, s.JobID, "late failure from the old job")
	assert.ErrorIs(t, err, ErrStaleJob)
}

func TestProgress(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, validParams("owner-1"))
	require.NoError(t, err)

	p, err := h.orch.Progress(ctx, "owner-1", s.ID)
	require.NoError(t, err)
	assert.Nil(t, p.Progress, "no status recorded yet")

	h.queue.progress[s.JobID] = service.JobProgress{JobID: s.JobID, Progress: 60, Stage: "parsing"}
	p, err = h.orch.Progress(ctx, "owner-1", s.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Progress)
	assert.Equal(t, 60, *p.Progress)
	assert.Equal(t, "parsing", p.Stage)

	h.queue.getErr = errBoom
	p, err = h.orch.Progress(ctx, "owner-1", s.ID)
	require.NoError(t, err, "status lookup failures never fail the request")
	assert.Nil(t, p.Progress)

	_, err = h.orch.Progress(ctx, "owner-2", s.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProgress_CompletedIsFull(t *testing.T) {
	h := newHarness()
	s := completedStory(t, h, "owner-1")

	p, err := h.orch.Progress(context.Background(), "owner-1", s.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Progress)
	assert.Equal(t, 100, *p.Progress)
}
