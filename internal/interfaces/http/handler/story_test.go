package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fable-ai-api/internal/application/story"
	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/interfaces/http/middleware"
)

type mockStoryService struct {
	mock.Mock
}

func (m *mockStoryService) storyResult(args mock.Arguments) (*entity.Story, error) {
	s, _ := args.Get(0).(*entity.Story)
	return s, args.Error(1)
}

func (m *mockStoryService) Create(ctx context.Context, params entity.NewStoryParams) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, params))
}

func (m *mockStoryService) Get(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, ownerID, storyID))
}

func (m *mockStoryService) GetPublicBySlug(ctx context.Context, slug string) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, slug))
}

func (m *mockStoryService) ListByOwner(ctx context.Context, ownerID string, filter *repository.StoryFilter, p repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	args := m.Called(ctx, ownerID, filter, p)
	r, _ := args.Get(0).(*repository.PagedResult[*entity.Story])
	return r, args.Error(1)
}

func (m *mockStoryService) Retry(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, ownerID, storyID))
}

func (m *mockStoryService) Progress(ctx context.Context, ownerID, storyID string) (*story.GenerationProgress, error) {
	args := m.Called(ctx, ownerID, storyID)
	p, _ := args.Get(0).(*story.GenerationProgress)
	return p, args.Error(1)
}

func (m *mockStoryService) Publish(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, ownerID, storyID))
}

func (m *mockStoryService) Unpublish(ctx context.Context, ownerID, storyID string) (*entity.Story, error) {
	return m.storyResult(m.Called(ctx, ownerID, storyID))
}

func (m *mockStoryService) Delete(ctx context.Context, ownerID, storyID string) error {
	return m.Called(ctx, ownerID, storyID).Error(0)
}

func (m *mockStoryService) QuotaStatus(ctx context.Context, ownerID string) (entity.QuotaDecision, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(entity.QuotaDecision), args.Error(1)
}

func newStoryEngine(svc StoryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStoryHandler(svc)
	r := gin.New()
	r.GET("/v1/public/stories/:slug", h.GetPublicStory)
	v1 := r.Group("/v1", middleware.Owner(""))
	v1.POST("/stories", h.CreateStory)
	v1.GET("/stories", h.ListStories)
	v1.GET("/stories/:sid", h.GetStory)
	v1.GET("/stories/:sid/progress", h.GetProgress)
	v1.POST("/stories/:sid/retry", h.RetryStory)
	v1.POST("/stories/:sid/publish", h.PublishStory)
	v1.DELETE("/stories/:sid", h.DeleteStory)
	v1.GET("/quota", h.GetQuota)
	return r
}

func do(r http.Handler, method, path, owner, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(middleware.DefaultUserHeader, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string         `json:"error_code"`
		Kind      string         `json:"kind"`
		Details   string         `json:"details"`
		Fields    map[string]any `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func sampleStory(owner string) *entity.Story {
	slug := "pip-and-the-moon"
	return &entity.Story{
		ID:               "story-1",
		Slug:             &slug,
		Title:            "Pip and the moon",
		OwnerID:          owner,
		JobID:            "job-1",
		Language:         entity.Language{Code: "EN"},
		GenerationStatus: entity.GenerationProcessing,
		Chapters: []entity.Chapter{
			{Position: 1, Title: "The wood", Content: "Pip walks.", Image: &entity.ChapterImage{URL: "https://img.example/1.png"}},
		},
	}
}

const createBody = `{
	"protagonist": "Pip", "species": "fox", "child_age": 6, "number_of_chapters": 2,
	"theme": {"id": "t1", "name": "friendship"},
	"tone": {"id": "o1", "name": "gentle"},
	"language": {"id": "l1", "code": "fr"}
}`

func TestCreateStory(t *testing.T) {
	svc := &mockStoryService{}
	svc.On("Create", mock.Anything, mock.MatchedBy(func(p entity.NewStoryParams) bool {
		return p.OwnerID == "owner-1" && p.Language.Code == "fr" && p.NumberOfChapters == 2
	})).Return(sampleStory("owner-1"), nil).Once()

	w := do(newStoryEngine(svc), http.MethodPost, "/v1/stories", "owner-1", createBody)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var got map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "story-1", got["id"])
	assert.Equal(t, "job-1", got["job_id"])
	svc.AssertExpectations(t)
}

func TestCreateStory_MissingOwner(t *testing.T) {
	svc := &mockStoryService{}
	w := do(newStoryEngine(svc), http.MethodPost, "/v1/stories", "", createBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateStory_InvalidBody(t *testing.T) {
	w := do(newStoryEngine(&mockStoryService{}), http.MethodPost, "/v1/stories", "owner-1", `{"species":"fox"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateStory_QuotaExceeded(t *testing.T) {
	reset := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := &mockStoryService{}
	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, &entity.StoryQuotaExceededError{CurrentCount: 3, Limit: 3, ResetDate: reset})

	w := do(newStoryEngine(svc), http.MethodPost, "/v1/stories", "owner-1", createBody)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.EqualValues(t, 3, env.Error.Fields["current_count"])
	assert.EqualValues(t, 3, env.Error.Fields["limit"])
	assert.Equal(t, "2026-04-01T00:00:00Z", env.Error.Fields["reset_date"])
}

func TestCreateStory_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invariant", &entity.InvariantViolationError{Field: "protagonist", Reason: "required"}, http.StatusUnprocessableEntity},
		{"transition", &entity.InvalidStateTransitionError{From: entity.GenerationProcessing, Event: "retry"}, http.StatusConflict},
		{"queue", story.ErrEnqueueFailed, http.StatusBadGateway},
		{"concurrent", story.ErrConcurrentModification, http.StatusConflict},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockStoryService{}
			svc.On("Create", mock.Anything, mock.Anything).Return(nil, tc.err)
			w := do(newStoryEngine(svc), http.MethodPost, "/v1/stories", "owner-1", createBody)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	svc := &mockStoryService{}
	svc.On("Create", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	w := do(newStoryEngine(svc), http.MethodPost, "/v1/stories", "owner-1", createBody)

	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestGetStory(t *testing.T) {
	svc := &mockStoryService{}
	svc.On("Get", mock.Anything, "owner-1", "story-1").Return(sampleStory("owner-1"), nil)
	svc.On("Get", mock.Anything, "owner-2", "story-1").Return(sampleStory("owner-1"), nil)
	svc.On("Get", mock.Anything, "owner-3", "story-1").Return(nil, story.ErrForbidden)
	svc.On("Get", mock.Anything, "owner-1", "missing").Return(nil, story.ErrStoryNotFound)
	r := newStoryEngine(svc)

	w := do(r, http.MethodGet, "/v1/stories/story-1", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"owner_id":"owner-1"`)
	assert.Contains(t, w.Body.String(), `"image_url":"https://img.example/1.png"`)

	w = do(r, http.MethodGet, "/v1/stories/story-1", "owner-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "owner_id", "non-owners see the public view")
	assert.NotContains(t, w.Body.String(), "job_id")

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/v1/stories/story-1", "owner-3", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/stories/missing", "owner-1", "").Code)
}

func TestListStories(t *testing.T) {
	svc := &mockStoryService{}
	items := []*entity.Story{sampleStory("owner-1")}
	svc.On("ListByOwner", mock.Anything, "owner-1",
		mock.MatchedBy(func(f *repository.StoryFilter) bool {
			return f != nil && f.Status == entity.GenerationCompleted && f.IsPublic != nil && *f.IsPublic
		}),
		repository.NewPagination(2, 5),
	).Return(repository.NewPagedResult(items, 6, repository.NewPagination(2, 5)), nil)
	r := newStoryEngine(svc)

	w := do(r, http.MethodGet, "/v1/stories?page=2&page_size=5&status=completed&is_public=true", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, "EN", body.Data[0]["language"])
	assert.Equal(t, 6, body.Meta.Total)
	assert.Equal(t, 2, body.Meta.TotalPages)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/stories?status=bogus", "owner-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/stories?is_public=maybe", "owner-1", "").Code)
}

func TestGetProgress(t *testing.T) {
	pct := 60
	svc := &mockStoryService{}
	svc.On("Progress", mock.Anything, "owner-1", "story-1").Return(&story.GenerationProgress{
		StoryID: "story-1", Status: entity.GenerationProcessing, JobID: "job-1", Progress: &pct, Stage: "parsing",
	}, nil)

	w := do(newStoryEngine(svc), http.MethodGet, "/v1/stories/story-1/progress", "owner-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"progress":60`)
	assert.Contains(t, w.Body.String(), `"stage":"parsing"`)
}

func TestRetryPublishDelete(t *testing.T) {
	svc := &mockStoryService{}
	svc.On("Retry", mock.Anything, "owner-1", "story-1").Return(sampleStory("owner-1"), nil)
	published := sampleStory("owner-1")
	published.IsPublic = true
	svc.On("Publish", mock.Anything, "owner-1", "story-1").Return(published, nil)
	svc.On("Delete", mock.Anything, "owner-1", "story-1").Return(nil)
	svc.On("Delete", mock.Anything, "owner-2", "story-1").Return(story.ErrForbidden)
	r := newStoryEngine(svc)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/stories/story-1/retry", "owner-1", "").Code)

	w := do(r, http.MethodPost, "/v1/stories/story-1/publish", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_public":true`)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/v1/stories/story-1", "owner-1", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/v1/stories/story-1", "owner-2", "").Code)
}

func TestGetPublicStory(t *testing.T) {
	svc := &mockStoryService{}
	svc.On("GetPublicBySlug", mock.Anything, "pip-and-the-moon").Return(sampleStory("owner-1"), nil)
	svc.On("GetPublicBySlug", mock.Anything, "nope").Return(nil, story.ErrStoryNotFound)
	r := newStoryEngine(svc)

	w := do(r, http.MethodGet, "/v1/public/stories/pip-and-the-moon", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "owner-1")

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/public/stories/nope", "", "").Code)
}

func TestGetQuota(t *testing.T) {
	reset := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := &mockStoryService{}
	svc.On("QuotaStatus", mock.Anything, "free").
		Return(entity.QuotaDecision{Allowed: true, CurrentCount: 1, Limit: 3, ResetDate: reset}, nil)
	svc.On("QuotaStatus", mock.Anything, "premium").
		Return(entity.QuotaDecision{Allowed: true, Premium: true, CurrentCount: 9, ResetDate: reset}, nil)
	r := newStoryEngine(svc)

	w := do(r, http.MethodGet, "/v1/quota", "free", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":2`)
	assert.Contains(t, w.Body.String(), `"limit":3`)

	w = do(r, http.MethodGet, "/v1/quota", "premium", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":null`)
	assert.Contains(t, w.Body.String(), `"premium":true`)
}
