package entity

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func validParams() NewStoryParams {
	return NewStoryParams{
		Protagonist:      "Lina",
		Species:          "fox",
		ChildAge:         6,
		NumberOfChapters: 2,
		Theme:            ReferenceData{ID: "friendship", Name: "Friendship"},
		Tone:             ReferenceData{ID: "gentle", Name: "Gentle"},
		Language:         Language{ID: "fr", Code: " fr ", Name: "Français"},
		OwnerID:          "owner-1",
	}
}

func allowed() QuotaDecision {
	return QuotaDecision{Allowed: true, Limit: 3}
}

func chapters(n int) []Chapter {
	out := make([]Chapter, n)
	for i := range out {
		out[i] = Chapter{Position: i + 1, Title: fmt.Sprintf("T%d", i+1), Content: "once upon a time"}
	}
	return out
}

func processingStory(t *testing.T) Story {
	t.Helper()
	s, err := NewStory(validParams(), allowed(), testNow)
	require.NoError(t, err)
	s, err = s.Dispatch("job-1", testNow)
	require.NoError(t, err)
	return s
}

func completedStory(t *testing.T) Story {
	t.Helper()
	s, err := processingStory(t).AttachGeneratedContent(GeneratedContent{
		Chapters:   chapters(2),
		Conclusion: "and they all slept well",
		Slug:       "lina-the-fox",
	}, testNow)
	require.NoError(t, err)
	return s
}

func TestNewStory(t *testing.T) {
	s, err := NewStory(validParams(), allowed(), testNow)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, GenerationPending, s.GenerationStatus)
	assert.Empty(t, s.Chapters)
	assert.NotNil(t, s.Chapters)
	assert.Nil(t, s.Slug)
	assert.Empty(t, s.JobID)
	assert.Equal(t, "FR", s.Language.Code)
	assert.Equal(t, testNow, s.CreatedAt)
}

func TestNewStory_QuotaDenied(t *testing.T) {
	reset := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewStory(validParams(), QuotaDecision{Allowed: false, CurrentCount: 3, Limit: 3, ResetDate: reset}, testNow)

	var qe *StoryQuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 3, qe.CurrentCount)
	assert.Equal(t, 3, qe.Limit)
	assert.Equal(t, reset, qe.ResetDate)
}

func TestNewStory_RequiredFields(t *testing.T) {
	cases := map[string]func(p *NewStoryParams){
		"owner":       func(p *NewStoryParams) { p.OwnerID = "" },
		"protagonist": func(p *NewStoryParams) { p.Protagonist = "  " },
		"child age":   func(p *NewStoryParams) { p.ChildAge = 0 },
		"chapters":    func(p *NewStoryParams) { p.NumberOfChapters = -1 },
		"theme":       func(p *NewStoryParams) { p.Theme = ReferenceData{} },
		"language":    func(p *NewStoryParams) { p.Language = Language{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := NewStory(p, allowed(), testNow)
			var iv *InvariantViolationError
			assert.True(t, errors.As(err, &iv))
		})
	}
}

func TestDispatch(t *testing.T) {
	pending, err := NewStory(validParams(), allowed(), testNow)
	require.NoError(t, err)

	_, err = pending.Dispatch("", testNow)
	var iv *InvariantViolationError
	require.True(t, errors.As(err, &iv))

	s, err := pending.Dispatch("job-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, GenerationProcessing, s.GenerationStatus)
	assert.Equal(t, "job-1", s.JobID)
	require.NotNil(t, s.GenerationStartedAt)
	assert.Equal(t, GenerationPending, pending.GenerationStatus, "original value untouched")

	_, err = s.Dispatch("job-2", testNow)
	var ist *InvalidStateTransitionError
	assert.True(t, errors.As(err, &ist))
}

func TestAttachGeneratedContent_ChapterCountMustMatch(t *testing.T) {
	s := processingStory(t)
	for _, n := range []int{0, 1, 3} {
		_, err := s.AttachGeneratedContent(GeneratedContent{
			Chapters:   chapters(n),
			Conclusion: "the end",
			Slug:       "s",
		}, testNow)
		var iv *InvariantViolationError
		assert.True(t, errors.As(err, &iv), "n=%d", n)
	}

	done, err := s.AttachGeneratedContent(GeneratedContent{
		Chapters:   chapters(2),
		Conclusion: " the end ",
		Slug:       "lina",
		Title:      "Lina and the Moon",
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, GenerationCompleted, done.GenerationStatus)
	assert.Len(t, done.Chapters, 2)
	assert.Equal(t, "the end", done.Conclusion)
	assert.Equal(t, "lina", done.SlugValue())
	assert.Equal(t, "Lina and the Moon", done.Title)
	assert.Empty(t, done.JobID)
	require.NotNil(t, done.GenerationCompletedAt)
}

func TestAttachGeneratedContent_Guards(t *testing.T) {
	s := processingStory(t)

	gap := chapters(2)
	gap[1].Position = 3
	_, err := s.AttachGeneratedContent(GeneratedContent{Chapters: gap, Conclusion: "x", Slug: "s"}, testNow)
	assert.Error(t, err)

	dup := chapters(2)
	dup[1].Position = 1
	_, err = s.AttachGeneratedContent(GeneratedContent{Chapters: dup, Conclusion: "x", Slug: "s"}, testNow)
	assert.Error(t, err)

	_, err = s.AttachGeneratedContent(GeneratedContent{Chapters: chapters(2), Conclusion: "  ", Slug: "s"}, testNow)
	assert.Error(t, err)

	_, err = s.AttachGeneratedContent(GeneratedContent{Chapters: chapters(2), Conclusion: "x"}, testNow)
	assert.Error(t, err)

	pending, _ := NewStory(validParams(), allowed(), testNow)
	_, err = pending.AttachGeneratedContent(GeneratedContent{Chapters: chapters(2), Conclusion: "x", Slug: "s"}, testNow)
	var ist *InvalidStateTransitionError
	assert.True(t, errors.As(err, &ist))
}

func TestAttachGeneratedContent_DoesNotAliasInput(t *testing.T) {
	in := chapters(2)
	done, err := processingStory(t).AttachGeneratedContent(GeneratedContent{Chapters: in, Conclusion: "x", Slug: "s"}, testNow)
	require.NoError(t, err)

	in[0].Title = "mutated"
	assert.Equal(t, "T1", done.Chapters[0].Title)
}

func TestMarkFailed(t *testing.T) {
	s := processingStory(t)

	_, err := s.MarkFailed("", testNow)
	assert.Error(t, err)

	failed, err := s.MarkFailed("translation provider unavailable", testNow)
	require.NoError(t, err)
	assert.Equal(t, GenerationFailed, failed.GenerationStatus)
	assert.Equal(t, "translation provider unavailable", failed.GenerationError)
	assert.Empty(t, failed.JobID)

	_, err = completedStory(t).MarkFailed("late failure", testNow)
	var ist *InvalidStateTransitionError
	assert.True(t, errors.As(err, &ist))
}

func TestRetry_ProducesFreshJob(t *testing.T) {
	failed, err := processingStory(t).MarkFailed("boom", testNow)
	require.NoError(t, err)

	_, err = failed.Retry("job-1", testNow)
	require.Error(t, err, "previous job id must not be reused")

	_, err = failed.Retry("", testNow)
	require.Error(t, err)

	later := testNow.Add(time.Hour)
	retried, err := failed.Retry("job-2", later)
	require.NoError(t, err)
	assert.Equal(t, GenerationProcessing, retried.GenerationStatus)
	assert.Equal(t, "job-2", retried.JobID)
	assert.NotEqual(t, "job-1", retried.JobID)
	assert.Empty(t, retried.GenerationError)
	require.NotNil(t, retried.GenerationStartedAt)
	assert.Equal(t, later, *retried.GenerationStartedAt)

	_, err = processingStory(t).Retry("job-3", testNow)
	var ist *InvalidStateTransitionError
	assert.True(t, errors.As(err, &ist))
}

func TestPublishUnpublish(t *testing.T) {
	_, err := processingStory(t).Publish()
	var iv *InvariantViolationError
	require.True(t, errors.As(err, &iv))

	_, err = processingStory(t).Unpublish()
	require.Error(t, err)

	done := completedStory(t)
	pub, err := done.Publish()
	require.NoError(t, err)
	assert.True(t, pub.IsPublic)
	assert.False(t, done.IsPublic)

	again, err := pub.Publish()
	require.NoError(t, err)
	assert.Equal(t, pub, again)

	unpub, err := pub.Unpublish()
	require.NoError(t, err)
	assert.False(t, unpub.IsPublic)
	assert.Equal(t, GenerationCompleted, unpub.GenerationStatus)
}

func TestVisibleTo(t *testing.T) {
	done := completedStory(t)
	assert.True(t, done.VisibleTo("owner-1"))
	assert.False(t, done.VisibleTo("someone-else"))

	pub, err := done.Publish()
	require.NoError(t, err)
	assert.True(t, pub.VisibleTo("someone-else"))
	assert.False(t, pub.IsOwnedBy(""))
}

func TestQuotaDecision_Remaining(t *testing.T) {
	assert.Equal(t, 1, QuotaDecision{Allowed: true, CurrentCount: 2, Limit: 3}.Remaining())
	assert.Equal(t, 0, QuotaDecision{CurrentCount: 5, Limit: 3}.Remaining())
	assert.Equal(t, -1, QuotaDecision{Allowed: true, Premium: true}.Remaining())
	assert.NoError(t, QuotaDecision{Allowed: true}.Err())
}
