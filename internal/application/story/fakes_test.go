package story

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/quota"
	"fable-ai-api/internal/domain/entity"
	"fable-ai-api/internal/domain/repository"
	"fable-ai-api/internal/domain/service"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// memStories 内存仓储；事务回滚通过快照实现
type memStories struct {
	mu        sync.Mutex
	rows      map[string]entity.Story
	deleted   map[string]entity.Story
	takenSlug map[string]bool
	updateErr error
}

func newMemStories() *memStories {
	return &memStories{
		rows:      map[string]entity.Story{},
		deleted:   map[string]entity.Story{},
		takenSlug: map[string]bool{},
	}
}

func (m *memStories) Create(_ context.Context, s *entity.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

func (m *memStories) GetByID(_ context.Context, id string) (*entity.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStories) GetBySlug(_ context.Context, slug string) (*entity.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SlugValue() == slug {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStories) Update(_ context.Context, s *entity.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		err := m.updateErr
		m.updateErr = nil
		return err
	}
	cur, ok := m.rows[s.ID]
	if !ok || cur.Version != s.Version {
		return repository.ErrVersionConflict
	}
	if slug := s.SlugValue(); slug != "" && slug != cur.SlugValue() && m.slugTaken(slug) {
		return repository.ErrDuplicateSlug
	}
	s.Version++
	m.rows[s.ID] = *s
	return nil
}

func (m *memStories) slugTaken(slug string) bool {
	if m.takenSlug[slug] {
		return true
	}
	for _, s := range m.rows {
		if s.SlugValue() == slug {
			return true
		}
	}
	return false
}

func (m *memStories) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		m.deleted[id] = s
		delete(m.rows, id)
	}
	return nil
}

func (m *memStories) CountCreatedBetween(_ context.Context, ownerID string, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, set := range []map[string]entity.Story{m.rows, m.deleted} {
		for _, s := range set {
			if s.OwnerID == ownerID && !s.CreatedAt.Before(start) && s.CreatedAt.Before(end) {
				n++
			}
		}
	}
	return n, nil
}

func (m *memStories) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugTaken(slug), nil
}

func (m *memStories) ListByOwner(_ context.Context, ownerID string, _ *repository.StoryFilter, p repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*entity.Story
	for _, s := range m.rows {
		if s.OwnerID == ownerID {
			cp := s
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (m *memStories) snapshot() (map[string]entity.Story, map[string]entity.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make(map[string]entity.Story, len(m.rows))
	for k, v := range m.rows {
		rows[k] = v
	}
	deleted := make(map[string]entity.Story, len(m.deleted))
	for k, v := range m.deleted {
		deleted[k] = v
	}
	return rows, deleted
}

func (m *memStories) restore(rows, deleted map[string]entity.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows, m.deleted = rows, deleted
}

type memTx struct {
	stories *memStories
}

func (t memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	rows, deleted := t.stories.snapshot()
	if err := fn(ctx); err != nil {
		t.stories.restore(rows, deleted)
		return err
	}
	return nil
}

type memOwners struct {
	mu     sync.Mutex
	owners map[string]*entity.Owner
}

func newMemOwners() *memOwners {
	return &memOwners{owners: map[string]*entity.Owner{}}
}

func (m *memOwners) Get(_ context.Context, id string) (*entity.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOwners) LockForQuota(_ context.Context, id string) (*entity.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		o = &entity.Owner{ID: id, SubscriptionStatus: entity.SubscriptionNone}
		m.owners[id] = o
	}
	cp := *o
	return &cp, nil
}

func (m *memOwners) SetSubscription(_ context.Context, id string, status entity.SubscriptionStatus, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[id] = &entity.Owner{ID: id, SubscriptionStatus: status, Premium: status.GrantsPremium(), SubscriptionChangedAt: &changedAt}
	return nil
}

type memQueue struct {
	mu         sync.Mutex
	jobs       []service.GenerationJob
	progress   map[string]service.JobProgress
	enqueueErr error
	getErr     error
}

func newMemQueue() *memQueue {
	return &memQueue{progress: map[string]service.JobProgress{}}
}

func (q *memQueue) Enqueue(_ context.Context, job service.GenerationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) GetJob(_ context.Context, jobID string) (*service.JobProgress, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.getErr != nil {
		return nil, q.getErr
	}
	p, ok := q.progress[jobID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (q *memQueue) ReportProgress(_ context.Context, jobID string, progress int, stage string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress[jobID] = service.JobProgress{JobID: jobID, Progress: progress, Stage: stage}
	return nil
}

func (q *memQueue) last() service.GenerationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[len(q.jobs)-1]
}

type memEvents struct {
	mu     sync.Mutex
	events []entity.DomainEvent
	err    error
}

func (e *memEvents) Publish(_ context.Context, event entity.DomainEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *memEvents) types() []entity.DomainEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]entity.DomainEventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

type memCache struct {
	mu      sync.Mutex
	stories map[string]entity.Story
	gets    int
}

func newMemCache() *memCache {
	return &memCache{stories: map[string]entity.Story{}}
}

func (c *memCache) GetStory(_ context.Context, slug string) (*entity.Story, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.stories[slug]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *memCache) SetStory(_ context.Context, s *entity.Story) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stories[s.SlugValue()] = *s
	return nil
}

func (c *memCache) Invalidate(_ context.Context, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stories, slug)
	return nil
}

type harness struct {
	stories *memStories
	owners  *memOwners
	queue   *memQueue
	events  *memEvents
	cache   *memCache
	orch    *Orchestrator
	svc     *Service
	clock   time.Time
	jobSeq  int
}

func newHarness() *harness {
	h := &harness{
		stories: newMemStories(),
		owners:  newMemOwners(),
		queue:   newMemQueue(),
		events:  &memEvents{},
		cache:   newMemCache(),
		clock:   testNow,
	}
	tx := memTx{stories: h.stories}
	resolver := language.NewResolver(language.DefaultTables())
	h.orch = NewOrchestrator(h.stories, tx, h.queue, h.events, resolver, OrchestratorConfig{})
	h.orch.now = func() time.Time { return h.clock }
	h.orch.newJobID = func() string {
		h.jobSeq++
		return fmt.Sprintf("job-%d", h.jobSeq)
	}
	h.orch.slugs.suffix = func() string { return "x1y2z3" }

	policy := quota.NewStoryQuotaPolicy(h.stories, 3)
	h.svc = NewService(h.stories, h.owners, tx, policy, h.orch, h.events, h.cache)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func validParams(owner string) entity.NewStoryParams {
	return entity.NewStoryParams{
		Protagonist:      "Pip",
		Species:          "fox",
		ChildAge:         6,
		NumberOfChapters: 2,
		Theme:            entity.ReferenceData{ID: "t1", Name: "friendship", Description: "making friends"},
		Tone:             entity.ReferenceData{ID: "o1", Name: "gentle"},
		Language:         entity.Language{ID: "l1", Code: "fr", Name: "Français"},
		OwnerID:          owner,
	}
}

func twoChapters() GenerationOutput {
	return GenerationOutput{
		Chapters: []entity.ChapterDraft{
			{Title: "Le bois", Content: "Pip marche."},
			{Title: "La maison", Content: "Pip rentre."},
		},
		Conclusion: "Pip dort.",
		Title:      "Pip et la lune",
		Synopsis:   "Un renard cherche la lune.",
	}
}

var errBoom = errors.New("boom")
