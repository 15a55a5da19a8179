package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/quizsolver/internal/model"
)

type memoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

type MemoryOption func(*memoryJobStore)

// WithClock overrides the timestamp source, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *memoryJobStore) {
		s.now = now
	}
}

// NewMemoryJobStore returns a JobStore whose records live as long as the process.
func NewMemoryJobStore(opts ...MemoryOption) JobStore {
	s := &memoryJobStore{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryJobStore) Create(ctx context.Context, id string, payload model.Payload) (*model.Job, error) {
	if id == "" {
		return nil, fmt.Errorf("creating job: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return nil, fmt.Errorf("creating job %s: %w", id, ErrDuplicateID)
	}

	now := s.now()
	job := &model.Job{
		ID:        id,
		Status:    model.JobStatusQueued,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = job

	return copyJob(job), nil
}

func (s *memoryJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (s *memoryJobStore) SetStatus(ctx context.Context, id string, status model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		slog.DebugContext(ctx, "status write for unknown job ignored", "job_id", id, "status", status)
		return nil
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("job %s %s -> %s: %w", id, job.Status, status, ErrInvalidTransition)
	}

	job.Status = status
	job.UpdatedAt = s.now()
	return nil
}

func (s *memoryJobStore) SetResult(ctx context.Context, id string, result model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		slog.DebugContext(ctx, "result write for unknown job ignored", "job_id", id)
		return nil
	}
	if job.Result != nil {
		return fmt.Errorf("job %s: %w", id, ErrResultAlreadySet)
	}

	job.Result = &result
	job.UpdatedAt = s.now()
	return nil
}

func (s *memoryJobStore) ClaimQueued(ctx context.Context, id string) (bool, *model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != model.JobStatusQueued {
		return false, nil, nil
	}

	job.Status = model.JobStatusRunning
	job.UpdatedAt = s.now()
	return true, copyJob(job), nil
}

func (s *memoryJobStore) Finish(ctx context.Context, id string, status model.JobStatus, result model.Result) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finishing job %s with %s: %w", id, status, ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		slog.DebugContext(ctx, "finish for unknown job ignored", "job_id", id)
		return nil
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("job %s %s -> %s: %w", id, job.Status, status, ErrInvalidTransition)
	}
	if job.Result != nil {
		return fmt.Errorf("job %s: %w", id, ErrResultAlreadySet)
	}

	job.Status = status
	job.Result = &result
	job.UpdatedAt = s.now()
	return nil
}

// copyJob detaches the returned record from the stored one. The result's
// maps are shared; they are never mutated after the result is written.
func copyJob(j *model.Job) *model.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
