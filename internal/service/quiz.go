package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/queue"
	"basegraph.app/quizsolver/internal/store"
)

var (
	ErrSecretNotConfigured = errors.New("server secret not configured")
	ErrInvalidSecret       = errors.New("invalid secret")
	ErrJobNotFound         = errors.New("job not found")
)

// QuizService is the request boundary: it accepts quiz tasks for
// asynchronous solving and exposes their records.
type QuizService interface {
	Submit(ctx context.Context, payload model.Payload) (string, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

type quizService struct {
	jobs      store.JobStore
	queue     queue.Producer
	appSecret string
	newID     func() string
	now       func() time.Time
}

func NewQuizService(jobs store.JobStore, producer queue.Producer, appSecret string) QuizService {
	return &quizService{
		jobs:      jobs,
		queue:     producer,
		appSecret: appSecret,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *quizService) Submit(ctx context.Context, payload model.Payload) (string, error) {
	if s.appSecret == "" {
		slog.ErrorContext(ctx, "quiz task rejected: APP_SECRET not set")
		return "", ErrSecretNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(payload.Secret), []byte(s.appSecret)) != 1 {
		slog.WarnContext(ctx, "quiz task rejected: invalid secret", "email", payload.Email)
		return "", ErrInvalidSecret
	}

	jobID := s.newID()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:     logger.Ptr(jobID),
		SourceURL: logger.Ptr(payload.URL),
		Component: "quizsolver.service.quiz",
	})

	if _, err := s.jobs.Create(ctx, jobID, payload); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, queue.Message{
		JobID:   jobID,
		Attempt: 1,
		TraceID: logger.TraceID(ctx),
	}); err != nil {
		s.abandon(ctx, jobID, err)
		return "", fmt.Errorf("enqueueing job: %w", err)
	}

	slog.InfoContext(ctx, "quiz task accepted", "email", payload.Email)
	return jobID, nil
}

// abandon fails a job that could not be scheduled so it does not sit
// queued forever.
func (s *quizService) abandon(ctx context.Context, jobID string, cause error) {
	claimed, _, err := s.jobs.ClaimQueued(ctx, jobID)
	if err != nil || !claimed {
		slog.ErrorContext(ctx, "could not abandon unscheduled job", "error", err, "claimed", claimed)
		return
	}
	result := model.Result{
		Success:    false,
		Error:      fmt.Sprintf("scheduling job: %v", cause),
		FinishedAt: s.now(),
	}
	if err := s.jobs.Finish(ctx, jobID, model.JobStatusFailed, result); err != nil {
		slog.ErrorContext(ctx, "could not abandon unscheduled job", "error", err)
	}
}

// Get returns the job with its secret redacted.
func (s *quizService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}

	job.Payload = job.Payload.Redacted()
	return job, nil
}
