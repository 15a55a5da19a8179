package store

import (
	"context"
	"errors"

	"basegraph.app/quizsolver/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

var (
	ErrDuplicateID       = errors.New("duplicate job id")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResultAlreadySet  = errors.New("job result already set")
)

// JobStore defines the contract for job record access.
// Writes to unknown ids are no-ops so a cleared store never breaks a run.
type JobStore interface {
	Create(ctx context.Context, id string, payload model.Payload) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	SetStatus(ctx context.Context, id string, status model.JobStatus) error
	SetResult(ctx context.Context, id string, result model.Result) error
	// ClaimQueued moves a queued job to running. It returns false when the
	// job is unknown or was already claimed.
	ClaimQueued(ctx context.Context, id string) (bool, *model.Job, error)
	// Finish writes a terminal status and its result in one step.
	Finish(ctx context.Context, id string, status model.JobStatus, result model.Result) error
}
