package worker

import (
	"context"

	"basegraph.app/quizsolver/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// JobRunner solves one job. It records every failure on the job itself.
type JobRunner interface {
	Run(ctx context.Context, jobID string)
}
