package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/quizsolver/common/id"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)

// ChannelQueue is an in-process queue for single-node deployments. It is
// both the Producer and the worker's consumer. Nothing survives a restart.
type ChannelQueue struct {
	messages chan Message
	block    time.Duration

	mu          sync.Mutex
	closed      bool
	deadLetters []Message
}

func NewChannelQueue(size int, block time.Duration) *ChannelQueue {
	if size <= 0 {
		size = 1
	}
	if block <= 0 {
		block = time.Second
	}
	return &ChannelQueue{
		messages: make(chan Message, size),
		block:    block,
	}
}

// Enqueue never blocks; a full buffer is reported as ErrQueueFull.
func (q *ChannelQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if msg.ID == "" {
		msg.ID = id.NewString()
	}
	if msg.Attempt <= 0 {
		msg.Attempt = 1
	}

	select {
	case q.messages <- msg:
		slog.DebugContext(ctx, "enqueued job", "job_id", msg.JobID, "message_id", msg.ID, "attempt", msg.Attempt)
		return nil
	default:
		return ErrQueueFull
	}
}

// Read returns at most one message, waiting up to the block duration.
func (q *ChannelQueue) Read(ctx context.Context) ([]Message, error) {
	timer := time.NewTimer(q.block)
	defer timer.Stop()

	select {
	case msg := <-q.messages:
		return []Message{msg}, nil
	case <-timer.C:
		return []Message{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *ChannelQueue) Ack(ctx context.Context, msg Message) error {
	return nil
}

func (q *ChannelQueue) Requeue(ctx context.Context, msg Message, errMsg string) error {
	msg.Attempt++
	msg.ID = ""
	slog.InfoContext(ctx, "message requeued for retry", "next_attempt", msg.Attempt, "reason", errMsg)
	return q.Enqueue(ctx, msg)
}

func (q *ChannelQueue) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, msg)
	q.mu.Unlock()

	slog.ErrorContext(ctx, "message sent to DLQ", "job_id", msg.JobID, "final_error", errMsg)
	return nil
}

// DeadLetters returns the messages given up on so far.
func (q *ChannelQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.deadLetters...)
}

// Close stops accepting new messages. Buffered messages can still be read.
func (q *ChannelQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *ChannelQueue) Len() int {
	return len(q.messages)
}
