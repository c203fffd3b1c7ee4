package queue

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Dequeue when nothing arrived within the backend's
// poll window. It is not a failure.
var ErrEmpty = errors.New("queue: empty")

// Queue hands submission ids from intake to the judging workers.
type Queue interface {
	Enqueue(ctx context.Context, submissionID string) error
	Dequeue(ctx context.Context) (string, error)
}

// MemoryQueue is an in-process Queue for single-node deployments and tests.
// Ids queued here are lost on restart; the stale sweeper finalizes them.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan string, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, submissionID string) error {
	select {
	case q.ch <- submissionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.ch) }
