// Package taskqueue runs speech and audio work strictly one task at a
// time. Playback order matters more than latency here: a queued utterance
// must never start before the previous one finished, and skipping ahead
// must be able to throw away everything still waiting.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of sequential playback work.
type Task struct {
	ID  string
	Run func() error
}

var (
	// ErrTaskIDRequired is returned when a task is missing an ID.
	ErrTaskIDRequired = errors.New("task id is required")
	// ErrTaskRunRequired is returned when a task is missing a run function.
	ErrTaskRunRequired = errors.New("task run func is required")
	// ErrClosed indicates the queue no longer accepts submissions.
	ErrClosed = errors.New("task queue is closed")
	// ErrQueueFull indicates the queue is saturated.
	ErrQueueFull = errors.New("task queue is full")
)

// Stats reports queue counters.
type Stats struct {
	Enqueued   int64
	Completed  int64
	Failed     int64
	Cancelled  int64
	Rejected   int64
	InFlight   int64
	QueueDepth int64
}

// Queue is a bounded single-worker FIFO task queue.
type Queue struct {
	tasks     chan Task
	wg        sync.WaitGroup
	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int64
	closed    atomic.Bool
}

// New creates a queue with the given pending capacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 16
	}
	q := &Queue{tasks: make(chan Task, capacity)}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Enqueue adds a task or returns an error when saturated/closed. Task
// errors are counted, not propagated; a failed utterance must not stop
// the ones behind it.
func (q *Queue) Enqueue(task Task) error {
	if task.ID == "" {
		return fmt.Errorf("%w", ErrTaskIDRequired)
	}
	if task.Run == nil {
		return fmt.Errorf("%w", ErrTaskRunRequired)
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return fmt.Errorf("%w", ErrClosed)
	}

	select {
	case q.tasks <- task:
		q.enqueued.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return fmt.Errorf("%w", ErrQueueFull)
	}
}

// CancelPending discards every task still waiting in the queue and
// returns how many were dropped. The task currently running, if any, is
// left to finish.
func (q *Queue) CancelPending() int64 {
	var dropped int64
	for {
		select {
		case _, ok := <-q.tasks:
			if !ok {
				return dropped
			}
			q.cancelled.Add(1)
			dropped++
		default:
			return dropped
		}
	}
}

// Drain waits until the queue is empty and the worker idle, then shuts
// the worker down.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if len(q.tasks) == 0 && q.inFlight.Load() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	if q.closed.CompareAndSwap(false, true) {
		close(q.tasks)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:   q.enqueued.Load(),
		Completed:  q.completed.Load(),
		Failed:     q.failed.Load(),
		Cancelled:  q.cancelled.Load(),
		Rejected:   q.rejected.Load(),
		InFlight:   q.inFlight.Load(),
		QueueDepth: int64(len(q.tasks)),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.inFlight.Add(1)
		if err := task.Run(); err != nil {
			q.failed.Add(1)
		} else {
			q.completed.Add(1)
		}
		q.inFlight.Add(-1)
	}
}
