package taskqueue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryQueue is a Queue implementation backed by a min-heap ordered by
// NotBefore, then FIFO. It is safe for concurrent use. Unlike a plain
// channel, it honors NotBefore so durable timers work without a durable
// backend.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks taskHeap
	seq   int64

	// wake is pulsed on enqueue so a blocked Dequeue re-checks the heap.
	wake chan struct{}
}

// NewInMemoryQueue creates an empty in-memory queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		wake: make(chan struct{}, 1),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.tasks, &queuedTask{task: t, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		var sleep time.Duration
		if len(q.tasks) > 0 {
			head := q.tasks[0]
			now := time.Now()
			if !head.task.NotBefore.After(now) {
				heap.Pop(&q.tasks)
				q.mu.Unlock()
				t := head.task
				return &t, nil
			}
			sleep = head.task.NotBefore.Sub(now)
		}
		q.mu.Unlock()

		if sleep <= 0 {
			// Heap is empty: block until something is enqueued.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-q.wake:
			}
			continue
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Pending returns copies of all queued tasks in delivery order, including
// tasks whose NotBefore has not elapsed yet. Unlike Dequeue it never blocks
// and never removes anything, so callers can inspect scheduled timers and
// deadlines without waiting for them to become due.
func (q *InMemoryQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.tasks))
	for _, qt := range q.tasks {
		out = append(out, qt.task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NotBefore.Equal(out[j].NotBefore) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].NotBefore.Before(out[j].NotBefore)
	})
	return out
}

type queuedTask struct {
	task Task
	seq  int64
}

type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.NotBefore.Equal(h[j].task.NotBefore) {
		return h[i].seq < h[j].seq
	}
	return h[i].task.NotBefore.Before(h[j].task.NotBefore)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
