// Package queue is the priority work queue workers dequeue Jobs from:
// a container/heap min-heap ordered by (priority, enqueued time), with
// a sync.Cond-guarded blocking Dequeue backed by a safety timeout
// instead of a leaking goroutine per waiter.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rohmanhakim/crawlsvc/internal/model"
)

// Queue is the port worker.Pool and coordinator.Coordinator depend on.
type Queue interface {
	Enqueue(job model.Job)
	EnqueueBulk(jobs []model.Job)
	// Dequeue blocks until a job is available, ctx is cancelled, or the
	// queue is closed. ok is false only on cancellation/close.
	Dequeue(ctx context.Context) (job model.Job, ok bool)
	Len() int
	Close()
}

type itemHeap []model.Job

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(model.Job)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is the production Queue implementation.
type PriorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	closed bool
}

func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{items: itemHeap{}}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.items)
	return q
}

func (q *PriorityQueue) Enqueue(job model.Job) {
	q.mu.Lock()
	heap.Push(&q.items, job)
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *PriorityQueue) EnqueueBulk(jobs []model.Job) {
	if len(jobs) == 0 {
		return
	}
	q.mu.Lock()
	for _, j := range jobs {
		heap.Push(&q.items, j)
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *PriorityQueue) Dequeue(ctx context.Context) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// A timer-driven broadcast lets the waiter re-check ctx.Done() without a
	// dedicated goroutine per call, matching a common approach to
	// bounding a sync.Cond wait against context cancellation.
	timer := time.AfterFunc(200*time.Millisecond, q.cond.Broadcast)
	defer timer.Stop()

	for len(q.items) == 0 && !q.closed {
		select {
		case <-ctx.Done():
			return model.Job{}, false
		default:
		}
		q.cond.Wait()
		timer.Reset(200 * time.Millisecond)
	}

	if q.closed && len(q.items) == 0 {
		return model.Job{}, false
	}

	job := heap.Pop(&q.items).(model.Job)
	return job, true
}

func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *PriorityQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
