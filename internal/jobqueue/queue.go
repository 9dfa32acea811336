// Package jobqueue implements the bounded FIFO/priority queue of jobs
// described by the job fabric: a producer-facing Enqueue, a
// cancellation-aware Dequeue, and an idempotent Complete that drains the
// remaining backlog instead of dropping it.
package jobqueue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/rezkam/agentforge/internal/domain"
)

// Mode selects the dequeue ordering.
type Mode int

const (
	// FIFO dequeues in strict enqueue order.
	FIFO Mode = iota
	// Priority dequeues the highest-priority job, ties broken by enqueue order.
	Priority
)

// Queue is a bounded channel-like container of domain.Job, backed by either
// a plain slice (FIFO) or a container/heap (Priority). Producers call
// Enqueue, a single dequeue loop calls Dequeue, and a shutdown path calls
// Complete to drain rather than discard the backlog.
type Queue struct {
	mode        Mode
	maxSize     int
	mu          sync.Mutex
	notEmpty    *sync.Cond
	notFull     *sync.Cond
	items       fifoList
	pq          priorityHeap
	seq         int
	completed   bool
}

// New returns a Queue of the given Mode bounded at maxSize entries.
func New(mode Mode, maxSize int) *Queue {
	q := &Queue{mode: mode, maxSize: maxSize}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	if mode == Priority {
		heap.Init(&q.pq)
	}
	return q
}

// Enqueue adds job to the queue. It blocks while the queue is at capacity,
// waking when either space frees up or ctx is cancelled. Returns false if
// the queue has been Complete()d or ctx was cancelled before room appeared.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.occupancyLocked() >= q.maxSize && !q.completed {
		if !q.waitLocked(ctx, q.notFull) {
			return false
		}
	}
	if q.completed {
		return false
	}

	q.seq++
	switch q.mode {
	case Priority:
		heap.Push(&q.pq, &pqItem{job: job, seq: q.seq})
	default:
		q.items = append(q.items, job)
	}
	q.notEmpty.Signal()
	return true
}

// Dequeue returns the next job to run, or (zero, false) if ctx is cancelled
// or the queue is completed and fully drained. It never busy-waits: it
// parks on a condition variable between wake-ups.
func (q *Queue) Dequeue(ctx context.Context) (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.occupancyLocked() == 0 {
		if q.completed {
			return domain.Job{}, false
		}
		if !q.waitLocked(ctx, q.notEmpty) {
			return domain.Job{}, false
		}
	}

	var job domain.Job
	switch q.mode {
	case Priority:
		item := heap.Pop(&q.pq).(*pqItem)
		job = item.job
	default:
		job = q.items[0]
		q.items = q.items[1:]
	}
	q.notFull.Signal()
	return job, true
}

// Count returns the current occupancy. Under concurrent producers/consumers
// this is approximate by the time the caller observes it.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.occupancyLocked()
}

// Complete marks the queue closed for writes. Idempotent. After Complete,
// Enqueue always returns false; Dequeue continues returning already-queued
// jobs until the backlog is empty, then returns false.
func (q *Queue) Complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.completed {
		return
	}
	q.completed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *Queue) occupancyLocked() int {
	if q.mode == Priority {
		return q.pq.Len()
	}
	return len(q.items)
}

// waitLocked parks on cond until either it is signalled or ctx is done,
// returning false in the latter case. sync.Cond has no context-aware wait,
// so cancellation is observed by a watcher goroutine that broadcasts on
// ctx.Done to unstick the waiter; it is a no-op once the condition is met
// through the normal path.
//
// The watcher never takes q.mu: it only calls cond.Broadcast(), which does
// not require the lock to be held (sync.Cond's notify list is independent
// of the associated Locker). The caller holds q.mu for the entire call,
// including while cond.Wait() has it released internally, so a watcher
// that tried to lock q.mu before signalling could deadlock against a
// caller parked on the done channel while still holding the lock.
func (q *Queue) waitLocked(ctx context.Context, cond *sync.Cond) bool {
	if ctx.Err() != nil {
		return false
	}

	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-stop:
		}
	}()

	cond.Wait()
	close(stop)
	<-done

	return ctx.Err() == nil
}

type fifoList []domain.Job

type pqItem struct {
	job domain.Job
	seq int
}

// priorityHeap is a container/heap.Interface over pqItem, ordered by
// descending Job.Priority, ties broken by ascending enqueue sequence so
// equal-priority jobs dequeue in FIFO order among themselves.
type priorityHeap []*pqItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*pqItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
