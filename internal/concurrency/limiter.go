// Package concurrency bounds parallel LLM API calls with a fixed ceiling,
// a requests-per-minute budget, and priority-ordered overflow queueing.
package concurrency

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Priority orders queued requests. Higher values are admitted first;
// requests of equal priority are admitted in arrival order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 9
)

// Limiter enforces the concurrency ceiling and per-minute rate for API calls.
type Limiter struct {
	mu      sync.Mutex
	inUse   int
	ceiling int
	seq     uint64
	waiters waiterHeap
	rpm     *rate.Limiter
}

type waiter struct {
	priority Priority
	seq      uint64
	ready    chan struct{}
	index    int
}

// New creates a Limiter with the given concurrency ceiling and
// requests-per-minute budget. A non-positive rpm disables rate limiting.
func New(ceiling int, requestsPerMinute int) *Limiter {
	if ceiling <= 0 {
		ceiling = 1
	}
	var rpm *rate.Limiter
	if requestsPerMinute > 0 {
		rpm = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
	}
	return &Limiter{ceiling: ceiling, rpm: rpm}
}

// Acquire blocks until a slot is available and the rate budget allows a
// request. Queued callers are admitted by priority, FIFO within a class.
// The caller must Release the slot when the call completes.
func (l *Limiter) Acquire(ctx context.Context, p Priority) error {
	l.mu.Lock()
	if l.inUse < l.ceiling && l.waiters.Len() == 0 {
		l.inUse++
		l.mu.Unlock()
		return l.waitRate(ctx)
	}

	w := &waiter{priority: p, seq: l.nextSeq(), ready: make(chan struct{})}
	heap.Push(&l.waiters, w)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&l.waiters, w.index)
			l.mu.Unlock()
			return ctx.Err()
		}
		// Already admitted between Done and lock; give the slot back.
		l.mu.Unlock()
		l.Release()
		return ctx.Err()
	case <-w.ready:
		return l.waitRate(ctx)
	}
}

// Release frees a slot, admitting the highest-priority waiter if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.waiters.Len() > 0 {
		w := heap.Pop(&l.waiters).(*waiter)
		close(w.ready) // slot transfers directly to the waiter
		return
	}
	if l.inUse > 0 {
		l.inUse--
	}
}

// Do runs fn inside an acquired slot.
func (l *Limiter) Do(ctx context.Context, p Priority, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, p); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// InUse reports the number of occupied slots.
func (l *Limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// Queued reports the number of waiting requests.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}

func (l *Limiter) waitRate(ctx context.Context) error {
	if l.rpm == nil {
		return nil
	}
	if err := l.rpm.Wait(ctx); err != nil {
		l.Release()
		return err
	}
	return nil
}

func (l *Limiter) nextSeq() uint64 {
	l.seq++
	return l.seq
}

// waiterHeap is a max-heap on priority with FIFO tie-breaking on seq.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
