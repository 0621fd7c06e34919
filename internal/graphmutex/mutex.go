// Package graphmutex implements the single-writer serialization contract
// over the knowledge graph (spec §4.16): a FIFO, bounded, timeout-aware
// async mutex. Exactly one mutation is in flight at a time; waiters are
// released strictly in acquire order.
package graphmutex

import (
	"context"
	"sync"

	"github.com/graphmem/graphmem/internal/errs"
)

// DefaultMaxQueueLength is the spec §6 default bound on waiters.
const DefaultMaxQueueLength = 1000

// Handle is returned by Acquire and must be released exactly once to let
// the next waiter in.
type Handle struct {
	release func()
	done    bool
	mu      sync.Mutex
}

// Release unblocks the next FIFO waiter, if any. Calling Release more
// than once is a no-op.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	h.release()
}

type waiter struct {
	ready chan struct{}
}

// Mutex is a FIFO, bounded async mutex. Waiters queue in arrival order;
// Acquire blocks until it is this caller's turn, the context is
// cancelled, or the queue is full.
type Mutex struct {
	mu           sync.Mutex
	locked       bool
	queue        []*waiter
	maxQueueLen  int
}

// New returns a Mutex with the given queue bound. 0 uses DefaultMaxQueueLength.
func New(maxQueueLen int) *Mutex {
	if maxQueueLen <= 0 {
		maxQueueLen = DefaultMaxQueueLength
	}
	return &Mutex{maxQueueLen: maxQueueLen}
}

var (
	// ErrQueueFull is returned when the waiter queue is already at capacity.
	ErrQueueFull = errs.New(errs.KindMutexQueueFull, "graph mutex queue is full")
)

// Acquire blocks until the caller holds the mutex, returning a Handle to
// release it. It fails with MutexQueueFull if the queue is already at
// capacity, or with MutexTimeout if ctx is cancelled while waiting.
//
// Ordering invariant: if Acquire(a) returns before Acquire(b) is called,
// a's Handle must be released before b's Acquire returns — waiters are
// served strictly FIFO, never reordered by context cancellation of an
// earlier waiter once it is already running.
func (m *Mutex) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return m.newHandle(), nil
	}
	if len(m.queue) >= m.maxQueueLen {
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
	w := &waiter{ready: make(chan struct{})}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return m.newHandle(), nil
	case <-ctx.Done():
		m.abandon(w)
		return nil, errs.Wrap(errs.KindMutexTimeout, "timed out waiting for graph mutex", ctx.Err())
	}
}

func (m *Mutex) newHandle() *Handle {
	return &Handle{release: m.unlock}
}

func (m *Mutex) unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.locked = false
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	close(next.ready) // next holder proceeds; m.locked stays true throughout
}

// abandon removes w from the queue if it is still waiting (its context
// was cancelled before its turn came). If w was already signalled
// concurrently with cancellation, the lock it was granted is released
// immediately so no holder is silently lost.
func (m *Mutex) abandon(w *waiter) {
	m.mu.Lock()
	for i, q := range m.queue {
		if q == w {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()

	select {
	case <-w.ready:
		m.unlock() // w was granted the lock right as it timed out; give it back
	default:
	}
}

// QueueLength reports the number of waiters currently queued.
func (m *Mutex) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
