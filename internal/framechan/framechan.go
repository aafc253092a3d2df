// Package framechan provides the bounded hand-off between the capture
// callback and the analysis goroutine. Push never blocks: when the channel
// is full the oldest item is evicted.
package framechan

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/vocalcoach/internal/errors"
)

// DefaultPopTimeout is how long Pop waits on an empty channel
const DefaultPopTimeout = 100 * time.Millisecond

// ErrTimeout is returned by Pop when nothing arrived within the timeout
var ErrTimeout = errors.New(nil).
	Component("framechan").
	Category(errors.CategoryTimeout).
	Context("error", "frame channel pop timed out").
	Build()

// ErrClosed is returned by Pop once the channel is closed and drained
var ErrClosed = errors.New(nil).
	Component("framechan").
	Category(errors.CategoryBuffer).
	Context("error", "frame channel closed").
	Build()

// Channel is a bounded multi-producer single-consumer queue with a
// drop-oldest overflow policy.
type Channel[T any] struct {
	ch      chan T
	done    chan struct{}
	closed  atomic.Bool
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// New creates a channel holding at most capacity items (minimum 1)
func New[T any](capacity int) *Channel[T] {
	return &Channel[T]{
		ch:   make(chan T, max(capacity, 1)),
		done: make(chan struct{}),
	}
}

// Push enqueues v without blocking. If the channel is full the oldest item
// is discarded and counted. Push after Close is a counted drop. It returns
// false when an item was dropped.
func (c *Channel[T]) Push(v T) bool {
	if c.closed.Load() {
		c.dropped.Add(1)
		return false
	}
	c.pushed.Add(1)

	evicted := false
	for {
		select {
		case c.ch <- v:
			return !evicted
		default:
		}

		// Full: evict the oldest. The consumer may have drained it first,
		// in which case the retry succeeds without a drop.
		select {
		case <-c.ch:
			c.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

// Pop waits up to timeout for the next item. It returns ErrTimeout when
// nothing arrived, ErrClosed when closed and empty, or ctx.Err().
func (c *Channel[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	select {
	case v := <-c.ch:
		return v, nil
	default:
	}

	if timeout <= 0 {
		timeout = DefaultPopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-c.ch:
		return v, nil
	case <-c.done:
		// Prefer anything still buffered over reporting closed
		select {
		case v := <-c.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrTimeout
	}
}

// Drain removes and returns everything currently buffered, oldest first
func (c *Channel[T]) Drain() []T {
	var out []T
	for {
		select {
		case v := <-c.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Close stops accepting pushes and wakes a waiting Pop. Buffered items can
// still be popped. Safe to call more than once.
func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

// Len is the number of buffered items
func (c *Channel[T]) Len() int { return len(c.ch) }

// Cap is the configured capacity
func (c *Channel[T]) Cap() int { return cap(c.ch) }

// Dropped counts items evicted or rejected
func (c *Channel[T]) Dropped() uint64 { return c.dropped.Load() }

// Pushed counts accepted pushes
func (c *Channel[T]) Pushed() uint64 { return c.pushed.Load() }
