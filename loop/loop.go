package loop

import (
	"context"

	"github.com/ardnew/softuart/pkg"
)

// Loop is a cooperative scheduler: a bounded FIFO of callables executed
// one at a time in the goroutine that runs the loop. It satisfies the
// driver's hal.EventLoop contract; Post and PostFromISR are safe from
// any goroutine.
type Loop struct {
	fns chan func()
}

// New creates a loop whose run queue holds up to capacity callables.
// Size the queue so that posting never fails: at least one slot per
// completion that can be in flight at once.
func New(capacity int) *Loop {
	if capacity <= 0 {
		panic("loop: capacity must be positive")
	}
	return &Loop{fns: make(chan func(), capacity)}
}

// Post enqueues fn from thread context. It never blocks; it returns
// false when the queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.fns <- fn:
		return true
	default:
		pkg.LogWarn(pkg.ComponentLoop, "run queue full, post dropped")
		return false
	}
}

// PostFromISR enqueues fn from interrupt context. Hosted interrupt
// context is a goroutine, so the implementation matches Post; the
// separate entry point preserves the device-driver contract.
func (l *Loop) PostFromISR(fn func()) bool {
	return l.Post(fn)
}

// Run executes posted callables in order until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.fns:
			fn()
		}
	}
}

// Drain synchronously executes every callable currently queued, in post
// order, and returns how many ran. Callables posted while draining run
// too. Drain is the stepping primitive for tests and simulations; it
// must not be called concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.fns:
			fn()
			n++
		default:
			return n
		}
	}
}

// Len returns the number of callables currently queued.
func (l *Loop) Len() int { return len(l.fns) }
