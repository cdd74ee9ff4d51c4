package driver

import (
	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// Handler is a completion callback. It receives the outcome status and
// the number of bytes actually transferred, and is invoked exactly once
// per accepted request, always from event-loop context.
type Handler func(status pkg.Status, n int)

// Predicate reports whether a received byte terminates a read-until
// request early.
type Predicate func(b byte) bool

// request is the per-request state block for either direction: the
// caller's buffer, the transfer cursor, the stored completion handler,
// and (reads only) the optional termination predicate. A slot holds a
// request iff its handler is set; posting the completion clears it.
type request struct {
	buf     []byte
	pos     int
	handler Handler
	pred    Predicate
}

func (r *request) set(buf []byte, h Handler, p Predicate) {
	r.buf = buf
	r.pos = 0
	r.handler = h
	r.pred = p
}

// postCompletion moves the handler out of the slot, binds the outcome,
// and enqueues it on the event loop from the given context. The slot is
// empty afterwards. Posting must succeed: the loop's queue is sized by
// the user to hold every in-flight completion.
func postCompletion(el hal.EventLoop, r *request, status pkg.Status, interruptCtx bool) {
	if r.handler == nil {
		panic("softuart: completion for request with no handler")
	}
	h := r.handler
	n := r.pos
	r.handler = nil
	r.pred = nil
	r.buf = nil

	fn := func() { h(status, n) }
	var posted bool
	if interruptCtx {
		posted = el.PostFromISR(fn)
	} else {
		posted = el.Post(fn)
	}
	if !posted {
		panic("softuart: event loop queue full")
	}
}
