package driver

import (
	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// readEngine is the read half of the driver. The variant is selected
// once at construction from Config.ReadQueueSize; the hot paths never
// branch on capacity.
type readEngine interface {
	asyncReadUntil(buf []byte, pred Predicate, h Handler)
	cancel() bool
	detach()
}

// readNone is the disabled read half: no storage, no hooks installed.
type readNone struct{}

func (readNone) asyncReadUntil([]byte, Predicate, Handler) {
	panic("softuart: reads disabled (ReadQueueSize is 0)")
}

func (readNone) cancel() bool {
	panic("softuart: reads disabled (ReadQueueSize is 0)")
}

func (readNone) detach() {}

// readSingle services at most one outstanding read request in an inline
// slot. Submitting a request while one is outstanding is a caller bug.
type readSingle struct {
	dev hal.Device
	el  hal.EventLoop
	req request
}

func newReadSingle(dev hal.Device, el hal.EventLoop) *readSingle {
	r := &readSingle{dev: dev, el: el}
	dev.SetCanReadHandler(r.onCanRead)
	dev.SetReadCompleteHandler(r.onReadComplete)
	return r
}

func (r *readSingle) asyncReadUntil(buf []byte, pred Predicate, h Handler) {
	if r.req.handler != nil {
		panic("softuart: read already in progress")
	}
	r.req.set(buf, h, pred)

	if len(buf) == 0 {
		status := pkg.StatusSuccess
		if pred != nil {
			status = pkg.StatusBufferOverflow
		}
		postCompletion(r.el, &r.req, status, false)
		return
	}
	r.dev.StartRead(len(buf), hal.EventLoopCtx{})
}

// onCanRead drains the peripheral in interrupt context, one byte at a
// time, terminating early when the predicate matches and the in-ISR
// cancel wins the race against the completion interrupt.
func (r *readSingle) onCanRead() {
	req := &r.req
	for r.dev.CanRead(hal.InterruptCtx{}) {
		if req.pos == len(req.buf) {
			// The device must not offer a byte past the armed count.
			panic("softuart: device offered byte past buffer end")
		}
		b := r.dev.ReadByte(hal.InterruptCtx{})
		req.buf[req.pos] = b
		req.pos++

		if req.pred != nil && req.pred(b) {
			if r.dev.CancelRead(hal.InterruptCtx{}) {
				postCompletion(r.el, req, pkg.StatusSuccess, true)
				return
			}
			// Cancel lost the race: the completion interrupt is
			// imminent and will post the outcome.
		}
	}
}

func (r *readSingle) onReadComplete(status pkg.Status) {
	req := &r.req
	if status == pkg.StatusSuccess && req.pred != nil {
		// Device completion means the armed count was exhausted, so a
		// read-until ran out of buffer. This holds even when the final
		// byte satisfies the predicate: the short-circuit should have
		// won, and losing the race to the completion interrupt is
		// reported as exhaustion, not success.
		postCompletion(r.el, req, pkg.StatusBufferOverflow, true)
		return
	}
	postCompletion(r.el, req, status, true)
}

func (r *readSingle) cancel() bool {
	if !r.dev.CancelRead(hal.EventLoopCtx{}) {
		if r.req.handler != nil {
			panic("softuart: device refused cancel with request outstanding")
		}
		return false
	}
	if r.req.handler == nil {
		panic("softuart: device cancelled read with no request outstanding")
	}
	postCompletion(r.el, &r.req, pkg.StatusAborted, false)
	return true
}

func (r *readSingle) detach() {
	r.dev.SetCanReadHandler(nil)
	r.dev.SetReadCompleteHandler(nil)
}

// readQueued services up to cap pending read requests in FIFO order. At
// most one (the front) is armed at the device; completion interrupts
// chain the next.
type readQueued struct {
	dev hal.Device
	el  hal.EventLoop
	q   *requestQueue
}

func newReadQueued(dev hal.Device, el hal.EventLoop, capacity int) *readQueued {
	r := &readQueued{dev: dev, el: el, q: newRequestQueue(capacity)}
	dev.SetCanReadHandler(r.onCanRead)
	dev.SetReadCompleteHandler(r.onReadComplete)
	return r
}

// asyncReadUntil enqueues a request under the device's interrupt mask.
// If an operation was already in flight its completion chains into the
// new request; otherwise the queue was empty and the request starts now.
func (r *readQueued) asyncReadUntil(buf []byte, pred Predicate, h Handler) {
	suspended := r.dev.Suspend(hal.EventLoopCtx{})
	if r.q.full() {
		panic("softuart: read queue full")
	}
	r.q.push(buf, h, pred)

	if suspended {
		r.dev.Resume(hal.EventLoopCtx{})
		return
	}
	if r.q.len() != 1 {
		panic("softuart: idle device with pending reads")
	}
	r.startNext(false)
}

// startNext arms the front request, retiring zero-size requests inline:
// Success for a plain read, BufferOverflow for a read-until (an empty
// buffer cannot contain a matching byte).
func (r *readQueued) startNext(interruptCtx bool) {
	for !r.q.empty() {
		req := r.q.front()
		if len(req.buf) == 0 {
			status := pkg.StatusSuccess
			if req.pred != nil {
				status = pkg.StatusBufferOverflow
			}
			postCompletion(r.el, req, status, interruptCtx)
			r.q.pop()
			continue
		}
		if interruptCtx {
			r.dev.StartRead(len(req.buf), hal.InterruptCtx{})
		} else {
			r.dev.StartRead(len(req.buf), hal.EventLoopCtx{})
		}
		break
	}
}

func (r *readQueued) onCanRead() {
	if r.q.empty() {
		panic("softuart: can-read interrupt with no pending request")
	}
	req := r.q.front()
	for r.dev.CanRead(hal.InterruptCtx{}) {
		if req.pos == len(req.buf) {
			// The device must not offer a byte past the armed count.
			panic("softuart: device offered byte past buffer end")
		}
		b := r.dev.ReadByte(hal.InterruptCtx{})
		req.buf[req.pos] = b
		req.pos++

		if req.pred != nil && req.pred(b) {
			if r.dev.CancelRead(hal.InterruptCtx{}) {
				postCompletion(r.el, req, pkg.StatusSuccess, true)
				r.q.pop()
				r.startNext(true)
				return
			}
			// Cancel lost the race: the completion interrupt is
			// imminent and will post the outcome.
		}
	}
}

func (r *readQueued) onReadComplete(status pkg.Status) {
	if r.q.empty() {
		panic("softuart: read-complete interrupt with no pending request")
	}
	req := r.q.front()
	if req.pos == 0 {
		panic("softuart: read-complete interrupt before any byte transferred")
	}
	if status == pkg.StatusSuccess && req.pred != nil {
		// Device completion means the armed count was exhausted, so a
		// read-until ran out of buffer, even when the final byte
		// satisfies the predicate (the short-circuit lost the race).
		postCompletion(r.el, req, pkg.StatusBufferOverflow, true)
	} else {
		postCompletion(r.el, req, status, true)
	}
	r.q.pop()
	r.startNext(true)
}

// cancel aborts the in-flight request and every queued one behind it.
// Each pending handler is posted with StatusAborted and the cursor it
// had reached.
func (r *readQueued) cancel() bool {
	if !r.dev.CancelRead(hal.EventLoopCtx{}) {
		if !r.q.empty() {
			panic("softuart: device refused cancel with requests pending")
		}
		return false
	}
	r.q.each(func(req *request) {
		postCompletion(r.el, req, pkg.StatusAborted, false)
	})
	r.q.clear()
	return true
}

func (r *readQueued) detach() {
	r.dev.SetCanReadHandler(nil)
	r.dev.SetReadCompleteHandler(nil)
}
