package driver

import (
	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// writeEngine is the write half of the driver. It mirrors the read half
// minus the predicate and short-circuit logic; only the disabled and
// single-slot variants exist.
type writeEngine interface {
	asyncWrite(buf []byte, h Handler)
	cancel() bool
	detach()
}

// writeNone is the disabled write half: no storage, no hooks installed.
type writeNone struct{}

func (writeNone) asyncWrite([]byte, Handler) {
	panic("softuart: writes disabled (WriteQueueSize is 0)")
}

func (writeNone) cancel() bool {
	panic("softuart: writes disabled (WriteQueueSize is 0)")
}

func (writeNone) detach() {}

// writeSingle services at most one outstanding write request in an
// inline slot. Submitting a request while one is outstanding is a
// caller bug.
type writeSingle struct {
	dev hal.Device
	el  hal.EventLoop
	req request
}

func newWriteSingle(dev hal.Device, el hal.EventLoop) *writeSingle {
	w := &writeSingle{dev: dev, el: el}
	dev.SetCanWriteHandler(w.onCanWrite)
	dev.SetWriteCompleteHandler(w.onWriteComplete)
	return w
}

func (w *writeSingle) asyncWrite(buf []byte, h Handler) {
	if w.req.handler != nil {
		panic("softuart: write already in progress")
	}
	w.req.set(buf, h, nil)

	if len(buf) == 0 {
		postCompletion(w.el, &w.req, pkg.StatusSuccess, false)
		return
	}
	w.dev.StartWrite(len(buf), hal.EventLoopCtx{})
}

// onCanWrite pushes bytes in interrupt context until the peripheral has
// no space or the buffer is drained.
func (w *writeSingle) onCanWrite() {
	req := &w.req
	for w.dev.CanWrite(hal.InterruptCtx{}) {
		if req.pos == len(req.buf) {
			// The device must not ask for a byte past the armed count.
			panic("softuart: device requested byte past buffer end")
		}
		w.dev.WriteByte(req.buf[req.pos], hal.InterruptCtx{})
		req.pos++
	}
}

func (w *writeSingle) onWriteComplete(status pkg.Status) {
	postCompletion(w.el, &w.req, status, true)
}

func (w *writeSingle) cancel() bool {
	if !w.dev.CancelWrite(hal.EventLoopCtx{}) {
		if w.req.handler != nil {
			panic("softuart: device refused cancel with request outstanding")
		}
		return false
	}
	if w.req.handler == nil {
		panic("softuart: device cancelled write with no request outstanding")
	}
	postCompletion(w.el, &w.req, pkg.StatusAborted, false)
	return true
}

func (w *writeSingle) detach() {
	w.dev.SetCanWriteHandler(nil)
	w.dev.SetWriteCompleteHandler(nil)
}
