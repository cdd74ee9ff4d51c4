package hal

import (
	"github.com/ardnew/softuart/pkg"
)

// Ctx identifies the execution context of a device call. Exactly two
// contexts exist: ordinary thread context, in which the event loop runs
// ([EventLoopCtx]), and interrupt context, entered asynchronously by the
// peripheral ([InterruptCtx]). Threading the tag through every device
// call keeps loop-only and interrupt-only operations from being confused
// at compile time.
type Ctx interface {
	isCtx()
}

// EventLoopCtx tags a call made from ordinary thread (event loop) context.
type EventLoopCtx struct{}

func (EventLoopCtx) isCtx() {}

// InterruptCtx tags a call made from interrupt context, i.e. from within
// one of the callbacks installed with the Set*Handler methods.
type InterruptCtx struct{}

func (InterruptCtx) isCtx() {}

// Device is the contract between the driver and a platform-specific
// character peripheral (UART-class hardware).
//
// The peripheral raises interrupts; the installed callbacks execute in
// interrupt context and are serialised by the device (one vector per
// direction, no reentry). Methods taking [InterruptCtx] may only be
// called from within those callbacks, while the interrupt mask is held.
// Methods taking [EventLoopCtx] may only be called from thread context.
// Methods taking [Ctx] accept either, with the restrictions documented
// per method.
type Device interface {
	// SetCanReadHandler installs the "can read" callback, fired in
	// interrupt context whenever at least one byte is available while a
	// read operation is armed. The callback performs repeated
	// CanRead/ReadByte calls until CanRead returns false. Installing nil
	// detaches the callback. Called from thread context only.
	SetCanReadHandler(fn func())

	// SetReadCompleteHandler installs the "read complete" callback,
	// fired in interrupt context when the armed read operation finishes
	// and read interrupts are disabled. The device must have transferred
	// at least one byte before raising it. Installing nil detaches the
	// callback. Called from thread context only.
	SetReadCompleteHandler(fn func(status pkg.Status))

	// SetCanWriteHandler installs the "can write" callback, fired in
	// interrupt context whenever there is space for at least one byte
	// while a write operation is armed. Installing nil detaches the
	// callback. Called from thread context only.
	SetCanWriteHandler(fn func())

	// SetWriteCompleteHandler installs the "write complete" callback,
	// fired in interrupt context when the armed write operation finishes
	// and write interrupts are disabled. Installing nil detaches the
	// callback. Called from thread context only.
	SetWriteCompleteHandler(fn func(status pkg.Status))

	// StartRead arms the peripheral to read n bytes: "can read"
	// interrupts are enabled until n bytes have been consumed through
	// ReadByte, then the read-complete callback fires. Interrupt-context
	// invocation is permitted only from within the read callbacks, to
	// chain the next queued operation.
	StartRead(n int, ctx Ctx)

	// CancelRead disarms a pending read operation. It returns true iff
	// the operation was truly cancelled, meaning the read-complete
	// callback will not fire for it. Interrupt-context invocation is
	// valid only while handling a read-until short-circuit; it fails
	// when the completion interrupt has already become imminent.
	CancelRead(ctx Ctx) bool

	// CanRead reports whether at least one byte is available. It may be
	// queried repeatedly within a single interrupt.
	CanRead(ctx InterruptCtx) bool

	// ReadByte consumes one byte from the peripheral. Precondition:
	// CanRead returned true.
	ReadByte(ctx InterruptCtx) byte

	// StartWrite arms the peripheral to accept n bytes: "can write"
	// interrupts are enabled until n bytes have been supplied through
	// WriteByte, then the write-complete callback fires.
	StartWrite(n int, ctx EventLoopCtx)

	// CancelWrite disarms a pending write operation, returning true iff
	// it was truly cancelled.
	CancelWrite(ctx EventLoopCtx) bool

	// CanWrite reports whether there is space for at least one byte. It
	// may be queried repeatedly within a single interrupt.
	CanWrite(ctx InterruptCtx) bool

	// WriteByte supplies one byte to the peripheral. Precondition:
	// CanWrite returned true.
	WriteByte(b byte, ctx InterruptCtx)

	// Suspend masks the device's interrupt delivery and reports whether
	// an asynchronous read operation is currently armed. When it returns
	// false the mask is not held and Resume must not be called. The
	// driver brackets its enqueue critical section with Suspend/Resume.
	Suspend(ctx EventLoopCtx) bool

	// Resume releases the interrupt mask taken by a Suspend call that
	// returned true.
	Resume(ctx EventLoopCtx)
}

// EventLoop is the contract between the driver and the cooperative
// scheduler that executes completion callbacks in thread context. Both
// methods enqueue a nullary callable onto the run queue and report
// whether it was accepted; the queue must be sized so that posting never
// fails while the driver is in use.
type EventLoop interface {
	// Post enqueues fn from thread context.
	Post(fn func()) bool

	// PostFromISR enqueues fn from interrupt context.
	PostFromISR(fn func()) bool
}
