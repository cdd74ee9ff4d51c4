package driver

import (
	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// Config selects the capacity of each direction. A size of 0 disables
// the direction entirely (no storage, no interrupt hooks), 1 selects the
// single-slot engine, and 2 or more selects the queued read engine. The
// write half has no queued variant.
type Config struct {
	ReadQueueSize  int
	WriteQueueSize int
}

// DefaultConfig returns the default capacities: one outstanding request
// per direction.
func DefaultConfig() Config {
	return Config{ReadQueueSize: 1, WriteQueueSize: 1}
}

// Driver manages asynchronous read and write operations on a character
// device (peripheral) such as RS-232.
//
// Each accepted request completes with exactly one handler invocation,
// posted to the event loop; handlers are never invoked inline from the
// public API. The caller owns every buffer it submits and must keep it
// alive and untouched until the corresponding handler fires.
//
// The interrupt hooks installed in the device refer back to the driver,
// so a Driver must not be copied. Call [Driver.Close] to detach the
// hooks before the driver goes out of use.
//
// Public operations and the completion handlers they trigger run in
// event-loop context; the driver itself takes no locks and relies on
// the device's interrupt mask for the one critical section it needs.
type Driver struct {
	dev    hal.Device
	el     hal.EventLoop
	reader readEngine
	writer writeEngine
}

// New creates a driver over the given device and event loop. The device
// hooks for each enabled direction are installed here, in event-loop
// context. Capacities outside the supported range panic.
func New(dev hal.Device, el hal.EventLoop, cfg Config) *Driver {
	d := &Driver{dev: dev, el: el}

	switch {
	case cfg.ReadQueueSize < 0:
		panic("softuart: negative ReadQueueSize")
	case cfg.ReadQueueSize == 0:
		d.reader = readNone{}
	case cfg.ReadQueueSize == 1:
		d.reader = newReadSingle(dev, el)
	default:
		d.reader = newReadQueued(dev, el, cfg.ReadQueueSize)
	}

	switch {
	case cfg.WriteQueueSize < 0:
		panic("softuart: negative WriteQueueSize")
	case cfg.WriteQueueSize == 0:
		d.writer = writeNone{}
	case cfg.WriteQueueSize == 1:
		d.writer = newWriteSingle(dev, el)
	default:
		panic("softuart: queued writes not supported")
	}

	pkg.LogDebug(pkg.ComponentDriver, "driver ready",
		"readQueue", cfg.ReadQueueSize, "writeQueue", cfg.WriteQueueSize)
	return d
}

// Device returns the peripheral control object the driver was built over.
func (d *Driver) Device() hal.Device { return d.dev }

// EventLoop returns the event loop completions are posted to.
func (d *Driver) EventLoop() hal.EventLoop { return d.el }

// AsyncRead schedules a read of exactly len(buf) bytes into buf and
// returns immediately. The handler is posted with (StatusSuccess,
// len(buf)) when the buffer fills, (status, k) on a device-reported
// error after k bytes, or (StatusAborted, k) on cancellation. An empty
// buffer completes immediately with (StatusSuccess, 0) without touching
// the device.
//
// With ReadQueueSize 1 there must be no outstanding read request; with
// a queued configuration the queue must not be full.
func (d *Driver) AsyncRead(buf []byte, h Handler) {
	d.reader.asyncReadUntil(buf, nil, h)
}

// AsyncReadUntil is AsyncRead terminating early when the most recently
// read byte satisfies pred: the handler sees (StatusSuccess, k) with
// buf[k-1] the matching byte. If the buffer fills without a match the
// handler sees (StatusBufferOverflow, len(buf)); an empty buffer
// completes immediately with (StatusBufferOverflow, 0).
func (d *Driver) AsyncReadUntil(buf []byte, pred Predicate, h Handler) {
	if pred == nil {
		panic("softuart: nil read-until predicate")
	}
	d.reader.asyncReadUntil(buf, pred, h)
}

// AsyncReadUntilByte is AsyncReadUntil with the predicate ch == until.
func (d *Driver) AsyncReadUntilByte(buf []byte, until byte, h Handler) {
	d.AsyncReadUntil(buf, func(ch byte) bool { return ch == until }, h)
}

// CancelRead aborts the outstanding read request, and with a queued
// configuration every request behind it. Each affected handler is
// posted with StatusAborted and the byte count reached at cancel time.
// It returns true iff at least one request was cancelled.
func (d *Driver) CancelRead() bool {
	return d.reader.cancel()
}

// AsyncWrite schedules a write of len(buf) bytes from buf and returns
// immediately. The handler is posted with (StatusSuccess, len(buf)) on
// completion, (status, k) on a device-reported error after k bytes, or
// (StatusAborted, k) on cancellation. An empty buffer completes
// immediately with (StatusSuccess, 0) without touching the device.
//
// There must be no outstanding write request.
func (d *Driver) AsyncWrite(buf []byte, h Handler) {
	d.writer.asyncWrite(buf, h)
}

// CancelWrite aborts the outstanding write request; its handler is
// posted with StatusAborted and the byte count reached at cancel time.
// It returns true iff a request was cancelled.
func (d *Driver) CancelWrite() bool {
	return d.writer.cancel()
}

// Close detaches the driver's interrupt hooks from the device. Pending
// requests are not completed; cancel them first. The driver must not be
// used after Close.
func (d *Driver) Close() error {
	d.reader.detach()
	d.writer.detach()
	pkg.LogDebug(pkg.ComponentDriver, "driver closed")
	return nil
}
