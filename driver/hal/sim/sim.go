package sim

import (
	"sync"

	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// defaultTxSpace is the write space granted to a fresh device; large
// enough that writes drain in one burst unless a test bounds it.
const defaultTxSpace = 1 << 20

// Device implements hal.Device entirely in memory.
//
// Interrupts are simulated synchronously: FeedBytes, CompleteRead,
// CompleteWrite, and GrantTxSpace invoke the installed hooks in the
// calling goroutine while holding the device mutex, which plays the
// role of the interrupt mask. Methods tagged hal.InterruptCtx are only
// legal from within a hook invocation and therefore run with the mask
// already held; methods tagged hal.EventLoopCtx acquire it.
type Device struct {
	mu sync.Mutex

	canRead       func()
	readComplete  func(pkg.Status)
	canWrite      func()
	writeComplete func(pkg.Status)

	rx        []byte
	readArmed bool
	readLeft  int

	written    []byte
	writeArmed bool
	writeLeft  int
	txSpace    int

	startReads  int
	startWrites int
}

// New creates an idle simulated device with effectively unlimited write
// space.
func New() *Device {
	return &Device{txSpace: defaultTxSpace}
}

// SetCanReadHandler implements hal.Device.
func (d *Device) SetCanReadHandler(fn func()) {
	d.mu.Lock()
	d.canRead = fn
	d.mu.Unlock()
}

// SetReadCompleteHandler implements hal.Device.
func (d *Device) SetReadCompleteHandler(fn func(pkg.Status)) {
	d.mu.Lock()
	d.readComplete = fn
	d.mu.Unlock()
}

// SetCanWriteHandler implements hal.Device.
func (d *Device) SetCanWriteHandler(fn func()) {
	d.mu.Lock()
	d.canWrite = fn
	d.mu.Unlock()
}

// SetWriteCompleteHandler implements hal.Device.
func (d *Device) SetWriteCompleteHandler(fn func(pkg.Status)) {
	d.mu.Lock()
	d.writeComplete = fn
	d.mu.Unlock()
}

// StartRead implements hal.Device. Bytes already scripted with
// FeedBytes are delivered before it returns.
func (d *Device) StartRead(n int, ctx hal.Ctx) {
	switch ctx.(type) {
	case hal.InterruptCtx:
		d.armReadLocked(n)
	default:
		d.mu.Lock()
		d.armReadLocked(n)
		d.serviceReadLocked()
		d.mu.Unlock()
	}
}

func (d *Device) armReadLocked(n int) {
	if n <= 0 {
		panic("sim: StartRead with non-positive length")
	}
	if d.readArmed {
		panic("sim: read already armed")
	}
	d.readArmed = true
	d.readLeft = n
	d.startReads++
}

// CancelRead implements hal.Device. The interrupt-context form fails
// when the final armed byte has been consumed, i.e. the completion
// interrupt is imminent.
func (d *Device) CancelRead(ctx hal.Ctx) bool {
	if _, isr := ctx.(hal.InterruptCtx); isr {
		if d.readArmed && d.readLeft > 0 {
			d.readArmed = false
			return true
		}
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readArmed {
		d.readArmed = false
		return true
	}
	return false
}

// CanRead implements hal.Device.
func (d *Device) CanRead(hal.InterruptCtx) bool {
	return d.readArmed && d.readLeft > 0 && len(d.rx) > 0
}

// ReadByte implements hal.Device.
func (d *Device) ReadByte(hal.InterruptCtx) byte {
	if !d.readArmed || d.readLeft == 0 || len(d.rx) == 0 {
		panic("sim: ReadByte with no byte available")
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	d.readLeft--
	return b
}

// StartWrite implements hal.Device. The can-write interrupt fires
// before it returns, for as much space as the device currently has.
func (d *Device) StartWrite(n int, _ hal.EventLoopCtx) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 {
		panic("sim: StartWrite with non-positive length")
	}
	if d.writeArmed {
		panic("sim: write already armed")
	}
	d.writeArmed = true
	d.writeLeft = n
	d.startWrites++
	d.serviceWriteLocked()
}

// CancelWrite implements hal.Device.
func (d *Device) CancelWrite(hal.EventLoopCtx) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeArmed {
		d.writeArmed = false
		return true
	}
	return false
}

// CanWrite implements hal.Device.
func (d *Device) CanWrite(hal.InterruptCtx) bool {
	return d.writeArmed && d.writeLeft > 0 && d.txSpace > 0
}

// WriteByte implements hal.Device.
func (d *Device) WriteByte(b byte, _ hal.InterruptCtx) {
	if !d.writeArmed || d.writeLeft == 0 || d.txSpace == 0 {
		panic("sim: WriteByte with no space available")
	}
	d.written = append(d.written, b)
	d.writeLeft--
	d.txSpace--
}

// Suspend implements hal.Device: the mask is taken only when a read
// operation is in flight.
func (d *Device) Suspend(hal.EventLoopCtx) bool {
	d.mu.Lock()
	if d.readArmed {
		return true
	}
	d.mu.Unlock()
	return false
}

// Resume implements hal.Device.
func (d *Device) Resume(hal.EventLoopCtx) {
	d.mu.Unlock()
}

// FeedBytes scripts received data: it appends p to the device FIFO and,
// when a read is armed, raises the can-read interrupt. A read whose
// armed count is exhausted completes with StatusSuccess before FeedBytes
// returns.
func (d *Device) FeedBytes(p []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, p...)
	d.serviceReadLocked()
	d.mu.Unlock()
}

// CompleteRead forces the armed read operation to complete now with the
// given status, simulating a device-reported error. The driver requires
// at least one byte to have been transferred first.
func (d *Device) CompleteRead(status pkg.Status) {
	d.mu.Lock()
	if !d.readArmed {
		panic("sim: CompleteRead with no read armed")
	}
	d.readArmed = false
	if d.readComplete != nil {
		d.readComplete(status)
	}
	d.serviceReadLocked()
	d.mu.Unlock()
}

// CompleteWrite forces the armed write operation to complete now with
// the given status, simulating a device-reported error.
func (d *Device) CompleteWrite(status pkg.Status) {
	d.mu.Lock()
	if !d.writeArmed {
		panic("sim: CompleteWrite with no write armed")
	}
	d.writeArmed = false
	if d.writeComplete != nil {
		d.writeComplete(status)
	}
	d.mu.Unlock()
}

// SetTxSpace bounds the write space available to the next drain burst.
func (d *Device) SetTxSpace(n int) {
	d.mu.Lock()
	d.txSpace = n
	d.mu.Unlock()
}

// GrantTxSpace adds write space and raises the can-write interrupt if a
// write is armed, simulating the transmit FIFO draining.
func (d *Device) GrantTxSpace(n int) {
	d.mu.Lock()
	d.txSpace += n
	d.serviceWriteLocked()
	d.mu.Unlock()
}

// Written returns a copy of every byte the driver has written.
func (d *Device) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.written))
	copy(out, d.written)
	return out
}

// PendingRX returns the number of scripted bytes not yet consumed.
func (d *Device) PendingRX() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx)
}

// StartReads returns how many read operations have been armed.
func (d *Device) StartReads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startReads
}

// StartWrites returns how many write operations have been armed.
func (d *Device) StartWrites() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startWrites
}

// serviceReadLocked delivers pending bytes through the can-read hook
// and fires the completion when the armed count is exhausted. A hook
// may re-arm the device (chaining a queued request), so the loop keeps
// going until no progress is possible.
func (d *Device) serviceReadLocked() {
	for d.readArmed {
		progressed := false
		if d.readLeft > 0 && len(d.rx) > 0 && d.canRead != nil {
			before := len(d.rx)
			d.canRead()
			progressed = len(d.rx) != before
		}
		if d.readArmed && d.readLeft == 0 {
			d.readArmed = false
			if d.readComplete != nil {
				d.readComplete(pkg.StatusSuccess)
			}
			continue
		}
		if !progressed {
			return
		}
	}
}

// serviceWriteLocked mirrors serviceReadLocked for the transmit side.
func (d *Device) serviceWriteLocked() {
	for d.writeArmed {
		progressed := false
		if d.writeLeft > 0 && d.txSpace > 0 && d.canWrite != nil {
			before := len(d.written)
			d.canWrite()
			progressed = len(d.written) != before
		}
		if d.writeArmed && d.writeLeft == 0 {
			d.writeArmed = false
			if d.writeComplete != nil {
				d.writeComplete(pkg.StatusSuccess)
			}
			continue
		}
		if !progressed {
			return
		}
	}
}
