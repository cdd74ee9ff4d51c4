package serial

import (
	"io"
	"sync"

	tarm "github.com/tarm/serial"

	"github.com/ardnew/softuart/driver/hal"
	"github.com/ardnew/softuart/pkg"
)

// txStageSize bounds how many write bytes the device accepts ahead of
// the port, modelling a transmit FIFO.
const txStageSize = 256

// Device adapts a host byte stream, typically a serial port, to
// hal.Device.
//
// Two goroutines emulate the hardware: a reader moves port bytes into a
// bounded receive ring, and a pump delivers the interrupt callbacks one
// at a time under the device mutex, which plays the role of the
// interrupt mask. Callbacks therefore fire from the pump goroutine, the
// adapter's interrupt context.
type Device struct {
	rw io.ReadWriteCloser

	mu        sync.Mutex
	kick      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	canRead       func()
	readComplete  func(pkg.Status)
	canWrite      func()
	writeComplete func(pkg.Status)

	rx        ring
	overrun   bool
	portErr   bool
	readArmed bool
	readLeft  int
	readTotal int

	writeArmed bool
	writeLeft  int
	tx         []byte
}

// Open opens the named serial port at the given baud rate and adapts it.
func Open(name string, baud int) (*Device, error) {
	port, err := tarm.OpenPort(&tarm.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentSerial, "port opened", "name", name, "baud", baud)
	return NewDevice(port), nil
}

// NewDevice adapts an arbitrary byte stream. Tests inject in-memory
// pipes here.
func NewDevice(rw io.ReadWriteCloser) *Device {
	d := &Device{
		rw:     rw,
		kick:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		tx:     make([]byte, 0, txStageSize),
	}
	go d.readPump()
	go d.pump()
	return d
}

// Close stops the pumps and closes the underlying stream. Outstanding
// operations are not completed; cancel them first.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		err = d.rw.Close()
		pkg.LogInfo(pkg.ComponentSerial, "device closed")
	})
	return err
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

// StartRead implements hal.Device.
func (d *Device) StartRead(n int, ctx hal.Ctx) {
	switch ctx.(type) {
	case hal.InterruptCtx:
		d.armReadLocked(n)
	default:
		d.mu.Lock()
		d.armReadLocked(n)
		d.mu.Unlock()
		d.wake()
	}
}

func (d *Device) armReadLocked(n int) {
	if n <= 0 {
		panic("serial: StartRead with non-positive length")
	}
	if d.readArmed {
		panic("serial: read already armed")
	}
	d.readArmed = true
	d.readLeft = n
	d.readTotal = n
}

// CancelRead implements hal.Device. The interrupt-context form fails
// when the final armed byte has been consumed.
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
	return d.readArmed && d.readLeft > 0 && d.rx.len() > 0
}

// ReadByte implements hal.Device.
func (d *Device) ReadByte(hal.InterruptCtx) byte {
	if !d.readArmed || d.readLeft == 0 || d.rx.len() == 0 {
		panic("serial: ReadByte with no byte available")
	}
	d.readLeft--
	return d.rx.get()
}

// StartWrite implements hal.Device.
func (d *Device) StartWrite(n int, _ hal.EventLoopCtx) {
	d.mu.Lock()
	if n <= 0 {
		d.mu.Unlock()
		panic("serial: StartWrite with non-positive length")
	}
	if d.writeArmed {
		d.mu.Unlock()
		panic("serial: write already armed")
	}
	d.writeArmed = true
	d.writeLeft = n
	d.mu.Unlock()
	d.wake()
}

// CancelWrite implements hal.Device. Bytes already accepted into the
// staging FIFO are still flushed to the port.
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
	return d.writeArmed && d.writeLeft > 0 && len(d.tx) < txStageSize
}

// WriteByte implements hal.Device.
func (d *Device) WriteByte(b byte, _ hal.InterruptCtx) {
	if !d.writeArmed || d.writeLeft == 0 || len(d.tx) >= txStageSize {
		panic("serial: WriteByte with no space available")
	}
	d.tx = append(d.tx, b)
	d.writeLeft--
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

// wake nudges the pump; the signal is coalesced.
func (d *Device) wake() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// readPump moves port bytes into the receive ring. A full ring drops
// the byte and marks an overrun, reported on the next completion.
func (d *Device) readPump() {
	buf := make([]byte, 256)
	for {
		n, err := d.rw.Read(buf)
		if n > 0 {
			d.mu.Lock()
			for _, b := range buf[:n] {
				if !d.rx.put(b) {
					d.overrun = true
				}
			}
			d.mu.Unlock()
			d.wake()
		}
		if err != nil {
			select {
			case <-d.closed:
			default:
				pkg.LogError(pkg.ComponentSerial, "port read failed", "error", err)
			}
			d.mu.Lock()
			d.portErr = true
			d.mu.Unlock()
			d.wake()
			return
		}
	}
}

// pump is the adapter's interrupt context: it delivers callbacks under
// the mask and flushes staged write bytes to the port outside it.
func (d *Device) pump() {
	for {
		select {
		case <-d.closed:
			return
		case <-d.kick:
		}

		var flush []byte
		d.mu.Lock()
		d.serviceReadLocked()
		d.serviceWriteLocked()
		if len(d.tx) > 0 {
			flush = make([]byte, len(d.tx))
			copy(flush, d.tx)
			d.tx = d.tx[:0]
		}
		d.mu.Unlock()

		if len(flush) > 0 {
			if _, err := d.rw.Write(flush); err != nil {
				select {
				case <-d.closed:
				default:
					pkg.LogError(pkg.ComponentSerial, "port write failed", "error", err)
				}
			} else {
				// Staging space freed; an armed write may continue.
				d.wake()
			}
		}
	}
}

// serviceReadLocked delivers received bytes through the can-read hook
// and fires the completion when the armed count is exhausted. A hook
// may re-arm the device, chaining a queued request, so the loop keeps
// going until no progress is possible.
func (d *Device) serviceReadLocked() {
	for d.readArmed {
		progressed := false
		if d.readLeft > 0 && d.rx.len() > 0 && d.canRead != nil {
			before := d.rx.len()
			d.canRead()
			progressed = d.rx.len() != before
		}
		if d.readArmed && d.readLeft == 0 {
			d.readArmed = false
			status := pkg.StatusSuccess
			if d.overrun {
				status = pkg.StatusOverrun
				d.overrun = false
			}
			if d.readComplete != nil {
				d.readComplete(status)
			}
			continue
		}
		if d.readArmed && d.portErr && d.rx.len() == 0 && d.readLeft < d.readTotal {
			// Port died mid-operation with partial data delivered.
			d.readArmed = false
			if d.readComplete != nil {
				d.readComplete(pkg.StatusHardwareFault)
			}
			continue
		}
		if !progressed {
			return
		}
	}
}

func (d *Device) serviceWriteLocked() {
	for d.writeArmed {
		progressed := false
		if d.writeLeft > 0 && len(d.tx) < txStageSize && d.canWrite != nil {
			before := len(d.tx)
			d.canWrite()
			progressed = len(d.tx) != before
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
