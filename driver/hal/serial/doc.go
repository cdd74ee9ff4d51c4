// Package serial adapts a host serial port to the driver's hal.Device
// contract using github.com/tarm/serial.
//
// The adapter emulates interrupt-driven hardware on a hosted platform:
// a reader goroutine fills a bounded receive ring from the port, and a
// pump goroutine plays the interrupt context, delivering the can-read,
// can-write, and completion callbacks serially under the device mutex.
// A full receive ring is reported as StatusOverrun on the completion of
// the read that observes it; a port failure mid-operation completes the
// operation with StatusHardwareFault once the buffered bytes have been
// drained.
//
// NewDevice accepts any io.ReadWriteCloser, so tests drive the adapter
// over in-memory pipes while Open binds it to a real port.
package serial
