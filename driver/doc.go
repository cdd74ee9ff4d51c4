// Package driver implements an asynchronous character-device driver for
// UART-class peripherals.
//
// It sits between a platform-specific peripheral control object (the
// [hal.Device], which raises interrupts when a byte can be read or
// written) and an event loop (the [hal.EventLoop], which executes
// completion callbacks in ordinary thread context). User-level requests
// are translated into sequences of interrupt-context byte transfers,
// and every accepted request delivers exactly one completion callback
// in event-loop context.
//
// # Architecture
//
//   - [Driver] binds a read half and a write half to one device and one
//     event loop, and exposes the public request and cancel operations
//   - the read half installs the device's can-read and read-complete
//     interrupt hooks, drains the peripheral byte by byte, and
//     evaluates the optional read-until predicate per byte
//   - the write half mirrors the read half minus the predicate
//   - [Config] selects a capacity per direction: 0 compiles a direction
//     down to nothing, 1 keeps a single inline request slot, and 2 or
//     more gives the read half a FIFO of pending requests
//
// # Concurrency
//
// Two execution contexts exist: the event loop and interrupt context.
// No locks are used. The device serialises its interrupt callbacks, and
// the one critical section the driver needs (enqueueing onto a FIFO
// that an in-flight completion may pop) is bracketed by the device's
// Suspend/Resume interrupt mask. Request slots live in storage acquired
// at construction and are reused; each completion is handed to the
// event loop as a newly allocated closure.
//
// # Cancellation
//
// CancelRead and CancelWrite are valid from event-loop context only and
// report partial byte counts through the aborted handler. A read-until
// match races the completion interrupt; the race is resolved by the
// device's in-interrupt CancelRead result, and the loser leaves the
// posting to the completion path.
package driver
