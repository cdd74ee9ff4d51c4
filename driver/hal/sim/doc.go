// Package sim provides an in-memory hal.Device for hosted tests and
// examples.
//
// The device is scripted from test code: FeedBytes plays the role of
// the wire delivering data, CompleteRead and CompleteWrite inject
// device-reported error completions, and SetTxSpace/GrantTxSpace model
// a bounded transmit FIFO. Interrupt delivery is synchronous in the
// calling goroutine, which makes driver behaviour fully deterministic
// when paired with loop.Drain.
package sim
