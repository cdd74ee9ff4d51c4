// Package pkg provides shared infrastructure for the softuart driver:
// the completion status taxonomy reported by character devices and the
// logging facilities used across the driver, HAL adapters, and event loop.
//
// # Status Values
//
// Asynchronous operations complete with a [Status] describing the outcome.
// [StatusSuccess] maps to a nil error; every other status maps to a
// sentinel error via [Status.Error], so callers can use errors.Is against
// package-level sentinels such as [ErrAborted].
//
// # Logging
//
// Logging uses the standard library's log/slog with a component attribute
// for filtering. The interrupt-context paths of the driver never log;
// logging is reserved for construction, teardown, the event loop, and the
// hosted adapters.
package pkg
