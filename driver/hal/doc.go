// Package hal defines the Hardware Abstraction Layer contracts consumed
// by the softuart driver: the character [Device] peripheral interface,
// the [EventLoop] run-queue interface, and the execution-context tags
// threaded through every device call.
//
// Platform vendors implement [Device] to enable the driver on their
// hardware. Hosted implementations live in the sim and serial
// subpackages; on bare-metal targets the interrupt mask is the real one,
// while hosted implementations substitute a mutex, as long as the
// callback serialisation guarantees documented on [Device] hold.
package hal
