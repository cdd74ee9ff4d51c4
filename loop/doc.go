// Package loop provides the event loop that executes driver completion
// callbacks in ordinary thread context.
//
// The driver posts nullary callables from either execution context;
// [Loop.Run] dispatches them one at a time, in post order, with no
// preemption between callbacks. [Loop.Drain] runs the queue
// synchronously for deterministic stepping in tests and examples.
package loop
