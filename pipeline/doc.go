// Package pipeline provides a generic, order-preserving chain executor for
// middleware units. A pipeline folds an ordered unit list around a terminal
// handler: units run strictly left to right, each unit decides whether to
// forward the payload, replace it, or short-circuit with its own result.
//
// # Ordering
//
// For units [A, B, C] the observed call order is always
// A.Handle → B.Handle → C.Handle → terminal, with returns unwinding in
// reverse. A unit that returns without calling next prevents every later
// unit and the terminal handler from running.
//
// # What this package must NOT do
//
//   - Recover panics or swallow errors (the conductor owns that policy).
//   - Run units concurrently or reorder them.
//   - Know anything about HTTP, sockets, or authentication.
package pipeline
