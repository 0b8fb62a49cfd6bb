// Package conductor drives a request through its full lifecycle:
// global middleware, route resolution, route middleware, the handler,
// response delivery, and termination. There is one conductor per
// protocol (HTTP and WebSocket) sharing the same algorithm.
//
// Two guarantees hold for every request, including panics and failed
// units:
//
//   - The response is sent exactly once.
//   - Termination runs, starting with the identity-cache reset, and a
//     failing terminable never prevents the remaining ones.
//
// Route resolution happens inside the terminal of the global pipeline,
// so global units observe unroutable requests too.
//
// # What this package must NOT do
//
//   - Interpret credentials or abilities itself; that is translated by
//     the authenticate/can units before errors reach the conductor.
//   - Leak internal error detail to clients. Unknown failures map to a
//     generic 500 body and a server-side log line.
package conductor
