// Package auth implements the request-authentication core: guards that
// turn request headers into an authenticated identity, the manager that
// selects between them, and the Redis-backed cache store the guards use
// for revocation, rate windows, and key caching.
//
// Guards are per-request objects built from a HeaderSource. They never
// touch an ambient request global; everything a guard reads arrives
// through its constructor. Identity resolution is memoized per guard and
// once more at the session level, so one request resolves a user at most
// once regardless of how many units ask.
//
// # What this package must NOT do
//
//   - Serve or terminate requests (the conductor package does that).
//   - Decide authorization; it answers "who", the gate answers "may".
//   - Hash or store passwords; credential validation is delegated to the
//     UserResolver.
package auth
