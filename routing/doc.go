// Package routing maps an incoming (method, path) pair to a registered
// route and its captured path parameters. Matching is delegated to the
// chi trie; this package adds the route table that ties a match back to
// the handler, guard, and middleware references declared for it.
//
// Routes carry declaration only. Resolution of middleware references and
// execution of handlers happen elsewhere.
//
// # What this package must NOT do
//
//   - Serve HTTP. The table is a lookup structure, not a handler.
//   - Resolve middleware references; it stores the strings as declared.
package routing
