// Package gate is the centralized ability/policy evaluator. Abilities map a
// name to either a callback or a "Policy@method" reference; policies group
// the rules for one resource type and are bound by resource name. Before
// hooks may short-circuit a check, after hooks always run and may override
// the result. With no identity and no applicable rule the gate denies.
//
// Definitions are registered once at startup; a built gate is read-only and
// safe for concurrent use. ForUser returns a per-identity view without
// copying the rule tables.
//
// # What this package must NOT do
//
//   - Authenticate anyone (it consumes an already-resolved identity).
//   - Reach for ambient request state; callers pass the identity in.
//   - Use reflection to probe policy methods; policies declare them.
package gate
