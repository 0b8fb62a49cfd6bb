// Package middleware holds the registry that turns string middleware
// references into concrete pipeline units. A reference is one of
//
//	name                a registered unit (or alias) with default params
//	name:p1,p2          a parameterized unit
//	groupName           a named ordered list of references
//
// Parameters are comma-split, trimmed, and matched positionally against
// the factory's declared parameter schema (ordered, typed, with defaults).
// A registry is populated once at startup and is read-only afterward;
// only the parameterization cache mutates at request time, behind its own
// lock. Each distinct parameterization is constructed once and reused.
//
// # What this package must NOT do
//
//   - Execute units (the pipeline package does that).
//   - Inspect unit constructors at runtime; factories declare their schema.
package middleware
