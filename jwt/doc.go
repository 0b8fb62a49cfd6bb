// Package jwt is the token codec used by the bearer-token guard. It wraps
// github.com/golang-jwt/jwt/v5 behind a small Manager that issues and
// verifies HMAC-signed tokens carrying a subject, issued-at, expires-at,
// a unique token ID, and an arbitrary signed payload.
//
// # Expiry handling
//
// Parse enforces expiry and reports it distinctly from signature failures
// so callers can map the two to different error kinds. ParseExpired skips
// claim validation entirely (signature is still verified) and exists only
// for the refresh-window check.
//
// # What this package must NOT do
//
//   - Touch Redis or any store (revocation is the guard's concern).
//   - Resolve users or cache identities.
//   - Be aware of HTTP headers or extraction prefixes.
package jwt
