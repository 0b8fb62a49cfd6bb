package auth

import "context"

// Capability is the static feature mask of a guard. Calling an
// operation outside the mask still fails with ErrUnsupported; the mask
// lets callers avoid the call entirely.
type Capability uint8

const (
	// CapAttempt marks guards that can validate credential sets.
	CapAttempt Capability = 1 << iota
	// CapIssue marks guards that can mint tokens via Login.
	CapIssue
	// CapRefresh marks guards that can exchange expired tokens.
	CapRefresh
)

// Has reports whether every bit of want is set.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Guard authenticates one request. Implementations memoize the resolved
// identity, so repeated calls are cheap and hit the resolver once.
type Guard interface {
	// Check reports whether the request carries a valid credential.
	Check(ctx context.Context) bool
	// Guest is the negation of Check.
	Guest(ctx context.Context) bool
	// User returns the authenticated identity, or an error from the
	// package taxonomy (ErrInvalidCredential, ErrTokenExpired,
	// ErrTokenRevoked, ErrUserNotFound, ErrRateLimited).
	User(ctx context.Context) (Identity, error)
	// ID returns the authenticated identity's identifier.
	ID(ctx context.Context) (string, error)
	// Attempt validates a credential set and, on success, authenticates
	// the session with the resolved identity.
	Attempt(ctx context.Context, creds map[string]string) (bool, error)
	// Login issues a credential for an already-resolved identity and
	// returns it (token guards return the signed token).
	Login(ctx context.Context, identity Identity) (string, error)
	// Logout invalidates the current credential where the guard can,
	// and always discards the memoized identity.
	Logout(ctx context.Context) error
	// ValidateToken checks a raw credential without touching the
	// guard's memoized state.
	ValidateToken(ctx context.Context, token string) bool
	// Capabilities returns the guard's static feature mask.
	Capabilities() Capability
}

// resetter is implemented by guards whose per-request memo can be
// discarded without logging out.
type resetter interface {
	resetMemo()
}
