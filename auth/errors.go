package auth

import "errors"

var (
	// ErrInvalidCredential reports a missing or malformed credential:
	// no token header, a bad signature, or a failed login attempt.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrTokenExpired reports a token outside its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports a token found on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUserNotFound reports a verified credential whose subject no
	// longer resolves to a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateLimited reports a request rejected by a rate window.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnsupported reports an operation the guard cannot perform.
	ErrUnsupported = errors.New("operation not supported by guard")
	// ErrGuardNotFound reports a guard name with no registered factory.
	ErrGuardNotFound = errors.New("guard not found")
	// ErrConfigInvalid reports a configuration rejected at build time.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrCacheMiss reports an absent cache key.
	ErrCacheMiss = errors.New("cache miss")
	// ErrStoreUnavailable reports a cache store that could not be reached.
	ErrStoreUnavailable = errors.New("cache store unavailable")
)
