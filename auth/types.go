package auth

import (
	"context"
	"net/http"
	"time"
)

// Identity is the minimal authenticated principal: anything with a
// stable string identifier.
type Identity interface {
	AuthIdentifier() string
}

// CredentialIdentity is implemented by identities that carry a secret
// the guard can verify during Attempt.
type CredentialIdentity interface {
	Identity
	AuthSecret() string
}

// ClaimsIdentity is implemented by identities that contribute custom
// claims to tokens issued for them.
type ClaimsIdentity interface {
	Identity
	AuthClaims() map[string]any
}

// KeyIdentity is the principal behind a static or mapped API key.
type KeyIdentity struct {
	Subject string
	Key     string
}

// AuthIdentifier implements [Identity].
func (k KeyIdentity) AuthIdentifier() string { return k.Subject }

// UserResolver loads identities from the application's user storage.
// A (nil, nil) return means "not found"; errors are reserved for
// storage failures.
type UserResolver interface {
	// ResolveByID loads the identity behind a verified token subject.
	// claims carries the token's custom payload, or nil.
	ResolveByID(ctx context.Context, id string, claims map[string]any) (Identity, error)
	// ResolveByCredentials loads the identity matching a credential set
	// (login attempts, resolver-backed API keys).
	ResolveByCredentials(ctx context.Context, creds map[string]string) (Identity, error)
}

// CacheStore is the small cache surface the guards need: revocation
// marks, rate windows, and key caching.
type CacheStore interface {
	// Get returns the value at key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)
	// Put stores value at key for ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Increment bumps the counter at key and returns the new value. The
	// ttl applies when the increment creates the key.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// HeaderSource is the request surface guards read from. Guards take it
// explicitly so they stay usable for HTTP requests, WebSocket
// handshakes, and tests alike.
type HeaderSource interface {
	Header(name string) string
}

// HeaderMap adapts a plain map to a HeaderSource.
type HeaderMap map[string]string

// Header implements [HeaderSource].
func (h HeaderMap) Header(name string) string { return h[name] }

// HTTPHeaders adapts an http.Header to a HeaderSource.
func HTTPHeaders(h http.Header) HeaderSource { return httpHeaderSource{h} }

type httpHeaderSource struct{ h http.Header }

func (s httpHeaderSource) Header(name string) string { return s.h.Get(name) }
