package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Cara-Framework/core-sub002/jwt"
	"github.com/Cara-Framework/core-sub002/observability"
)

const revocationKeyPrefix = "rvk"

// TokenGuard authenticates bearer tokens. It is a per-request object:
// the resolved identity and raw token are memoized on the guard, so a
// request resolves its user once no matter how many units ask.
//
// The revocation list is consulted before any cryptographic work, so a
// revoked token never reaches signature verification.
type TokenGuard struct {
	tokens   *jwt.Manager
	resolver UserResolver
	store    CacheStore
	headers  HeaderSource
	cfg      TokenGuardConfig

	now func() time.Time

	mu       sync.Mutex
	identity Identity
	claims   *jwt.Claims
	rawToken string
	authed   bool
}

// NewTokenGuard builds a guard for one request surface. store may be
// nil when revocation is disabled.
func NewTokenGuard(tokens *jwt.Manager, resolver UserResolver, store CacheStore, headers HeaderSource, cfg TokenGuardConfig) *TokenGuard {
	return &TokenGuard{
		tokens:   tokens,
		resolver: resolver,
		store:    store,
		headers:  headers,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Capabilities implements [Guard].
func (g *TokenGuard) Capabilities() Capability {
	return CapAttempt | CapIssue | CapRefresh
}

// Check implements [Guard].
func (g *TokenGuard) Check(ctx context.Context) bool {
	_, err := g.User(ctx)
	return err == nil
}

// Guest implements [Guard].
func (g *TokenGuard) Guest(ctx context.Context) bool {
	return !g.Check(ctx)
}

// User implements [Guard]. The first call authenticates the request
// token; later calls return the memoized result.
func (g *TokenGuard) User(ctx context.Context) (Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.authed {
		return g.identity, nil
	}

	token := g.requestToken()
	if token == "" {
		return nil, fmt.Errorf("%w: no token in request", ErrInvalidCredential)
	}
	identity, claims, err := g.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	g.identity, g.claims, g.rawToken, g.authed = identity, claims, token, true
	return identity, nil
}

// ID implements [Guard].
func (g *TokenGuard) ID(ctx context.Context) (string, error) {
	identity, err := g.User(ctx)
	if err != nil {
		return "", err
	}
	return identity.AuthIdentifier(), nil
}

// Attempt implements [Guard]. The resolver validates the credential
// set; if the returned identity also carries a secret, it is compared
// in constant time against the supplied password.
func (g *TokenGuard) Attempt(ctx context.Context, creds map[string]string) (bool, error) {
	identity, err := g.resolver.ResolveByCredentials(ctx, creds)
	if err != nil {
		return false, err
	}
	if identity == nil {
		return false, nil
	}
	if holder, ok := identity.(CredentialIdentity); ok {
		if !secretsEqual(holder.AuthSecret(), creds["password"]) {
			return false, nil
		}
	}
	g.setIdentity(identity)
	return true, nil
}

// Login implements [Guard]: it issues a token for identity with the
// configured TTL and memoizes the identity. Identities implementing
// ClaimsIdentity contribute custom payload claims.
func (g *TokenGuard) Login(ctx context.Context, identity Identity) (string, error) {
	return g.LoginWithTTL(ctx, identity, g.tokens.TTL())
}

// LoginWithTTL issues a token with an explicit lifetime.
func (g *TokenGuard) LoginWithTTL(_ context.Context, identity Identity, ttl time.Duration) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("%w: nil identity", ErrInvalidCredential)
	}
	var extra map[string]any
	if holder, ok := identity.(ClaimsIdentity); ok {
		extra = holder.AuthClaims()
	}
	token, err := g.tokens.IssueWithTTL(identity.AuthIdentifier(), extra, ttl)
	if err != nil {
		return "", err
	}
	observability.TokensIssuedTotal.Inc()

	g.mu.Lock()
	g.identity, g.claims, g.rawToken, g.authed = identity, nil, token, true
	g.mu.Unlock()
	return token, nil
}

// Logout implements [Guard]: the current token goes on the revocation
// list (when enabled) and the memoized identity is discarded.
func (g *TokenGuard) Logout(ctx context.Context) error {
	g.mu.Lock()
	token := g.rawToken
	if token == "" {
		token = g.requestToken()
	}
	g.identity, g.claims, g.rawToken, g.authed = nil, nil, "", false
	g.mu.Unlock()

	if token == "" || !g.cfg.RevocationEnabled || g.store == nil {
		return nil
	}
	return g.revoke(ctx, token)
}

// ValidateToken implements [Guard]: a full check of a raw token without
// touching the memoized request state.
func (g *TokenGuard) ValidateToken(ctx context.Context, token string) bool {
	_, _, err := g.authenticate(ctx, token)
	return err == nil
}

// Refresh exchanges the request's token for a fresh one. Expired
// tokens are accepted while now <= exp + refresh TTL; the old token is
// revoked before the new one is returned.
func (g *TokenGuard) Refresh(ctx context.Context) (string, error) {
	g.mu.Lock()
	token := g.rawToken
	if token == "" {
		token = g.requestToken()
	}
	g.mu.Unlock()
	if token == "" {
		return "", fmt.Errorf("%w: no token in request", ErrInvalidCredential)
	}

	claims, err := g.refreshableClaims(ctx, token)
	if err != nil {
		return "", err
	}
	identity, err := g.resolveSubject(ctx, claims)
	if err != nil {
		return "", err
	}

	if g.cfg.RevocationEnabled && g.store != nil {
		if err := g.revoke(ctx, token); err != nil {
			return "", err
		}
	}

	fresh, err := g.tokens.Issue(identity.AuthIdentifier(), claims.Payload)
	if err != nil {
		return "", err
	}
	observability.TokensIssuedTotal.Inc()

	g.mu.Lock()
	g.identity, g.claims, g.rawToken, g.authed = identity, nil, fresh, true
	g.mu.Unlock()
	return fresh, nil
}

// ValidateRefreshToken reports whether token would be accepted by
// Refresh: signature valid, inside the refresh window, not revoked.
func (g *TokenGuard) ValidateRefreshToken(ctx context.Context, token string) bool {
	_, err := g.refreshableClaims(ctx, token)
	return err == nil
}

func (g *TokenGuard) refreshableClaims(ctx context.Context, token string) (*jwt.Claims, error) {
	if err := g.checkRevocation(ctx, token); err != nil {
		return nil, err
	}
	claims, err := g.tokens.ParseExpired(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if g.now().After(claims.ExpiresAt.Add(g.cfg.RefreshTTL)) {
		return nil, fmt.Errorf("%w: outside refresh window", ErrTokenExpired)
	}
	return claims, nil
}

// authenticate runs the full token check: revocation, then signature
// and expiry, then subject resolution.
func (g *TokenGuard) authenticate(ctx context.Context, token string) (Identity, *jwt.Claims, error) {
	if err := g.checkRevocation(ctx, token); err != nil {
		return nil, nil, err
	}
	claims, err := g.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrTokenExpired
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	identity, err := g.resolveSubject(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return identity, claims, nil
}

func (g *TokenGuard) resolveSubject(ctx context.Context, claims *jwt.Claims) (Identity, error) {
	identity, err := g.resolver.ResolveByID(ctx, claims.Subject, claims.Payload)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: subject %q", ErrUserNotFound, claims.Subject)
	}
	return identity, nil
}

func (g *TokenGuard) checkRevocation(ctx context.Context, token string) error {
	if !g.cfg.RevocationEnabled || g.store == nil {
		return nil
	}
	_, err := g.store.Get(ctx, revocationKey(token))
	if err == nil {
		return ErrTokenRevoked
	}
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	return err
}

// revoke marks token until its natural expiry plus the configured
// grace. Tokens already past that point need no mark.
func (g *TokenGuard) revoke(ctx context.Context, token string) error {
	claims, err := g.tokens.ParseExpired(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	ttl := claims.Remaining(g.now()) + g.cfg.RevocationGrace
	if ttl <= 0 {
		return nil
	}
	if err := g.store.Put(ctx, revocationKey(token), "1", ttl); err != nil {
		return err
	}
	observability.TokensRevokedTotal.Inc()
	return nil
}

func (g *TokenGuard) requestToken() string {
	raw := g.headers.Header(g.cfg.HeaderName)
	if raw == "" {
		return ""
	}
	if g.cfg.HeaderPrefix != "" {
		trimmed := strings.TrimPrefix(raw, g.cfg.HeaderPrefix)
		if trimmed == raw {
			return ""
		}
		return strings.TrimSpace(trimmed)
	}
	return strings.TrimSpace(raw)
}

func (g *TokenGuard) setIdentity(identity Identity) {
	g.mu.Lock()
	g.identity, g.claims, g.rawToken, g.authed = identity, nil, "", true
	g.mu.Unlock()
}

func (g *TokenGuard) resetMemo() {
	g.mu.Lock()
	g.identity, g.claims, g.rawToken, g.authed = nil, nil, "", false
	g.mu.Unlock()
}

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revocationKeyPrefix + ":" + hex.EncodeToString(sum[:])
}
