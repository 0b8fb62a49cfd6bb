package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTokenGuard(t *testing.T, resolver *testResolver, store CacheStore, headers HeaderSource) *TokenGuard {
	t.Helper()
	return NewTokenGuard(newTestTokens(t, time.Hour), resolver, store, headers, tokenGuardConfig())
}

func TestTokenLoginThenValidate(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"u1": {id: "u1"}}}

	issuer := newTokenGuard(t, resolver, store, HeaderMap{})
	token, err := issuer.Login(ctx, resolver.users["u1"])
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	guard := newTokenGuard(t, resolver, store, HeaderMap{"Authorization": "Bearer " + token})
	identity, err := guard.User(ctx)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if identity.AuthIdentifier() != "u1" {
		t.Fatalf("identity = %q", identity.AuthIdentifier())
	}
	if !guard.Check(ctx) || guard.Guest(ctx) {
		t.Fatal("authenticated guard must report Check=true, Guest=false")
	}
}

func TestTokenUserIsMemoized(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"u1": {id: "u1"}}}

	token, err := newTokenGuard(t, resolver, store, HeaderMap{}).Login(ctx, resolver.users["u1"])
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	guard := newTokenGuard(t, resolver, store, HeaderMap{"Authorization": "Bearer " + token})
	for i := 0; i < 5; i++ {
		if _, err := guard.User(ctx); err != nil {
			t.Fatalf("User #%d: %v", i, err)
		}
	}
	if resolver.byID != 1 {
		t.Fatalf("resolver hit %d times, want 1", resolver.byID)
	}
}

func TestTokenMissingAndMalformed(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{}}

	guard := newTokenGuard(t, resolver, store, HeaderMap{})
	if _, err := guard.User(ctx); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("missing header: err = %v", err)
	}

	guard = newTokenGuard(t, resolver, store, HeaderMap{"Authorization": "Bearer garbage"})
	if _, err := guard.User(ctx); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("malformed token: err = %v", err)
	}

	// Prefix mismatch means no token, not a malformed one.
	guard = newTokenGuard(t, resolver, store, HeaderMap{"Authorization": "Basic abc"})
	if _, err := guard.User(ctx); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong prefix: err = %v", err)
	}
}

func TestTokenLogoutRevokes(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"u1": {id: "u1"}}}

	token, err := newTokenGuard(t, resolver, store, HeaderMap{}).Login(ctx, resolver.users["u1"])
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	headers := HeaderMap{"Authorization": "Bearer " + token}

	guard := newTokenGuard(t, resolver, store, headers)
	if _, err := guard.User(ctx); err != nil {
		t.Fatalf("User before logout: %v", err)
	}
	if err := guard.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// A fresh guard over the same token must see the revocation.
	fresh := newTokenGuard(t, resolver, store, headers)
	if _, err := fresh.User(ctx); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("after logout: err = %v, want ErrTokenRevoked", err)
	}

	// The mark outlives the token by nothing here (no grace), so the
	// store must hold exactly one revocation key.
	if got := len(mr.Keys()); got != 1 {
		t.Fatalf("store holds %d keys, want 1", got)
	}
}

func TestTokenRevocationMarkExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"u1": {id: "u1"}}}

	cfg := tokenGuardConfig()
	cfg.RevocationGrace = time.Minute
	tokens := newTestTokens(t, time.Hour)
	issuer := NewTokenGuard(tokens, resolver, store, HeaderMap{}, cfg)
	token, err := issuer.Login(ctx, resolver.users["u1"])
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	guard := NewTokenGuard(tokens, resolver, store, HeaderMap{"Authorization": "Bearer " + token}, cfg)
	if err := guard.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// Inside lifetime + grace the mark is present.
	mr.FastForward(time.Hour)
	if got := len(mr.Keys()); got != 1 {
		t.Fatalf("mark gone before grace elapsed (%d keys)", got)
	}
	// Past lifetime + grace it is garbage-collected by TTL.
	mr.FastForward(2 * time.Minute)
	if got := len(mr.Keys()); got != 0 {
		t.Fatalf("mark survived past grace (%d keys)", got)
	}
}

func TestTokenExpiredAndRefreshWindow(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"u1": {id: "u1"}}}

	tokens := newTestTokens(t, time.Hour)
	cfg := tokenGuardConfig()
	cfg.RevocationGrace = 2 * time.Hour
	token, err := tokens.IssueWithTTL("u1", nil, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	headers := HeaderMap{"Authorization": "Bearer " + token}

	// Two hours later the token is expired but refreshable (24h window).
	guard := NewTokenGuard(tokens, resolver, store, headers, cfg)
	guard.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if !guard.ValidateRefreshToken(ctx, token) {
		t.Fatal("token inside refresh window must be refreshable")
	}
	fresh, err := guard.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh == token {
		t.Fatal("Refresh must issue a new token")
	}

	// The old token is revoked by the exchange.
	stale := NewTokenGuard(tokens, resolver, store, headers, cfg)
	if _, err := stale.User(ctx); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("old token after refresh: err = %v, want ErrTokenRevoked", err)
	}

	// Outside exp + refresh TTL the exchange is rejected.
	late := NewTokenGuard(tokens, resolver, store, HeaderMap{"Authorization": "Bearer " + fresh}, cfg)
	late.now = func() time.Time { return time.Now().Add(26 * time.Hour) }
	if _, err := late.Refresh(ctx); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("outside window: err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenUnknownSubject(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{}}

	tokens := newTestTokens(t, time.Hour)
	token, err := tokens.Issue("ghost", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	guard := NewTokenGuard(tokens, resolver, store, HeaderMap{"Authorization": "Bearer " + token}, tokenGuardConfig())
	if _, err := guard.User(ctx); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestTokenAttemptVerifiesSecret(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	resolver := &testResolver{users: map[string]*testUser{"alice": {id: "alice", secret: "s3cret"}}}
	guard := newTokenGuard(t, resolver, store, HeaderMap{})

	ok, err := guard.Attempt(ctx, map[string]string{"username": "alice", "password": "s3cret"})
	if err != nil || !ok {
		t.Fatalf("Attempt(good) = %v, %v", ok, err)
	}
	if !guard.Check(ctx) {
		t.Fatal("successful attempt must authenticate the guard")
	}

	guard = newTokenGuard(t, resolver, store, HeaderMap{})
	ok, err = guard.Attempt(ctx, map[string]string{"username": "alice", "password": "wrong"})
	if err != nil || ok {
		t.Fatalf("Attempt(bad) = %v, %v", ok, err)
	}
	ok, err = guard.Attempt(ctx, map[string]string{"username": "nobody", "password": "x"})
	if err != nil || ok {
		t.Fatalf("Attempt(unknown) = %v, %v", ok, err)
	}
}

func TestTokenLoginCarriesCustomClaims(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	user := &testUser{id: "u1", claims: map[string]any{"role": "editor"}}
	resolver := &testResolver{users: map[string]*testUser{"u1": user}}

	tokens := newTestTokens(t, time.Hour)
	guard := NewTokenGuard(tokens, resolver, store, HeaderMap{}, tokenGuardConfig())
	token, err := guard.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Payload["role"] != "editor" {
		t.Fatalf("payload = %v", claims.Payload)
	}
}

func TestTokenCapabilities(t *testing.T) {
	_, store := newTestStore(t)
	guard := newTokenGuard(t, &testResolver{}, store, HeaderMap{})
	if !guard.Capabilities().Has(CapAttempt | CapIssue | CapRefresh) {
		t.Fatalf("capabilities = %b", guard.Capabilities())
	}
}
