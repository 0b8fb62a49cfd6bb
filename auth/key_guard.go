package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Cara-Framework/core-sub002/observability"
)

const (
	keyRateKeyPrefix  = "krl"
	keyCacheKeyPrefix = "kid"
)

// KeyGuard authenticates static API keys. Resolution order: the bound
// resolver (when enabled), then the static key list, then the key map.
// Static comparisons run in constant time over SHA-256 digests.
//
// The rate window is checked before any resolution work and only
// consumed by successful authentications.
type KeyGuard struct {
	resolver UserResolver
	store    CacheStore
	headers  HeaderSource
	cfg      KeyGuardConfig

	mu       sync.Mutex
	identity Identity
	authed   bool
}

// NewKeyGuard builds a guard for one request surface. resolver may be
// nil unless cfg.UseResolver is set; store may be nil when both rate
// limiting and caching are off.
func NewKeyGuard(resolver UserResolver, store CacheStore, headers HeaderSource, cfg KeyGuardConfig) *KeyGuard {
	return &KeyGuard{
		resolver: resolver,
		store:    store,
		headers:  headers,
		cfg:      cfg,
	}
}

// Capabilities implements [Guard]. Key guards cannot attempt, issue,
// or refresh.
func (g *KeyGuard) Capabilities() Capability { return 0 }

// Check implements [Guard].
func (g *KeyGuard) Check(ctx context.Context) bool {
	_, err := g.User(ctx)
	return err == nil
}

// Guest implements [Guard].
func (g *KeyGuard) Guest(ctx context.Context) bool {
	return !g.Check(ctx)
}

// User implements [Guard].
func (g *KeyGuard) User(ctx context.Context) (Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.authed {
		return g.identity, nil
	}

	key := g.requestKey()
	if key == "" {
		return nil, fmt.Errorf("%w: no API key in request", ErrInvalidCredential)
	}
	identity, err := g.authenticate(ctx, key)
	if err != nil {
		return nil, err
	}
	g.identity, g.authed = identity, true
	return identity, nil
}

// ID implements [Guard].
func (g *KeyGuard) ID(ctx context.Context) (string, error) {
	identity, err := g.User(ctx)
	if err != nil {
		return "", err
	}
	return identity.AuthIdentifier(), nil
}

// Attempt implements [Guard]; key guards do not support it.
func (g *KeyGuard) Attempt(context.Context, map[string]string) (bool, error) {
	return false, ErrUnsupported
}

// Login implements [Guard]; key guards do not mint credentials.
func (g *KeyGuard) Login(context.Context, Identity) (string, error) {
	return "", ErrUnsupported
}

// Logout implements [Guard]. Keys are long-lived, so logout only
// discards the memoized identity.
func (g *KeyGuard) Logout(context.Context) error {
	g.resetMemo()
	return nil
}

// ValidateToken implements [Guard], treating token as a raw key.
func (g *KeyGuard) ValidateToken(ctx context.Context, token string) bool {
	_, err := g.authenticate(ctx, token)
	return err == nil
}

func (g *KeyGuard) authenticate(ctx context.Context, key string) (Identity, error) {
	hash := keyHash(key)

	if err := g.checkRateWindow(ctx, hash); err != nil {
		return nil, err
	}

	identity, err := g.resolveKey(ctx, key, hash)
	if err != nil {
		return nil, err
	}

	if g.cfg.RateLimitEnabled && g.store != nil {
		if _, err := g.store.Increment(ctx, keyRateKeyPrefix+":"+hash, g.cfg.RateLimitWindow); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

// checkRateWindow rejects before resolution when the current window is
// already exhausted.
func (g *KeyGuard) checkRateWindow(ctx context.Context, hash string) error {
	if !g.cfg.RateLimitEnabled || g.store == nil {
		return nil
	}
	val, err := g.store.Get(ctx, keyRateKeyPrefix+":"+hash)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return err
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: corrupt rate counter", ErrStoreUnavailable)
	}
	if count >= g.cfg.RateLimitMax {
		observability.RateLimitRejectedTotal.WithLabelValues("api_key").Inc()
		return fmt.Errorf("%w: api key over %d per window", ErrRateLimited, g.cfg.RateLimitMax)
	}
	return nil
}

func (g *KeyGuard) resolveKey(ctx context.Context, key, hash string) (Identity, error) {
	if g.cfg.UseResolver && g.resolver != nil {
		if identity, err := g.resolveViaResolver(ctx, key, hash); identity != nil || err != nil {
			return identity, err
		}
	}

	for _, candidate := range g.cfg.Keys {
		if secretsEqual(candidate, key) {
			return KeyIdentity{Subject: "api-key:" + hash[:8], Key: key}, nil
		}
	}
	for candidate, subject := range g.cfg.KeyMap {
		if secretsEqual(candidate, key) {
			return KeyIdentity{Subject: subject, Key: key}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown API key", ErrInvalidCredential)
}

// resolveViaResolver looks the key up through the UserResolver, going
// through the positive cache when enabled. A (nil, nil) return means
// the resolver does not know the key and the static sources should be
// tried.
func (g *KeyGuard) resolveViaResolver(ctx context.Context, key, hash string) (Identity, error) {
	cacheKey := keyCacheKeyPrefix + ":" + hash

	if g.cfg.CacheEnabled && g.store != nil {
		subject, err := g.store.Get(ctx, cacheKey)
		if err == nil {
			identity, err := g.resolver.ResolveByID(ctx, subject, nil)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
			// Cached subject no longer resolves; fall through to a
			// fresh credential lookup.
		} else if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}

	identity, err := g.resolver.ResolveByCredentials(ctx, map[string]string{"api_key": key})
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	if g.cfg.CacheEnabled && g.store != nil {
		if err := g.store.Put(ctx, cacheKey, identity.AuthIdentifier(), g.cfg.CacheTTL); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

func (g *KeyGuard) requestKey() string {
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

func (g *KeyGuard) resetMemo() {
	g.mu.Lock()
	g.identity, g.authed = nil, false
	g.mu.Unlock()
}

func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// secretsEqual compares two secrets in constant time over their
// digests, so length differences leak nothing.
func secretsEqual(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
