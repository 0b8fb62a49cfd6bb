package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Cara-Framework/core-sub002/jwt"
)

type testUser struct {
	id     string
	secret string
	claims map[string]any
}

func (u *testUser) AuthIdentifier() string     { return u.id }
func (u *testUser) AuthSecret() string         { return u.secret }
func (u *testUser) AuthClaims() map[string]any { return u.claims }

// testResolver counts lookups so tests can assert memoization.
type testResolver struct {
	users   map[string]*testUser
	byKey   map[string]*testUser
	byID    int
	byCreds int
}

func (r *testResolver) ResolveByID(_ context.Context, id string, _ map[string]any) (Identity, error) {
	r.byID++
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, nil
}

func (r *testResolver) ResolveByCredentials(_ context.Context, creds map[string]string) (Identity, error) {
	r.byCreds++
	if key, ok := creds["api_key"]; ok {
		if u, ok := r.byKey[key]; ok {
			return u, nil
		}
		return nil, nil
	}
	if u, ok := r.users[creds["username"]]; ok {
		return u, nil
	}
	return nil, nil
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, "authtest")
}

func newTestTokens(t *testing.T, ttl time.Duration) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: []byte("test-secret-0123456789"), TTL: ttl})
	if err != nil {
		t.Fatalf("jwt.NewManager: %v", err)
	}
	return m
}

func tokenGuardConfig() TokenGuardConfig {
	return TokenGuardConfig{
		Secret:            "test-secret-0123456789",
		TTL:               time.Hour,
		RefreshTTL:        24 * time.Hour,
		RevocationEnabled: true,
		HeaderName:        "Authorization",
		HeaderPrefix:      "Bearer",
	}
}
