package jwt

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    ttl,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.Issue("u1", map[string]any{"role": "admin"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q, want u1", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti claim")
	}
	if role, _ := claims.Payload["role"].(string); role != "admin" {
		t.Fatalf("payload role = %v", claims.Payload["role"])
	}
	if rem := claims.Remaining(time.Now()); rem <= 55*time.Minute {
		t.Fatalf("remaining lifetime %v, want close to 1h", rem)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.IssueWithTTL("u1", nil, time.Millisecond)
	if err != nil {
		t.Fatalf("IssueWithTTL failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}

	// ParseExpired still verifies signature and yields claims.
	claims, err := m.ParseExpired(token)
	if err != nil {
		t.Fatalf("ParseExpired failed: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t, time.Hour)
	other, err := NewManager(Config{Secret: []byte("another-secret-another-secret!!!"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.Issue("u1", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseExpired(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ParseExpired err = %v, want ErrTokenInvalid", err)
	}
}

func TestIssueRejectsReservedOverride(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.Issue("u1", map[string]any{"sub": "spoofed"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q, reserved claim was overridden", claims.Subject)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing secret", Config{TTL: time.Hour}},
		{"zero ttl", Config{Secret: []byte("s"), TTL: 0}},
		{"bad method", Config{Secret: []byte("s"), TTL: time.Hour, SigningMethod: "rs256"}},
		{"excessive leeway", Config{Secret: []byte("s"), TTL: time.Hour, Leeway: time.Hour}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Fatalf("%s: expected configuration error", tc.name)
		}
	}
}
