package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the HMAC algorithm used to sign tokens.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. This is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

var (
	// ErrTokenExpired reports a token whose exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports a malformed token, a bad signature, or a
	// payload that fails validation for any non-expiry reason.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds the immutable codec settings. Instances are validated once
// by NewManager and treated as read-only afterward.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	TTL           time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Manager issues and verifies signed tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the decoded, verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
	Payload   map[string]any
}

// Remaining reports the token lifetime left at now. Negative for an
// already-expired token.
func (c *Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}
	return &Manager{config: cfg}, nil
}

// TTL returns the configured default token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a token for subject with the configured TTL. Extra entries
// become part of the signed payload; reserved claim names (sub, iat, exp,
// jti, iss) cannot be overridden by extra.
func (m *Manager) Issue(subject string, extra map[string]any) (string, error) {
	return m.IssueWithTTL(subject, extra, m.config.TTL)
}

// IssueWithTTL signs a token with an explicit lifetime.
func (m *Manager) IssueWithTTL(subject string, extra map[string]any, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("jwt: empty subject")
	}
	if ttl <= 0 {
		return "", errors.New("jwt: non-positive ttl")
	}

	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	claims["jti"] = uuid.NewString()
	if m.config.Issuer != "" {
		claims["iss"] = m.config.Issuer
	}

	token := jwt.NewWithClaims(m.method(), claims)
	return token.SignedString(m.config.Secret)
}

// Parse verifies signature and expiry and returns the decoded claims.
// Expired tokens yield ErrTokenExpired; everything else ErrTokenInvalid.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).Parse(tokenStr, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return m.claimsFrom(parsed)
}

// ParseExpired verifies the signature but skips claim validation. Used by
// the refresh flow, where the caller checks the refresh window manually.
func (m *Manager) ParseExpired(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.Parse(tokenStr, m.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return m.claimsFrom(parsed)
}

func (m *Manager) claimsFrom(token *jwt.Token) (*Claims, error) {
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}

	out := &Claims{
		Subject:   subject,
		ExpiresAt: exp.Time,
		Payload:   map[string]any{},
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		out.ID = jti
	}
	for k, v := range mapClaims {
		switch k {
		case "sub", "iat", "exp", "jti", "iss":
		default:
			out.Payload[k] = v
		}
	}
	return out, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	return m.config.Secret, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}
