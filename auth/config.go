package auth

import (
	"fmt"
	"time"
)

// Driver names accepted in GuardConfig.
const (
	DriverJWT = "jwt"
	DriverKey = "key"
)

// Config is the authentication surface: a default guard name and the
// per-guard definitions. Configure once at startup and treat as
// immutable afterwards.
type Config struct {
	// Default names the guard used when neither the caller nor the
	// route picks one.
	Default string                 `mapstructure:"default"`
	Guards  map[string]GuardConfig `mapstructure:"guards"`
}

// GuardConfig defines one named guard. Driver selects which of the
// embedded sections applies.
type GuardConfig struct {
	Driver string           `mapstructure:"driver"`
	Token  TokenGuardConfig `mapstructure:"token"`
	Key    KeyGuardConfig   `mapstructure:"key"`
}

// TokenGuardConfig configures a JWT-backed guard.
type TokenGuardConfig struct {
	Secret     string        `mapstructure:"secret"`
	Algorithm  string        `mapstructure:"algorithm"`
	TTL        time.Duration `mapstructure:"ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Issuer     string        `mapstructure:"issuer"`
	Leeway     time.Duration `mapstructure:"leeway"`

	RevocationEnabled bool          `mapstructure:"revocation_enabled"`
	RevocationGrace   time.Duration `mapstructure:"revocation_grace"`

	HeaderName   string `mapstructure:"header_name"`
	HeaderPrefix string `mapstructure:"header_prefix"`
}

// KeyGuardConfig configures a static API-key guard.
type KeyGuardConfig struct {
	HeaderName   string `mapstructure:"header_name"`
	HeaderPrefix string `mapstructure:"header_prefix"`

	// Keys are accepted as-is; the key itself becomes the subject.
	Keys []string `mapstructure:"keys"`
	// KeyMap maps keys to named subjects.
	KeyMap map[string]string `mapstructure:"key_map"`
	// UseResolver routes unknown keys through the guard's UserResolver.
	UseResolver bool `mapstructure:"use_resolver"`

	RateLimitEnabled bool          `mapstructure:"rate_limit_enabled"`
	RateLimitMax     int64         `mapstructure:"rate_limit_max"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`

	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

func (c *Config) applyDefaults() {
	for name, guard := range c.Guards {
		switch guard.Driver {
		case DriverJWT:
			t := &guard.Token
			if t.Algorithm == "" {
				t.Algorithm = "hs256"
			}
			if t.TTL == 0 {
				t.TTL = time.Hour
			}
			if t.RefreshTTL == 0 {
				t.RefreshTTL = 14 * 24 * time.Hour
			}
			if t.HeaderName == "" {
				t.HeaderName = "Authorization"
			}
			if t.HeaderPrefix == "" {
				t.HeaderPrefix = "Bearer"
			}
		case DriverKey:
			k := &guard.Key
			if k.HeaderName == "" {
				k.HeaderName = "X-API-Key"
			}
			if k.RateLimitWindow == 0 {
				k.RateLimitWindow = time.Minute
			}
			if k.CacheTTL == 0 {
				k.CacheTTL = 5 * time.Minute
			}
		}
		c.Guards[name] = guard
	}
}

// validate is the build-time gate: a config that passes here will not
// surprise at request time.
func (c *Config) validate(haveStore bool, resolvers map[string]bool) error {
	if c.Default == "" {
		return fmt.Errorf("%w: default guard not set", ErrConfigInvalid)
	}
	if _, ok := c.Guards[c.Default]; !ok {
		return fmt.Errorf("%w: default guard %q not defined", ErrConfigInvalid, c.Default)
	}
	for name, guard := range c.Guards {
		switch guard.Driver {
		case DriverJWT:
			t := guard.Token
			if t.Secret == "" {
				return fmt.Errorf("%w: guard %q: secret required", ErrConfigInvalid, name)
			}
			if t.TTL <= 0 {
				return fmt.Errorf("%w: guard %q: ttl must be positive", ErrConfigInvalid, name)
			}
			if !resolvers[name] {
				return fmt.Errorf("%w: guard %q: user resolver required", ErrConfigInvalid, name)
			}
			if t.RevocationEnabled && !haveStore {
				return fmt.Errorf("%w: guard %q: revocation requires a cache store", ErrConfigInvalid, name)
			}
		case DriverKey:
			k := guard.Key
			if len(k.Keys) == 0 && len(k.KeyMap) == 0 && !k.UseResolver {
				return fmt.Errorf("%w: guard %q: no key source configured", ErrConfigInvalid, name)
			}
			if k.UseResolver && !resolvers[name] {
				return fmt.Errorf("%w: guard %q: use_resolver set but no resolver bound", ErrConfigInvalid, name)
			}
			if k.RateLimitEnabled && !haveStore {
				return fmt.Errorf("%w: guard %q: rate limiting requires a cache store", ErrConfigInvalid, name)
			}
			if k.RateLimitEnabled && k.RateLimitMax <= 0 {
				return fmt.Errorf("%w: guard %q: rate_limit_max must be positive", ErrConfigInvalid, name)
			}
			if k.CacheEnabled && !haveStore {
				return fmt.Errorf("%w: guard %q: key caching requires a cache store", ErrConfigInvalid, name)
			}
		default:
			return fmt.Errorf("%w: guard %q: unknown driver %q", ErrConfigInvalid, name, guard.Driver)
		}
	}
	return nil
}
