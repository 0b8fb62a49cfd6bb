package auth

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/jwt"
)

// Builder assembles a Manager from configuration and dependencies.
// Build validates everything up front, so a Manager that exists is a
// Manager whose guard names all resolve.
type Builder struct {
	config    Config
	store     CacheStore
	resolvers map[string]UserResolver
	log       *zap.Logger
	built     bool
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{resolvers: map[string]UserResolver{}}
}

// WithConfig sets the guard configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis wires a Redis client as the cache store, with keys under
// prefix.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.store = NewRedisStore(client, prefix)
	return b
}

// WithStore wires an arbitrary cache store.
func (b *Builder) WithStore(store CacheStore) *Builder {
	b.store = store
	return b
}

// WithResolver binds a user resolver to the named guard.
func (b *Builder) WithResolver(guard string, resolver UserResolver) *Builder {
	b.resolvers[guard] = resolver
	return b
}

// WithLogger sets the logger the manager hands to callers.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// Store returns the configured cache store, for components that share
// it (rate-window middleware).
func (b *Builder) Store() CacheStore { return b.store }

// Build validates the configuration and returns the manager. It fails
// with ErrConfigInvalid wrapping the first problem found.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfigInvalid)
	}
	b.built = true

	b.config.applyDefaults()

	bound := map[string]bool{}
	for name := range b.resolvers {
		bound[name] = true
	}
	if err := b.config.validate(b.store != nil, bound); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	factories := map[string]GuardFactory{}
	for name, guardCfg := range b.config.Guards {
		switch guardCfg.Driver {
		case DriverJWT:
			tokens, err := jwt.NewManager(jwt.Config{
				Secret:        []byte(guardCfg.Token.Secret),
				SigningMethod: jwt.SigningMethod(guardCfg.Token.Algorithm),
				TTL:           guardCfg.Token.TTL,
				Issuer:        guardCfg.Token.Issuer,
				Leeway:        guardCfg.Token.Leeway,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: guard %q: %v", ErrConfigInvalid, name, err)
			}
			resolver := b.resolvers[name]
			cfg := guardCfg.Token
			store := b.store
			factories[name] = func(headers HeaderSource) Guard {
				return NewTokenGuard(tokens, resolver, store, headers, cfg)
			}
		case DriverKey:
			resolver := b.resolvers[name]
			cfg := guardCfg.Key
			store := b.store
			factories[name] = func(headers HeaderSource) Guard {
				return NewKeyGuard(resolver, store, headers, cfg)
			}
		}
	}

	return &Manager{
		factories: factories,
		def:       b.config.Default,
		log:       log,
	}, nil
}
