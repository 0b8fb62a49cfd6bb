package conductor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/gate"
	"github.com/Cara-Framework/core-sub002/middleware"
	"github.com/Cara-Framework/core-sub002/observability"
)

// Authenticate rejects unauthenticated requests. With guard names it
// tries each in order before the session's own selection applies.
type Authenticate struct {
	Guards []string
}

// Handle implements [Unit].
func (u *Authenticate) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	if len(u.Guards) > 0 {
		req.Session.SetRouteGuards(u.Guards)
	}
	_, err := req.Session.User(ctx)
	if err != nil {
		return nil, translateGuardError(req.Session.Selected()[0], err)
	}
	return next(ctx, req)
}

// translateGuardError converts a guard failure into the structured
// client outcome: the kind names the failure class, the message stays
// generic.
func translateGuardError(guard string, err error) *HTTPError {
	status, kind := http.StatusUnauthorized, "invalid_credential"
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		status, kind = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, auth.ErrTokenExpired):
		kind = "token_expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		kind = "token_revoked"
	case errors.Is(err, auth.ErrUserNotFound):
		kind = "unknown_subject"
	}
	observability.AuthFailuresTotal.WithLabelValues(guard, kind).Inc()
	return &HTTPError{Status: status, Kind: kind, Message: "authentication failed"}
}

// Can authorizes the authenticated identity against one gate ability.
type Can struct {
	Gate    *gate.Gate
	Ability string
}

// Handle implements [Unit].
func (u *Can) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	identity, _ := req.Session.User(ctx)

	var gateIdentity gate.Identity
	if identity != nil {
		gateIdentity = identity
	}
	if err := u.Gate.ForUser(gateIdentity).Authorize(u.Ability); err != nil {
		return nil, &HTTPError{
			Status:  http.StatusForbidden,
			Kind:    "forbidden",
			Message: fmt.Sprintf("not authorized for %q", u.Ability),
		}
	}
	return next(ctx, req)
}

// Throttle applies a fixed-window rate limit keyed by identity when
// authenticated, client address otherwise.
type Throttle struct {
	Store      auth.CacheStore
	Max        int64
	PerMinutes int
}

// Handle implements [Unit].
func (u *Throttle) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	window := time.Duration(u.PerMinutes) * time.Minute
	count, err := u.Store.Increment(ctx, "thr:"+u.subjectKey(ctx, req), window)
	if err != nil {
		return nil, err
	}
	if count > u.Max {
		observability.RateLimitRejectedTotal.WithLabelValues("request").Inc()
		return nil, &HTTPError{
			Status:  http.StatusTooManyRequests,
			Kind:    "rate_limited",
			Message: "too many requests",
		}
	}
	return next(ctx, req)
}

func (u *Throttle) subjectKey(ctx context.Context, req *Request) string {
	if id, err := req.Session.ID(ctx); err == nil {
		return hashKey("id:" + id)
	}
	host, _, err := net.SplitHostPort(req.Raw.RemoteAddr)
	if err != nil {
		host = req.Raw.RemoteAddr
	}
	return hashKey("addr:" + host)
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// RequestID assigns the correlation id: an incoming X-Request-ID is
// trusted, otherwise a fresh UUID is minted. The conductor echoes it
// on the response.
type RequestID struct{}

// Handle implements [Unit].
func (RequestID) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	id := req.Raw.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	req.ID = id
	return next(ctx, req)
}

// RequestLog writes one structured line per request after the inner
// pipeline returns.
type RequestLog struct {
	Log *zap.Logger
}

// Handle implements [Unit].
func (u *RequestLog) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	start := time.Now()
	resp, err := next(ctx, req)

	fields := []zap.Field{
		zap.String("method", req.Raw.Method),
		zap.String("path", req.Raw.URL.Path),
		zap.Duration("duration", time.Since(start)),
	}
	if req.ID != "" {
		fields = append(fields, zap.String("request_id", req.ID))
	}
	if err != nil {
		u.Log.Warn("request failed", append(fields, zap.Error(err))...)
	} else if resp != nil {
		u.Log.Info("request", append(fields, zap.Int("status", resp.Status))...)
	}
	return resp, err
}

// ResetIdentity is the terminable that clears the request's identity
// caches. The conductor also resets directly as the first termination
// step; registering the unit keeps the contract visible in middleware
// listings.
type ResetIdentity struct{}

// Handle implements [Unit].
func (ResetIdentity) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	return next(ctx, req)
}

// Terminate implements [pipeline.Terminator].
func (ResetIdentity) Terminate(_ context.Context, req *Request, _ *Response) error {
	req.Session.Reset()
	return nil
}

// Registry is the HTTP middleware registry shape.
type Registry = middleware.Registry[*Request, *Response]

// NewRegistry returns an HTTP middleware registry with the built-in
// units registered under their conventional names and aliases.
func NewRegistry(g *gate.Gate, store auth.CacheStore, log *zap.Logger) *Registry {
	r := middleware.NewRegistry[*Request, *Response]()

	r.Register("authenticate", middleware.Factory[*Request, *Response]{
		Params: []middleware.ParamSpec{{Name: "guards", Kind: middleware.KindList}},
		Build: func(args []any) (Unit, error) {
			return &Authenticate{Guards: args[0].([]string)}, nil
		},
	})
	r.Alias("auth", "authenticate")

	if g != nil {
		r.Register("can", middleware.Factory[*Request, *Response]{
			Params: []middleware.ParamSpec{{Name: "ability", Kind: middleware.KindString, Required: true}},
			Build: func(args []any) (Unit, error) {
				return &Can{Gate: g, Ability: args[0].(string)}, nil
			},
		})
	}

	if store != nil {
		r.Register("throttle", middleware.Factory[*Request, *Response]{
			Params: []middleware.ParamSpec{
				{Name: "max", Kind: middleware.KindInt, Required: true},
				{Name: "perMinutes", Kind: middleware.KindInt, Default: 1},
			},
			Build: func(args []any) (Unit, error) {
				return &Throttle{Store: store, Max: int64(args[0].(int)), PerMinutes: args[1].(int)}, nil
			},
		})
	}

	r.RegisterUnit("request-id", RequestID{})
	if log != nil {
		r.RegisterUnit("request-log", &RequestLog{Log: log})
	}
	r.RegisterUnit("reset-identity", ResetIdentity{})

	return r
}
