package conductor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/middleware"
)

// SocketAuth rejects unauthenticated handshakes, trying the listed
// guards in order when given any.
type SocketAuth struct {
	Guards []string
}

// Handle implements [SocketUnit].
func (u *SocketAuth) Handle(ctx context.Context, s *Socket, next SocketNext) (struct{}, error) {
	if len(u.Guards) > 0 {
		s.Session.SetRouteGuards(u.Guards)
	}
	if _, err := s.Session.User(ctx); err != nil {
		return struct{}{}, translateGuardError(s.Session.Selected()[0], err)
	}
	return next(ctx, s)
}

// SocketLog writes one line per socket conversation, covering its full
// duration.
type SocketLog struct {
	Log *zap.Logger
}

// Handle implements [SocketUnit].
func (u *SocketLog) Handle(ctx context.Context, s *Socket, next SocketNext) (struct{}, error) {
	start := time.Now()
	out, err := next(ctx, s)
	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if err != nil {
		u.Log.Warn("socket failed", append(fields, zap.Error(err))...)
	} else {
		u.Log.Info("socket closed", fields...)
	}
	return out, err
}

// SocketResetIdentity mirrors ResetIdentity for socket pipelines.
type SocketResetIdentity struct{}

// Handle implements [SocketUnit].
func (SocketResetIdentity) Handle(ctx context.Context, s *Socket, next SocketNext) (struct{}, error) {
	return next(ctx, s)
}

// Terminate implements [pipeline.Terminator].
func (SocketResetIdentity) Terminate(_ context.Context, s *Socket, _ struct{}) error {
	s.Session.Reset()
	return nil
}

// NewSocketRegistry returns a WebSocket middleware registry with the
// built-in socket units registered.
func NewSocketRegistry(log *zap.Logger) *SocketRegistry {
	r := middleware.NewRegistry[*Socket, struct{}]()

	r.Register("authenticate", middleware.Factory[*Socket, struct{}]{
		Params: []middleware.ParamSpec{{Name: "guards", Kind: middleware.KindList}},
		Build: func(args []any) (SocketUnit, error) {
			return &SocketAuth{Guards: args[0].([]string)}, nil
		},
	})
	r.Alias("auth", "authenticate")

	if log != nil {
		r.RegisterUnit("socket-log", &SocketLog{Log: log})
	}
	r.RegisterUnit("reset-identity", SocketResetIdentity{})

	return r
}
