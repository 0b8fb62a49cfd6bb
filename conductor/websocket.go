package conductor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/observability"
	"github.com/Cara-Framework/core-sub002/pipeline"
	"github.com/Cara-Framework/core-sub002/routing"
)

// WSConfig assembles a WebSocket conductor.
type WSConfig struct {
	Routes     *routing.Table[SocketHandler]
	Middleware *SocketRegistry
	Auth       *auth.Manager
	Logger     *zap.Logger

	// CheckOrigin overrides the upgrader's origin policy. Nil keeps
	// gorilla's same-origin default.
	CheckOrigin func(r *http.Request) bool
}

// WSConductor runs the pipeline lifecycle over upgraded connections.
// The upgrade happens before any unit runs; from then on the two
// termination guarantees of the package hold, plus: the connection is
// always closed.
type WSConductor struct {
	routes   *routing.Table[SocketHandler]
	registry *SocketRegistry
	manager  *auth.Manager
	log      *zap.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader
}

// NewWS validates cfg and returns a ready WebSocket conductor.
func NewWS(cfg WSConfig) (*WSConductor, error) {
	if cfg.Routes == nil || cfg.Middleware == nil || cfg.Auth == nil {
		return nil, errors.New("conductor: routes, middleware, and auth are required")
	}
	if err := cfg.Middleware.Validate(); err != nil {
		return nil, fmt.Errorf("conductor: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = cfg.Auth.Logger()
	}
	return &WSConductor{
		routes:   cfg.Routes,
		registry: cfg.Middleware,
		manager:  cfg.Auth,
		log:      log,
		tracer:   otel.Tracer("conductor/websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}, nil
}

// ServeHTTP implements http.Handler for the upgrade endpoint.
func (c *WSConductor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := c.tracer.Start(r.Context(), "ws "+r.URL.Path)
	defer span.End()

	// The session reads handshake headers, which survive the upgrade.
	headers := auth.HTTPHeaders(r.Header)
	session := c.manager.Session(headers)

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		observability.RequestsTotal.WithLabelValues("ws", "400").Inc()
		return
	}
	observability.SocketsActive.Inc()
	defer observability.SocketsActive.Dec()

	socket := &Socket{Conn: conn, Session: session, Headers: headers}

	err = c.dispatch(ctx, socket, r.URL.Path)
	code := "ok"
	if err != nil {
		code = "error"
	}
	observability.RequestsTotal.WithLabelValues("ws", code).Inc()
	observability.RequestDuration.WithLabelValues("ws").Observe(time.Since(start).Seconds())

	c.terminate(ctx, socket)
	socket.Close(closeCodeFor(err), closeReasonFor(err))
}

// dispatch mirrors the HTTP conductor: global socket units with route
// resolution as the terminal, panic-guarded.
func (c *WSConductor) dispatch(ctx context.Context, socket *Socket, path string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic during socket dispatch",
				zap.Any("panic", rec),
				zap.String("path", path))
			err = fmt.Errorf("socket panic: %v", rec)
		}
	}()

	global, err := c.registry.Global()
	if err != nil {
		return err
	}
	_, err = pipeline.New[*Socket, struct{}](socket).
		Through(global...).
		Then(ctx, func(ctx context.Context, socket *Socket) (struct{}, error) {
			return struct{}{}, c.resolveAndRun(ctx, socket, path)
		})
	return err
}

func (c *WSConductor) resolveAndRun(ctx context.Context, socket *Socket, path string) error {
	match, err := c.routes.Find(routing.MethodWS, path)
	if err != nil {
		return err
	}
	socket.Params = match.Params
	socket.Session.SetRouteGuards(match.Route.GuardNames())

	units, err := c.registry.ResolveAll(match.Route.MiddlewareRefs())
	if err != nil {
		return err
	}
	_, err = pipeline.New[*Socket, struct{}](socket).
		Through(units...).
		Then(ctx, func(ctx context.Context, socket *Socket) (struct{}, error) {
			return struct{}{}, match.Route.Handler(ctx, socket)
		})
	return err
}

func (c *WSConductor) terminate(ctx context.Context, socket *Socket) {
	socket.Session.Reset()

	terminables, err := c.registry.Terminables()
	if err != nil {
		c.log.Error("socket terminables unresolvable", zap.Error(err))
		return
	}
	for _, term := range terminables {
		c.runTerminator(ctx, term, socket)
	}
}

func (c *WSConductor) runTerminator(ctx context.Context, term pipeline.Terminator[*Socket, struct{}], socket *Socket) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic during socket termination", zap.Any("panic", rec))
		}
	}()
	if err := term.Terminate(ctx, socket, struct{}{}); err != nil {
		c.log.Error("socket termination unit failed", zap.Error(err))
	}
}

// closeCodeFor maps a dispatch failure to the close frame code the
// client sees: policy violation for translated auth failures, internal
// error for everything else.
func closeCodeFor(err error) int {
	if err == nil {
		return websocket.CloseNormalClosure
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return websocket.ClosePolicyViolation
	}
	if errors.Is(err, routing.ErrRouteNotFound) || errors.Is(err, routing.ErrMethodNotAllowed) {
		return websocket.ClosePolicyViolation
	}
	return websocket.CloseInternalServerErr
}

func closeReasonFor(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Kind
	}
	if errors.Is(err, routing.ErrRouteNotFound) {
		return "not_found"
	}
	return "internal error"
}
