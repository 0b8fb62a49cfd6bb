package conductor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/observability"
	"github.com/Cara-Framework/core-sub002/pipeline"
	"github.com/Cara-Framework/core-sub002/routing"
)

// Config assembles an HTTP conductor.
type Config struct {
	Routes     *routing.Table[Handler]
	Middleware *Registry
	Auth       *auth.Manager
	Logger     *zap.Logger
}

// Conductor serves HTTP requests through the pipeline lifecycle. Build
// it once at startup; it is safe for concurrent use.
type Conductor struct {
	routes   *routing.Table[Handler]
	registry *Registry
	manager  *auth.Manager
	log      *zap.Logger
	tracer   trace.Tracer
}

// New validates cfg (including every registered middleware reference)
// and returns a ready conductor.
func New(cfg Config) (*Conductor, error) {
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
	return &Conductor{
		routes:   cfg.Routes,
		registry: cfg.Middleware,
		manager:  cfg.Auth,
		log:      log,
		tracer:   otel.Tracer("conductor/http"),
	}, nil
}

// ServeHTTP implements http.Handler. Whatever dispatch does, the
// response is sent exactly once and termination runs.
func (c *Conductor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := c.tracer.Start(r.Context(), "http "+r.Method)
	defer span.End()

	req := &Request{
		Raw:     r,
		Session: c.manager.Session(auth.HTTPHeaders(r.Header)),
		w:       w,
	}

	resp := c.dispatch(ctx, req)
	req.send(resp)

	observability.RequestsTotal.WithLabelValues("http", strconv.Itoa(resp.Status)).Inc()
	observability.RequestDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())

	c.terminate(ctx, req, resp)
}

// dispatch runs global middleware with route resolution as its
// terminal, then maps whatever comes back to a concrete response. The
// recover covers handler and unit panics.
func (c *Conductor) dispatch(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic during dispatch",
				zap.Any("panic", rec),
				zap.String("path", req.Raw.URL.Path))
			resp = Text(http.StatusInternalServerError, "internal server error")
		}
	}()

	global, err := c.registry.Global()
	if err != nil {
		return c.mapError(req, err)
	}
	result, err := pipeline.New[*Request, *Response](req).
		Through(global...).
		Then(ctx, c.resolveAndRun)
	if err != nil {
		return c.mapError(req, err)
	}
	if result == nil {
		return Text(http.StatusNoContent, "")
	}
	return result
}

// resolveAndRun is the global pipeline's terminal: match the route,
// attach its guards and params, run its own units, call the handler.
func (c *Conductor) resolveAndRun(ctx context.Context, req *Request) (*Response, error) {
	match, err := c.routes.Find(req.Raw.Method, req.Raw.URL.Path)
	if err != nil {
		return nil, err
	}
	req.Params = match.Params
	req.Session.SetRouteGuards(match.Route.GuardNames())

	units, err := c.registry.ResolveAll(match.Route.MiddlewareRefs())
	if err != nil {
		return nil, err
	}
	return pipeline.New[*Request, *Response](req).
		Through(units...).
		Then(ctx, func(ctx context.Context, req *Request) (*Response, error) {
			return match.Route.Handler(ctx, req)
		})
}

// mapError is the top-level outcome mapping. Unit-level failures arrive
// already translated as *HTTPError; routing errors become 404/405; the
// rest is a generic 500 plus a server-side log line.
func (c *Conductor) mapError(req *Request, err error) *Response {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Response()
	}

	var mna *routing.MethodNotAllowedError
	if errors.As(err, &mna) {
		resp := JSON(http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		resp.Header.Set("Allow", strings.Join(mna.Allowed, ", "))
		return resp
	}
	if errors.Is(err, routing.ErrRouteNotFound) {
		return JSON(http.StatusNotFound, map[string]string{"error": "not_found"})
	}

	c.log.Error("unhandled request error",
		zap.Error(err),
		zap.String("method", req.Raw.Method),
		zap.String("path", req.Raw.URL.Path))
	return JSON(http.StatusInternalServerError, map[string]string{"error": "internal"})
}

// terminate runs after the response is on the wire: identity caches
// first, then every terminable unit, each one isolated so a failure or
// panic cannot stop the rest.
func (c *Conductor) terminate(ctx context.Context, req *Request, resp *Response) {
	req.Session.Reset()

	terminables, err := c.registry.Terminables()
	if err != nil {
		c.log.Error("terminables unresolvable", zap.Error(err))
		return
	}
	for _, term := range terminables {
		c.runTerminator(ctx, term, req, resp)
	}
}

func (c *Conductor) runTerminator(ctx context.Context, term pipeline.Terminator[*Request, *Response], req *Request, resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic during termination", zap.Any("panic", rec))
		}
	}()
	if err := term.Terminate(ctx, req, resp); err != nil {
		c.log.Error("termination unit failed", zap.Error(err))
	}
}
