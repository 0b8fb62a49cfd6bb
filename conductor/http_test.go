package conductor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/gate"
	"github.com/Cara-Framework/core-sub002/routing"
)

type fixedResolver struct{ users map[string]auth.Identity }

func (r *fixedResolver) ResolveByID(_ context.Context, id string, _ map[string]any) (auth.Identity, error) {
	return r.users[id], nil
}

func (r *fixedResolver) ResolveByCredentials(context.Context, map[string]string) (auth.Identity, error) {
	return nil, nil
}

type countingUnit struct{ calls atomic.Int64 }

func (u *countingUnit) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	u.calls.Add(1)
	return next(ctx, req)
}

type recordingTerminable struct {
	countingUnit
	terminated atomic.Int64
}

func (u *recordingTerminable) Terminate(context.Context, *Request, *Response) error {
	u.terminated.Add(1)
	return nil
}

type panickyTerminable struct{ countingUnit }

func (*panickyTerminable) Terminate(context.Context, *Request, *Response) error {
	panic("terminator down")
}

func newTestAuth(t *testing.T) (*auth.Manager, auth.CacheStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := auth.NewRedisStore(client, "ct")

	m, err := auth.New().
		WithConfig(auth.Config{
			Default: "api",
			Guards: map[string]auth.GuardConfig{
				"api": {
					Driver: auth.DriverKey,
					Key:    auth.KeyGuardConfig{KeyMap: map[string]string{"abc123": "svc1"}},
				},
			},
		}).
		WithStore(store).
		Build()
	if err != nil {
		t.Fatalf("auth build: %v", err)
	}
	return m, store
}

func newTestConductor(t *testing.T, configure func(*routing.Table[Handler], *Registry)) *Conductor {
	t.Helper()
	manager, store := newTestAuth(t)

	g := gate.New().Define("admin-area", gate.Callback(func(identity gate.Identity, _ ...any) bool {
		return identity.AuthIdentifier() == "svc1"
	}))

	routes := routing.NewTable[Handler]()
	registry := NewRegistry(g, store, zap.NewNop())
	if configure != nil {
		configure(routes, registry)
	}

	c, err := New(Config{Routes: routes, Middleware: registry, Auth: manager, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func okHandler(body string) Handler {
	return func(context.Context, *Request) (*Response, error) {
		return Text(http.StatusOK, body), nil
	}
}

func do(c *Conductor, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for name, values := range header {
		req.Header[name] = values
	}
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	return rec
}

func TestConductorServesRoute(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/ping", okHandler("pong"))
	})

	rec := do(c, http.MethodGet, "/ping", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGlobalMiddlewareRunsForUnroutedRequests(t *testing.T) {
	unit := &countingUnit{}
	c := newTestConductor(t, func(_ *routing.Table[Handler], registry *Registry) {
		registry.RegisterUnit("counter", unit)
		registry.Use("counter")
	})

	rec := do(c, http.MethodGet, "/nowhere", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if unit.calls.Load() != 1 {
		t.Fatalf("global unit ran %d times, want 1", unit.calls.Load())
	}
}

func TestMethodNotAllowedCarriesAllowHeader(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/posts", okHandler("index"))
		routes.Post("/posts", okHandler("created"))
	})

	rec := do(c, http.MethodDelete, "/posts", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	allow := rec.Header().Get("Allow")
	if allow != "GET, POST" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestPanicMapsTo500AndStillTerminates(t *testing.T) {
	term := &recordingTerminable{}
	c := newTestConductor(t, func(routes *routing.Table[Handler], registry *Registry) {
		registry.RegisterUnit("record", term)
		registry.Use("record")
		routes.Get("/boom", func(context.Context, *Request) (*Response, error) {
			panic("handler down")
		})
	})

	rec := do(c, http.MethodGet, "/boom", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if term.terminated.Load() != 1 {
		t.Fatal("termination must run after a panic")
	}
}

func TestFailingTerminatorDoesNotStopOthers(t *testing.T) {
	record := &recordingTerminable{}
	c := newTestConductor(t, func(routes *routing.Table[Handler], registry *Registry) {
		registry.RegisterUnit("panicky", &panickyTerminable{})
		registry.RegisterUnit("record", record)
		registry.Use("panicky", "record")
		routes.Get("/ok", okHandler("ok"))
	})

	rec := do(c, http.MethodGet, "/ok", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if record.terminated.Load() != 1 {
		t.Fatal("terminable after a panicking one must still run")
	}
}

func TestAuthenticateUnit(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/secure", okHandler("in")).Middleware("auth:api")
	})

	rec := do(c, http.MethodGet, "/secure", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("401 body not JSON: %v", err)
	}
	if body["error"] != "invalid_credential" {
		t.Fatalf("error kind = %q", body["error"])
	}

	rec = do(c, http.MethodGet, "/secure", http.Header{"X-Api-Key": {"abc123"}})
	if rec.Code != http.StatusOK || rec.Body.String() != "in" {
		t.Fatalf("authenticated: got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCanUnit(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/admin", okHandler("admin")).Middleware("auth:api", "can:admin-area")
		routes.Get("/open-admin", okHandler("admin")).Middleware("can:admin-area")
	})

	// Authenticated subject svc1 passes the ability.
	rec := do(c, http.MethodGet, "/admin", http.Header{"X-Api-Key": {"abc123"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("authorized: status = %d", rec.Code)
	}

	// A guest hits the gate's guest denial and gets 403.
	rec = do(c, http.MethodGet, "/open-admin", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("guest: status = %d, want 403", rec.Code)
	}
}

func TestThrottleUnit(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/limited", okHandler("ok")).Middleware("throttle:2,1")
	})

	for i := 0; i < 2; i++ {
		if rec := do(c, http.MethodGet, "/limited", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := do(c, http.MethodGet, "/limited", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], registry *Registry) {
		registry.Use("request-id")
		routes.Get("/ping", okHandler("pong"))
	})

	rec := do(c, http.MethodGet, "/ping", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("response must carry a generated request id")
	}

	rec = do(c, http.MethodGet, "/ping", http.Header{"X-Request-Id": {"given-id"}})
	if got := rec.Header().Get("X-Request-ID"); got != "given-id" {
		t.Fatalf("request id = %q, want the incoming one", got)
	}
}

func TestRouteParamsReachHandler(t *testing.T) {
	c := newTestConductor(t, func(routes *routing.Table[Handler], _ *Registry) {
		routes.Get("/posts/{id}", func(_ context.Context, req *Request) (*Response, error) {
			return Text(http.StatusOK, req.Params["id"]), nil
		})
	})

	rec := do(c, http.MethodGet, "/posts/42", nil)
	if rec.Body.String() != "42" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRouteMiddlewareShortCircuitSkipsHandler(t *testing.T) {
	var handled atomic.Int64
	c := newTestConductor(t, func(routes *routing.Table[Handler], registry *Registry) {
		registry.RegisterUnit("deny-all", denyAllUnit{})
		routes.Get("/blocked", func(context.Context, *Request) (*Response, error) {
			handled.Add(1)
			return Text(http.StatusOK, "never"), nil
		}).Middleware("deny-all")
	})

	rec := do(c, http.MethodGet, "/blocked", nil)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if handled.Load() != 0 {
		t.Fatal("handler must not run after a short-circuit")
	}
}

type denyAllUnit struct{}

func (denyAllUnit) Handle(context.Context, *Request, Next) (*Response, error) {
	return Text(http.StatusTeapot, "blocked"), nil
}
