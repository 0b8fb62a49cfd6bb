package routing

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// MethodWS is the pseudo-method WebSocket routes are registered under.
const MethodWS = "WS"

func init() {
	chi.RegisterMethod(MethodWS)
}

// ErrRouteNotFound reports a path no registered route matches.
var ErrRouteNotFound = errors.New("route not found")

// ErrMethodNotAllowed reports a path that matches under a different
// method. Errors carrying it unwrap to *MethodNotAllowedError.
var ErrMethodNotAllowed = errors.New("method not allowed")

// MethodNotAllowedError lists the methods the matched path does accept.
type MethodNotAllowedError struct {
	Method  string
	Path    string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method not allowed: %s %s (allowed: %s)", e.Method, e.Path, strings.Join(e.Allowed, ", "))
}

func (e *MethodNotAllowedError) Unwrap() error { return ErrMethodNotAllowed }

// Match is the result of a successful lookup: the route and the path
// parameters captured while matching it.
type Match[H any] struct {
	Route  *Route[H]
	Params map[string]string
}

// Table is the route table for one handler type. Register every route at
// startup; lookups are read-only and safe for concurrent use.
type Table[H any] struct {
	mux    *chi.Mux
	routes map[string]*Route[H] // "METHOD PATTERN" -> route
}

// NewTable returns an empty table.
func NewTable[H any]() *Table[H] {
	return &Table[H]{
		mux:    chi.NewMux(),
		routes: map[string]*Route[H]{},
	}
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// Handle registers handler for pattern under each listed method and
// returns the route for further declaration (middleware, guards, name).
// Patterns follow chi syntax: "/posts/{id}", wildcards with "/static/*".
func (t *Table[H]) Handle(methods []string, pattern string, handler H) *Route[H] {
	route := &Route[H]{
		Methods: append([]string(nil), methods...),
		Pattern: pattern,
		Handler: handler,
	}
	for _, method := range methods {
		method = strings.ToUpper(method)
		t.mux.Method(method, pattern, noop)
		t.routes[method+" "+pattern] = route
	}
	return route
}

// Get registers a GET route.
func (t *Table[H]) Get(pattern string, handler H) *Route[H] {
	return t.Handle([]string{http.MethodGet}, pattern, handler)
}

// Post registers a POST route.
func (t *Table[H]) Post(pattern string, handler H) *Route[H] {
	return t.Handle([]string{http.MethodPost}, pattern, handler)
}

// Put registers a PUT route.
func (t *Table[H]) Put(pattern string, handler H) *Route[H] {
	return t.Handle([]string{http.MethodPut}, pattern, handler)
}

// Patch registers a PATCH route.
func (t *Table[H]) Patch(pattern string, handler H) *Route[H] {
	return t.Handle([]string{http.MethodPatch}, pattern, handler)
}

// Delete registers a DELETE route.
func (t *Table[H]) Delete(pattern string, handler H) *Route[H] {
	return t.Handle([]string{http.MethodDelete}, pattern, handler)
}

// WebSocket registers a WebSocket endpoint. The route matches HTTP GET
// upgrade requests and is kept distinct from plain GET routes.
func (t *Table[H]) WebSocket(pattern string, handler H) *Route[H] {
	return t.Handle([]string{MethodWS}, pattern, handler)
}

// probeMethods is the set tried when building a 405 Allow list.
var probeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions, MethodWS,
}

// Find looks up the route for method and path. On a path that exists
// under other methods it returns a *MethodNotAllowedError wrapping
// ErrMethodNotAllowed; on no match at all, ErrRouteNotFound.
func (t *Table[H]) Find(method, path string) (Match[H], error) {
	method = strings.ToUpper(method)

	rctx := chi.NewRouteContext()
	if t.mux.Match(rctx, method, path) {
		pattern := rctx.RoutePattern()
		route, ok := t.routes[method+" "+pattern]
		if !ok {
			return Match[H]{}, fmt.Errorf("%w: %s %s", ErrRouteNotFound, method, path)
		}
		params := map[string]string{}
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			params[key] = rctx.URLParams.Values[i]
		}
		return Match[H]{Route: route, Params: params}, nil
	}

	allowed := t.allowedMethods(method, path)
	if len(allowed) > 0 {
		return Match[H]{}, &MethodNotAllowedError{Method: method, Path: path, Allowed: allowed}
	}
	return Match[H]{}, fmt.Errorf("%w: %s %s", ErrRouteNotFound, method, path)
}

func (t *Table[H]) allowedMethods(requested, path string) []string {
	var allowed []string
	for _, method := range probeMethods {
		if method == requested {
			continue
		}
		rctx := chi.NewRouteContext()
		if t.mux.Match(rctx, method, path) {
			allowed = append(allowed, method)
		}
	}
	sort.Strings(allowed)
	return allowed
}
