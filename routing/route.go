package routing

// Route is one registered endpoint: the handler plus the declaration
// that surrounds it. H is the handler type the table was built for.
type Route[H any] struct {
	Methods []string
	Pattern string
	Handler H

	middleware []string
	guards     []string
	name       string
}

// Middleware appends middleware references ("name" or "name:p1,p2") to
// run for this route, innermost last.
func (r *Route[H]) Middleware(refs ...string) *Route[H] {
	r.middleware = append(r.middleware, refs...)
	return r
}

// Guards pins the route to specific authentication guards, tried in
// order. An empty list means the session default applies.
func (r *Route[H]) Guards(names ...string) *Route[H] {
	r.guards = append(r.guards, names...)
	return r
}

// Name labels the route for logging.
func (r *Route[H]) Name(name string) *Route[H] {
	r.name = name
	return r
}

// MiddlewareRefs returns the declared middleware references in order.
func (r *Route[H]) MiddlewareRefs() []string { return r.middleware }

// GuardNames returns the declared guard names in order.
func (r *Route[H]) GuardNames() []string { return r.guards }

// RouteName returns the label set via Name, or the pattern when unset.
func (r *Route[H]) RouteName() string {
	if r.name != "" {
		return r.name
	}
	return r.Pattern
}
