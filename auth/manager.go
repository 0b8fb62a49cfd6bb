package auth

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// GuardFactory builds a per-request guard over one request surface.
type GuardFactory func(headers HeaderSource) Guard

// Manager is the process-wide guard registry: factories by name plus
// the default selection. Built once by [Builder]; read-only afterward
// and safe for concurrent use.
type Manager struct {
	factories map[string]GuardFactory
	def       string
	log       *zap.Logger
}

// DefaultGuard returns the configured default guard name.
func (m *Manager) DefaultGuard() string { return m.def }

// Logger returns the logger the manager was built with.
func (m *Manager) Logger() *zap.Logger { return m.log }

// HasGuard reports whether name is registered.
func (m *Manager) HasGuard(name string) bool {
	_, ok := m.factories[name]
	return ok
}

// Session opens the per-request authentication view over headers.
func (m *Manager) Session(headers HeaderSource) *Session {
	return &Session{
		manager: m,
		headers: headers,
		guards:  map[string]Guard{},
	}
}

// Session is one request's authentication state: lazily built guards,
// the route and caller guard selection, and the memoized identity.
// Guard selection precedence: explicit > route-attached > default.
type Session struct {
	manager *Manager
	headers HeaderSource

	explicit    string
	routeGuards []string

	mu         sync.Mutex
	guards     map[string]Guard
	identity   Identity
	identityOK bool
}

// UseGuard pins the session to one guard, overriding route and default
// selection.
func (s *Session) UseGuard(name string) *Session {
	s.explicit = name
	return s
}

// SetRouteGuards attaches the matched route's guard list.
func (s *Session) SetRouteGuards(names []string) {
	s.routeGuards = names
}

// Selected returns the guard names to try, in precedence order.
func (s *Session) Selected() []string {
	if s.explicit != "" {
		return []string{s.explicit}
	}
	if len(s.routeGuards) > 0 {
		return s.routeGuards
	}
	return []string{s.manager.def}
}

// Guard returns the named guard, building it on first use. An empty
// name selects per the session precedence.
func (s *Session) Guard(name string) (Guard, error) {
	if name == "" {
		name = s.Selected()[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if guard, ok := s.guards[name]; ok {
		return guard, nil
	}
	factory, ok := s.manager.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGuardNotFound, name)
	}
	guard := factory(s.headers)
	s.guards[name] = guard
	return guard, nil
}

// User resolves the request identity through the selected guards, in
// order, memoizing the first success for the rest of the request.
func (s *Session) User(ctx context.Context) (Identity, error) {
	s.mu.Lock()
	if s.identityOK {
		identity := s.identity
		s.mu.Unlock()
		return identity, nil
	}
	s.mu.Unlock()

	var lastErr error
	for _, name := range s.Selected() {
		guard, err := s.Guard(name)
		if err != nil {
			return nil, err
		}
		identity, err := guard.User(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		s.mu.Lock()
		s.identity, s.identityOK = identity, true
		s.mu.Unlock()
		return identity, nil
	}
	return nil, lastErr
}

// Check reports whether any selected guard authenticates the request.
func (s *Session) Check(ctx context.Context) bool {
	_, err := s.User(ctx)
	return err == nil
}

// Guest is the negation of Check.
func (s *Session) Guest(ctx context.Context) bool {
	return !s.Check(ctx)
}

// ID returns the resolved identity's identifier.
func (s *Session) ID(ctx context.Context) (string, error) {
	identity, err := s.User(ctx)
	if err != nil {
		return "", err
	}
	return identity.AuthIdentifier(), nil
}

// Logout invalidates the current credential through the selected guard
// and drops the session memo.
func (s *Session) Logout(ctx context.Context) error {
	guard, err := s.Guard("")
	if err != nil {
		return err
	}
	err = guard.Logout(ctx)
	s.mu.Lock()
	s.identity, s.identityOK = nil, false
	s.mu.Unlock()
	return err
}

// Reset discards every memoized identity: the session's and each
// constructed guard's. Request termination calls this first so no
// identity leaks across requests.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity, s.identityOK = nil, false
	for _, guard := range s.guards {
		if r, ok := guard.(resetter); ok {
			r.resetMemo()
		}
	}
}
