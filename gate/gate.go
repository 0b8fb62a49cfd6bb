package gate

import (
	"fmt"
	"reflect"
	"strings"
)

// Identity is the authenticated principal a check runs against. It is
// satisfied by the auth package's identities.
type Identity interface {
	AuthIdentifier() string
}

// Vote is the three-valued outcome of a before/after hook.
type Vote int

const (
	// Abstain means the hook has no opinion; evaluation continues.
	Abstain Vote = iota
	// Allow grants the ability.
	Allow
	// Deny refuses the ability.
	Deny
)

// Callback decides a single ability for an identity. identity may be nil
// when the hook chain lets an unauthenticated check through.
type Callback func(identity Identity, args ...any) bool

// BeforeFunc runs ahead of every check and may short-circuit it.
type BeforeFunc func(identity Identity, ability string, args ...any) Vote

// AfterFunc runs after every check and may override the result.
type AfterFunc func(identity Identity, ability string, result bool, args ...any) Vote

// ResourceNamer lets a resource control the name used for policy lookup
// instead of its reflected type name.
type ResourceNamer interface {
	ResourceName() string
}

// AuthorizationError reports a denied Authorize call. It carries the
// ability, the identity, and the resource for upstream mapping; the message
// exposes only the ability name.
type AuthorizationError struct {
	Ability  string
	Identity Identity
	Resource any
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: missing ability %q", e.Ability)
}

// Response is the result of Inspect, pairing the decision with a
// client-safe message.
type Response struct {
	Allowed bool
	Message string
}

// Gate evaluates abilities and policies for identities.
type Gate struct {
	abilities map[string]any // Callback or "Policy@method" string
	policies  map[string]Policy
	before    []BeforeFunc
	after     []AfterFunc

	user Identity // set on ForUser views
}

// New returns an empty gate.
func New() *Gate {
	return &Gate{
		abilities: map[string]any{},
		policies:  map[string]Policy{},
	}
}

// Define registers an ability. rule is either a [Callback] or a
// "Policy@method" string referring to a bound policy.
func (g *Gate) Define(ability string, rule any) *Gate {
	switch rule.(type) {
	case Callback, func(Identity, ...any) bool, string:
		g.abilities[ability] = rule
	default:
		panic(fmt.Sprintf("gate: ability %q rule must be a Callback or \"Policy@method\" string", ability))
	}
	return g
}

// Policy binds a policy to a resource name. The name is matched against
// the reflected type name (or ResourceName) of a check's first argument,
// case-insensitively.
func (g *Gate) Policy(resource string, policy Policy) *Gate {
	g.policies[strings.ToLower(resource)] = policy
	return g
}

// Before registers a hook that runs ahead of every check.
func (g *Gate) Before(fn BeforeFunc) *Gate {
	g.before = append(g.before, fn)
	return g
}

// After registers a hook that runs after every check.
func (g *Gate) After(fn AfterFunc) *Gate {
	g.after = append(g.after, fn)
	return g
}

// ForUser returns a view of the gate evaluating for the given identity.
// The rule tables are shared, not copied.
func (g *Gate) ForUser(identity Identity) *Gate {
	view := *g
	view.user = identity
	return &view
}

// Allows reports whether the gate's identity holds the ability.
func (g *Gate) Allows(ability string, args ...any) bool {
	identity := g.user

	result, decided := g.runBefore(identity, ability, args)
	if !decided {
		result = g.check(identity, ability, args)
	}
	return g.runAfter(identity, ability, result, args)
}

// Denies is the negation of Allows.
func (g *Gate) Denies(ability string, args ...any) bool {
	return !g.Allows(ability, args...)
}

// Any reports whether at least one of the abilities is allowed.
func (g *Gate) Any(abilities []string, args ...any) bool {
	for _, ability := range abilities {
		if g.Allows(ability, args...) {
			return true
		}
	}
	return false
}

// None reports whether none of the abilities is allowed.
func (g *Gate) None(abilities []string, args ...any) bool {
	return !g.Any(abilities, args...)
}

// Authorize returns an *AuthorizationError when the ability is denied.
func (g *Gate) Authorize(ability string, args ...any) error {
	if g.Allows(ability, args...) {
		return nil
	}
	var resource any
	if len(args) > 0 {
		resource = args[0]
	}
	return &AuthorizationError{Ability: ability, Identity: g.user, Resource: resource}
}

// Inspect runs the check and returns a detailed, client-safe response.
func (g *Gate) Inspect(ability string, args ...any) Response {
	if g.Allows(ability, args...) {
		return Response{Allowed: true, Message: fmt.Sprintf("authorized for %q", ability)}
	}
	return Response{Allowed: false, Message: fmt.Sprintf("not authorized for %q", ability)}
}

func (g *Gate) runBefore(identity Identity, ability string, args []any) (result, decided bool) {
	for _, fn := range g.before {
		switch fn(identity, ability, args...) {
		case Allow:
			return true, true
		case Deny:
			return false, true
		}
	}
	return false, false
}

func (g *Gate) runAfter(identity Identity, ability string, result bool, args []any) bool {
	for _, fn := range g.after {
		switch fn(identity, ability, result, args...) {
		case Allow:
			result = true
		case Deny:
			result = false
		}
	}
	return result
}

func (g *Gate) check(identity Identity, ability string, args []any) bool {
	// Guests hold no abilities unless a before hook said otherwise.
	if identity == nil {
		return false
	}

	if rule, ok := g.abilities[ability]; ok {
		return g.callRule(rule, identity, ability, args)
	}

	// Fall through to a policy bound to the first argument's resource type.
	if len(args) == 0 {
		return false
	}
	policy, ok := g.policyFor(args[0])
	if !ok {
		return false
	}
	return g.callPolicy(policy, ability, identity, args)
}

func (g *Gate) callRule(rule any, identity Identity, ability string, args []any) bool {
	switch r := rule.(type) {
	case Callback:
		return r(identity, args...)
	case func(Identity, ...any) bool:
		return r(identity, args...)
	case string:
		policyName, method, ok := strings.Cut(r, "@")
		if !ok {
			return false
		}
		policy, bound := g.policies[strings.ToLower(policyName)]
		if !bound {
			return false
		}
		return g.callPolicy(policy, method, identity, args)
	}
	return false
}

func (g *Gate) callPolicy(policy Policy, method string, identity Identity, args []any) bool {
	if before := policy.PolicyBefore(); before != nil {
		switch before(identity, method, args...) {
		case Allow:
			return g.policyAfter(policy, method, identity, true, args)
		case Deny:
			return g.policyAfter(policy, method, identity, false, args)
		}
	}

	rule, ok := policy.Ability(method)
	result := false
	if ok {
		result = rule(identity, args...)
	}
	// A missing policy method denies.
	return g.policyAfter(policy, method, identity, result, args)
}

func (g *Gate) policyAfter(policy Policy, method string, identity Identity, result bool, args []any) bool {
	if after := policy.PolicyAfter(); after != nil {
		switch after(identity, method, result, args...) {
		case Allow:
			return true
		case Deny:
			return false
		}
	}
	return result
}

func (g *Gate) policyFor(resource any) (Policy, bool) {
	policy, ok := g.policies[strings.ToLower(resourceName(resource))]
	return policy, ok
}

func resourceName(resource any) string {
	if resource == nil {
		return ""
	}
	if named, ok := resource.(ResourceNamer); ok {
		return named.ResourceName()
	}
	t := reflect.TypeOf(resource)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
