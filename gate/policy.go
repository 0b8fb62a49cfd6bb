package gate

// PolicyBeforeFunc runs ahead of every method on one policy.
type PolicyBeforeFunc func(identity Identity, method string, args ...any) Vote

// PolicyAfterFunc runs after every method on one policy; a non-Abstain
// vote overrides the method's result.
type PolicyAfterFunc func(identity Identity, method string, result bool, args ...any) Vote

// Policy groups the authorization rules for one resource type. Methods are
// an explicit table rather than reflected, so a missing method is an
// ordinary lookup miss (and a denial), not a runtime probe.
type Policy interface {
	Ability(method string) (Callback, bool)
	PolicyBefore() PolicyBeforeFunc
	PolicyAfter() PolicyAfterFunc
}

// PolicyMap is the standard Policy implementation: a named method table
// with optional before/after hooks.
type PolicyMap struct {
	Methods map[string]Callback
	Before  PolicyBeforeFunc
	After   PolicyAfterFunc
}

// Ability implements [Policy].
func (p *PolicyMap) Ability(method string) (Callback, bool) {
	rule, ok := p.Methods[method]
	return rule, ok
}

// PolicyBefore implements [Policy].
func (p *PolicyMap) PolicyBefore() PolicyBeforeFunc { return p.Before }

// PolicyAfter implements [Policy].
func (p *PolicyMap) PolicyAfter() PolicyAfterFunc { return p.After }
