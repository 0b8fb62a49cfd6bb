package pipeline

import "context"

// Next continues the chain with the (possibly replaced) payload. The last
// unit's next invokes the terminal handler.
type Next[P, R any] func(ctx context.Context, payload P) (R, error)

// Unit is a single composable step. Handle may forward the payload through
// next, mutate it first, or short-circuit by returning its own result
// without calling next. Errors propagate to the caller uncaught.
type Unit[P, R any] interface {
	Handle(ctx context.Context, payload P, next Next[P, R]) (R, error)
}

// Terminator is implemented by units that need post-response cleanup. The
// conductor invokes Terminate after the result has been sent, regardless of
// whether Handle succeeded for this request.
type Terminator[P, R any] interface {
	Terminate(ctx context.Context, payload P, result R) error
}

// Func adapts a plain function to a Unit.
type Func[P, R any] func(ctx context.Context, payload P, next Next[P, R]) (R, error)

// Handle implements [Unit].
func (f Func[P, R]) Handle(ctx context.Context, payload P, next Next[P, R]) (R, error) {
	return f(ctx, payload, next)
}

// Pipeline carries an initial payload through an ordered unit list. A
// pipeline is created fresh per dispatch and holds no state beyond the
// payload and the units.
type Pipeline[P, R any] struct {
	payload P
	units   []Unit[P, R]
}

// New creates a pipeline for the given payload.
func New[P, R any](payload P) *Pipeline[P, R] {
	return &Pipeline[P, R]{payload: payload}
}

// Through sets the units to send the payload through, in declaration order.
func (p *Pipeline[P, R]) Through(units ...Unit[P, R]) *Pipeline[P, R] {
	p.units = append(p.units, units...)
	return p
}

// Then executes the chain around the terminal handler. With zero units the
// terminal handler runs directly on the initial payload.
func (p *Pipeline[P, R]) Then(ctx context.Context, terminal Next[P, R]) (R, error) {
	next := terminal
	for i := len(p.units) - 1; i >= 0; i-- {
		unit := p.units[i]
		inner := next
		next = func(ctx context.Context, payload P) (R, error) {
			return unit.Handle(ctx, payload, inner)
		}
	}
	return next(ctx, p.payload)
}
