package middleware

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Cara-Framework/core-sub002/pipeline"
)

// ErrNotFound reports a middleware reference that matches no registered
// unit, alias, or group.
var ErrNotFound = errors.New("middleware not found")

// Factory builds instances of one middleware unit. Params declares the
// constructor schema the `name:p1,p2` grammar is parsed against; Build
// receives the coerced arguments in declaration order.
type Factory[P, R any] struct {
	Params []ParamSpec
	Build  func(args []any) (pipeline.Unit[P, R], error)
}

// Registry resolves string middleware references into concrete units. It
// holds the global list, named groups, and aliases. Populate it fully at
// startup; after that it is read-only and safe for concurrent reads.
type Registry[P, R any] struct {
	factories map[string]Factory[P, R]
	aliases   map[string]string
	groups    map[string][]string
	global    []string

	cacheMu sync.RWMutex
	cache   map[string]pipeline.Unit[P, R]
}

// NewRegistry returns an empty registry.
func NewRegistry[P, R any]() *Registry[P, R] {
	return &Registry[P, R]{
		factories: map[string]Factory[P, R]{},
		aliases:   map[string]string{},
		groups:    map[string][]string{},
		cache:     map[string]pipeline.Unit[P, R]{},
	}
}

// Register adds a unit factory under name.
func (r *Registry[P, R]) Register(name string, factory Factory[P, R]) *Registry[P, R] {
	r.factories[name] = factory
	return r
}

// RegisterUnit adds a parameterless unit under name.
func (r *Registry[P, R]) RegisterUnit(name string, unit pipeline.Unit[P, R]) *Registry[P, R] {
	return r.Register(name, Factory[P, R]{
		Build: func([]any) (pipeline.Unit[P, R], error) { return unit, nil },
	})
}

// Alias maps a shorthand to another reference (a unit name or a group).
func (r *Registry[P, R]) Alias(name, target string) *Registry[P, R] {
	r.aliases[name] = target
	return r
}

// Group registers a named ordered list of references.
func (r *Registry[P, R]) Group(name string, refs ...string) *Registry[P, R] {
	r.groups[name] = refs
	return r
}

// Use appends references to the global middleware list.
func (r *Registry[P, R]) Use(refs ...string) *Registry[P, R] {
	r.global = append(r.global, refs...)
	return r
}

// Resolve turns one reference into one-or-many concrete units. Groups
// expand in declaration order; aliases follow one hop and may land on a
// group. Unknown references fail with ErrNotFound.
func (r *Registry[P, R]) Resolve(ref string) ([]pipeline.Unit[P, R], error) {
	name, rawParams, hasParams := strings.Cut(ref, ":")
	name = strings.TrimSpace(name)

	if target, ok := r.aliases[name]; ok {
		if hasParams {
			// Params attach to the alias target.
			return r.Resolve(target + ":" + rawParams)
		}
		return r.Resolve(target)
	}

	if refs, ok := r.groups[name]; ok {
		if hasParams {
			return nil, fmt.Errorf("%w: group %q cannot take parameters", ErrNotFound, name)
		}
		var units []pipeline.Unit[P, R]
		for _, inner := range refs {
			resolved, err := r.Resolve(inner)
			if err != nil {
				return nil, err
			}
			units = append(units, resolved...)
		}
		return units, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	unit, err := r.build(ref, name, rawParams, factory)
	if err != nil {
		return nil, err
	}
	return []pipeline.Unit[P, R]{unit}, nil
}

// ResolveAll resolves a reference list, flattening groups.
func (r *Registry[P, R]) ResolveAll(refs []string) ([]pipeline.Unit[P, R], error) {
	var units []pipeline.Unit[P, R]
	for _, ref := range refs {
		resolved, err := r.Resolve(ref)
		if err != nil {
			return nil, err
		}
		units = append(units, resolved...)
	}
	return units, nil
}

// Global resolves the global middleware list in registration order.
func (r *Registry[P, R]) Global() ([]pipeline.Unit[P, R], error) {
	return r.ResolveAll(r.global)
}

// Terminables returns every unit across the global list and all groups
// that implements pipeline.Terminator, global first, then groups in a
// stable order by name. References that appear more than once contribute
// a single entry.
func (r *Registry[P, R]) Terminables() ([]pipeline.Terminator[P, R], error) {
	refs := append([]string(nil), r.global...)
	for _, name := range sortedKeys(r.groups) {
		refs = append(refs, r.groups[name]...)
	}

	seen := map[string]bool{}
	var out []pipeline.Terminator[P, R]
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		units, err := r.Resolve(ref)
		if err != nil {
			return nil, err
		}
		for _, unit := range units {
			if term, ok := unit.(pipeline.Terminator[P, R]); ok {
				out = append(out, term)
			}
		}
	}
	return out, nil
}

// Validate resolves everything registered (global, groups, aliases) so a
// bad reference or parameter list fails at startup instead of mid-request.
func (r *Registry[P, R]) Validate() error {
	if _, err := r.Global(); err != nil {
		return err
	}
	for name, refs := range r.groups {
		if _, err := r.ResolveAll(refs); err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
	}
	for name, target := range r.aliases {
		if _, err := r.Resolve(target); err != nil {
			return fmt.Errorf("alias %q: %w", name, err)
		}
	}
	return nil
}

func (r *Registry[P, R]) build(fullRef, name, rawParams string, factory Factory[P, R]) (pipeline.Unit[P, R], error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[fullRef]
	r.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	args, err := parseParams(rawParams, factory.Params)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	unit, err := factory.Build(args)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}

	r.cacheMu.Lock()
	if prior, ok := r.cache[fullRef]; ok {
		unit = prior
	} else {
		r.cache[fullRef] = unit
	}
	r.cacheMu.Unlock()
	return unit, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
