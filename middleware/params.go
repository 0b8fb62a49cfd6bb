package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParamKind is the declared type of one middleware parameter.
type ParamKind int

const (
	// KindString passes the segment through as-is.
	KindString ParamKind = iota
	// KindInt parses a base-10 integer.
	KindInt
	// KindFloat parses a float64.
	KindFloat
	// KindBool parses per strconv.ParseBool.
	KindBool
	// KindList consumes every remaining segment as []string. A list
	// parameter must be the last one declared.
	KindList
)

// ParamSpec declares one constructor parameter of a middleware unit, in
// declaration order. A nil Default with Required=false yields the kind's
// zero value when the segment is absent.
type ParamSpec struct {
	Name     string
	Kind     ParamKind
	Default  any
	Required bool
}

// ErrParams reports a reference whose parameter list does not satisfy the
// target unit's declared schema.
var ErrParams = errors.New("invalid middleware parameters")

// parseParams matches the colon-suffix of a reference ("p1,p2,...")
// positionally against specs, coercing each segment and applying declared
// defaults for missing trailing parameters.
func parseParams(raw string, specs []ParamSpec) ([]any, error) {
	var segments []string
	if raw != "" {
		segments = strings.Split(raw, ",")
		for i := range segments {
			segments[i] = strings.TrimSpace(segments[i])
		}
	}

	args := make([]any, 0, len(specs))
	for i, spec := range specs {
		if spec.Kind == KindList {
			if i != len(specs)-1 {
				return nil, fmt.Errorf("%w: list parameter %q must be declared last", ErrParams, spec.Name)
			}
			rest := segments[min(i, len(segments)):]
			if len(rest) == 0 {
				if spec.Required {
					return nil, fmt.Errorf("%w: missing required parameter %q", ErrParams, spec.Name)
				}
				if spec.Default != nil {
					args = append(args, spec.Default)
				} else {
					args = append(args, []string(nil))
				}
				return args, nil
			}
			args = append(args, append([]string(nil), rest...))
			return args, nil
		}

		if i >= len(segments) {
			if spec.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q", ErrParams, spec.Name)
			}
			args = append(args, defaultValue(spec))
			continue
		}

		value, err := coerce(segments[i], spec)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}

	if len(segments) > len(specs) {
		return nil, fmt.Errorf("%w: %d parameters given, at most %d declared", ErrParams, len(segments), len(specs))
	}
	return args, nil
}

func coerce(segment string, spec ParamSpec) (any, error) {
	switch spec.Kind {
	case KindString:
		return segment, nil
	case KindInt:
		n, err := strconv.Atoi(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %q is not an integer", ErrParams, spec.Name, segment)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(segment, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %q is not a number", ErrParams, spec.Name, segment)
		}
		return f, nil
	case KindBool:
		b, err := strconv.ParseBool(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %q is not a boolean", ErrParams, spec.Name, segment)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: parameter %q has unknown kind", ErrParams, spec.Name)
}

func defaultValue(spec ParamSpec) any {
	if spec.Default != nil {
		return spec.Default
	}
	switch spec.Kind {
	case KindInt:
		return 0
	case KindFloat:
		return 0.0
	case KindBool:
		return false
	case KindList:
		return []string(nil)
	}
	return ""
}
