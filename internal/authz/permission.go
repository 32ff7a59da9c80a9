package authz

import (
	"fmt"
	"strings"
)

// Scope is the breadth of a permission grant. The zero value means the
// permission is not scoped at all: it matches only checks that are equally
// unscoped and takes no part in the hierarchy.
type Scope string

const (
	ScopeNone     Scope = ""
	ScopeAll      Scope = "all"
	ScopeBuilding Scope = "building"
	ScopeOwn      Scope = "own"
)

// Rank orders the scoped values: a grant covers a check when its rank is
// lower or equal. ok is false for ScopeNone and for unrecognized values,
// which therefore never satisfy any ranked comparison.
func (s Scope) Rank() (rank int, ok bool) {
	switch s {
	case ScopeAll:
		return 0, true
	case ScopeBuilding:
		return 1, true
	case ScopeOwn:
		return 2, true
	default:
		return 0, false
	}
}

// Valid reports whether s is one of the known scope values, including the
// unscoped zero value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeNone, ScopeAll, ScopeBuilding, ScopeOwn:
		return true
	default:
		return false
	}
}

// Permission is the typed triple every internal decision operates on.
// String codes exist only for transport and storage; they are parsed at the
// boundary and never compared as raw strings.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// Code renders the canonical transport form: RESOURCE:ACTION:SCOPE, or
// RESOURCE:ACTION for unscoped permissions.
func (p Permission) Code() string {
	code := strings.ToUpper(p.Resource) + ":" + strings.ToUpper(p.Action)
	if p.Scope != ScopeNone {
		code += ":" + strings.ToUpper(string(p.Scope))
	}
	return code
}

// ParseCode converts a transport code back into the typed triple. Malformed
// codes are rejected rather than degraded into a partial match.
func ParseCode(code string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(code), ":")
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Permission{}, fmt.Errorf("%w: empty segment in %q", ErrMalformedCode, code)
		}
		return Permission{Resource: parts[0], Action: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Permission{}, fmt.Errorf("%w: empty segment in %q", ErrMalformedCode, code)
		}
		scope := Scope(parts[2])
		if _, ok := scope.Rank(); !ok {
			return Permission{}, fmt.Errorf("%w: unknown scope %q", ErrMalformedCode, parts[2])
		}
		return Permission{Resource: parts[0], Action: parts[1], Scope: scope}, nil
	default:
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedCode, code)
	}
}

// ParseCodes normalizes a set of transport codes into typed triples,
// rejecting the whole set when any single code is malformed.
func ParseCodes(codes []string) ([]Permission, error) {
	out := make([]Permission, 0, len(codes))
	for _, code := range codes {
		p, err := ParseCode(code)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
