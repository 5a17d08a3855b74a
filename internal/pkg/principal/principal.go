package principal

import (
	"context"
	"fmt"
	"regexp"
	"slices"
)

// Role is a validated authorization tag such as ROLE_USER
type Role string

// RoleUser is assigned to every account when it is created
const RoleUser Role = "ROLE_USER"

var rolePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ParseRole validates a role name
func ParseRole(name string) (Role, error) {
	if !rolePattern.MatchString(name) {
		return "", fmt.Errorf("invalid role name %q", name)
	}
	return Role(name), nil
}

// Roles is a set of roles
type Roles map[Role]struct{}

func NewRoles(roles ...Role) Roles {
	rs := make(Roles, len(roles))
	for _, r := range roles {
		rs[r] = struct{}{}
	}
	return rs
}

// ParseRoles builds a set from raw names, rejecting any invalid one
func ParseRoles(names []string) (Roles, error) {
	rs := make(Roles, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		rs[r] = struct{}{}
	}
	return rs, nil
}

func (rs Roles) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// Strings returns role names in sorted order
func (rs Roles) Strings() []string {
	res := make([]string, 0, len(rs))
	for r := range rs {
		res = append(res, string(r))
	}
	slices.Sort(res)
	return res
}

// Principal is the authenticated identity attached to a request
type Principal struct {
	Subject string
	Roles   Roles
}

func (p Principal) HasRole(r Role) bool {
	return p.Roles.Has(r)
}

type ctxKey struct{}

var principalKey ctxKey

// WithPrincipal attaches p to ctx. An already attached principal is never replaced.
func WithPrincipal(ctx context.Context, p Principal) (context.Context, bool) {
	if _, ok := FromContext(ctx); ok {
		return ctx, false
	}
	return context.WithValue(ctx, principalKey, p), true
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
