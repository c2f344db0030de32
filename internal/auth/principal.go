package auth

import (
	"context"
	"strings"
)

// Principal is an authenticated caller. It satisfies the manager's
// Capability and User interfaces.
type Principal struct {
	User        string   `yaml:"user"`
	Permissions []string `yaml:"permissions"`
	SuperAdmin  bool     `yaml:"superadmin"`
}

// System is the principal background jobs run as.
func System() *Principal {
	return &Principal{User: "system", SuperAdmin: true}
}

// ID returns the user name.
func (p *Principal) ID() string {
	return p.User
}

// IsSuperAdmin reports whether every check passes.
func (p *Principal) IsSuperAdmin() bool {
	return p.SuperAdmin
}

// Check reports whether perm is granted, either unscoped or for scope.
func (p *Principal) Check(perm, scope string) bool {
	if p.SuperAdmin {
		return true
	}
	for _, granted := range p.Permissions {
		name, limit, scoped := strings.Cut(granted, ":")
		if name != perm {
			continue
		}
		if !scoped || limit == scope {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
