package auth

import (
	"context"
	"strconv"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Actor renders the principal for audit and log records.
func (p *Principal) Actor() string {
	if p == nil {
		return "anonymous"
	}
	return "customer:" + strconv.FormatInt(p.ID, 10)
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}
