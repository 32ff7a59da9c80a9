package authz

import "context"

// Principal is an authenticated caller with its granted permission triples,
// parsed once from the access token at the request boundary.
type Principal struct {
	UserID string
	Grants []Permission
}

// Allowed reports whether the principal's grants satisfy the check.
func (p Principal) Allowed(check Permission) bool {
	return HasPermission(p.Grants, check)
}

// AllowedAny reports whether any single check passes.
func (p Principal) AllowedAny(checks ...Permission) bool {
	return HasAnyPermission(p.Grants, checks...)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
