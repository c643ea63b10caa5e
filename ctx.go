package clubauth

import "context"

var identityCtxKey = &contextKey{"identity"}
var roleCtxKey = &contextKey{"role"}

type contextKey struct {
	name string
}

// WithIdentity sets the Identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(Identity)
	return raw, ok
}

// WithRole sets the resolved Role in the given context
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleCtxKey, role)
}

// RoleFromContext finds the resolved role from the context.
func RoleFromContext(ctx context.Context) (Role, bool) {
	raw, ok := ctx.Value(roleCtxKey).(Role)
	return raw, ok
}
