package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
)

// Scope is the institution a request operates on together with the caller's membership there.
// Handlers pass InstitutionID explicitly to services; nothing below the handler reads the context for it.
type Scope struct {
	InstitutionID uuid.UUID
	Slug          string
	Name          string
	Status        string
	Membership    rbac.Membership
}

// Role is the caller's operative role at the institution.
func (s Scope) Role() rbac.Role {
	return s.Membership.Role
}

// BasePrefix is the object-storage prefix owned by the institution in the given environment.
func (s Scope) BasePrefix(envKey string) string {
	return BuildBasePrefix(envKey, s.Slug, ShortID(s.InstitutionID))
}

type ctxKey string

const scopeKey ctxKey = "EDUPAY_INSTITUTION_SCOPE"

// WithScope returns a derived context carrying the institution Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	return scope, ok
}
