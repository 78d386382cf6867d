package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
)

// PlatformRole is the platform-wide designation of a user, independent of any institution.
type PlatformRole string

const (
	PlatformRoleSuperAdmin       PlatformRole = "super_admin"
	PlatformRoleInstitutionAdmin PlatformRole = "institution_admin"
	PlatformRoleBursar           PlatformRole = "bursar"
	PlatformRoleParent           PlatformRole = "parent"
	PlatformRoleOther            PlatformRole = "other"
)

// ParsePlatformRole decodes a stored or submitted platform role.
func ParsePlatformRole(s string) (PlatformRole, error) {
	switch r := PlatformRole(strings.TrimSpace(s)); r {
	case PlatformRoleSuperAdmin, PlatformRoleInstitutionAdmin, PlatformRoleBursar, PlatformRoleParent, PlatformRoleOther:
		return r, nil
	default:
		return "", fmt.Errorf("unknown platform role %q", s)
	}
}

// Principal is the authenticated platform user behind a request.
type Principal struct {
	UserID        uuid.UUID
	ExternalUID   string
	Email         string
	FullName      string
	PlatformRole  PlatformRole
	InstitutionID *uuid.UUID
	IsActive      bool
}

// IsSuperAdmin reports whether the principal administers the platform.
func (p Principal) IsSuperAdmin() bool {
	return p.PlatformRole == PlatformRoleSuperAdmin
}

const ctxPrincipal ctxKey = "EDUPAY_PRINCIPAL"

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipal, p)
}

// PrincipalFromContext returns the principal resolved for the request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}

// ErrUnknownPrincipal is returned by resolvers when no platform user matches the token.
var ErrUnknownPrincipal = domainerr.Forbidden("no platform user matches the presented identity")

// ErrInactivePrincipal is returned when the matched user has been deactivated.
var ErrInactivePrincipal = domainerr.Forbidden("account is deactivated")

// PrincipalResolver maps verified credentials to a platform user.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, creds UserCredentials) (Principal, error)
}

// ResolvePrincipal requires credentials on the request and attaches the matching active Principal.
func ResolvePrincipal(resolver PrincipalResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("auth.ResolvePrincipal: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok || creds == nil {
				httpx.Unauthorized(w, "bearer token required")
				return
			}

			principal, err := resolver.ResolvePrincipal(r.Context(), *creds)
			if err != nil {
				httpx.WriteError(w, r, logger, err)
				return
			}
			if !principal.IsActive {
				httpx.WriteError(w, r, logger, ErrInactivePrincipal)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePlatformRole gates platform-level endpoints on the principal's platform role.
func RequirePlatformRole(roles ...PlatformRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Unauthorized(w, "bearer token required")
				return
			}
			for _, role := range roles {
				if principal.PlatformRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteError(w, r, nil, &PlatformRoleError{Required: roles})
		})
	}
}

// PlatformRoleError names the platform roles an endpoint requires.
type PlatformRoleError struct {
	Required []PlatformRole
}

func (e *PlatformRoleError) Error() string {
	return "permission denied: requires platform role " + strings.Join(e.RequiredRoles(), " or ")
}

func (e *PlatformRoleError) RequiredRoles() []string {
	out := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		out = append(out, string(r))
	}
	return out
}
