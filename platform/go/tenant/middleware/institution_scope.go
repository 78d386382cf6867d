package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

// InstitutionParam is the chi URL parameter carrying the target institution.
const InstitutionParam = "institutionId"

// Institution is the registry view the guard needs.
type Institution struct {
	ID     uuid.UUID
	Slug   string
	Name   string
	Status string
}

// Operational reports whether staff may work inside the institution.
func (i Institution) Operational() bool {
	return i.Status == "approved" || i.Status == "active"
}

// Resolver loads an institution from the registry. Missing institutions are domainerr NotFound.
type Resolver interface {
	ResolveInstitution(ctx context.Context, id uuid.UUID) (Institution, error)
}

// DenialRecorder counts denied permissions; *observability.Metrics satisfies it.
type DenialRecorder interface {
	AuthorizationDenied(permission string)
}

// Guard attaches the institution scope to requests and checks permissions against it.
type Guard struct {
	gate         *rbac.Gate
	institutions Resolver
	logger       *zap.Logger
	denials      DenialRecorder
}

func NewGuard(gate *rbac.Gate, institutions Resolver, logger *zap.Logger, denials DenialRecorder) *Guard {
	if gate == nil || institutions == nil {
		panic("tenant middleware: gate and resolver are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{gate: gate, institutions: institutions, logger: logger, denials: denials}
}

// Scope resolves {institutionId}, admits only active staff of an operational institution
// and stores the tenant.Scope on the request context.
func (g *Guard) Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := platformauth.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Unauthorized(w, "bearer token required")
			return
		}

		institutionID, err := httpx.PathUUID(r, InstitutionParam)
		if err != nil {
			httpx.WriteError(w, r, g.logger, err)
			return
		}

		membership, err := g.gate.Authorize(r.Context(), principal, institutionID, rbac.AllRoles())
		if err != nil {
			httpx.WriteError(w, r, g.logger, err)
			return
		}

		inst, err := g.institutions.ResolveInstitution(r.Context(), institutionID)
		if err != nil {
			httpx.WriteError(w, r, g.logger, err)
			return
		}
		if !inst.Operational() {
			httpx.WriteError(w, r, g.logger, domainerr.Forbidden("institution is "+inst.Status))
			return
		}

		scope := tenant.Scope{
			InstitutionID: inst.ID,
			Slug:          inst.Slug,
			Name:          inst.Name,
			Status:        inst.Status,
			Membership:    membership,
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
	})
}

// Require admits the request only when the scoped role holds perm. It must run after Scope.
func (g *Guard) Require(perm rbac.Permission) func(http.Handler) http.Handler {
	allowed := perm.AllowedRoles()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := tenant.FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, g.logger, &rbac.PermissionDeniedError{Required: allowed})
				return
			}
			if err := rbac.Check(scope.Membership, allowed); err != nil {
				if g.denials != nil {
					g.denials.AuthorizationDenied(string(perm))
				}
				g.logger.Info("permission denied",
					zap.String("permission", string(perm)),
					zap.String("role", string(scope.Role())),
					zap.Stringer("institution_id", scope.InstitutionID))
				httpx.WriteError(w, r, g.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
