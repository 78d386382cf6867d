// Package handler serves the read-only audit logs: the institution log to its admin and
// principal, and the platform log to super admins.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Lister is satisfied by *audit.Store.
type Lister interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Record, int, error)
}

type Handler struct {
	logs   Lister
	logger *zap.Logger
}

func New(logs Lister, logger *zap.Logger) *Handler {
	if logs == nil {
		panic("audit store is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{logs: logs, logger: logger}
}

// Mount registers the platform log.
func (h *Handler) Mount(r chi.Router) {
	r.With(platformauth.RequirePlatformRole(platformauth.PlatformRoleSuperAdmin)).
		Get("/admin/audit-logs", h.ListPlatform)
}

// MountScoped registers the institution log.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	r.With(guard.Require(rbac.PermViewAuditLog)).Get("/audit-logs", h.ListInstitution)
}

// ListPlatform implements GET /admin/audit-logs.
func (h *Handler) ListPlatform(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, audit.Filter{})
}

// ListInstitution implements GET /institutions/{institutionId}/audit-logs.
func (h *Handler) ListInstitution(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	h.list(w, r, audit.Filter{InstitutionID: &scope.InstitutionID})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f audit.Filter) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	action, err := httpx.QueryString(r, "action")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if f.EntityType, err = httpx.QueryString(r, "entityType"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if action != nil {
		a := audit.Action(*action)
		f.Action = &a
	}
	f.Page, f.PageSize = page, pageSize

	records, total, err := h.logs.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(records, page, pageSize, total))
}
