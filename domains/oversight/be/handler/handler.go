package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/oversight/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("oversight service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers GET /admin/dashboard for super admins.
func (h *Handler) Mount(r chi.Router) {
	r.With(platformauth.RequirePlatformRole(platformauth.PlatformRoleSuperAdmin)).Get("/admin/dashboard", h.Dashboard)
}

type countsDTO struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus,omitempty"`
	ByRole   map[string]int `json:"byRole,omitempty"`
}

type demoCountsDTO struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

type dashboardDTO struct {
	Institutions countsDTO     `json:"institutions"`
	Users        countsDTO     `json:"users"`
	DemoRequests demoCountsDTO `json:"demoRequests"`
}

// Dashboard implements GET /admin/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardDTO{
		Institutions: countsDTO{Total: d.InstitutionsTotal, ByStatus: d.InstitutionsByStatus},
		Users:        countsDTO{Total: d.UsersTotal, ByRole: d.UsersByRole},
		DemoRequests: demoCountsDTO{Total: d.DemoRequestsTotal, Pending: d.DemoRequestsPending},
	})
}
