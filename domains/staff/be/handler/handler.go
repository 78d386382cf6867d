package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Handler exposes staff administration and onboarding.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("staff service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers POST /onboarding.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/onboarding", h.Onboard)
}

// MountScoped registers /staff inside an institution scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	r.Route("/staff", func(r chi.Router) {
		r.With(guard.Require(rbac.PermViewStaff)).Get("/", h.List)
		r.With(guard.Require(rbac.PermManageStaff)).Post("/", h.Add)
		r.With(guard.Require(rbac.PermViewStaff)).Get("/{staffId}", h.Get)
		r.With(guard.Require(rbac.PermManageStaff)).Put("/{staffId}/role", h.ChangeRole)
		r.With(guard.Require(rbac.PermManageStaff)).Post("/{staffId}/deactivate", h.Deactivate)
	})
}

type staffDTO struct {
	ID            uuid.UUID `json:"id"`
	InstitutionID uuid.UUID `json:"institutionId"`
	UserID        uuid.UUID `json:"userId"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role"`
	RoleLabel     string    `json:"roleLabel"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type addRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required,max=200"`
	Phone    string `json:"phone,omitempty" validate:"max=30"`
	Role     string `json:"role" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type onboardingDTO struct {
	Staff   staffDTO `json:"staff"`
	Created bool     `json:"created"`
}

// Onboard implements POST /onboarding.
func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "bearer token required")
		return
	}
	st, created, err := h.svc.EnsureOnboarding(r.Context(), principal)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, onboardingDTO{Staff: toDTO(st), Created: created})
}

// List implements GET /institutions/{institutionId}/staff.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	active, err := httpx.QueryBool(r, "active")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	roleParam, err := httpx.QueryString(r, "role")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	opts := service.ListOptions{Active: active, Page: page, PageSize: pageSize}
	if roleParam != nil {
		role, err := rbac.ParseRole(*roleParam)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		opts.Role = &role
	}

	result, err := h.svc.List(r.Context(), scope.InstitutionID, opts)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]staffDTO, 0, len(result.Staff))
	for _, s := range result.Staff {
		items = append(items, toDTO(s))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Add implements POST /institutions/{institutionId}/staff.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req addRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.Add(r.Context(), scope.InstitutionID, service.AddInput{
		Email:           req.Email,
		FullName:        req.FullName,
		Phone:           req.Phone,
		Role:            req.Role,
		InstitutionName: scope.Name,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(staffPath(scope), st.ID), toDTO(st))
}

// Get implements GET /institutions/{institutionId}/staff/{staffId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "staffId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.Get(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(st))
}

// ChangeRole implements PUT /institutions/{institutionId}/staff/{staffId}/role.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "staffId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.ChangeRole(r.Context(), scope.InstitutionID, id, req.Role)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(st))
}

// Deactivate implements POST /institutions/{institutionId}/staff/{staffId}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "staffId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.Deactivate(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(st))
}

func staffPath(scope tenant.Scope) string {
	return fmt.Sprintf("/api/v1/institutions/%s/staff", scope.InstitutionID)
}

func toDTO(s service.Staff) staffDTO {
	return staffDTO{
		ID:            s.ID,
		InstitutionID: s.InstitutionID,
		UserID:        s.UserID,
		FullName:      s.FullName,
		Email:         s.Email,
		Phone:         s.Phone,
		Role:          string(s.Role),
		RoleLabel:     s.Role.Label(),
		IsActive:      s.IsActive,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
