package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
)

const basePath = "/api/v1/admin/users"

// Handler exposes the platform user registry over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers /me and the super-admin user registry on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/me", h.Me)
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(platformauth.RequirePlatformRole(platformauth.PlatformRoleSuperAdmin))
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{userId}", h.Get)
		r.Post("/{userId}/deactivate", h.Deactivate)
		r.Post("/{userId}/assign-admin", h.AssignAdmin)
	})
}

type userDTO struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"fullName"`
	PlatformRole  string     `json:"platformRole"`
	InstitutionID *uuid.UUID `json:"institutionId,omitempty"`
	IsActive      bool       `json:"isActive"`
	Linked        bool       `json:"identityLinked"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type membershipDTO struct {
	StaffID         uuid.UUID `json:"staffId"`
	InstitutionID   uuid.UUID `json:"institutionId"`
	InstitutionName string    `json:"institutionName"`
	InstitutionSlug string    `json:"institutionSlug"`
	Role            string    `json:"role"`
	RoleLabel       string    `json:"roleLabel"`
	IsActive        bool      `json:"isActive"`
}

type meDTO struct {
	User        userDTO         `json:"user"`
	Memberships []membershipDTO `json:"memberships"`
}

type createRequest struct {
	Email         string     `json:"email" validate:"required,email"`
	FullName      string     `json:"fullName" validate:"required,max=200"`
	PlatformRole  string     `json:"platformRole,omitempty"`
	InstitutionID *uuid.UUID `json:"institutionId,omitempty"`
}

// Me implements GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "bearer token required")
		return
	}
	me, err := h.svc.Me(r.Context(), principal.UserID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	out := meDTO{User: toDTO(me.User), Memberships: make([]membershipDTO, 0, len(me.Memberships))}
	for _, m := range me.Memberships {
		out.Memberships = append(out.Memberships, membershipDTO{
			StaffID:         m.StaffID,
			InstitutionID:   m.InstitutionID,
			InstitutionName: m.InstitutionName,
			InstitutionSlug: m.InstitutionSlug,
			Role:            string(m.Role),
			RoleLabel:       m.Role.Label(),
			IsActive:        m.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// List implements GET /admin/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	email, err := httpx.QueryString(r, "email")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	institutionID, err := httpx.QueryUUID(r, "institutionId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	roleParam, err := httpx.QueryString(r, "platformRole")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	opts := service.ListOptions{Email: email, InstitutionID: institutionID, Page: page, PageSize: pageSize}
	if roleParam != nil {
		role, err := platformauth.ParsePlatformRole(*roleParam)
		if err != nil {
			httpx.WriteError(w, r, h.logger, domainerr.Invalid("platformRole", err.Error()))
			return
		}
		opts.PlatformRole = &role
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]userDTO, 0, len(result.Users))
	for _, u := range result.Users {
		items = append(items, toDTO(u))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Create implements POST /admin/users.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.Create(r.Context(), service.CreateInput{
		Email:         req.Email,
		FullName:      req.FullName,
		PlatformRole:  req.PlatformRole,
		InstitutionID: req.InstitutionID,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(basePath, u.ID), toDTO(u))
}

// Get implements GET /admin/users/{userId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(u))
}

// Deactivate implements POST /admin/users/{userId}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.Deactivate(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(u))
}

type assignAdminRequest struct {
	InstitutionID uuid.UUID `json:"institutionId" validate:"required"`
}

// AssignAdmin implements POST /admin/users/{userId}/assign-admin.
func (h *Handler) AssignAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req assignAdminRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.AssignAdmin(r.Context(), id, req.InstitutionID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(u))
}

func toDTO(u service.User) userDTO {
	return userDTO{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		PlatformRole:  string(u.PlatformRole),
		InstitutionID: u.InstitutionID,
		IsActive:      u.IsActive,
		Linked:        u.ExternalUID != nil,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
