package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

const adminPath = "/api/v1/admin/institutions"

// Handler wires the institution registry to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("institutions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the super-admin registry routes.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/admin/institutions", func(r chi.Router) {
		r.Use(platformauth.RequirePlatformRole(platformauth.PlatformRoleSuperAdmin))
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{institutionId}", h.Get)
		r.Post("/{institutionId}/transitions", h.Transition)
		r.Get("/{institutionId}/status-log", h.StatusLog)
	})
}

// MountScoped registers the routes served inside /institutions/{institutionId}; r must already run guard.Scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	r.With(guard.Require(rbac.PermViewInstitution)).Get("/", h.Profile)
	r.With(guard.Require(rbac.PermManageInstitutionProfile)).Patch("/", h.UpdateProfile)
}

type institutionDTO struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	ContactName     string     `json:"contactName"`
	ContactEmail    string     `json:"contactEmail"`
	ContactPhone    string     `json:"contactPhone"`
	Address         string     `json:"address"`
	LogoURL         *string    `json:"logoUrl,omitempty"`
	Status          string     `json:"status"`
	OnboardingNotes string     `json:"onboardingNotes,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
	SuspendedAt     *time.Time `json:"suspendedAt,omitempty"`
	DeactivatedAt   *time.Time `json:"deactivatedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type statusLogDTO struct {
	ID             uuid.UUID  `json:"id"`
	Action         string     `json:"action"`
	PreviousStatus string     `json:"previousStatus"`
	NewStatus      string     `json:"newStatus"`
	Note           string     `json:"note,omitempty"`
	ActorID        *uuid.UUID `json:"actorId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type createRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Slug            string `json:"slug,omitempty"`
	Type            string `json:"type,omitempty"`
	ContactName     string `json:"contactName,omitempty"`
	ContactEmail    string `json:"contactEmail" validate:"required,email"`
	ContactPhone    string `json:"contactPhone,omitempty"`
	Address         string `json:"address,omitempty"`
	OnboardingNotes string `json:"onboardingNotes,omitempty"`
}

type transitionRequest struct {
	Action string `json:"action" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=2000"`
}

type profileRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ContactName  *string `json:"contactName,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
	Address      *string `json:"address,omitempty"`
	LogoURL      *string `json:"logoUrl,omitempty" validate:"omitempty,url"`
}

// List implements GET /admin/institutions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	search, err := httpx.QueryString(r, "search")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	statusParam, err := httpx.QueryString(r, "status")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	opts := service.ListOptions{Search: search, Page: page, PageSize: pageSize}
	if statusParam != nil {
		status, err := service.ParseStatus(*statusParam)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]institutionDTO, 0, len(result.Institutions))
	for _, inst := range result.Institutions {
		items = append(items, toDTO(inst))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Create implements POST /admin/institutions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var createdBy *uuid.UUID
	if p, ok := platformauth.PrincipalFromContext(r.Context()); ok {
		createdBy = &p.UserID
	}

	inst, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:            req.Name,
		Slug:            req.Slug,
		Type:            req.Type,
		ContactName:     req.ContactName,
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		Address:         req.Address,
		OnboardingNotes: req.OnboardingNotes,
		CreatedBy:       createdBy,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(adminPath, inst.ID), toDTO(inst))
}

// Get implements GET /admin/institutions/{institutionId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, tenantmw.InstitutionParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	inst, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(inst))
}

// Transition implements POST /admin/institutions/{institutionId}/transitions.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, tenantmw.InstitutionParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	action, err := service.ParseAction(req.Action)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	inst, err := h.svc.Transition(r.Context(), id, action, req.Note)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(inst))
}

// StatusLog implements GET /admin/institutions/{institutionId}/status-log.
func (h *Handler) StatusLog(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, tenantmw.InstitutionParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	logs, err := h.svc.StatusLog(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	out := make([]statusLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, statusLogDTO{
			ID:             l.ID,
			Action:         l.Action,
			PreviousStatus: string(l.PreviousStatus),
			NewStatus:      string(l.NewStatus),
			Note:           l.Note,
			ActorID:        l.ActorID,
			CreatedAt:      l.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

// Profile implements GET /institutions/{institutionId}.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	inst, err := h.svc.Get(r.Context(), scope.InstitutionID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(inst))
}

// UpdateProfile implements PATCH /institutions/{institutionId}.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	inst, err := h.svc.UpdateProfile(r.Context(), scope.InstitutionID, service.ProfileInput{
		Name:         req.Name,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
		LogoURL:      req.LogoURL,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(inst))
}

func toDTO(inst service.Institution) institutionDTO {
	return institutionDTO{
		ID:              inst.ID,
		Slug:            inst.Slug,
		Name:            inst.Name,
		Type:            string(inst.Type),
		ContactName:     inst.ContactName,
		ContactEmail:    inst.ContactEmail,
		ContactPhone:    inst.ContactPhone,
		Address:         inst.Address,
		LogoURL:         inst.LogoURL,
		Status:          string(inst.Status),
		OnboardingNotes: inst.OnboardingNotes,
		ApprovedAt:      inst.ApprovedAt,
		ActivatedAt:     inst.ActivatedAt,
		SuspendedAt:     inst.SuspendedAt,
		DeactivatedAt:   inst.DeactivatedAt,
		RejectedAt:      inst.RejectedAt,
		CreatedAt:       inst.CreatedAt,
		UpdatedAt:       inst.UpdatedAt,
	}
}
