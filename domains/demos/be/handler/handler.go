package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/demos/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
)

const demoParam = "demoId"

// Handler wires demo request intake and triage to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("demos service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountPublic registers the unauthenticated intake route.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/demo-requests", h.Submit)
}

// Mount registers the super-admin triage routes.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/admin/demo-requests", func(r chi.Router) {
		r.Use(platformauth.RequirePlatformRole(platformauth.PlatformRoleSuperAdmin))
		r.Get("/", h.List)
		r.Get("/{demoId}", h.Get)
		r.Post("/{demoId}/approve", h.Approve)
		r.Post("/{demoId}/reject", h.Reject)
		r.Post("/{demoId}/reopen", h.Reopen)
	})
}

type demoDTO struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	JobTitle        string     `json:"jobTitle"`
	InstitutionName string     `json:"institutionName"`
	InstitutionType string     `json:"institutionType"`
	StudentCount    string     `json:"studentCount"`
	Country         string     `json:"country"`
	Challenge       string     `json:"challenge"`
	Message         string     `json:"message,omitempty"`
	PreferredTime   string     `json:"preferredTime"`
	IncludeTeam     bool       `json:"includeTeam"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	InstitutionID   *uuid.UUID `json:"institutionId,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy      *uuid.UUID `json:"approvedBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// receiptDTO is returned to anonymous submitters; triage fields stay private.
type receiptDTO struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type submitRequest struct {
	FullName        string `json:"fullName" validate:"required,max=200"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,max=40"`
	JobTitle        string `json:"jobTitle" validate:"required,max=200"`
	InstitutionName string `json:"institutionName" validate:"required,max=200"`
	InstitutionType string `json:"institutionType" validate:"required"`
	StudentCount    string `json:"studentCount" validate:"required"`
	Country         string `json:"country" validate:"required,max=100"`
	Challenge       string `json:"challenge" validate:"required"`
	Message         string `json:"message,omitempty" validate:"max=5000"`
	PreferredTime   string `json:"preferredTime" validate:"required"`
	IncludeTeam     bool   `json:"includeTeam"`
	Agree           bool   `json:"agree"`
}

type approveRequest struct {
	Slug            string `json:"slug,omitempty"`
	OnboardingNotes string `json:"onboardingNotes,omitempty" validate:"max=2000"`
}

type notesRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

// Submit implements POST /demo-requests.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	d, err := h.svc.Submit(r.Context(), service.SubmitInput{
		FullName:        req.FullName,
		Email:           req.Email,
		Phone:           req.Phone,
		JobTitle:        req.JobTitle,
		InstitutionName: req.InstitutionName,
		InstitutionType: req.InstitutionType,
		StudentCount:    req.StudentCount,
		Country:         req.Country,
		Challenge:       req.Challenge,
		Message:         req.Message,
		PreferredTime:   req.PreferredTime,
		IncludeTeam:     req.IncludeTeam,
		Agree:           req.Agree,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receiptDTO{ID: d.ID, Status: string(d.Status), CreatedAt: d.CreatedAt})
}

// List implements GET /admin/demo-requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	statusParam, err := httpx.QueryString(r, "status")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	opts := service.ListOptions{Page: page, PageSize: pageSize}
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
	items := make([]demoDTO, 0, len(result.Requests))
	for _, d := range result.Requests {
		items = append(items, toDTO(d))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Get implements GET /admin/demo-requests/{demoId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, demoParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(d))
}

// Approve implements POST /admin/demo-requests/{demoId}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, demoParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	in := service.ApproveInput{Slug: req.Slug, OnboardingNotes: req.OnboardingNotes}
	if p, ok := platformauth.PrincipalFromContext(r.Context()); ok {
		in.ApprovedBy = &p.UserID
	}
	d, err := h.svc.Approve(r.Context(), id, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(d))
}

// Reject implements POST /admin/demo-requests/{demoId}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Reject)
}

// Reopen implements POST /admin/demo-requests/{demoId}/reopen.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Reopen)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID, notes string) (service.DemoRequest, error)) {
	id, err := httpx.PathUUID(r, demoParam)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req notesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	d, err := apply(r.Context(), id, req.Notes)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(d))
}

func toDTO(d service.DemoRequest) demoDTO {
	return demoDTO{
		ID:              d.ID,
		FullName:        d.FullName,
		Email:           d.Email,
		Phone:           d.Phone,
		JobTitle:        d.JobTitle,
		InstitutionName: d.InstitutionName,
		InstitutionType: d.InstitutionType,
		StudentCount:    d.StudentCount,
		Country:         d.Country,
		Challenge:       d.Challenge,
		Message:         d.Message,
		PreferredTime:   d.PreferredTime,
		IncludeTeam:     d.IncludeTeam,
		Status:          string(d.Status),
		Notes:           d.Notes,
		InstitutionID:   d.InstitutionID,
		ApprovedAt:      d.ApprovedAt,
		ApprovedBy:      d.ApprovedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
