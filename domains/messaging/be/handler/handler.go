package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/messaging/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Handler exposes principal messaging inside an institution scope.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("messaging service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountScoped registers /messages; r must already run guard.Scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	r.Route("/messages", func(r chi.Router) {
		r.With(guard.Require(rbac.PermViewMessages)).Get("/", h.List)
		r.With(guard.Require(rbac.PermSendMessages)).Post("/", h.Send)
		r.With(guard.Require(rbac.PermViewMessages)).Get("/{messageId}", h.Get)
	})
}

type messageDTO struct {
	ID             uuid.UUID      `json:"id"`
	SentBy         *uuid.UUID     `json:"sentBy,omitempty"`
	Subject        string         `json:"subject"`
	Type           string         `json:"type"`
	Content        string         `json:"content"`
	Target         string         `json:"target"`
	RecipientCount int            `json:"recipientCount"`
	IsActive       bool           `json:"isActive"`
	SentAt         time.Time      `json:"sentAt"`
	Recipients     []recipientDTO `json:"recipients,omitempty"`
}

type recipientDTO struct {
	StudentID       uuid.UUID `json:"studentId"`
	FullName        string    `json:"fullName"`
	AdmissionNumber string    `json:"admissionNumber"`
}

type sendRequest struct {
	Subject    string      `json:"subject" validate:"required,max=200"`
	Type       string      `json:"type" validate:"required"`
	Content    string      `json:"content" validate:"required,max=10000"`
	Target     string      `json:"target" validate:"required"`
	StudentIDs []uuid.UUID `json:"studentIds,omitempty"`
}

// Send implements POST /institutions/{institutionId}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	sender := scope.Membership.StaffID
	d, err := h.svc.Send(r.Context(), service.SendInput{
		InstitutionID:   scope.InstitutionID,
		InstitutionName: scope.Name,
		SentByStaffID:   &sender,
		Subject:         req.Subject,
		Type:            req.Type,
		Content:         req.Content,
		Target:          req.Target,
		StudentIDs:      req.StudentIDs,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	base := fmt.Sprintf("/api/v1/institutions/%s/messages", scope.InstitutionID)
	httpx.Created(w, httpx.Location(base, d.Message.ID), toDTO(d.Message, d.Recipients))
}

// List implements GET /institutions/{institutionId}/messages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.List(r.Context(), scope.InstitutionID, service.ListOptions{Page: page, PageSize: pageSize})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]messageDTO, 0, len(result.Messages))
	for _, m := range result.Messages {
		items = append(items, toDTO(m, nil))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Get implements GET /institutions/{institutionId}/messages/{messageId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "messageId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	d, err := h.svc.Get(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(d.Message, d.Recipients))
}

func toDTO(m service.Message, recipients []service.Recipient) messageDTO {
	out := messageDTO{
		ID:             m.ID,
		SentBy:         m.SentByStaffID,
		Subject:        m.Subject,
		Type:           string(m.Type),
		Content:        m.Content,
		Target:         string(m.Target),
		RecipientCount: m.RecipientCount,
		IsActive:       m.IsActive,
		SentAt:         m.SentAt,
	}
	for _, rec := range recipients {
		out.Recipients = append(out.Recipients, recipientDTO{
			StudentID:       rec.StudentID,
			FullName:        rec.FullName,
			AdmissionNumber: rec.AdmissionNumber,
		})
	}
	return out
}
