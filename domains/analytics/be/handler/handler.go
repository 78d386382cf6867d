package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Handler exposes dashboards and fee-collection analytics.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("analytics service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountScoped registers /dashboard and /fee-analysis inside an institution scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	analysis := guard.Require(rbac.PermViewFeeAnalysis)

	r.With(guard.Require(rbac.PermViewDashboard)).Get("/dashboard", h.Dashboard)
	r.Route("/fee-analysis", func(r chi.Router) {
		r.With(analysis).Get("/", h.Analyze)
		r.With(analysis).Get("/snapshots", h.ListSnapshots)
		r.With(analysis).Post("/snapshots", h.EnsureSnapshot)
	})
}

type summaryDTO struct {
	TotalStudents    int    `json:"totalStudents"`
	TotalBilled      string `json:"totalBilled"`
	TotalPaid        string `json:"totalPaid"`
	TotalOutstanding string `json:"totalOutstanding"`
	FullyPaid        int    `json:"fullyPaid"`
	PartiallyPaid    int    `json:"partiallyPaid"`
	NotPaid          int    `json:"notPaid"`
	Overdue          int    `json:"overdue"`
	CollectionRate   string `json:"collectionRate"`
}

type snapshotDTO struct {
	ID                   uuid.UUID          `json:"id"`
	AcademicYearID       uuid.UUID          `json:"academicYearId"`
	SnapshotDate         openapi_types.Date `json:"snapshotDate"`
	Summary              summaryDTO         `json:"summary"`
	AverageFeePerStudent string             `json:"averageFeePerStudent"`
	CreatedAt            time.Time          `json:"createdAt"`
}

type yearRefDTO struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}

type dashboardDTO struct {
	Kind           string       `json:"kind"`
	Role           string       `json:"role"`
	Institution    string       `json:"institution"`
	ActiveYear     *yearRefDTO  `json:"activeYear,omitempty"`
	ActiveStudents *int         `json:"activeStudents,omitempty"`
	ActiveStaff    *int         `json:"activeStaff,omitempty"`
	Collection     *summaryDTO  `json:"collection,omitempty"`
	Snapshot       *snapshotDTO `json:"snapshot,omitempty"`
}

type analysisDTO struct {
	AcademicYear yearRefDTO  `json:"academicYear"`
	Live         summaryDTO  `json:"live"`
	Snapshot     snapshotDTO `json:"snapshot"`
}

type snapshotRequest struct {
	AcademicYearID uuid.UUID           `json:"academicYearId" validate:"required"`
	Date           *openapi_types.Date `json:"date,omitempty"`
}

// Dashboard implements GET /institutions/{institutionId}/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	d, err := h.svc.Dashboard(r.Context(), scope)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	dto := dashboardDTO{
		Kind:           string(d.Kind),
		Role:           string(d.Role),
		Institution:    scope.Name,
		ActiveStudents: d.ActiveStudents,
		ActiveStaff:    d.ActiveStaff,
	}
	if d.ActiveYear != nil {
		dto.ActiveYear = &yearRefDTO{ID: d.ActiveYear.ID, Code: d.ActiveYear.Code}
	}
	if d.Collection != nil {
		s := toSummaryDTO(*d.Collection)
		dto.Collection = &s
	}
	if d.Snapshot != nil {
		s := toSnapshotDTO(*d.Snapshot)
		dto.Snapshot = &s
	}
	httpx.JSON(w, http.StatusOK, dto)
}

// Analyze implements GET /institutions/{institutionId}/fee-analysis. Without academicYearId the
// active year is analysed.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	yearID, err := httpx.QueryUUID(r, "academicYearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	a, err := h.svc.Analyze(r.Context(), scope.InstitutionID, yearID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, analysisDTO{
		AcademicYear: yearRefDTO{ID: a.Year.ID, Code: a.Year.Code},
		Live:         toSummaryDTO(a.Live),
		Snapshot:     toSnapshotDTO(a.Snapshot),
	})
}

// ListSnapshots implements GET /institutions/{institutionId}/fee-analysis/snapshots?academicYearId=.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	yearID, err := httpx.QueryUUID(r, "academicYearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if yearID == nil {
		httpx.WriteError(w, r, h.logger, domainerr.Invalid("academicYearId", "academicYearId is required"))
		return
	}
	list, err := h.svc.ListSnapshots(r.Context(), scope.InstitutionID, *yearID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]snapshotDTO, 0, len(list))
	for _, s := range list {
		items = append(items, toSnapshotDTO(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// EnsureSnapshot implements POST /institutions/{institutionId}/fee-analysis/snapshots.
func (h *Handler) EnsureSnapshot(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req snapshotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	date := h.svc.Today()
	if req.Date != nil {
		date = req.Date.Time
	}
	s, err := h.svc.EnsureSnapshot(r.Context(), scope.InstitutionID, req.AcademicYearID, date)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSnapshotDTO(s))
}

func toSummaryDTO(s service.Summary) summaryDTO {
	return summaryDTO{
		TotalStudents:    s.TotalStudents,
		TotalBilled:      s.TotalBilled.StringFixed(2),
		TotalPaid:        s.TotalPaid.StringFixed(2),
		TotalOutstanding: s.TotalOutstanding.StringFixed(2),
		FullyPaid:        s.FullyPaid,
		PartiallyPaid:    s.PartiallyPaid,
		NotPaid:          s.NotPaid,
		Overdue:          s.Overdue,
		CollectionRate:   s.CollectionRate.StringFixed(2),
	}
}

func toSnapshotDTO(s service.Snapshot) snapshotDTO {
	return snapshotDTO{
		ID:                   s.ID,
		AcademicYearID:       s.AcademicYearID,
		SnapshotDate:         openapi_types.Date{Time: s.Date},
		Summary:              toSummaryDTO(s.Summary),
		AverageFeePerStudent: s.AverageFeePerStudent.StringFixed(2),
		CreatedAt:            s.CreatedAt,
	}
}
