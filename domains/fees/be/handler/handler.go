package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Handler exposes fee structures, the assignment ledger and student statements.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("fees service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountScoped registers the fee routes inside an institution scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	viewStructures := guard.Require(rbac.PermViewFeeStructures)
	manageStructures := guard.Require(rbac.PermManageFeeStructures)
	viewRecords := guard.Require(rbac.PermViewFeeRecords)
	assign := guard.Require(rbac.PermAssignFees)
	overdue := guard.Require(rbac.PermManageOverdue)

	r.Route("/fee-structures", func(r chi.Router) {
		r.With(viewStructures).Get("/", h.ListStructures)
		r.With(manageStructures).Post("/", h.CreateStructure)
		r.With(viewStructures).Get("/{structureId}", h.GetStructure)
		r.With(manageStructures).Post("/{structureId}/items", h.AddItem)
		r.With(manageStructures).Post("/{structureId}/activate", h.setActive(true))
		r.With(manageStructures).Post("/{structureId}/deactivate", h.setActive(false))
	})
	r.Route("/fee-assignments", func(r chi.Router) {
		r.With(viewRecords).Get("/", h.ListAssignments)
		r.With(assign).Post("/", h.AssignFees)
		r.With(overdue).Post("/mark-overdue", h.MarkOverdueSweep)
		r.With(viewRecords).Get("/{assignmentId}", h.GetAssignment)
		r.With(assign).Patch("/{assignmentId}", h.AdjustAssignment)
		r.With(viewRecords).Get("/{assignmentId}/payments", h.ListPayments)
		r.With(guard.Require(rbac.PermRecordPayments)).Post("/{assignmentId}/payments", h.RecordPayment)
		r.With(overdue).Post("/{assignmentId}/mark-overdue", h.MarkOverdue)
	})
	r.With(viewRecords).Get("/fee-statements/{studentId}", h.Statement)
}

// Money is serialized as a decimal string with two fractional digits.
type itemDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	IsMandatory bool      `json:"isMandatory"`
	Description string    `json:"description,omitempty"`
}

type structureDTO struct {
	ID             uuid.UUID `json:"id"`
	Version        int       `json:"version"`
	Name           string    `json:"name"`
	IsActive       bool      `json:"isActive"`
	MandatoryTotal string    `json:"mandatoryTotal"`
	Items          []itemDTO `json:"items"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type assignmentDTO struct {
	ID                 uuid.UUID           `json:"id"`
	StudentID          uuid.UUID           `json:"studentId"`
	FeeStructureID     uuid.UUID           `json:"feeStructureId"`
	AcademicYearID     uuid.UUID           `json:"academicYearId"`
	TermID             *uuid.UUID          `json:"termId,omitempty"`
	TotalFees          string              `json:"totalFees"`
	DiscountAmount     string              `json:"discountAmount"`
	PenaltyAmount      string              `json:"penaltyAmount"`
	AmountPaid         string              `json:"amountPaid"`
	OutstandingBalance string              `json:"outstandingBalance"`
	IsPaidInFull       bool                `json:"isPaidInFull"`
	DueDate            *openapi_types.Date `json:"dueDate,omitempty"`
	IsOverdue          bool                `json:"isOverdue"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type paymentDTO struct {
	ID           uuid.UUID  `json:"id"`
	AssignmentID uuid.UUID  `json:"assignmentId"`
	Amount       string     `json:"amount"`
	Method       string     `json:"method"`
	Reference    string     `json:"reference,omitempty"`
	RecordedBy   *uuid.UUID `json:"recordedBy,omitempty"`
	PaidAt       time.Time  `json:"paidAt"`
}

type statementLineDTO struct {
	Assignment assignmentDTO `json:"assignment"`
	Payments   []paymentDTO  `json:"payments"`
}

type statementDTO struct {
	StudentID        uuid.UUID          `json:"studentId"`
	FullName         string             `json:"fullName"`
	AdmissionNumber  string             `json:"admissionNumber"`
	Lines            []statementLineDTO `json:"lines"`
	TotalBilled      string             `json:"totalBilled"`
	TotalPaid        string             `json:"totalPaid"`
	TotalOutstanding string             `json:"totalOutstanding"`
}

type itemRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Type        string          `json:"type,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	IsMandatory *bool           `json:"isMandatory,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=1000"`
}

func (req itemRequest) input() service.ItemInput {
	mandatory := true
	if req.IsMandatory != nil {
		mandatory = *req.IsMandatory
	}
	return service.ItemInput{Name: req.Name, Type: req.Type, Amount: req.Amount, IsMandatory: mandatory, Description: req.Description}
}

type structureRequest struct {
	Name  string        `json:"name,omitempty" validate:"max=200"`
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type assignRequest struct {
	StudentID       uuid.UUID           `json:"studentId" validate:"required"`
	FeeStructureID  uuid.UUID           `json:"feeStructureId" validate:"required"`
	AcademicYearID  uuid.UUID           `json:"academicYearId" validate:"required"`
	TermID          *uuid.UUID          `json:"termId,omitempty"`
	TotalFees       *decimal.Decimal    `json:"totalFees,omitempty"`
	OptionalItemIDs []uuid.UUID         `json:"optionalItemIds,omitempty"`
	DiscountAmount  *decimal.Decimal    `json:"discountAmount,omitempty"`
	PenaltyAmount   *decimal.Decimal    `json:"penaltyAmount,omitempty"`
	DueDate         *openapi_types.Date `json:"dueDate,omitempty"`
}

type adjustRequest struct {
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	PenaltyAmount  *decimal.Decimal `json:"penaltyAmount,omitempty"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty" validate:"max=100"`
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
}

type markOverdueRequest struct {
	AsOf *openapi_types.Date `json:"asOf,omitempty"`
}

// ListStructures implements GET /institutions/{institutionId}/fee-structures.
func (h *Handler) ListStructures(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	active, err := httpx.QueryBool(r, "active")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	list, err := h.svc.ListStructures(r.Context(), scope.InstitutionID, active)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]structureDTO, 0, len(list))
	for _, s := range list {
		items = append(items, toStructureDTO(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateStructure implements POST /institutions/{institutionId}/fee-structures.
func (h *Handler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req structureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	in := service.StructureInput{Name: req.Name}
	for _, it := range req.Items {
		in.Items = append(in.Items, it.input())
	}
	st, err := h.svc.CreateStructure(r.Context(), scope.InstitutionID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "fee-structures"), st.ID), toStructureDTO(st))
}

// GetStructure implements GET /institutions/{institutionId}/fee-structures/{structureId}.
func (h *Handler) GetStructure(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "structureId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.GetStructure(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStructureDTO(st))
}

// AddItem implements POST /institutions/{institutionId}/fee-structures/{structureId}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "structureId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	item, err := h.svc.AddItem(r.Context(), scope.InstitutionID, id, req.input())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemDTO(item))
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, _ := tenant.FromContext(r.Context())
		id, err := httpx.PathUUID(r, "structureId")
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		st, err := h.svc.SetStructureActive(r.Context(), scope.InstitutionID, id, active)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toStructureDTO(st))
	}
}

// ListAssignments implements GET /institutions/{institutionId}/fee-assignments.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	f := service.AssignmentFilter{Page: page, PageSize: pageSize}
	if f.StudentID, err = httpx.QueryUUID(r, "studentId"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if f.AcademicYearID, err = httpx.QueryUUID(r, "academicYearId"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if f.TermID, err = httpx.QueryUUID(r, "termId"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if f.Overdue, err = httpx.QueryBool(r, "overdue"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.ListAssignments(r.Context(), scope.InstitutionID, f)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]assignmentDTO, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		items = append(items, toAssignmentDTO(a))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// AssignFees implements POST /institutions/{institutionId}/fee-assignments.
func (h *Handler) AssignFees(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	in := service.AssignInput{
		StudentID:       req.StudentID,
		FeeStructureID:  req.FeeStructureID,
		AcademicYearID:  req.AcademicYearID,
		TermID:          req.TermID,
		TotalFees:       req.TotalFees,
		OptionalItemIDs: req.OptionalItemIDs,
		DiscountAmount:  orZero(req.DiscountAmount),
		PenaltyAmount:   orZero(req.PenaltyAmount),
	}
	if req.DueDate != nil {
		due := req.DueDate.Time
		in.DueDate = &due
	}
	a, err := h.svc.AssignFees(r.Context(), scope.InstitutionID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "fee-assignments"), a.ID), toAssignmentDTO(a))
}

// GetAssignment implements GET /institutions/{institutionId}/fee-assignments/{assignmentId}.
func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "assignmentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	a, err := h.svc.GetAssignment(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssignmentDTO(a))
}

// AdjustAssignment implements PATCH /institutions/{institutionId}/fee-assignments/{assignmentId}.
func (h *Handler) AdjustAssignment(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "assignmentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	a, err := h.svc.AdjustAssignment(r.Context(), scope.InstitutionID, id, service.AdjustInput{
		DiscountAmount: req.DiscountAmount,
		PenaltyAmount:  req.PenaltyAmount,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssignmentDTO(a))
}

// RecordPayment implements POST /institutions/{institutionId}/fee-assignments/{assignmentId}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "assignmentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, a, err := h.svc.RecordPayment(r.Context(), scope.InstitutionID, id, service.PaymentInput{
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidAt:    req.PaidAt,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"payment":    toPaymentDTO(p),
		"assignment": toAssignmentDTO(a),
	})
}

// ListPayments implements GET /institutions/{institutionId}/fee-assignments/{assignmentId}/payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "assignmentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	payments, err := h.svc.ListPayments(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": toPaymentDTOs(payments)})
}

// MarkOverdue implements POST /institutions/{institutionId}/fee-assignments/{assignmentId}/mark-overdue.
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "assignmentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	a, changed, err := h.svc.MarkOverdueIfApplicable(r.Context(), scope.InstitutionID, id, h.svc.Today())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changed": changed, "assignment": toAssignmentDTO(a)})
}

// MarkOverdueSweep implements POST /institutions/{institutionId}/fee-assignments/mark-overdue.
// The body is optional; asOf defaults to today.
func (h *Handler) MarkOverdueSweep(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	today := h.svc.Today()
	if r.ContentLength > 0 {
		var req markOverdueRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		if req.AsOf != nil {
			today = req.AsOf.Time
		}
	}
	n, err := h.svc.MarkOverdueSweep(r.Context(), scope.InstitutionID, today)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"marked": n, "asOf": openapi_types.Date{Time: today}})
}

// Statement implements GET /institutions/{institutionId}/fee-statements/{studentId}.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "studentId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	st, err := h.svc.Statement(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	dto := statementDTO{
		StudentID:        st.StudentID,
		FullName:         st.FullName,
		AdmissionNumber:  st.AdmissionNumber,
		Lines:            make([]statementLineDTO, 0, len(st.Lines)),
		TotalBilled:      st.TotalBilled.StringFixed(2),
		TotalPaid:        st.TotalPaid.StringFixed(2),
		TotalOutstanding: st.TotalOutstanding.StringFixed(2),
	}
	for _, line := range st.Lines {
		dto.Lines = append(dto.Lines, statementLineDTO{Assignment: toAssignmentDTO(line.Assignment), Payments: toPaymentDTOs(line.Payments)})
	}
	httpx.JSON(w, http.StatusOK, dto)
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func scopedPath(scope tenant.Scope, resource string) string {
	return fmt.Sprintf("/api/v1/institutions/%s/%s", scope.InstitutionID, resource)
}

func toItemDTO(it service.Item) itemDTO {
	return itemDTO{
		ID:          it.ID,
		Name:        it.Name,
		Type:        string(it.Type),
		Amount:      it.Amount.StringFixed(2),
		IsMandatory: it.IsMandatory,
		Description: it.Description,
	}
}

func toStructureDTO(s service.Structure) structureDTO {
	items := make([]itemDTO, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, toItemDTO(it))
	}
	return structureDTO{
		ID:             s.ID,
		Version:        s.Version,
		Name:           s.Name,
		IsActive:       s.IsActive,
		MandatoryTotal: s.MandatoryTotal().StringFixed(2),
		Items:          items,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toAssignmentDTO(a service.Assignment) assignmentDTO {
	dto := assignmentDTO{
		ID:                 a.ID,
		StudentID:          a.StudentID,
		FeeStructureID:     a.FeeStructureID,
		AcademicYearID:     a.AcademicYearID,
		TermID:             a.TermID,
		TotalFees:          a.TotalFees.StringFixed(2),
		DiscountAmount:     a.DiscountAmount.StringFixed(2),
		PenaltyAmount:      a.PenaltyAmount.StringFixed(2),
		AmountPaid:         a.AmountPaid.StringFixed(2),
		OutstandingBalance: a.OutstandingBalance().StringFixed(2),
		IsPaidInFull:       a.IsPaidInFull(),
		IsOverdue:          a.IsOverdue,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.DueDate != nil {
		dto.DueDate = &openapi_types.Date{Time: *a.DueDate}
	}
	return dto
}

func toPaymentDTO(p service.Payment) paymentDTO {
	return paymentDTO{
		ID:           p.ID,
		AssignmentID: p.AssignmentID,
		Amount:       p.Amount.StringFixed(2),
		Method:       string(p.Method),
		Reference:    p.Reference,
		RecordedBy:   p.RecordedBy,
		PaidAt:       p.PaidAt,
	}
}

func toPaymentDTOs(payments []service.Payment) []paymentDTO {
	out := make([]paymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentDTO(p))
	}
	return out
}
