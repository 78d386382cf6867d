package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// maxUploadBytes bounds an import upload.
const maxUploadBytes = 10 << 20

// Handler exposes student records and bulk import.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("students service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountScoped registers /students inside an institution scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	r.Route("/students", func(r chi.Router) {
		r.With(guard.Require(rbac.PermViewStudents)).Get("/", h.List)
		r.With(guard.Require(rbac.PermManageStudents)).Post("/", h.Create)
		r.With(guard.Require(rbac.PermImportStudents)).Post("/import", h.Import)
		r.With(guard.Require(rbac.PermImportStudents)).Get("/import/template", h.ImportTemplate)
		r.With(guard.Require(rbac.PermViewStudents)).Get("/{studentId}", h.Get)
		r.With(guard.Require(rbac.PermManageStudents)).Post("/{studentId}/deactivate", h.Deactivate)
	})
}

type studentDTO struct {
	ID              uuid.UUID           `json:"id"`
	ProgramID       *uuid.UUID          `json:"programId,omitempty"`
	AcademicYearID  *uuid.UUID          `json:"academicYearId,omitempty"`
	FullName        string              `json:"fullName"`
	AdmissionNumber string              `json:"admissionNumber"`
	Email           string              `json:"email,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	DateOfBirth     *openapi_types.Date `json:"dateOfBirth,omitempty"`
	Gender          string              `json:"gender,omitempty"`
	IsActive        bool                `json:"isActive"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type createRequest struct {
	FullName        string              `json:"fullName" validate:"required,max=200"`
	AdmissionNumber string              `json:"admissionNumber" validate:"required,max=50"`
	Email           string              `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string              `json:"phone,omitempty" validate:"max=30"`
	DateOfBirth     *openapi_types.Date `json:"dateOfBirth,omitempty"`
	Gender          string              `json:"gender,omitempty" validate:"max=20"`
	ProgramID       *uuid.UUID          `json:"programId,omitempty"`
	AcademicYearID  *uuid.UUID          `json:"academicYearId,omitempty"`
}

type importDTO struct {
	Created     int      `json:"created"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors"`
	ArchivePath string   `json:"archivePath,omitempty"`
}

// List implements GET /institutions/{institutionId}/students.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	opts := service.ListOptions{Page: page, PageSize: pageSize}
	if opts.ProgramID, err = httpx.QueryUUID(r, "programId"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if opts.AcademicYearID, err = httpx.QueryUUID(r, "academicYearId"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if opts.Active, err = httpx.QueryBool(r, "active"); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	search, err := httpx.QueryString(r, "search")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if search != nil {
		opts.Search = *search
	}

	result, err := h.svc.List(r.Context(), scope.InstitutionID, opts)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]studentDTO, 0, len(result.Students))
	for _, s := range result.Students {
		items = append(items, toDTO(s))
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, pageSize, result.TotalItems))
}

// Create implements POST /institutions/{institutionId}/students.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	in := service.CreateInput{
		FullName:        req.FullName,
		AdmissionNumber: req.AdmissionNumber,
		Email:           req.Email,
		Phone:           req.Phone,
		Gender:          req.Gender,
		ProgramID:       req.ProgramID,
		AcademicYearID:  req.AcademicYearID,
	}
	if req.DateOfBirth != nil {
		dob := req.DateOfBirth.Time
		in.DateOfBirth = &dob
	}
	st, err := h.svc.Create(r.Context(), scope.InstitutionID, in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(studentsPath(scope), st.ID), toDTO(st))
}

// Get implements GET /institutions/{institutionId}/students/{studentId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "studentId")
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

// Deactivate implements POST /institutions/{institutionId}/students/{studentId}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "studentId")
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

// Import implements POST /institutions/{institutionId}/students/import (multipart field "file").
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, r, h.logger, domainerr.Invalid("file", fmt.Sprintf("upload exceeds %d bytes", maxUploadBytes)))
			return
		}
		httpx.WriteError(w, r, h.logger, domainerr.Invalid("file", "expected a multipart upload with a file field"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, r, h.logger, domainerr.Invalid("file", "file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, r, h.logger, fmt.Errorf("read upload: %w", err))
		return
	}

	res, err := h.svc.Import(r.Context(), scope.InstitutionID, service.ImportInput{
		Filename:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Data:            data,
		InstitutionSlug: scope.Slug,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	httpx.JSON(w, http.StatusOK, importDTO{Created: res.Created, Skipped: res.Skipped, Errors: res.Errors, ArchivePath: res.ArchivePath})
}

// ImportTemplate implements GET /institutions/{institutionId}/students/import/template.
func (h *Handler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="students.csv"`)
	cw := csv.NewWriter(w)
	if err := cw.Write(service.ImportColumns); err != nil {
		h.logger.Warn("write import template", zap.Error(err))
		return
	}
	cw.Flush()
}

func studentsPath(scope tenant.Scope) string {
	return fmt.Sprintf("/api/v1/institutions/%s/students", scope.InstitutionID)
}

func toDTO(s service.Student) studentDTO {
	dto := studentDTO{
		ID:              s.ID,
		ProgramID:       s.ProgramID,
		AcademicYearID:  s.AcademicYearID,
		FullName:        s.FullName,
		AdmissionNumber: s.AdmissionNumber,
		Email:           s.Email,
		Phone:           s.Phone,
		Gender:          s.Gender,
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.DateOfBirth != nil {
		dto.DateOfBirth = &openapi_types.Date{Time: *s.DateOfBirth}
	}
	return dto
}
