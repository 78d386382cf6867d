package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// Handler exposes the academic calendar and catalog of an institution.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("academics service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// MountScoped registers academic years, terms, faculties and programs inside an institution scope.
func (h *Handler) MountScoped(r chi.Router, guard *tenantmw.Guard) {
	view := guard.Require(rbac.PermViewAcademicStructure)
	manage := guard.Require(rbac.PermManageAcademicStructure)

	r.Route("/academic-years", func(r chi.Router) {
		r.With(view).Get("/", h.ListYears)
		r.With(manage).Post("/", h.CreateYear)
		r.With(view).Get("/active", h.ActiveYear)
		r.With(view).Get("/{yearId}", h.GetYear)
		r.With(manage).Post("/{yearId}/activate", h.ActivateYear)
		r.With(view).Get("/{yearId}/terms", h.ListTerms)
		r.With(manage).Post("/{yearId}/terms", h.CreateTerm)
	})
	r.Route("/faculties", func(r chi.Router) {
		r.With(view).Get("/", h.ListFaculties)
		r.With(manage).Post("/", h.CreateFaculty)
	})
	r.Route("/programs", func(r chi.Router) {
		r.With(view).Get("/", h.ListPrograms)
		r.With(guard.Require(rbac.PermManagePrograms)).Post("/", h.CreateProgram)
		r.With(view).Get("/{programId}", h.GetProgram)
	})
}

type yearDTO struct {
	ID        uuid.UUID          `json:"id"`
	Code      string             `json:"code"`
	StartDate openapi_types.Date `json:"startDate"`
	EndDate   openapi_types.Date `json:"endDate"`
	IsActive  bool               `json:"isActive"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type termDTO struct {
	ID             uuid.UUID          `json:"id"`
	AcademicYearID uuid.UUID          `json:"academicYearId"`
	Number         int                `json:"number"`
	Name           string             `json:"name"`
	StartDate      openapi_types.Date `json:"startDate"`
	EndDate        openapi_types.Date `json:"endDate"`
}

type facultyDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
}

type programDTO struct {
	ID             uuid.UUID `json:"id"`
	FacultyID      uuid.UUID `json:"facultyId"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Type           string    `json:"type"`
	DurationMonths int       `json:"durationMonths"`
	Description    string    `json:"description,omitempty"`
	IsActive       bool      `json:"isActive"`
}

type yearRequest struct {
	Code      string             `json:"code" validate:"required,max=20"`
	StartDate openapi_types.Date `json:"startDate"`
	EndDate   openapi_types.Date `json:"endDate"`
	Activate  bool               `json:"activate"`
}

type termRequest struct {
	Number    int                `json:"number" validate:"required,min=1,max=3"`
	Name      string             `json:"name,omitempty" validate:"max=100"`
	StartDate openapi_types.Date `json:"startDate"`
	EndDate   openapi_types.Date `json:"endDate"`
}

type facultyRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Code        string `json:"code" validate:"required,max=20"`
	Description string `json:"description,omitempty"`
}

type programRequest struct {
	FacultyID      uuid.UUID `json:"facultyId" validate:"required"`
	Name           string    `json:"name" validate:"required,max=200"`
	Code           string    `json:"code" validate:"required,max=20"`
	Type           string    `json:"type" validate:"required"`
	DurationMonths int       `json:"durationMonths" validate:"required,min=1"`
	Description    string    `json:"description,omitempty"`
}

// ListYears implements GET /institutions/{institutionId}/academic-years.
func (h *Handler) ListYears(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	years, err := h.svc.ListYears(r.Context(), scope.InstitutionID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]yearDTO, 0, len(years))
	for _, y := range years {
		items = append(items, toYearDTO(y))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateYear implements POST /institutions/{institutionId}/academic-years.
func (h *Handler) CreateYear(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req yearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	y, err := h.svc.CreateYear(r.Context(), scope.InstitutionID, service.YearInput{
		Code:      req.Code,
		StartDate: req.StartDate.Time,
		EndDate:   req.EndDate.Time,
		Activate:  req.Activate,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "academic-years"), y.ID), toYearDTO(y))
}

// ActiveYear implements GET /institutions/{institutionId}/academic-years/active.
func (h *Handler) ActiveYear(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	y, err := h.svc.ActiveYear(r.Context(), scope.InstitutionID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearDTO(y))
}

// GetYear implements GET /institutions/{institutionId}/academic-years/{yearId}.
func (h *Handler) GetYear(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "yearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	y, err := h.svc.GetYear(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearDTO(y))
}

// ActivateYear implements POST /institutions/{institutionId}/academic-years/{yearId}/activate.
func (h *Handler) ActivateYear(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "yearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	y, err := h.svc.ActivateYear(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearDTO(y))
}

// ListTerms implements GET /institutions/{institutionId}/academic-years/{yearId}/terms.
func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "yearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	terms, err := h.svc.ListTerms(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]termDTO, 0, len(terms))
	for _, t := range terms {
		items = append(items, toTermDTO(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateTerm implements POST /institutions/{institutionId}/academic-years/{yearId}/terms.
func (h *Handler) CreateTerm(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	yearID, err := httpx.PathUUID(r, "yearId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req termRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.svc.CreateTerm(r.Context(), scope.InstitutionID, service.TermInput{
		AcademicYearID: yearID,
		Number:         req.Number,
		Name:           req.Name,
		StartDate:      req.StartDate.Time,
		EndDate:        req.EndDate.Time,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "academic-years/"+yearID.String()+"/terms"), t.ID), toTermDTO(t))
}

// ListFaculties implements GET /institutions/{institutionId}/faculties.
func (h *Handler) ListFaculties(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	faculties, err := h.svc.ListFaculties(r.Context(), scope.InstitutionID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]facultyDTO, 0, len(faculties))
	for _, f := range faculties {
		items = append(items, toFacultyDTO(f))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateFaculty implements POST /institutions/{institutionId}/faculties.
func (h *Handler) CreateFaculty(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req facultyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	f, err := h.svc.CreateFaculty(r.Context(), scope.InstitutionID, service.FacultyInput{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "faculties"), f.ID), toFacultyDTO(f))
}

// ListPrograms implements GET /institutions/{institutionId}/programs?facultyId=.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	facultyID, err := httpx.QueryUUID(r, "facultyId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	programs, err := h.svc.ListPrograms(r.Context(), scope.InstitutionID, facultyID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	items := make([]programDTO, 0, len(programs))
	for _, p := range programs {
		items = append(items, toProgramDTO(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateProgram implements POST /institutions/{institutionId}/programs.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	var req programRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.CreateProgram(r.Context(), scope.InstitutionID, service.ProgramInput{
		FacultyID:      req.FacultyID,
		Name:           req.Name,
		Code:           req.Code,
		Type:           req.Type,
		DurationMonths: req.DurationMonths,
		Description:    req.Description,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location(scopedPath(scope, "programs"), p.ID), toProgramDTO(p))
}

// GetProgram implements GET /institutions/{institutionId}/programs/{programId}.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	scope, _ := tenant.FromContext(r.Context())
	id, err := httpx.PathUUID(r, "programId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.GetProgram(r.Context(), scope.InstitutionID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProgramDTO(p))
}

func scopedPath(scope tenant.Scope, resource string) string {
	return fmt.Sprintf("/api/v1/institutions/%s/%s", scope.InstitutionID, resource)
}

func toYearDTO(y service.AcademicYear) yearDTO {
	return yearDTO{
		ID:        y.ID,
		Code:      y.Code,
		StartDate: openapi_types.Date{Time: y.StartDate},
		EndDate:   openapi_types.Date{Time: y.EndDate},
		IsActive:  y.IsActive,
		CreatedAt: y.CreatedAt,
		UpdatedAt: y.UpdatedAt,
	}
}

func toTermDTO(t service.Term) termDTO {
	return termDTO{
		ID:             t.ID,
		AcademicYearID: t.AcademicYearID,
		Number:         t.Number,
		Name:           t.Name,
		StartDate:      openapi_types.Date{Time: t.StartDate},
		EndDate:        openapi_types.Date{Time: t.EndDate},
	}
}

func toFacultyDTO(f service.Faculty) facultyDTO {
	return facultyDTO{ID: f.ID, Name: f.Name, Code: f.Code, Description: f.Description, IsActive: f.IsActive}
}

func toProgramDTO(p service.Program) programDTO {
	return programDTO{
		ID:             p.ID,
		FacultyID:      p.FacultyID,
		Name:           p.Name,
		Code:           p.Code,
		Type:           string(p.Type),
		DurationMonths: p.DurationMonths,
		Description:    p.Description,
		IsActive:       p.IsActive,
	}
}
