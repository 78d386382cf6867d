package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

// Errors returned by the service layer.
var (
	ErrYearNotFound    = domainerr.NotFound("academic year not found")
	ErrNoActiveYear    = domainerr.NotFound("the institution has no active academic year")
	ErrTermNotFound    = domainerr.NotFound("term not found")
	ErrFacultyNotFound = domainerr.NotFound("faculty not found")
	ErrProgramNotFound = domainerr.NotFound("program not found")

	ErrYearCodeTaken   = domainerr.Conflict("an academic year with this code already exists")
	ErrYearOverlap     = domainerr.Conflict("academic year dates overlap an existing year")
	ErrTermNumberTaken = domainerr.Conflict("this term number already exists for the academic year")
	ErrFacultyCodeUsed = domainerr.Conflict("a faculty with this code already exists")
	ErrProgramCodeUsed = domainerr.Conflict("a program with this code already exists")
)

// Repository persists the academic structure. Every method is scoped by institution and
// writes its audit entry in the same transaction as the change.
type Repository interface {
	CreateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
	ActivateYear(ctx context.Context, institutionID, yearID uuid.UUID) (AcademicYear, error)
	GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (AcademicYear, error)
	ActiveYear(ctx context.Context, institutionID uuid.UUID) (AcademicYear, error)
	YearByCode(ctx context.Context, institutionID uuid.UUID, code string) (AcademicYear, error)
	ListYears(ctx context.Context, institutionID uuid.UUID) ([]AcademicYear, error)

	CreateTerm(ctx context.Context, t Term) (Term, error)
	GetTerm(ctx context.Context, institutionID, termID uuid.UUID) (Term, error)
	ListTerms(ctx context.Context, institutionID, yearID uuid.UUID) ([]Term, error)

	CreateFaculty(ctx context.Context, f Faculty) (Faculty, error)
	GetFaculty(ctx context.Context, institutionID, facultyID uuid.UUID) (Faculty, error)
	ListFaculties(ctx context.Context, institutionID uuid.UUID) ([]Faculty, error)

	CreateProgram(ctx context.Context, p Program) (Program, error)
	GetProgram(ctx context.Context, institutionID, programID uuid.UUID) (Program, error)
	ProgramByCode(ctx context.Context, institutionID uuid.UUID, code string) (Program, error)
	ListPrograms(ctx context.Context, institutionID uuid.UUID, facultyID *uuid.UUID) ([]Program, error)
}

// Service manages academic years, terms, faculties and programs.
type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	if repo == nil {
		panic("academics repository is required")
	}
	return &Service{repo: repo, now: time.Now}
}

// CreateYear adds an academic year; overlapping dates or a reused code are Conflict errors.
func (s *Service) CreateYear(ctx context.Context, institutionID uuid.UUID, in YearInput) (AcademicYear, error) {
	fields := domainerr.FieldErrors{}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		fields.Add("code", "code is required")
	} else if len(code) > 20 {
		fields.Add("code", "code must be at most 20 characters")
	}
	checkRange(fields, in.StartDate, in.EndDate)
	if err := fields.Err(); err != nil {
		return AcademicYear{}, err
	}

	now := s.now().UTC()
	return s.repo.CreateYear(ctx, AcademicYear{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		Code:          code,
		StartDate:     dateOnly(in.StartDate),
		EndDate:       dateOnly(in.EndDate),
		IsActive:      in.Activate,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// ActivateYear makes yearID the institution's only active year.
func (s *Service) ActivateYear(ctx context.Context, institutionID, yearID uuid.UUID) (AcademicYear, error) {
	y, err := s.repo.GetYear(ctx, institutionID, yearID)
	if err != nil {
		return AcademicYear{}, err
	}
	if y.IsActive {
		return y, nil
	}
	return s.repo.ActivateYear(ctx, institutionID, yearID)
}

func (s *Service) GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (AcademicYear, error) {
	return s.repo.GetYear(ctx, institutionID, yearID)
}

func (s *Service) ActiveYear(ctx context.Context, institutionID uuid.UUID) (AcademicYear, error) {
	return s.repo.ActiveYear(ctx, institutionID)
}

func (s *Service) YearByCode(ctx context.Context, institutionID uuid.UUID, code string) (AcademicYear, error) {
	return s.repo.YearByCode(ctx, institutionID, strings.TrimSpace(code))
}

func (s *Service) ListYears(ctx context.Context, institutionID uuid.UUID) ([]AcademicYear, error) {
	return s.repo.ListYears(ctx, institutionID)
}

// CreateTerm adds a term inside an academic year of the same institution.
func (s *Service) CreateTerm(ctx context.Context, institutionID uuid.UUID, in TermInput) (Term, error) {
	fields := domainerr.FieldErrors{}
	if in.Number < 1 || in.Number > 3 {
		fields.Add("number", "term number must be 1, 2 or 3")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fmt.Sprintf("Term %d", in.Number)
	}
	checkRange(fields, in.StartDate, in.EndDate)
	if err := fields.Err(); err != nil {
		return Term{}, err
	}

	year, err := s.repo.GetYear(ctx, institutionID, in.AcademicYearID)
	if err != nil {
		return Term{}, err
	}
	start, end := dateOnly(in.StartDate), dateOnly(in.EndDate)
	if start.Before(year.StartDate) || end.After(year.EndDate) {
		return Term{}, domainerr.Invalid("startDate", fmt.Sprintf("term must fall within academic year %s", year.Code))
	}

	return s.repo.CreateTerm(ctx, Term{
		ID:             uuid.New(),
		InstitutionID:  institutionID,
		AcademicYearID: year.ID,
		Number:         in.Number,
		Name:           name,
		StartDate:      start,
		EndDate:        end,
		CreatedAt:      s.now().UTC(),
	})
}

func (s *Service) GetTerm(ctx context.Context, institutionID, termID uuid.UUID) (Term, error) {
	return s.repo.GetTerm(ctx, institutionID, termID)
}

func (s *Service) ListTerms(ctx context.Context, institutionID, yearID uuid.UUID) ([]Term, error) {
	if _, err := s.repo.GetYear(ctx, institutionID, yearID); err != nil {
		return nil, err
	}
	return s.repo.ListTerms(ctx, institutionID, yearID)
}

func (s *Service) CreateFaculty(ctx context.Context, institutionID uuid.UUID, in FacultyInput) (Faculty, error) {
	fields := domainerr.FieldErrors{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields.Add("name", "name is required")
	}
	code := normalizeCode(in.Code)
	if code == "" {
		fields.Add("code", "code is required")
	}
	if err := fields.Err(); err != nil {
		return Faculty{}, err
	}
	return s.repo.CreateFaculty(ctx, Faculty{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		Name:          name,
		Code:          code,
		Description:   strings.TrimSpace(in.Description),
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	})
}

func (s *Service) ListFaculties(ctx context.Context, institutionID uuid.UUID) ([]Faculty, error) {
	return s.repo.ListFaculties(ctx, institutionID)
}

// CreateProgram adds a program under a faculty. The faculty is loaded through the institution
// so a faculty id of another tenant is reported as not found.
func (s *Service) CreateProgram(ctx context.Context, institutionID uuid.UUID, in ProgramInput) (Program, error) {
	fields := domainerr.FieldErrors{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields.Add("name", "name is required")
	}
	code := normalizeCode(in.Code)
	if code == "" {
		fields.Add("code", "code is required")
	}
	kind, ok := parseProgramType(strings.TrimSpace(in.Type))
	if !ok {
		fields.Add("type", fmt.Sprintf("unknown program type %q", in.Type))
	}
	if in.DurationMonths < 1 {
		fields.Add("durationMonths", "duration must be at least one month")
	}
	if in.FacultyID == uuid.Nil {
		fields.Add("facultyId", "facultyId is required")
	}
	if err := fields.Err(); err != nil {
		return Program{}, err
	}

	faculty, err := s.repo.GetFaculty(ctx, institutionID, in.FacultyID)
	if err != nil {
		return Program{}, err
	}

	return s.repo.CreateProgram(ctx, Program{
		ID:             uuid.New(),
		InstitutionID:  institutionID,
		FacultyID:      faculty.ID,
		Name:           name,
		Code:           code,
		Type:           kind,
		DurationMonths: in.DurationMonths,
		Description:    strings.TrimSpace(in.Description),
		IsActive:       true,
		CreatedAt:      s.now().UTC(),
	})
}

func (s *Service) GetProgram(ctx context.Context, institutionID, programID uuid.UUID) (Program, error) {
	return s.repo.GetProgram(ctx, institutionID, programID)
}

func (s *Service) ProgramByCode(ctx context.Context, institutionID uuid.UUID, code string) (Program, error) {
	return s.repo.ProgramByCode(ctx, institutionID, normalizeCode(code))
}

func (s *Service) ListPrograms(ctx context.Context, institutionID uuid.UUID, facultyID *uuid.UUID) ([]Program, error) {
	return s.repo.ListPrograms(ctx, institutionID, facultyID)
}

func checkRange(fields domainerr.FieldErrors, start, end time.Time) {
	if start.IsZero() {
		fields.Add("startDate", "startDate is required")
	}
	if end.IsZero() {
		fields.Add("endDate", "endDate is required")
	}
	if !start.IsZero() && !end.IsZero() && !dateOnly(start).Before(dateOnly(end)) {
		fields.Add("endDate", "endDate must be after startDate")
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
