package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/storage"
	"github.com/zenGate-Global/edupay-saas/platform/go/validation"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = domainerr.NotFound("student not found")
	ErrAdmissionTaken = domainerr.Conflict("a student with this admission number already exists")
)

type Student struct {
	ID              uuid.UUID
	InstitutionID   uuid.UUID
	ProgramID       *uuid.UUID
	AcademicYearID  *uuid.UUID
	FullName        string
	AdmissionNumber string
	Email           string
	Phone           string
	DateOfBirth     *time.Time
	Gender          string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateInput struct {
	FullName        string
	AdmissionNumber string
	Email           string
	Phone           string
	DateOfBirth     *time.Time
	Gender          string
	ProgramID       *uuid.UUID
	AcademicYearID  *uuid.UUID
}

// ListOptions captures filters and pagination. Search matches name or admission number.
type ListOptions struct {
	ProgramID      *uuid.UUID
	AcademicYearID *uuid.UUID
	Active         *bool
	Search         string
	Page           int
	PageSize       int
}

type ListResult struct {
	Students   []Student
	TotalItems int
}

// Repository persists students. Mutations write their audit entry in the same transaction.
type Repository interface {
	Create(ctx context.Context, s Student) (Student, error)
	Get(ctx context.Context, institutionID, studentID uuid.UUID) (Student, error)
	List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error)
	Deactivate(ctx context.Context, before Student) (Student, error)
	// Import inserts students, skipping admission numbers that already exist, and returns the
	// admission numbers actually inserted. One summary audit entry covers the batch.
	Import(ctx context.Context, institutionID uuid.UUID, students []Student, source string) ([]string, error)
}

// Catalog resolves the academic structure a student is placed in. Lookups are institution scoped.
type Catalog interface {
	GetProgram(ctx context.Context, institutionID, programID uuid.UUID) (academics.Program, error)
	GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (academics.AcademicYear, error)
	ProgramByCode(ctx context.Context, institutionID uuid.UUID, code string) (academics.Program, error)
	YearByCode(ctx context.Context, institutionID uuid.UUID, code string) (academics.AcademicYear, error)
}

// ImportRecorder counts imported and rejected rows.
type ImportRecorder interface {
	ImportRows(result string, n int)
}

type Service struct {
	repo     Repository
	catalog  Catalog
	archiver storage.Archiver
	envKey   string
	metrics  ImportRecorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithArchiver keeps a copy of every import upload under the institution prefix for envKey.
func WithArchiver(a storage.Archiver, envKey string) Option {
	return func(s *Service) {
		s.archiver = a
		s.envKey = envKey
	}
}

func WithMetrics(m ImportRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(repo Repository, catalog Catalog, opts ...Option) *Service {
	if repo == nil {
		panic("students repository is required")
	}
	if catalog == nil {
		panic("academic catalog is required")
	}
	s := &Service{repo: repo, catalog: catalog, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a student. Program and academic year, when given, must belong to the institution.
func (s *Service) Create(ctx context.Context, institutionID uuid.UUID, in CreateInput) (Student, error) {
	st, fields := s.build(institutionID, in)
	if err := fields.Err(); err != nil {
		return Student{}, err
	}
	if in.ProgramID != nil {
		if _, err := s.catalog.GetProgram(ctx, institutionID, *in.ProgramID); err != nil {
			return Student{}, err
		}
	}
	if in.AcademicYearID != nil {
		if _, err := s.catalog.GetYear(ctx, institutionID, *in.AcademicYearID); err != nil {
			return Student{}, err
		}
	}
	return s.repo.Create(ctx, st)
}

func (s *Service) build(institutionID uuid.UUID, in CreateInput) (Student, domainerr.FieldErrors) {
	fields := domainerr.FieldErrors{}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		fields.Add("fullName", "full name is required")
	}
	admission := strings.TrimSpace(in.AdmissionNumber)
	if admission == "" {
		fields.Add("admissionNumber", "admission number is required")
	} else if len(admission) > 50 {
		fields.Add("admissionNumber", "admission number must be at most 50 characters")
	}
	email, err := validation.OptionalEmail(in.Email)
	if err != nil {
		fields.Add("email", "invalid email address")
	}

	now := s.now().UTC()
	return Student{
		ID:              uuid.New(),
		InstitutionID:   institutionID,
		ProgramID:       in.ProgramID,
		AcademicYearID:  in.AcademicYearID,
		FullName:        name,
		AdmissionNumber: admission,
		Email:           email,
		Phone:           strings.TrimSpace(in.Phone),
		DateOfBirth:     in.DateOfBirth,
		Gender:          strings.TrimSpace(in.Gender),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, fields
}

func (s *Service) Get(ctx context.Context, institutionID, studentID uuid.UUID) (Student, error) {
	return s.repo.Get(ctx, institutionID, studentID)
}

func (s *Service) List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error) {
	opts.Search = strings.TrimSpace(opts.Search)
	return s.repo.List(ctx, institutionID, opts)
}

// Deactivate marks a student inactive. Deactivating an inactive student is a no-op.
func (s *Service) Deactivate(ctx context.Context, institutionID, studentID uuid.UUID) (Student, error) {
	st, err := s.repo.Get(ctx, institutionID, studentID)
	if err != nil {
		return Student{}, err
	}
	if !st.IsActive {
		return st, nil
	}
	return s.repo.Deactivate(ctx, st)
}

func rowError(row int, format string, args ...any) string {
	return fmt.Sprintf("Row %d: %s", row, fmt.Sprintf(format, args...))
}
