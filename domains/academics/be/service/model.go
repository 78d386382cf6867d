package service

import (
	"time"

	"github.com/google/uuid"
)

// AcademicYear is a tenant-scoped period such as "2025/2026". Years of one institution never overlap
// and at most one is active.
type AcademicYear struct {
	ID            uuid.UUID
	InstitutionID uuid.UUID
	Code          string
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Term is one of up to three subdivisions of an academic year.
type Term struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	AcademicYearID uuid.UUID
	Number         int
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	CreatedAt      time.Time
}

type Faculty struct {
	ID            uuid.UUID
	InstitutionID uuid.UUID
	Name          string
	Code          string
	Description   string
	IsActive      bool
	CreatedAt     time.Time
}

// ProgramType is the qualification level of a program.
type ProgramType string

const (
	ProgramCertificate ProgramType = "certificate"
	ProgramDiploma     ProgramType = "diploma"
	ProgramDegree      ProgramType = "degree"
	ProgramMasters     ProgramType = "masters"
	ProgramPhD         ProgramType = "phd"
	ProgramShortCourse ProgramType = "short_course"
)

func parseProgramType(s string) (ProgramType, bool) {
	switch t := ProgramType(s); t {
	case ProgramCertificate, ProgramDiploma, ProgramDegree, ProgramMasters, ProgramPhD, ProgramShortCourse:
		return t, true
	}
	return "", false
}

type Program struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	FacultyID      uuid.UUID
	Name           string
	Code           string
	Type           ProgramType
	DurationMonths int
	Description    string
	IsActive       bool
	CreatedAt      time.Time
}

// YearInput creates an academic year. Activate makes it the single active year.
type YearInput struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Activate  bool
}

type TermInput struct {
	AcademicYearID uuid.UUID
	Number         int
	Name           string
	StartDate      time.Time
	EndDate        time.Time
}

type FacultyInput struct {
	Name        string
	Code        string
	Description string
}

type ProgramInput struct {
	FacultyID      uuid.UUID
	Name           string
	Code           string
	Type           string
	DurationMonths int
	Description    string
}
