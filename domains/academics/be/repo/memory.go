package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
)

// MemoryRepository is an in-memory implementation used by tests. It enforces the same
// uniqueness and overlap rules as the database constraints.
type MemoryRepository struct {
	mu        sync.RWMutex
	years     map[uuid.UUID]service.AcademicYear
	terms     map[uuid.UUID]service.Term
	faculties map[uuid.UUID]service.Faculty
	programs  map[uuid.UUID]service.Program
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		years:     make(map[uuid.UUID]service.AcademicYear),
		terms:     make(map[uuid.UUID]service.Term),
		faculties: make(map[uuid.UUID]service.Faculty),
		programs:  make(map[uuid.UUID]service.Program),
	}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) CreateYear(_ context.Context, y service.AcademicYear) (service.AcademicYear, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.years {
		if other.InstitutionID != y.InstitutionID {
			continue
		}
		if other.Code == y.Code {
			return service.AcademicYear{}, service.ErrYearCodeTaken
		}
		if y.StartDate.Before(other.EndDate) && other.StartDate.Before(y.EndDate) {
			return service.AcademicYear{}, service.ErrYearOverlap
		}
	}
	if y.IsActive {
		r.deactivateLocked(y.InstitutionID)
	}
	r.years[y.ID] = y
	return y, nil
}

func (r *MemoryRepository) deactivateLocked(institutionID uuid.UUID) {
	for id, y := range r.years {
		if y.InstitutionID == institutionID && y.IsActive {
			y.IsActive = false
			r.years[id] = y
		}
	}
}

func (r *MemoryRepository) ActivateYear(_ context.Context, institutionID, yearID uuid.UUID) (service.AcademicYear, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	y, ok := r.years[yearID]
	if !ok || y.InstitutionID != institutionID {
		return service.AcademicYear{}, service.ErrYearNotFound
	}
	r.deactivateLocked(institutionID)
	y.IsActive = true
	r.years[yearID] = y
	return y, nil
}

func (r *MemoryRepository) GetYear(_ context.Context, institutionID, yearID uuid.UUID) (service.AcademicYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	y, ok := r.years[yearID]
	if !ok || y.InstitutionID != institutionID {
		return service.AcademicYear{}, service.ErrYearNotFound
	}
	return y, nil
}

func (r *MemoryRepository) ActiveYear(_ context.Context, institutionID uuid.UUID) (service.AcademicYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, y := range r.years {
		if y.InstitutionID == institutionID && y.IsActive {
			return y, nil
		}
	}
	return service.AcademicYear{}, service.ErrNoActiveYear
}

func (r *MemoryRepository) YearByCode(_ context.Context, institutionID uuid.UUID, code string) (service.AcademicYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, y := range r.years {
		if y.InstitutionID == institutionID && y.Code == code {
			return y, nil
		}
	}
	return service.AcademicYear{}, service.ErrYearNotFound
}

func (r *MemoryRepository) ListYears(_ context.Context, institutionID uuid.UUID) ([]service.AcademicYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []service.AcademicYear{}
	for _, y := range r.years {
		if y.InstitutionID == institutionID {
			out = append(out, y)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (r *MemoryRepository) CreateTerm(_ context.Context, t service.Term) (service.Term, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if y, ok := r.years[t.AcademicYearID]; !ok || y.InstitutionID != t.InstitutionID {
		return service.Term{}, service.ErrYearNotFound
	}
	for _, other := range r.terms {
		if other.AcademicYearID == t.AcademicYearID && other.Number == t.Number {
			return service.Term{}, service.ErrTermNumberTaken
		}
	}
	r.terms[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) GetTerm(_ context.Context, institutionID, termID uuid.UUID) (service.Term, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.terms[termID]
	if !ok || t.InstitutionID != institutionID {
		return service.Term{}, service.ErrTermNotFound
	}
	return t, nil
}

func (r *MemoryRepository) ListTerms(_ context.Context, institutionID, yearID uuid.UUID) ([]service.Term, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []service.Term{}
	for _, t := range r.terms {
		if t.InstitutionID == institutionID && t.AcademicYearID == yearID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *MemoryRepository) CreateFaculty(_ context.Context, f service.Faculty) (service.Faculty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.faculties {
		if other.InstitutionID == f.InstitutionID && other.Code == f.Code {
			return service.Faculty{}, service.ErrFacultyCodeUsed
		}
	}
	r.faculties[f.ID] = f
	return f, nil
}

func (r *MemoryRepository) GetFaculty(_ context.Context, institutionID, facultyID uuid.UUID) (service.Faculty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.faculties[facultyID]
	if !ok || f.InstitutionID != institutionID {
		return service.Faculty{}, service.ErrFacultyNotFound
	}
	return f, nil
}

func (r *MemoryRepository) ListFaculties(_ context.Context, institutionID uuid.UUID) ([]service.Faculty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []service.Faculty{}
	for _, f := range r.faculties {
		if f.InstitutionID == institutionID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) CreateProgram(_ context.Context, p service.Program) (service.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faculties[p.FacultyID]; !ok || f.InstitutionID != p.InstitutionID {
		return service.Program{}, service.ErrFacultyNotFound
	}
	for _, other := range r.programs {
		if other.InstitutionID == p.InstitutionID && other.Code == p.Code {
			return service.Program{}, service.ErrProgramCodeUsed
		}
	}
	r.programs[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) GetProgram(_ context.Context, institutionID, programID uuid.UUID) (service.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[programID]
	if !ok || p.InstitutionID != institutionID {
		return service.Program{}, service.ErrProgramNotFound
	}
	return p, nil
}

func (r *MemoryRepository) ProgramByCode(_ context.Context, institutionID uuid.UUID, code string) (service.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.programs {
		if p.InstitutionID == institutionID && p.Code == code {
			return p, nil
		}
	}
	return service.Program{}, service.ErrProgramNotFound
}

func (r *MemoryRepository) ListPrograms(_ context.Context, institutionID uuid.UUID, facultyID *uuid.UUID) ([]service.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []service.Program{}
	for _, p := range r.programs {
		if p.InstitutionID != institutionID || (facultyID != nil && p.FacultyID != *facultyID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
