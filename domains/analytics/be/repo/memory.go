package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
)

type memStudent struct {
	institutionID uuid.UUID
	yearID        *uuid.UUID
}

// MemoryRepository is an in-memory implementation used by tests. The ledger side is fed through
// AddAssignment, AddStudent and AddStaff.
type MemoryRepository struct {
	mu          sync.RWMutex
	assignments []fees.Assignment
	students    []memStudent
	staff       map[uuid.UUID]int
	snapshots   []service.Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{staff: make(map[uuid.UUID]int)}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) AddAssignment(a fees.Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, a)
}

// AddStudent registers an active student, optionally placed in an academic year.
func (r *MemoryRepository) AddStudent(institutionID uuid.UUID, yearID *uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = append(r.students, memStudent{institutionID: institutionID, yearID: yearID})
}

func (r *MemoryRepository) AddStaff(institutionID uuid.UUID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff[institutionID] += n
}

func (r *MemoryRepository) Assignments(_ context.Context, institutionID uuid.UUID, yearID *uuid.UUID) ([]fees.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []fees.Assignment
	for _, a := range r.assignments {
		if a.InstitutionID == institutionID && (yearID == nil || a.AcademicYearID == *yearID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountStudents(_ context.Context, institutionID uuid.UUID, yearID *uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.students {
		if s.institutionID != institutionID {
			continue
		}
		if yearID != nil && (s.yearID == nil || *s.yearID != *yearID) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *MemoryRepository) CountStaff(_ context.Context, institutionID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.staff[institutionID], nil
}

func (r *MemoryRepository) CreateSnapshot(_ context.Context, s service.Snapshot) (service.Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.snapshots {
		if existing.InstitutionID == s.InstitutionID && existing.AcademicYearID == s.AcademicYearID && existing.Date.Equal(s.Date) {
			return existing, false, nil
		}
	}
	r.snapshots = append(r.snapshots, s)
	return s, true, nil
}

func (r *MemoryRepository) ListSnapshots(_ context.Context, institutionID, yearID uuid.UUID) ([]service.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Snapshot
	for _, s := range r.snapshots {
		if s.InstitutionID == institutionID && s.AcademicYearID == yearID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
