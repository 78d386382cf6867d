package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/students/be/service"
)

// MemoryRepository is an in-memory implementation used by tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	students map[uuid.UUID]service.Student
	// Imports counts summary audit entries a Postgres repository would have written.
	Imports int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{students: make(map[uuid.UUID]service.Student)}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) admissionTakenLocked(institutionID uuid.UUID, admission string) bool {
	for _, s := range r.students {
		if s.InstitutionID == institutionID && s.AdmissionNumber == admission {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(_ context.Context, s service.Student) (service.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.admissionTakenLocked(s.InstitutionID, s.AdmissionNumber) {
		return service.Student{}, service.ErrAdmissionTaken
	}
	r.students[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) Get(_ context.Context, institutionID, studentID uuid.UUID) (service.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.students[studentID]
	if !ok || s.InstitutionID != institutionID {
		return service.Student{}, service.ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) List(_ context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(opts.Search)
	var all []service.Student
	for _, s := range r.students {
		switch {
		case s.InstitutionID != institutionID:
			continue
		case opts.ProgramID != nil && (s.ProgramID == nil || *s.ProgramID != *opts.ProgramID):
			continue
		case opts.AcademicYearID != nil && (s.AcademicYearID == nil || *s.AcademicYearID != *opts.AcademicYearID):
			continue
		case opts.Active != nil && s.IsActive != *opts.Active:
			continue
		case search != "" && !strings.Contains(strings.ToLower(s.FullName), search) &&
			!strings.Contains(strings.ToLower(s.AdmissionNumber), search):
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FullName != all[j].FullName {
			return all[i].FullName < all[j].FullName
		}
		return all[i].AdmissionNumber < all[j].AdmissionNumber
	})

	page, size := opts.Page, opts.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return service.ListResult{Students: all[start:end], TotalItems: len(all)}, nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, before service.Student) (service.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[before.ID]
	if !ok || s.InstitutionID != before.InstitutionID {
		return service.Student{}, service.ErrNotFound
	}
	s.IsActive = false
	r.students[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) Import(_ context.Context, institutionID uuid.UUID, students []service.Student, _ string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []string
	for _, s := range students {
		if r.admissionTakenLocked(institutionID, s.AdmissionNumber) {
			continue
		}
		r.students[s.ID] = s
		inserted = append(inserted, s.AdmissionNumber)
	}
	r.Imports++
	return inserted, nil
}
