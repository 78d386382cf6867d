package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
)

// MemoryRepository is an in-memory implementation used by tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	structures  map[uuid.UUID]service.Structure
	assignments map[uuid.UUID]service.Assignment
	payments    []service.Payment
	// Sweeps counts summary audit entries a Postgres repository would have written.
	Sweeps int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		structures:  make(map[uuid.UUID]service.Structure),
		assignments: make(map[uuid.UUID]service.Assignment),
	}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) CreateStructure(_ context.Context, s service.Structure) (service.Structure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version := 0
	for _, existing := range r.structures {
		if existing.InstitutionID == s.InstitutionID && existing.Version > version {
			version = existing.Version
		}
	}
	s.Version = version + 1
	s.Items = append([]service.Item(nil), s.Items...)
	r.structures[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) GetStructure(_ context.Context, institutionID, structureID uuid.UUID) (service.Structure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.structures[structureID]
	if !ok || s.InstitutionID != institutionID {
		return service.Structure{}, service.ErrStructureNotFound
	}
	return s, nil
}

func (r *MemoryRepository) ListStructures(_ context.Context, institutionID uuid.UUID, active *bool) ([]service.Structure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Structure
	for _, s := range r.structures {
		if s.InstitutionID != institutionID || (active != nil && s.IsActive != *active) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *MemoryRepository) AddItem(_ context.Context, institutionID uuid.UUID, item service.Item) (service.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.structures[item.StructureID]
	if !ok || s.InstitutionID != institutionID {
		return service.Item{}, service.ErrStructureNotFound
	}
	s.Items = append(append([]service.Item(nil), s.Items...), item)
	s.UpdatedAt = item.CreatedAt
	r.structures[s.ID] = s
	return item, nil
}

func (r *MemoryRepository) SetStructureActive(_ context.Context, before service.Structure, active bool) (service.Structure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.structures[before.ID]
	if !ok || s.InstitutionID != before.InstitutionID {
		return service.Structure{}, service.ErrStructureNotFound
	}
	s.IsActive = active
	s.UpdatedAt = time.Now().UTC()
	r.structures[s.ID] = s
	return s, nil
}

func sameTerm(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *MemoryRepository) CreateAssignment(_ context.Context, a service.Assignment) (service.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.assignments {
		if existing.StudentID == a.StudentID && existing.FeeStructureID == a.FeeStructureID &&
			existing.AcademicYearID == a.AcademicYearID && sameTerm(existing.TermID, a.TermID) {
			return service.Assignment{}, service.ErrAlreadyAssigned
		}
	}
	r.assignments[a.ID] = a
	return a, nil
}

func (r *MemoryRepository) GetAssignment(_ context.Context, institutionID, assignmentID uuid.UUID) (service.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[assignmentID]
	if !ok || a.InstitutionID != institutionID {
		return service.Assignment{}, service.ErrAssignmentNotFound
	}
	return a, nil
}

func (r *MemoryRepository) ListAssignments(_ context.Context, institutionID uuid.UUID, f service.AssignmentFilter) (service.AssignmentPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []service.Assignment
	for _, a := range r.assignments {
		switch {
		case a.InstitutionID != institutionID,
			f.StudentID != nil && a.StudentID != *f.StudentID,
			f.AcademicYearID != nil && a.AcademicYearID != *f.AcademicYearID,
			f.TermID != nil && (a.TermID == nil || *a.TermID != *f.TermID),
			f.Overdue != nil && a.IsOverdue != *f.Overdue:
			continue
		}
		matched = append(matched, a)
	}
	sortAssignments(matched)
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+size, len(matched))
	return service.AssignmentPage{Assignments: matched[start:end], TotalItems: len(matched)}, nil
}

func sortAssignments(items []service.Assignment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

func (r *MemoryRepository) StudentAssignments(_ context.Context, institutionID, studentID uuid.UUID) ([]service.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Assignment
	for _, a := range r.assignments {
		if a.InstitutionID == institutionID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (r *MemoryRepository) AdjustAssignment(_ context.Context, before service.Assignment, discount, penalty decimal.Decimal) (service.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[before.ID]
	if !ok || a.InstitutionID != before.InstitutionID {
		return service.Assignment{}, service.ErrAssignmentNotFound
	}
	a.DiscountAmount, a.PenaltyAmount = discount, penalty
	a.UpdatedAt = time.Now().UTC()
	r.assignments[a.ID] = a
	return a, nil
}

func (r *MemoryRepository) RecordPayment(_ context.Context, p service.Payment) (service.Payment, service.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[p.AssignmentID]
	if !ok || a.InstitutionID != p.InstitutionID {
		return service.Payment{}, service.Assignment{}, service.ErrAssignmentNotFound
	}
	a.AmountPaid = a.AmountPaid.Add(p.Amount)
	a.UpdatedAt = p.CreatedAt
	r.assignments[a.ID] = a
	r.payments = append(r.payments, p)
	return p, a, nil
}

func (r *MemoryRepository) ListPayments(_ context.Context, institutionID, assignmentID uuid.UUID) ([]service.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Payment
	for _, p := range r.payments {
		if p.InstitutionID == institutionID && p.AssignmentID == assignmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) StudentPayments(_ context.Context, institutionID, studentID uuid.UUID) ([]service.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Payment
	for _, p := range r.payments {
		if a, ok := r.assignments[p.AssignmentID]; ok && p.InstitutionID == institutionID && a.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkOverdue(_ context.Context, before service.Assignment) (service.Assignment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[before.ID]
	if !ok || a.InstitutionID != before.InstitutionID {
		return service.Assignment{}, false, service.ErrAssignmentNotFound
	}
	if a.IsOverdue {
		return a, false, nil
	}
	a.IsOverdue = true
	r.assignments[a.ID] = a
	return a, true, nil
}

func (r *MemoryRepository) MarkOverdueSweep(_ context.Context, institutionID uuid.UUID, today time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for id, a := range r.assignments {
		if a.InstitutionID != institutionID || !a.ShouldMarkOverdue(today) {
			continue
		}
		a.IsOverdue = true
		r.assignments[id] = a
		marked++
	}
	if marked > 0 {
		r.Sweeps++
	}
	return marked, nil
}
