package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/messaging/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

type memStudent struct {
	institutionID uuid.UUID
	recipient     service.Recipient
	active        bool
	overdue       bool
}

// MemoryRepository is a simple in-memory implementation suitable for tests. Students are seeded with AddStudent.
type MemoryRepository struct {
	mu         sync.RWMutex
	students   map[uuid.UUID]memStudent
	messages   map[uuid.UUID]service.Message
	recipients map[uuid.UUID][]service.Recipient
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		students:   make(map[uuid.UUID]memStudent),
		messages:   make(map[uuid.UUID]service.Message),
		recipients: make(map[uuid.UUID][]service.Recipient),
	}
}

var _ service.Repository = (*MemoryRepository)(nil)

// AddStudent seeds a student the recipient resolution can see.
func (r *MemoryRepository) AddStudent(institutionID uuid.UUID, rec service.Recipient, active, overdue bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[rec.StudentID] = memStudent{institutionID: institutionID, recipient: rec, active: active, overdue: overdue}
}

func (r *MemoryRepository) Send(_ context.Context, m service.Message, studentIDs []uuid.UUID) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.Recipient
	switch m.Target {
	case service.TargetSpecific:
		for _, id := range studentIDs {
			st, ok := r.students[id]
			if !ok || st.institutionID != m.InstitutionID || !st.active {
				return service.Delivery{}, domainerr.Invalid("studentIds", "every student must be an active student of this institution")
			}
			out = append(out, st.recipient)
		}
	default:
		for _, st := range r.students {
			if st.institutionID != m.InstitutionID || !st.active {
				continue
			}
			if m.Target == service.TargetOverdue && !st.overdue {
				continue
			}
			out = append(out, st.recipient)
		}
	}
	if len(out) == 0 {
		return service.Delivery{}, domainerr.Invalid("target", "no students match the selected target")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })

	m.RecipientCount = len(out)
	r.messages[m.ID] = m
	r.recipients[m.ID] = out
	return service.Delivery{Message: m, Recipients: out}, nil
}

func (r *MemoryRepository) List(_ context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Message, 0)
	for _, m := range r.messages {
		if m.InstitutionID == institutionID {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SentAt.After(items[j].SentAt) })

	page := max(opts.Page, 1)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))
	return service.ListResult{Messages: items[start:end], TotalItems: len(items)}, nil
}

func (r *MemoryRepository) Get(_ context.Context, institutionID, id uuid.UUID) (service.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok || m.InstitutionID != institutionID {
		return service.Delivery{}, service.ErrNotFound
	}
	return service.Delivery{Message: m, Recipients: r.recipients[id]}, nil
}
