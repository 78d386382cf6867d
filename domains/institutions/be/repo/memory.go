package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]service.Institution
	bySlug map[string]uuid.UUID
	logs   map[uuid.UUID][]service.StatusLog
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]service.Institution),
		bySlug: make(map[string]uuid.UUID),
		logs:   make(map[uuid.UUID][]service.StatusLog),
	}
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Institution, 0, len(r.byID))
	for _, inst := range r.byID {
		if opts.Status != nil && inst.Status != *opts.Status {
			continue
		}
		if opts.Search != nil {
			q := strings.ToLower(*opts.Search)
			if !strings.Contains(strings.ToLower(inst.Name), q) && !strings.Contains(inst.Slug, q) {
				continue
			}
		}
		items = append(items, inst)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))

	return service.ListResult{Institutions: items[start:end], TotalItems: len(items)}, nil
}

func (r *MemoryRepository) Create(_ context.Context, inst service.Institution) (service.Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[inst.Slug]; exists {
		return service.Institution{}, service.ErrConflictSlug
	}
	r.byID[inst.ID] = inst
	r.bySlug[inst.Slug] = inst.ID
	return inst, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Institution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.byID[id]
	if !ok {
		return service.Institution{}, service.ErrNotFound
	}
	return inst, nil
}

func (r *MemoryRepository) ApplyTransition(_ context.Context, id uuid.UUID, t service.Transition) (service.Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[id]
	if !ok {
		return service.Institution{}, service.ErrNotFound
	}
	if inst.Status != t.From {
		return service.Institution{}, service.ErrStatusChanged
	}

	at := t.At
	inst.Status = t.To
	inst.UpdatedAt = at
	switch t.Action {
	case service.ActionApprove:
		inst.ApprovedAt = &at
	case service.ActionReject:
		inst.RejectedAt = &at
	case service.ActionActivate, service.ActionReinstate:
		inst.ActivatedAt = &at
	case service.ActionSuspend:
		inst.SuspendedAt = &at
	case service.ActionDeactivate:
		inst.DeactivatedAt = &at
	}
	r.byID[id] = inst
	r.logs[id] = append([]service.StatusLog{{
		ID:             uuid.New(),
		InstitutionID:  id,
		Action:         t.Action.LogAction(),
		PreviousStatus: t.From,
		NewStatus:      t.To,
		Note:           t.Note,
		CreatedAt:      at,
	}}, r.logs[id]...)
	return inst, nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, _ service.Institution, after service.Institution) (service.Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[after.ID]; !ok {
		return service.Institution{}, service.ErrNotFound
	}
	r.byID[after.ID] = after
	return after, nil
}

func (r *MemoryRepository) StatusLog(_ context.Context, id uuid.UUID) ([]service.StatusLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]service.StatusLog(nil), r.logs[id]...), nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
