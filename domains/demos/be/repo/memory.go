package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/demos/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]service.DemoRequest
	slugs map[string]uuid.UUID

	// Institutions records the registry rows created by approvals, keyed by institution id.
	Institutions map[uuid.UUID]service.NewInstitution
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:         make(map[uuid.UUID]service.DemoRequest),
		slugs:        make(map[string]uuid.UUID),
		Institutions: make(map[uuid.UUID]service.NewInstitution),
	}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(_ context.Context, d service.DemoRequest) (service.DemoRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[d.ID] = d
	return d, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.DemoRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return service.DemoRequest{}, service.ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.DemoRequest, 0, len(r.byID))
	for _, d := range r.byID {
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		items = append(items, d)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	page := max(opts.Page, 1)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))
	return service.ListResult{Requests: items[start:end], TotalItems: len(items)}, nil
}

func (r *MemoryRepository) Approve(_ context.Context, id uuid.UUID, a service.Approval) (service.DemoRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return service.DemoRequest{}, service.ErrNotFound
	}
	if d.Status != a.From {
		return service.DemoRequest{}, service.ErrStatusChanged
	}
	if _, taken := r.slugs[a.Institution.Slug]; taken {
		return service.DemoRequest{}, service.ErrConflictSlug
	}
	r.slugs[a.Institution.Slug] = a.Institution.ID
	r.Institutions[a.Institution.ID] = a.Institution

	instID, at := a.Institution.ID, a.At
	d.Status = service.StatusApproved
	d.InstitutionID = &instID
	d.ApprovedAt = &at
	d.ApprovedBy = a.ApprovedBy
	d.Notes = a.Institution.OnboardingNotes
	d.UpdatedAt = a.At
	r.byID[id] = d
	return d, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id uuid.UUID, ch service.StatusChange) (service.DemoRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return service.DemoRequest{}, service.ErrNotFound
	}
	if d.Status != ch.From {
		return service.DemoRequest{}, service.ErrStatusChanged
	}
	d.Status, d.Notes, d.UpdatedAt = ch.To, ch.Notes, ch.At
	r.byID[id] = d
	return d, nil
}
