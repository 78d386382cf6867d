package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
)

// MemoryRepository is an in-memory implementation used by tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	staff   map[uuid.UUID]service.Staff
	users   map[string]uuid.UUID
	Written int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{staff: make(map[uuid.UUID]service.Staff), users: make(map[string]uuid.UUID)}
}

var _ service.Repository = (*MemoryRepository)(nil)

// UserID returns the user created or reused for email.
func (r *MemoryRepository) UserID(email string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[strings.ToLower(email)]
	return id, ok
}

func (r *MemoryRepository) FindMembership(_ context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.staff {
		if s.InstitutionID == institutionID && s.UserID == userID {
			return s.Membership(), nil
		}
	}
	return rbac.Membership{}, rbac.ErrNoMembership
}

func (r *MemoryRepository) Add(_ context.Context, m service.NewMember) (service.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := m.Staff
	key := strings.ToLower(s.Email)
	userID, ok := r.users[key]
	if !ok {
		userID = uuid.New()
		r.users[key] = userID
	}
	s.UserID = userID
	for _, existing := range r.staff {
		if existing.InstitutionID == s.InstitutionID && existing.UserID == userID {
			return service.Staff{}, service.ErrAlreadyMember
		}
	}
	r.staff[s.ID] = s
	r.Written++
	return s, nil
}

func (r *MemoryRepository) Get(_ context.Context, institutionID, staffID uuid.UUID) (service.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.staff[staffID]
	if !ok || s.InstitutionID != institutionID {
		return service.Staff{}, service.ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) List(_ context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Staff, 0)
	for _, s := range r.staff {
		if s.InstitutionID != institutionID {
			continue
		}
		if opts.Role != nil && s.Role != *opts.Role {
			continue
		}
		if opts.Active != nil && s.IsActive != *opts.Active {
			continue
		}
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].FullName < items[j].FullName })

	page, pageSize := max(opts.Page, 1), opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))
	return service.ListResult{Staff: items[start:end], TotalItems: len(items)}, nil
}

func (r *MemoryRepository) ChangeRole(_ context.Context, before service.Staff, role rbac.Role) (service.Staff, error) {
	return r.mutate(before, func(s *service.Staff) { s.Role = role })
}

func (r *MemoryRepository) Deactivate(_ context.Context, before service.Staff) (service.Staff, error) {
	return r.mutate(before, func(s *service.Staff) { s.IsActive = false })
}

func (r *MemoryRepository) mutate(before service.Staff, fn func(*service.Staff)) (service.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.staff[before.ID]
	if !ok || s.InstitutionID != before.InstitutionID {
		return service.Staff{}, service.ErrNotFound
	}
	fn(&s)
	s.UpdatedAt = time.Now().UTC()
	r.staff[s.ID] = s
	r.Written++
	return s, nil
}

func (r *MemoryRepository) EnsureAdmin(_ context.Context, s service.Staff) (service.Staff, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.staff {
		if existing.InstitutionID == s.InstitutionID && existing.UserID == s.UserID {
			return existing, false, nil
		}
	}
	r.staff[s.ID] = s
	r.users[strings.ToLower(s.Email)] = s.UserID
	r.Written++
	return s, true, nil
}
