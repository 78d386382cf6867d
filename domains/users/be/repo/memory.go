package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

// MemoryRepository is an in-memory implementation used by tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]service.User
	memberships map[uuid.UUID][]service.Membership
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:        make(map[uuid.UUID]service.User),
		memberships: make(map[uuid.UUID][]service.Membership),
	}
}

var _ service.Repository = (*MemoryRepository)(nil)

// AddMembership seeds a staff membership for Me.
func (r *MemoryRepository) AddMembership(userID uuid.UUID, m service.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[userID] = append(r.memberships[userID], m)
}

func (r *MemoryRepository) Create(_ context.Context, u service.User) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return service.User{}, service.ErrEmailTaken
		}
		if u.ExternalUID != nil && existing.ExternalUID != nil && *existing.ExternalUID == *u.ExternalUID {
			return service.User{}, service.ErrIdentityUsed
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.byID[u.ID] = u
	return u, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepository) FindByExternalUID(_ context.Context, uid string) (service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.ExternalUID != nil && *u.ExternalUID == uid {
			return u, nil
		}
	}
	return service.User{}, service.ErrNotFound
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return service.User{}, service.ErrNotFound
}

func (r *MemoryRepository) LinkExternalUID(_ context.Context, id uuid.UUID, uid string) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.ExternalUID != nil {
		return service.User{}, service.ErrNotFound
	}
	for _, other := range r.byID {
		if other.ExternalUID != nil && *other.ExternalUID == uid {
			return service.User{}, service.ErrIdentityUsed
		}
	}
	u.ExternalUID = &uid
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u
	return u, nil
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.User, 0, len(r.byID))
	for _, u := range r.byID {
		if opts.Email != nil && !strings.Contains(strings.ToLower(u.Email), *opts.Email) {
			continue
		}
		if opts.PlatformRole != nil && u.PlatformRole != *opts.PlatformRole {
			continue
		}
		if opts.InstitutionID != nil && (u.InstitutionID == nil || *u.InstitutionID != *opts.InstitutionID) {
			continue
		}
		items = append(items, u)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].FullName < items[j].FullName })

	total := len(items)
	start, end := pageBounds(opts.Page, opts.PageSize, total)
	return service.ListResult{Users: items[start:end], TotalItems: total}, nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id uuid.UUID) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u
	return u, nil
}

func (r *MemoryRepository) AssignAdmin(_ context.Context, before service.User, institutionID uuid.UUID) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[before.ID]
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	u.PlatformRole = platformauth.PlatformRoleInstitutionAdmin
	u.InstitutionID = &institutionID
	u.IsActive = true
	u.UpdatedAt = time.Now().UTC()
	r.byID[u.ID] = u
	return u, nil
}

func (r *MemoryRepository) Memberships(_ context.Context, userID uuid.UUID) ([]service.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]service.Membership(nil), r.memberships[userID]...), nil
}

func pageBounds(page, pageSize, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}
