package repo

import (
	"context"
	"maps"
	"sync"

	"github.com/zenGate-Global/edupay-saas/domains/oversight/be/service"
)

// MemoryRepository returns fixed counts; tests set the exported fields.
type MemoryRepository struct {
	mu           sync.RWMutex
	Institutions map[string]int
	Users        map[string]int
	Demos        int
	DemosPending int
	Err          error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{Institutions: map[string]int{}, Users: map[string]int{}}
}

var _ service.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) InstitutionsByStatus(context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.Institutions), r.Err
}

func (r *MemoryRepository) UsersByRole(context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.Users), nil
}

func (r *MemoryRepository) DemoRequests(context.Context) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Demos, r.DemosPending, nil
}
