// Package service aggregates platform-wide counts for super admins.
package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Known keys are always present in a Dashboard, zero when nothing matches.
var (
	InstitutionStatuses = []string{"pending", "approved", "active", "suspended", "deactivated", "rejected"}
	PlatformRoles       = []string{"super_admin", "institution_admin", "bursar", "parent", "other"}
)

// Dashboard is the platform overview.
type Dashboard struct {
	InstitutionsByStatus map[string]int
	InstitutionsTotal    int
	UsersByRole          map[string]int
	UsersTotal           int
	DemoRequestsTotal    int
	DemoRequestsPending  int
}

// Repository reads the grouped counts.
type Repository interface {
	InstitutionsByStatus(ctx context.Context) (map[string]int, error)
	UsersByRole(ctx context.Context) (map[string]int, error)
	DemoRequests(ctx context.Context) (total, pending int, err error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	if repo == nil {
		panic("oversight repo is required")
	}
	return &Service{repo: repo}
}

// Dashboard runs the three aggregates concurrently.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		institutions, users map[string]int
		demos, pending      int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if institutions, err = s.repo.InstitutionsByStatus(gctx); err != nil {
			return fmt.Errorf("count institutions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if users, err = s.repo.UsersByRole(gctx); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if demos, pending, err = s.repo.DemoRequests(gctx); err != nil {
			return fmt.Errorf("count demo requests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		InstitutionsByStatus: zeroFilled(institutions, InstitutionStatuses),
		UsersByRole:          zeroFilled(users, PlatformRoles),
		DemoRequestsTotal:    demos,
		DemoRequestsPending:  pending,
	}
	for _, n := range d.InstitutionsByStatus {
		d.InstitutionsTotal += n
	}
	for _, n := range d.UsersByRole {
		d.UsersTotal += n
	}
	return d, nil
}

func zeroFilled(counts map[string]int, keys []string) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	for k, n := range counts {
		out[k] += n
	}
	return out
}
