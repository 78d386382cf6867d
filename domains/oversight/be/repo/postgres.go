package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/oversight/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

// PostgresRepository counts registry, user and lead rows.
type PostgresRepository struct {
	db *persistence.DB
}

func NewPostgresRepository(db *persistence.DB) *PostgresRepository {
	if db == nil {
		panic("db is required")
	}
	return &PostgresRepository{db: db}
}

var _ service.Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) InstitutionsByStatus(ctx context.Context) (map[string]int, error) {
	return r.grouped(ctx, `SELECT status, COUNT(*) FROM institutions GROUP BY status`)
}

func (r *PostgresRepository) UsersByRole(ctx context.Context) (map[string]int, error) {
	return r.grouped(ctx, `SELECT platform_role, COUNT(*) FROM users GROUP BY platform_role`)
}

func (r *PostgresRepository) DemoRequests(ctx context.Context) (total, pending int, err error) {
	err = r.db.Reader().QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'pending') FROM demo_requests`).Scan(&total, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("count demo requests: %w", err)
	}
	return total, pending, nil
}

func (r *PostgresRepository) grouped(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.Reader().Query(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	var key string
	var n int
	_, err = pgx.ForEachRow(rows, []any{&key, &n}, func() error {
		out[key] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
