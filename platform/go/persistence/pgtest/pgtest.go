// Package pgtest starts a disposable PostgreSQL for repository tests.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

// Schema is the application schema used by integration tests.
const Schema = "edupay_test"

// NewPool runs postgres:16-alpine, bootstraps the schema and returns a pool whose
// connections default to it. Tests calling this are skipped under -short.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("edupay"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	bootstrapPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	require.NoError(t, persistence.BootstrapSchema(ctx, bootstrapPool, Schema))
	persistence.ClosePool(bootstrapPool)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString, SearchPath: Schema})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	return pool
}

// SeedInstitution inserts an active institution with a unique slug and returns its id.
func SeedInstitution(t *testing.T, db *persistence.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Reader().Exec(context.Background(), `
		INSERT INTO institutions (institution_id, slug, name, contact_email, status)
		VALUES ($1, $2, 'School', 'office@school.test', 'active')`, id, "school-"+id.String()[:8])
	require.NoError(t, err)
	return id
}
