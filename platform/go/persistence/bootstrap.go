package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/edupay-saas/database"
)

// BootstrapSchema creates the application schema (if missing) and applies the
// embedded DDL in a single transaction, with search_path pointing at the schema:
//  1. platform/registry.sql
//  2. platform/audit.sql
//  3. institution/academics.sql
//  4. institution/fees.sql
//  5. institution/audit.sql
//
// Each file is sent as one simple-protocol batch so plpgsql bodies survive intact.
// The helper is idempotent and intended for CLI bootstrap and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return fmt.Errorf("bootstrap schema: schema is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, SearchPath(schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for i, ddl := range sqlassets.Bootstrap() {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply ddl file %d: %w", i+1, err)
		}
	}

	return tx.Commit(ctx)
}
