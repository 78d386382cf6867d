package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

// Filter narrows a log listing. A nil InstitutionID lists the platform log.
type Filter struct {
	InstitutionID *uuid.UUID
	Action        *Action
	EntityType    *string
	Page          int
	PageSize      int
}

// Store reads audit logs. There is no update or delete path.
type Store struct {
	db persistence.Querier
}

func NewStore(db persistence.Querier) *Store {
	return &Store{db: db}
}

// List returns one page of entries, newest first, plus the total count.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, int, error) {
	table := "platform_audit_logs"
	cols := "audit_id, NULL::uuid, actor_id, action, entity_type, entity_id, description, changes, created_at"
	var where []string
	var args []any
	if f.InstitutionID != nil {
		table = "institution_audit_logs"
		cols = "audit_id, institution_id, actor_id, action, entity_type, entity_id, description, changes, created_at"
		args = append(args, *f.InstitutionID)
		where = append(where, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	if f.Action != nil {
		args = append(args, string(*f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.EntityType != nil {
		args = append(args, *f.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, audit_id LIMIT $%d OFFSET $%d",
		cols, table, clause, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, 0, fmt.Errorf("scan audit entries: %w", err)
	}
	return records, total, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	var action string
	var changes []byte
	if err := row.Scan(&rec.ID, &rec.InstitutionID, &rec.ActorID, &action, &rec.EntityType, &rec.EntityID, &rec.Description, &changes, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.Action = Action(action)
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &rec.Changes); err != nil {
			return Record{}, fmt.Errorf("decode changes: %w", err)
		}
	}
	return rec, nil
}
