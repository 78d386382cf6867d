package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

const institutionColumns = `institution_id, slug, name, institution_type, contact_name, contact_email, contact_phone,
	address, logo_url, status, onboarding_notes, approved_at, activated_at, suspended_at, deactivated_at,
	rejected_at, created_by, created_at, updated_at`

// PostgresRepository implements the institution registry on the shared schema.
type PostgresRepository struct {
	db *persistence.DB
}

// NewPostgresRepository constructs a repository backed by db.
func NewPostgresRepository(db *persistence.DB) *PostgresRepository {
	if db == nil {
		panic("db is required")
	}
	return &PostgresRepository{db: db}
}

var _ service.Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Create(ctx context.Context, inst service.Institution) (service.Institution, error) {
	var out service.Institution
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO institutions (institution_id, slug, name, institution_type, contact_name, contact_email,
				contact_phone, address, status, onboarding_notes, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			RETURNING `+institutionColumns,
			inst.ID, inst.Slug, inst.Name, string(inst.Type), inst.ContactName, inst.ContactEmail,
			inst.ContactPhone, inst.Address, string(inst.Status), inst.OnboardingNotes, inst.CreatedBy, inst.CreatedAt)
		var err error
		if out, err = scanInstitution(row); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionInstitutionCreated,
			EntityType:  "institution",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Registered %s (%s)", out.Name, out.Slug),
		})
		return err
	})
	if err != nil {
		if persistence.IsUniqueViolation(err, "institutions_slug_unique") {
			return service.Institution{}, service.ErrConflictSlug
		}
		return service.Institution{}, err
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Institution, error) {
	inst, err := scanInstitution(r.db.Reader().QueryRow(ctx,
		`SELECT `+institutionColumns+` FROM institutions WHERE institution_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Institution{}, service.ErrNotFound
	}
	return inst, err
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	var where []string
	var args []any
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Search != nil {
		args = append(args, "%"+strings.ToLower(*opts.Search)+"%")
		where = append(where, fmt.Sprintf("(LOWER(name) LIKE $%[1]d OR slug LIKE $%[1]d OR LOWER(contact_email) LIKE $%[1]d)", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM institutions`+clause, args...).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count institutions: %w", err)
	}

	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM institutions%s ORDER BY created_at DESC, institution_id LIMIT $%d OFFSET $%d`,
		institutionColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list institutions: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Institution, error) { return scanInstitution(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan institutions: %w", err)
	}
	return service.ListResult{Institutions: items, TotalItems: total}, nil
}

// timestampColumn names the lifecycle timestamp stamped by a transition.
func timestampColumn(a service.Action) string {
	switch a {
	case service.ActionApprove:
		return "approved_at"
	case service.ActionReject:
		return "rejected_at"
	case service.ActionActivate, service.ActionReinstate:
		return "activated_at"
	case service.ActionSuspend:
		return "suspended_at"
	default:
		return "deactivated_at"
	}
}

func (r *PostgresRepository) ApplyTransition(ctx context.Context, id uuid.UUID, t service.Transition) (service.Institution, error) {
	var out service.Institution
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE institutions SET status = $3, %s = $4, updated_at = $4
			WHERE institution_id = $1 AND status = $2
			RETURNING %s`, timestampColumn(t.Action), institutionColumns),
			id, string(t.From), string(t.To), t.At)
		var err error
		if out, err = scanInstitution(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrStatusChanged
			}
			return err
		}

		actor := requesttrace.ActorID(ctx)
		if _, err := tx.Exec(ctx, `
			INSERT INTO institution_status_logs (log_id, institution_id, action, previous_status, new_status, note, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), id, t.Action.LogAction(), string(t.From), string(t.To), t.Note, actor, t.At); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		description := fmt.Sprintf("%s: %s -> %s", out.Name, t.From, t.To)
		if t.Note != "" {
			description += " (" + t.Note + ")"
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      t.Action.AuditAction(),
			EntityType:  "institution",
			EntityID:    id.String(),
			Description: description,
			Changes:     audit.Diff(map[string]any{"status": string(t.From)}, map[string]any{"status": string(t.To)}),
		})
		return err
	})
	if err != nil {
		return service.Institution{}, err
	}
	return out, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, before, after service.Institution) (service.Institution, error) {
	var out service.Institution
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE institutions
			SET name = $2, contact_name = $3, contact_email = $4, contact_phone = $5, address = $6,
				logo_url = $7, updated_at = $8
			WHERE institution_id = $1
			RETURNING `+institutionColumns,
			after.ID, after.Name, after.ContactName, after.ContactEmail, after.ContactPhone, after.Address,
			after.LogoURL, after.UpdatedAt)
		var err error
		if out, err = scanInstitution(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrNotFound
			}
			return err
		}
		institutionID := out.ID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionInstitutionUpdated,
			EntityType:    "institution",
			EntityID:      out.ID.String(),
			Description:   "Updated institution profile",
			Changes:       audit.Diff(before.Profile(), out.Profile()),
		})
		return err
	})
	if err != nil {
		return service.Institution{}, err
	}
	return out, nil
}

func (r *PostgresRepository) StatusLog(ctx context.Context, id uuid.UUID) ([]service.StatusLog, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT log_id, institution_id, action, previous_status, new_status, note, actor_id, created_at
		FROM institution_status_logs
		WHERE institution_id = $1
		ORDER BY created_at DESC, log_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.StatusLog, error) {
		var l service.StatusLog
		var prev, next string
		if err := row.Scan(&l.ID, &l.InstitutionID, &l.Action, &prev, &next, &l.Note, &l.ActorID, &l.CreatedAt); err != nil {
			return service.StatusLog{}, err
		}
		l.PreviousStatus, l.NewStatus = service.Status(prev), service.Status(next)
		return l, nil
	})
}

func scanInstitution(row pgx.Row) (service.Institution, error) {
	var inst service.Institution
	var kind, status string
	err := row.Scan(&inst.ID, &inst.Slug, &inst.Name, &kind, &inst.ContactName, &inst.ContactEmail, &inst.ContactPhone,
		&inst.Address, &inst.LogoURL, &status, &inst.OnboardingNotes, &inst.ApprovedAt, &inst.ActivatedAt,
		&inst.SuspendedAt, &inst.DeactivatedAt, &inst.RejectedAt, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return service.Institution{}, err
	}
	inst.Type, inst.Status = service.Type(kind), service.Status(status)
	return inst, nil
}
