package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/demos/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

const demoColumns = `demo_request_id, full_name, email, phone, job_title, institution_name, institution_type,
	student_count, country, challenge, message, preferred_time, include_team, status, notes, institution_id,
	approved_at, approved_by, created_at, updated_at`

// PostgresRepository stores demo requests in the platform schema.
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

func (r *PostgresRepository) Create(ctx context.Context, d service.DemoRequest) (service.DemoRequest, error) {
	var out service.DemoRequest
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO demo_requests (demo_request_id, full_name, email, phone, job_title, institution_name,
				institution_type, student_count, country, challenge, message, preferred_time, include_team,
				status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
			RETURNING `+demoColumns,
			d.ID, d.FullName, d.Email, d.Phone, d.JobTitle, d.InstitutionName, d.InstitutionType,
			d.StudentCount, d.Country, d.Challenge, d.Message, d.PreferredTime, d.IncludeTeam,
			string(d.Status), d.CreatedAt)
		var err error
		if out, err = scanDemo(row); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionDemoRequested,
			EntityType:  "demo_request",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Demo requested by %s for %s", out.FullName, out.InstitutionName),
		})
		return err
	})
	if err != nil {
		return service.DemoRequest{}, err
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.DemoRequest, error) {
	d, err := scanDemo(r.db.Reader().QueryRow(ctx,
		`SELECT `+demoColumns+` FROM demo_requests WHERE demo_request_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.DemoRequest{}, service.ErrNotFound
	}
	return d, err
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	clause := ""
	var args []any
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		clause = " WHERE status = $1"
	}

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM demo_requests`+clause, args...).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count demo requests: %w", err)
	}

	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM demo_requests%s ORDER BY created_at DESC, demo_request_id LIMIT $%d OFFSET $%d`,
		demoColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list demo requests: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.DemoRequest, error) { return scanDemo(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan demo requests: %w", err)
	}
	return service.ListResult{Requests: items, TotalItems: total}, nil
}

func (r *PostgresRepository) Approve(ctx context.Context, id uuid.UUID, a service.Approval) (service.DemoRequest, error) {
	var out service.DemoRequest
	inst := a.Institution
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		// Lock the request first so two approvals cannot both register an institution.
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM demo_requests WHERE demo_request_id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrNotFound
		}
		if err != nil {
			return err
		}
		if service.Status(current) != a.From {
			return service.ErrStatusChanged
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO institutions (institution_id, slug, name, institution_type, contact_name, contact_email,
				contact_phone, status, onboarding_notes, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $10)`,
			inst.ID, inst.Slug, inst.Name, inst.Type, inst.ContactName, inst.ContactEmail,
			inst.ContactPhone, inst.OnboardingNotes, a.ApprovedBy, a.At); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO institution_status_logs (log_id, institution_id, action, previous_status, new_status, note, actor_id, created_at)
			VALUES ($1, $2, 'registered', '', 'pending', 'Created from demo request approval', $3, $4)`,
			uuid.New(), inst.ID, requesttrace.ActorID(ctx), a.At); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}

		row := tx.QueryRow(ctx, `
			UPDATE demo_requests
			SET status = 'approved', institution_id = $2, approved_at = $3, approved_by = $4, notes = $5, updated_at = $3
			WHERE demo_request_id = $1
			RETURNING `+demoColumns,
			id, inst.ID, a.At, a.ApprovedBy, inst.OnboardingNotes)
		if out, err = scanDemo(row); err != nil {
			return err
		}

		if _, err := audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionInstitutionCreated,
			EntityType:  "institution",
			EntityID:    inst.ID.String(),
			Description: fmt.Sprintf("Registered %s (%s) from demo request", inst.Name, inst.Slug),
		}); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionDemoApproved,
			EntityType:  "demo_request",
			EntityID:    id.String(),
			Description: fmt.Sprintf("Demo request approved; created %s", inst.Name),
			Changes: audit.Diff(
				map[string]any{"status": string(a.From)},
				map[string]any{"status": string(service.StatusApproved), "institutionId": inst.ID.String()}),
		})
		return err
	})
	if err != nil {
		if persistence.IsUniqueViolation(err, "institutions_slug_unique") {
			return service.DemoRequest{}, service.ErrConflictSlug
		}
		return service.DemoRequest{}, err
	}
	return out, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id uuid.UUID, ch service.StatusChange) (service.DemoRequest, error) {
	var out service.DemoRequest
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE demo_requests SET status = $3, notes = $4, updated_at = $5
			WHERE demo_request_id = $1 AND status = $2
			RETURNING `+demoColumns,
			id, string(ch.From), string(ch.To), ch.Notes, ch.At)
		var err error
		if out, err = scanDemo(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrStatusChanged
			}
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      ch.Action,
			EntityType:  "demo_request",
			EntityID:    id.String(),
			Description: fmt.Sprintf("Demo request for %s: %s -> %s", out.InstitutionName, ch.From, ch.To),
			Changes:     audit.Diff(map[string]any{"status": string(ch.From)}, map[string]any{"status": string(ch.To)}),
		})
		return err
	})
	if err != nil {
		return service.DemoRequest{}, err
	}
	return out, nil
}

func scanDemo(row pgx.Row) (service.DemoRequest, error) {
	var d service.DemoRequest
	var status string
	err := row.Scan(&d.ID, &d.FullName, &d.Email, &d.Phone, &d.JobTitle, &d.InstitutionName, &d.InstitutionType,
		&d.StudentCount, &d.Country, &d.Challenge, &d.Message, &d.PreferredTime, &d.IncludeTeam, &status, &d.Notes,
		&d.InstitutionID, &d.ApprovedAt, &d.ApprovedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return service.DemoRequest{}, err
	}
	d.Status = service.Status(status)
	return d, nil
}
