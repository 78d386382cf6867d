package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
)

const userColumns = `user_id, external_uid, email, full_name, platform_role, institution_id, is_active, created_at, updated_at`

// PostgresRepository stores platform users in the users table.
type PostgresRepository struct {
	db *persistence.DB
}

// NewPostgresRepository constructs a repository over db.
func NewPostgresRepository(db *persistence.DB) *PostgresRepository {
	if db == nil {
		panic("db is required")
	}
	return &PostgresRepository{db: db}
}

var _ service.Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Create(ctx context.Context, u service.User) (service.User, error) {
	var out service.User
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (user_id, external_uid, email, full_name, platform_role, institution_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+userColumns,
			u.ID, u.ExternalUID, u.Email, u.FullName, string(u.PlatformRole), u.InstitutionID, u.IsActive)
		var err error
		if out, err = scanUser(row); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionUserCreated,
			EntityType:  "user",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Registered %s as %s", out.Email, out.PlatformRole),
		})
		return err
	})
	if err != nil {
		return service.User{}, mapWriteError(err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id)
}

func (r *PostgresRepository) FindByExternalUID(ctx context.Context, uid string) (service.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_uid = $1`, uid)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (service.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PostgresRepository) LinkExternalUID(ctx context.Context, id uuid.UUID, uid string) (service.User, error) {
	row := r.db.Reader().QueryRow(ctx, `
		UPDATE users SET external_uid = $2, updated_at = NOW()
		WHERE user_id = $1 AND external_uid IS NULL
		RETURNING `+userColumns, id, uid)
	u, err := scanUser(row)
	if err != nil {
		return service.User{}, mapWriteError(err)
	}
	return u, nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	var where []string
	var args []any
	if opts.Email != nil {
		args = append(args, "%"+*opts.Email+"%")
		where = append(where, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)))
	}
	if opts.PlatformRole != nil {
		args = append(args, string(*opts.PlatformRole))
		where = append(where, fmt.Sprintf("platform_role = $%d", len(args)))
	}
	if opts.InstitutionID != nil {
		args = append(args, *opts.InstitutionID)
		where = append(where, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count users: %w", err)
	}

	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM users%s ORDER BY full_name, user_id LIMIT $%d OFFSET $%d`,
		userColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.User, error) { return scanUser(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan users: %w", err)
	}
	return service.ListResult{Users: users, TotalItems: total}, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id uuid.UUID) (service.User, error) {
	var out service.User
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE users SET is_active = FALSE, updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+userColumns, id)
		var err error
		if out, err = scanUser(row); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionUserDeactivated,
			EntityType:  "user",
			EntityID:    id.String(),
			Description: "Deactivated " + out.Email,
		})
		return err
	})
	if err != nil {
		return service.User{}, mapWriteError(err)
	}
	return out, nil
}

func (r *PostgresRepository) AssignAdmin(ctx context.Context, before service.User, institutionID uuid.UUID) (service.User, error) {
	var out service.User
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE users SET platform_role = 'institution_admin', institution_id = $2, is_active = TRUE, updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+userColumns, before.ID, institutionID)
		var err error
		if out, err = scanUser(row); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			Action:      audit.ActionInstitutionAdminAssigned,
			EntityType:  "institution",
			EntityID:    institutionID.String(),
			Description: "Institution admin assigned: " + out.Email,
			Changes:     audit.Diff(adminFields(before), adminFields(out)),
		})
		return err
	})
	if err != nil {
		return service.User{}, mapWriteError(err)
	}
	return out, nil
}

func adminFields(u service.User) map[string]any {
	institution := ""
	if u.InstitutionID != nil {
		institution = u.InstitutionID.String()
	}
	return map[string]any{
		"userId":        u.ID.String(),
		"platformRole":  string(u.PlatformRole),
		"institutionId": institution,
		"isActive":      u.IsActive,
	}
}

func (r *PostgresRepository) Memberships(ctx context.Context, userID uuid.UUID) ([]service.Membership, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT s.staff_id, s.institution_id, i.name, i.slug, s.role, s.is_active
		FROM staff s
		JOIN institutions i ON i.institution_id = s.institution_id
		WHERE s.user_id = $1
		ORDER BY i.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Membership, error) {
		var m service.Membership
		var role string
		if err := row.Scan(&m.StaffID, &m.InstitutionID, &m.InstitutionName, &m.InstitutionSlug, &role, &m.IsActive); err != nil {
			return service.Membership{}, err
		}
		m.Role = rbac.Role(role)
		return m, nil
	})
}

func (r *PostgresRepository) getOne(ctx context.Context, sql string, arg any) (service.User, error) {
	u, err := scanUser(r.db.Reader().QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.User{}, service.ErrNotFound
	}
	return u, err
}

func scanUser(row pgx.Row) (service.User, error) {
	var u service.User
	var role string
	if err := row.Scan(&u.ID, &u.ExternalUID, &u.Email, &u.FullName, &role, &u.InstitutionID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return service.User{}, err
	}
	u.PlatformRole = platformauth.PlatformRole(role)
	return u, nil
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return service.ErrNotFound
	case persistence.IsUniqueViolation(err, "users_email_unique"):
		return service.ErrEmailTaken
	case persistence.IsUniqueViolation(err, "users_external_uid_unique"):
		return service.ErrIdentityUsed
	case persistence.IsForeignKeyViolation(err, ""):
		return domainerr.NotFound("institution not found")
	default:
		return err
	}
}
