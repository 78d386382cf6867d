package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
)

const staffColumns = `staff_id, institution_id, user_id, full_name, email, phone, role, is_active, created_at, updated_at`

// PostgresRepository stores staff memberships.
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

func (r *PostgresRepository) FindMembership(ctx context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error) {
	st, err := scanStaff(r.db.Reader().QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE institution_id = $1 AND user_id = $2`, institutionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Membership{}, rbac.ErrNoMembership
	}
	if err != nil {
		return rbac.Membership{}, err
	}
	return st.Membership(), nil
}

func (r *PostgresRepository) Add(ctx context.Context, m service.NewMember) (service.Staff, error) {
	var out service.Staff
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		s := m.Staff
		userID, err := getOrCreateUser(ctx, tx, s.Email, s.FullName, m.ExternalUID)
		if err != nil {
			return err
		}
		s.UserID = userID

		row := tx.QueryRow(ctx, `
			INSERT INTO staff (staff_id, institution_id, user_id, full_name, email, phone, role, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING `+staffColumns,
			s.ID, s.InstitutionID, s.UserID, s.FullName, s.Email, s.Phone, string(s.Role), s.IsActive, s.CreatedAt)
		if out, err = scanStaff(row); err != nil {
			return err
		}

		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionStaffAdded,
			EntityType:    "staff",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Added %s as %s", out.Email, out.Role.Label()),
		})
		return err
	})
	if err != nil {
		switch {
		case persistence.IsUniqueViolation(err, "staff_institution_user_unique"):
			return service.Staff{}, service.ErrAlreadyMember
		case persistence.IsUniqueViolation(err, "users_external_uid_unique"):
			return service.Staff{}, domainerr.Conflict("the identity for this email is linked to another user")
		}
		return service.Staff{}, err
	}
	return out, nil
}

func getOrCreateUser(ctx context.Context, tx pgx.Tx, email, fullName string, externalUID *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT user_id FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("lookup user: %w", err)
	}

	id = uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (user_id, external_uid, email, full_name, platform_role, is_active)
		VALUES ($1, $2, $3, $4, 'other', TRUE)`, id, externalUID, email, fullName); err != nil {
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, institutionID, staffID uuid.UUID) (service.Staff, error) {
	st, err := scanStaff(r.db.Reader().QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE institution_id = $1 AND staff_id = $2`, institutionID, staffID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Staff{}, service.ErrNotFound
	}
	return st, err
}

func (r *PostgresRepository) List(ctx context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	where := []string{"institution_id = $1"}
	args := []any{institutionID}
	if opts.Role != nil {
		args = append(args, string(*opts.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if opts.Active != nil {
		args = append(args, *opts.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM staff`+clause, args...).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count staff: %w", err)
	}

	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM staff%s ORDER BY full_name, staff_id LIMIT $%d OFFSET $%d`,
		staffColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list staff: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Staff, error) { return scanStaff(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan staff: %w", err)
	}
	return service.ListResult{Staff: items, TotalItems: total}, nil
}

func (r *PostgresRepository) ChangeRole(ctx context.Context, before service.Staff, role rbac.Role) (service.Staff, error) {
	return r.update(ctx, before, `role = $3`, string(role), audit.ActionStaffRoleChanged,
		fmt.Sprintf("Changed role of %s", before.Email),
		map[string]any{"role": string(before.Role)}, func(s service.Staff) map[string]any {
			return map[string]any{"role": string(s.Role)}
		})
}

func (r *PostgresRepository) Deactivate(ctx context.Context, before service.Staff) (service.Staff, error) {
	return r.update(ctx, before, `is_active = $3`, false, audit.ActionStaffDeactivated,
		fmt.Sprintf("Deactivated %s", before.Email),
		map[string]any{"isActive": before.IsActive}, func(s service.Staff) map[string]any {
			return map[string]any{"isActive": s.IsActive}
		})
}

func (r *PostgresRepository) update(ctx context.Context, before service.Staff, set string, value any, action audit.Action,
	description string, from map[string]any, to func(service.Staff) map[string]any) (service.Staff, error) {
	var out service.Staff
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE staff SET `+set+`, updated_at = NOW()
			WHERE institution_id = $1 AND staff_id = $2
			RETURNING `+staffColumns, before.InstitutionID, before.ID, value)
		var err error
		if out, err = scanStaff(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrNotFound
			}
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        action,
			EntityType:    "staff",
			EntityID:      out.ID.String(),
			Description:   description,
			Changes:       audit.Diff(from, to(out)),
		})
		return err
	})
	if err != nil {
		return service.Staff{}, err
	}
	return out, nil
}

func (r *PostgresRepository) EnsureAdmin(ctx context.Context, s service.Staff) (service.Staff, bool, error) {
	var out service.Staff
	var created bool
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO staff (staff_id, institution_id, user_id, full_name, email, phone, role, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			ON CONFLICT ON CONSTRAINT staff_institution_user_unique DO NOTHING
			RETURNING `+staffColumns,
			s.ID, s.InstitutionID, s.UserID, s.FullName, s.Email, s.Phone, string(s.Role), s.IsActive, s.CreatedAt)
		var err error
		out, err = scanStaff(row)
		if errors.Is(err, pgx.ErrNoRows) {
			out, err = scanStaff(tx.QueryRow(ctx,
				`SELECT `+staffColumns+` FROM staff WHERE institution_id = $1 AND user_id = $2`, s.InstitutionID, s.UserID))
			return err
		}
		if err != nil {
			return err
		}

		created = true
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionOnboardingCompleted,
			EntityType:    "staff",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Onboarded %s as institution admin", out.Email),
		})
		return err
	})
	if err != nil {
		return service.Staff{}, false, err
	}
	return out, created, nil
}

func scanStaff(row pgx.Row) (service.Staff, error) {
	var s service.Staff
	var role string
	if err := row.Scan(&s.ID, &s.InstitutionID, &s.UserID, &s.FullName, &s.Email, &s.Phone, &role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return service.Staff{}, err
	}
	s.Role = rbac.Role(role)
	return s, nil
}
