package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

const (
	structureColumns  = `fee_structure_id, institution_id, version, name, is_active, created_at, updated_at`
	itemColumns       = `fee_item_id, fee_structure_id, name, fee_type, amount, is_mandatory, description, created_at`
	assignmentColumns = `assignment_id, institution_id, student_id, fee_structure_id, academic_year_id, term_id,
	total_fees, discount_amount, penalty_amount, amount_paid, due_date, is_overdue, created_at, updated_at`
	paymentColumns = `payment_id, institution_id, assignment_id, amount, method, reference, recorded_by, paid_at, created_at`
)

// PostgresRepository stores fee structures, assignments and payments.
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

func (r *PostgresRepository) CreateStructure(ctx context.Context, s service.Structure) (service.Structure, error) {
	var out service.Structure
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanStructure(tx.QueryRow(ctx, `
			INSERT INTO fee_structures (fee_structure_id, institution_id, version, name, is_active, created_at, updated_at)
			SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $5
			FROM fee_structures WHERE institution_id = $2
			RETURNING `+structureColumns, s.ID, s.InstitutionID, s.Name, s.IsActive, s.CreatedAt))
		if err != nil {
			return err
		}
		for _, it := range s.Items {
			item, err := insertItem(ctx, tx, it)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, item)
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionFeeStructureCreated,
			EntityType:    "fee_structure",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Created fee structure version %d", out.Version),
			Changes:       map[string]any{"version": out.Version, "items": len(out.Items), "mandatoryTotal": out.MandatoryTotal().StringFixed(2)},
		})
		return err
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "fee_structures_version_unique"):
		return service.Structure{}, service.ErrVersionRace
	}
	return service.Structure{}, err
}

func insertItem(ctx context.Context, q persistence.Querier, it service.Item) (service.Item, error) {
	return scanItem(q.QueryRow(ctx, `
		INSERT INTO fee_items (fee_item_id, fee_structure_id, name, fee_type, amount, is_mandatory, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		it.ID, it.StructureID, it.Name, string(it.Type), it.Amount, it.IsMandatory, it.Description, it.CreatedAt))
}

func (r *PostgresRepository) GetStructure(ctx context.Context, institutionID, structureID uuid.UUID) (service.Structure, error) {
	q := r.db.Reader()
	s, err := scanStructure(q.QueryRow(ctx,
		`SELECT `+structureColumns+` FROM fee_structures WHERE institution_id = $1 AND fee_structure_id = $2`, institutionID, structureID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Structure{}, service.ErrStructureNotFound
	}
	if err != nil {
		return service.Structure{}, err
	}
	items, err := r.items(ctx, []uuid.UUID{s.ID})
	if err != nil {
		return service.Structure{}, err
	}
	s.Items = items[s.ID]
	return s, nil
}

func (r *PostgresRepository) ListStructures(ctx context.Context, institutionID uuid.UUID, active *bool) ([]service.Structure, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+structureColumns+` FROM fee_structures
		WHERE institution_id = $1 AND ($2::boolean IS NULL OR is_active = $2)
		ORDER BY version DESC`, institutionID, active)
	if err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Structure, error) { return scanStructure(row) })
	if err != nil {
		return nil, fmt.Errorf("scan fee structures: %w", err)
	}
	ids := make([]uuid.UUID, len(out))
	for i, s := range out {
		ids[i] = s.ID
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *PostgresRepository) items(ctx context.Context, structureIDs []uuid.UUID) (map[uuid.UUID][]service.Item, error) {
	out := make(map[uuid.UUID][]service.Item, len(structureIDs))
	if len(structureIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Reader().Query(ctx,
		`SELECT `+itemColumns+` FROM fee_items WHERE fee_structure_id = ANY($1) ORDER BY created_at, name`, structureIDs)
	if err != nil {
		return nil, fmt.Errorf("list fee items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Item, error) { return scanItem(row) })
	if err != nil {
		return nil, fmt.Errorf("scan fee items: %w", err)
	}
	for _, it := range items {
		out[it.StructureID] = append(out[it.StructureID], it)
	}
	return out, nil
}

func (r *PostgresRepository) AddItem(ctx context.Context, institutionID uuid.UUID, item service.Item) (service.Item, error) {
	var out service.Item
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE fee_structures SET updated_at = NOW() WHERE institution_id = $1 AND fee_structure_id = $2`,
			institutionID, item.StructureID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrStructureNotFound
		}
		if out, err = insertItem(ctx, tx, item); err != nil {
			return err
		}
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionFeeItemAdded,
			EntityType:    "fee_structure",
			EntityID:      out.StructureID.String(),
			Description:   fmt.Sprintf("Added fee item %s", out.Name),
			Changes:       map[string]any{"itemId": out.ID.String(), "amount": out.Amount.StringFixed(2), "mandatory": out.IsMandatory},
		})
		return err
	})
	if err != nil {
		return service.Item{}, err
	}
	return out, nil
}

func (r *PostgresRepository) SetStructureActive(ctx context.Context, before service.Structure, active bool) (service.Structure, error) {
	var out service.Structure
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanStructure(tx.QueryRow(ctx, `
			UPDATE fee_structures SET is_active = $3, updated_at = NOW()
			WHERE institution_id = $1 AND fee_structure_id = $2
			RETURNING `+structureColumns, before.InstitutionID, before.ID, active))
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrStructureNotFound
		}
		if err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionFeeStructureUpdated,
			EntityType:    "fee_structure",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Set fee structure version %d active=%t", out.Version, active),
			Changes:       audit.Diff(map[string]any{"isActive": before.IsActive}, map[string]any{"isActive": out.IsActive}),
		})
		return err
	})
	if err != nil {
		return service.Structure{}, err
	}
	out.Items = before.Items
	return out, nil
}

func (r *PostgresRepository) CreateAssignment(ctx context.Context, a service.Assignment) (service.Assignment, error) {
	var out service.Assignment
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanAssignment(tx.QueryRow(ctx, `
			INSERT INTO student_fee_assignments (assignment_id, institution_id, student_id, fee_structure_id, academic_year_id,
				term_id, total_fees, discount_amount, penalty_amount, amount_paid, due_date, is_overdue, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $12)
			RETURNING `+assignmentColumns,
			a.ID, a.InstitutionID, a.StudentID, a.FeeStructureID, a.AcademicYearID, a.TermID,
			a.TotalFees, a.DiscountAmount, a.PenaltyAmount, a.AmountPaid, a.DueDate, a.CreatedAt))
		if err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionFeeAssigned,
			EntityType:    "fee_assignment",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Assigned fees of %s to student %s", out.TotalFees.StringFixed(2), out.StudentID),
			Changes: map[string]any{
				"totalFees":      out.TotalFees.StringFixed(2),
				"discountAmount": out.DiscountAmount.StringFixed(2),
				"penaltyAmount":  out.PenaltyAmount.StringFixed(2),
			},
		})
		return err
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "student_fee_assignments_scope_unique"):
		return service.Assignment{}, service.ErrAlreadyAssigned
	case persistence.IsForeignKeyViolation(err, "student_fee_assignments_student_fk"):
		return service.Assignment{}, domainerr.NotFound("student not found")
	case persistence.IsForeignKeyViolation(err, "student_fee_assignments_structure_fk"):
		return service.Assignment{}, service.ErrStructureNotFound
	case persistence.IsForeignKeyViolation(err, "student_fee_assignments_year_fk"):
		return service.Assignment{}, domainerr.NotFound("academic year not found")
	case persistence.IsForeignKeyViolation(err, "student_fee_assignments_term_fk"):
		return service.Assignment{}, domainerr.NotFound("term not found")
	}
	return service.Assignment{}, err
}

func (r *PostgresRepository) GetAssignment(ctx context.Context, institutionID, assignmentID uuid.UUID) (service.Assignment, error) {
	a, err := scanAssignment(r.db.Reader().QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM student_fee_assignments WHERE institution_id = $1 AND assignment_id = $2`,
		institutionID, assignmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Assignment{}, service.ErrAssignmentNotFound
	}
	return a, err
}

func (r *PostgresRepository) ListAssignments(ctx context.Context, institutionID uuid.UUID, f service.AssignmentFilter) (service.AssignmentPage, error) {
	where := []string{"institution_id = $1"}
	args := []any{institutionID}
	if f.StudentID != nil {
		args = append(args, *f.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.AcademicYearID != nil {
		args = append(args, *f.AcademicYearID)
		where = append(where, fmt.Sprintf("academic_year_id = $%d", len(args)))
	}
	if f.TermID != nil {
		args = append(args, *f.TermID)
		where = append(where, fmt.Sprintf("term_id = $%d", len(args)))
	}
	if f.Overdue != nil {
		args = append(args, *f.Overdue)
		where = append(where, fmt.Sprintf("is_overdue = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM student_fee_assignments`+clause, args...).Scan(&total); err != nil {
		return service.AssignmentPage{}, fmt.Errorf("count fee assignments: %w", err)
	}

	limit, offset := persistence.LimitOffset(f.Page, f.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM student_fee_assignments%s ORDER BY created_at DESC, assignment_id LIMIT $%d OFFSET $%d`,
		assignmentColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.AssignmentPage{}, fmt.Errorf("list fee assignments: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Assignment, error) { return scanAssignment(row) })
	if err != nil {
		return service.AssignmentPage{}, fmt.Errorf("scan fee assignments: %w", err)
	}
	return service.AssignmentPage{Assignments: items, TotalItems: total}, nil
}

func (r *PostgresRepository) StudentAssignments(ctx context.Context, institutionID, studentID uuid.UUID) ([]service.Assignment, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+assignmentColumns+` FROM student_fee_assignments
		WHERE institution_id = $1 AND student_id = $2
		ORDER BY created_at, assignment_id`, institutionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student assignments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Assignment, error) { return scanAssignment(row) })
}

func (r *PostgresRepository) AdjustAssignment(ctx context.Context, before service.Assignment, discount, penalty decimal.Decimal) (service.Assignment, error) {
	var out service.Assignment
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanAssignment(tx.QueryRow(ctx, `
			UPDATE student_fee_assignments SET discount_amount = $3, penalty_amount = $4, updated_at = NOW()
			WHERE institution_id = $1 AND assignment_id = $2
			RETURNING `+assignmentColumns, before.InstitutionID, before.ID, discount, penalty))
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrAssignmentNotFound
		}
		if err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionFeeAdjusted,
			EntityType:    "fee_assignment",
			EntityID:      out.ID.String(),
			Description:   "Adjusted discount and penalty",
			Changes:       audit.Diff(adjustable(before), adjustable(out)),
		})
		return err
	})
	if err != nil {
		return service.Assignment{}, err
	}
	return out, nil
}

func adjustable(a service.Assignment) map[string]any {
	return map[string]any{
		"discountAmount": a.DiscountAmount.StringFixed(2),
		"penaltyAmount":  a.PenaltyAmount.StringFixed(2),
	}
}

func (r *PostgresRepository) RecordPayment(ctx context.Context, p service.Payment) (service.Payment, service.Assignment, error) {
	var (
		out        service.Payment
		assignment service.Assignment
	)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		assignment, err = scanAssignment(tx.QueryRow(ctx, `
			UPDATE student_fee_assignments SET amount_paid = amount_paid + $3, updated_at = NOW()
			WHERE institution_id = $1 AND assignment_id = $2
			RETURNING `+assignmentColumns, p.InstitutionID, p.AssignmentID, p.Amount))
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrAssignmentNotFound
		}
		if persistence.IsNumericOverflow(err) {
			return domainerr.Invalid("amount", "amount paid would exceed the ledger limit")
		}
		if err != nil {
			return err
		}
		out, err = scanPayment(tx.QueryRow(ctx, `
			INSERT INTO fee_payments (payment_id, institution_id, assignment_id, amount, method, reference, recorded_by, paid_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+paymentColumns,
			p.ID, p.InstitutionID, p.AssignmentID, p.Amount, string(p.Method), p.Reference, p.RecordedBy, p.PaidAt, p.CreatedAt))
		if err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionPaymentRecorded,
			EntityType:    "fee_assignment",
			EntityID:      assignment.ID.String(),
			Description:   fmt.Sprintf("Recorded %s payment of %s", out.Method, out.Amount.StringFixed(2)),
			Changes: map[string]any{
				"paymentId":  out.ID.String(),
				"amount":     out.Amount.StringFixed(2),
				"amountPaid": assignment.AmountPaid.StringFixed(2),
				"balance":    assignment.OutstandingBalance().StringFixed(2),
			},
		})
		return err
	})
	if err != nil {
		return service.Payment{}, service.Assignment{}, err
	}
	return out, assignment, nil
}

func (r *PostgresRepository) ListPayments(ctx context.Context, institutionID, assignmentID uuid.UUID) ([]service.Payment, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+paymentColumns+` FROM fee_payments
		WHERE institution_id = $1 AND assignment_id = $2
		ORDER BY paid_at, created_at`, institutionID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Payment, error) { return scanPayment(row) })
}

func (r *PostgresRepository) StudentPayments(ctx context.Context, institutionID, studentID uuid.UUID) ([]service.Payment, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT p.payment_id, p.institution_id, p.assignment_id, p.amount, p.method, p.reference, p.recorded_by, p.paid_at, p.created_at
		FROM fee_payments p
		JOIN student_fee_assignments a ON a.assignment_id = p.assignment_id
		WHERE p.institution_id = $1 AND a.student_id = $2
		ORDER BY p.paid_at, p.created_at`, institutionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Payment, error) { return scanPayment(row) })
}

func (r *PostgresRepository) MarkOverdue(ctx context.Context, a service.Assignment) (service.Assignment, bool, error) {
	var (
		out     service.Assignment
		changed bool
	)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanAssignment(tx.QueryRow(ctx, `
			UPDATE student_fee_assignments SET is_overdue = TRUE, updated_at = NOW()
			WHERE institution_id = $1 AND assignment_id = $2 AND NOT is_overdue
			RETURNING `+assignmentColumns, a.InstitutionID, a.ID))
		if errors.Is(err, pgx.ErrNoRows) {
			out, err = scanAssignment(tx.QueryRow(ctx,
				`SELECT `+assignmentColumns+` FROM student_fee_assignments WHERE institution_id = $1 AND assignment_id = $2`,
				a.InstitutionID, a.ID))
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrAssignmentNotFound
			}
			return err
		}
		if err != nil {
			return err
		}
		changed = true
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionMarkedOverdue,
			EntityType:    "fee_assignment",
			EntityID:      out.ID.String(),
			Description:   "Marked assignment overdue",
			Changes:       audit.Diff(map[string]any{"isOverdue": false}, map[string]any{"isOverdue": true}),
		})
		return err
	})
	if err != nil {
		return service.Assignment{}, false, err
	}
	return out, changed, nil
}

func (r *PostgresRepository) MarkOverdueSweep(ctx context.Context, institutionID uuid.UUID, today time.Time) (int, error) {
	var marked int
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+assignmentColumns+` FROM student_fee_assignments
			WHERE institution_id = $1 AND NOT is_overdue AND due_date IS NOT NULL AND due_date < $2
			FOR UPDATE`, institutionID, today)
		if err != nil {
			return fmt.Errorf("select overdue candidates: %w", err)
		}
		candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Assignment, error) { return scanAssignment(row) })
		if err != nil {
			return fmt.Errorf("scan overdue candidates: %w", err)
		}

		var ids []uuid.UUID
		for _, a := range candidates {
			if a.ShouldMarkOverdue(today) {
				ids = append(ids, a.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
			UPDATE student_fee_assignments SET is_overdue = TRUE, updated_at = NOW()
			WHERE institution_id = $1 AND assignment_id = ANY($2)`, institutionID, ids)
		if err != nil {
			return fmt.Errorf("mark overdue: %w", err)
		}
		marked = int(tag.RowsAffected())

		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionOverdueSweep,
			EntityType:    "fee_assignment",
			EntityID:      "bulk",
			Description:   fmt.Sprintf("Marked %d assignments overdue", marked),
			Changes:       map[string]any{"marked": marked, "asOf": today.Format(time.DateOnly)},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func scanStructure(row pgx.Row) (service.Structure, error) {
	var s service.Structure
	var version int32
	if err := row.Scan(&s.ID, &s.InstitutionID, &version, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return service.Structure{}, err
	}
	s.Version = int(version)
	return s, nil
}

func scanItem(row pgx.Row) (service.Item, error) {
	var it service.Item
	var kind string
	if err := row.Scan(&it.ID, &it.StructureID, &it.Name, &kind, &it.Amount, &it.IsMandatory, &it.Description, &it.CreatedAt); err != nil {
		return service.Item{}, err
	}
	it.Type = service.FeeType(kind)
	return it, nil
}

func scanAssignment(row pgx.Row) (service.Assignment, error) {
	var a service.Assignment
	err := row.Scan(&a.ID, &a.InstitutionID, &a.StudentID, &a.FeeStructureID, &a.AcademicYearID, &a.TermID,
		&a.TotalFees, &a.DiscountAmount, &a.PenaltyAmount, &a.AmountPaid, &a.DueDate, &a.IsOverdue, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanPayment(row pgx.Row) (service.Payment, error) {
	var p service.Payment
	var method string
	if err := row.Scan(&p.ID, &p.InstitutionID, &p.AssignmentID, &p.Amount, &method, &p.Reference, &p.RecordedBy, &p.PaidAt, &p.CreatedAt); err != nil {
		return service.Payment{}, err
	}
	p.Method = service.PaymentMethod(method)
	return p, nil
}
