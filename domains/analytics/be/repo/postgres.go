package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

const snapshotColumns = `snapshot_id, institution_id, academic_year_id, snapshot_date, total_students, total_fees_billed,
	total_fees_paid, total_outstanding, fully_paid_count, partially_paid_count, not_paid_count, overdue_count,
	collection_rate, average_fee_per_student, created_at`

// PostgresRepository reads the fee ledger and stores daily snapshots.
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

func (r *PostgresRepository) Assignments(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) ([]fees.Assignment, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT assignment_id, student_id, academic_year_id, total_fees, discount_amount, penalty_amount, amount_paid, is_overdue
		FROM student_fee_assignments
		WHERE institution_id = $1 AND ($2::uuid IS NULL OR academic_year_id = $2)`, institutionID, yearID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fees.Assignment, error) {
		a := fees.Assignment{InstitutionID: institutionID}
		err := row.Scan(&a.ID, &a.StudentID, &a.AcademicYearID, &a.TotalFees, &a.DiscountAmount, &a.PenaltyAmount, &a.AmountPaid, &a.IsOverdue)
		return a, err
	})
}

func (r *PostgresRepository) CountStudents(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) (int, error) {
	var n int
	err := r.db.Reader().QueryRow(ctx, `
		SELECT COUNT(*) FROM students
		WHERE institution_id = $1 AND is_active AND ($2::uuid IS NULL OR academic_year_id = $2)`, institutionID, yearID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) CountStaff(ctx context.Context, institutionID uuid.UUID) (int, error) {
	var n int
	err := r.db.Reader().QueryRow(ctx, `SELECT COUNT(*) FROM staff WHERE institution_id = $1 AND is_active`, institutionID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) CreateSnapshot(ctx context.Context, s service.Snapshot) (service.Snapshot, bool, error) {
	var (
		out     service.Snapshot
		created bool
	)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		sum := s.Summary
		var err error
		out, err = scanSnapshot(tx.QueryRow(ctx, `
			INSERT INTO fee_analysis_snapshots (snapshot_id, institution_id, academic_year_id, snapshot_date, total_students,
				total_fees_billed, total_fees_paid, total_outstanding, fully_paid_count, partially_paid_count, not_paid_count,
				overdue_count, collection_rate, average_fee_per_student, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT ON CONSTRAINT fee_analysis_snapshots_day_unique DO NOTHING
			RETURNING `+snapshotColumns,
			s.ID, s.InstitutionID, s.AcademicYearID, s.Date, sum.TotalStudents, sum.TotalBilled, sum.TotalPaid,
			sum.TotalOutstanding, sum.FullyPaid, sum.PartiallyPaid, sum.NotPaid, sum.Overdue, sum.CollectionRate,
			s.AverageFeePerStudent, s.CreatedAt))
		if errors.Is(err, pgx.ErrNoRows) {
			out, err = scanSnapshot(tx.QueryRow(ctx, `
				SELECT `+snapshotColumns+` FROM fee_analysis_snapshots
				WHERE institution_id = $1 AND academic_year_id = $2 AND snapshot_date = $3`,
				s.InstitutionID, s.AcademicYearID, s.Date))
			return err
		}
		if err != nil {
			return err
		}

		created = true
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionSnapshotCreated,
			EntityType:    "fee_analysis_snapshot",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Created fee snapshot for %s", out.Date.Format("2006-01-02")),
			Changes: map[string]any{
				"collectionRate": out.Summary.CollectionRate.StringFixed(2),
				"totalBilled":    out.Summary.TotalBilled.StringFixed(2),
				"totalPaid":      out.Summary.TotalPaid.StringFixed(2),
			},
		})
		return err
	})
	if err != nil {
		if persistence.IsForeignKeyViolation(err, "fee_analysis_snapshots_year_fk") {
			return service.Snapshot{}, false, fmt.Errorf("academic year %s: %w", s.AcademicYearID, err)
		}
		return service.Snapshot{}, false, err
	}
	return out, created, nil
}

func (r *PostgresRepository) ListSnapshots(ctx context.Context, institutionID, yearID uuid.UUID) ([]service.Snapshot, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+snapshotColumns+` FROM fee_analysis_snapshots
		WHERE institution_id = $1 AND academic_year_id = $2
		ORDER BY snapshot_date DESC`, institutionID, yearID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Snapshot, error) { return scanSnapshot(row) })
}

func scanSnapshot(row pgx.Row) (service.Snapshot, error) {
	var (
		s                                                 service.Snapshot
		students, fully, partially, notPaid, overdueCount int32
	)
	err := row.Scan(&s.ID, &s.InstitutionID, &s.AcademicYearID, &s.Date, &students, &s.Summary.TotalBilled,
		&s.Summary.TotalPaid, &s.Summary.TotalOutstanding, &fully, &partially, &notPaid, &overdueCount,
		&s.Summary.CollectionRate, &s.AverageFeePerStudent, &s.CreatedAt)
	if err != nil {
		return service.Snapshot{}, err
	}
	s.Summary.TotalStudents = int(students)
	s.Summary.FullyPaid = int(fully)
	s.Summary.PartiallyPaid = int(partially)
	s.Summary.NotPaid = int(notPaid)
	s.Summary.Overdue = int(overdueCount)
	return s, nil
}
