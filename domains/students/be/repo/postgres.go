package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

const studentColumns = `student_id, institution_id, program_id, academic_year_id, full_name, admission_number, email, phone,
	date_of_birth, gender, is_active, created_at, updated_at`

// PostgresRepository stores student records.
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

const insertStudent = `
	INSERT INTO students (student_id, institution_id, program_id, academic_year_id, full_name, admission_number,
		email, phone, date_of_birth, gender, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func insertArgs(s service.Student) []any {
	return []any{s.ID, s.InstitutionID, s.ProgramID, s.AcademicYearID, s.FullName, s.AdmissionNumber,
		s.Email, s.Phone, s.DateOfBirth, s.Gender, s.IsActive, s.CreatedAt, s.UpdatedAt}
}

func (r *PostgresRepository) Create(ctx context.Context, s service.Student) (service.Student, error) {
	var out service.Student
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		if out, err = scanStudent(tx.QueryRow(ctx, insertStudent+` RETURNING `+studentColumns, insertArgs(s)...)); err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionStudentCreated,
			EntityType:    "student",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Created student %s (%s)", out.FullName, out.AdmissionNumber),
		})
		return err
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "students_admission_unique"):
		return service.Student{}, service.ErrAdmissionTaken
	}
	return service.Student{}, err
}

func (r *PostgresRepository) Get(ctx context.Context, institutionID, studentID uuid.UUID) (service.Student, error) {
	s, err := scanStudent(r.db.Reader().QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE institution_id = $1 AND student_id = $2`, institutionID, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Student{}, service.ErrNotFound
	}
	return s, err
}

func (r *PostgresRepository) List(ctx context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	where := []string{"institution_id = $1"}
	args := []any{institutionID}
	if opts.ProgramID != nil {
		args = append(args, *opts.ProgramID)
		where = append(where, fmt.Sprintf("program_id = $%d", len(args)))
	}
	if opts.AcademicYearID != nil {
		args = append(args, *opts.AcademicYearID)
		where = append(where, fmt.Sprintf("academic_year_id = $%d", len(args)))
	}
	if opts.Active != nil {
		args = append(args, *opts.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR admission_number ILIKE $%d)", len(args), len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM students`+clause, args...).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count students: %w", err)
	}

	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM students%s ORDER BY full_name, admission_number LIMIT $%d OFFSET $%d`,
		studentColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list students: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Student, error) { return scanStudent(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan students: %w", err)
	}
	return service.ListResult{Students: items, TotalItems: total}, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, before service.Student) (service.Student, error) {
	var out service.Student
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanStudent(tx.QueryRow(ctx, `
			UPDATE students SET is_active = FALSE, updated_at = NOW()
			WHERE institution_id = $1 AND student_id = $2
			RETURNING `+studentColumns, before.InstitutionID, before.ID))
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrNotFound
		}
		if err != nil {
			return err
		}
		institutionID := out.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionStudentDeactivated,
			EntityType:    "student",
			EntityID:      out.ID.String(),
			Description:   fmt.Sprintf("Deactivated student %s", out.AdmissionNumber),
			Changes:       audit.Diff(map[string]any{"isActive": before.IsActive}, map[string]any{"isActive": out.IsActive}),
		})
		return err
	})
	if err != nil {
		return service.Student{}, err
	}
	return out, nil
}

func (r *PostgresRepository) Import(ctx context.Context, institutionID uuid.UUID, students []service.Student, source string) ([]string, error) {
	var inserted []string
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range students {
			batch.Queue(insertStudent+` ON CONFLICT ON CONSTRAINT students_admission_unique DO NOTHING RETURNING admission_number`, insertArgs(s)...)
		}
		results := tx.SendBatch(ctx, batch)
		for range students {
			var admission string
			err := results.QueryRow().Scan(&admission)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("import student: %w", err)
			}
			inserted = append(inserted, admission)
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("import students: %w", err)
		}

		_, err := audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionStudentsImported,
			EntityType:    "student",
			EntityID:      "bulk",
			Description:   fmt.Sprintf("Imported %d students from %s", len(inserted), source),
			Changes:       map[string]any{"created": len(inserted), "submitted": len(students), "source": source},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func scanStudent(row pgx.Row) (service.Student, error) {
	var s service.Student
	err := row.Scan(&s.ID, &s.InstitutionID, &s.ProgramID, &s.AcademicYearID, &s.FullName, &s.AdmissionNumber, &s.Email, &s.Phone,
		&s.DateOfBirth, &s.Gender, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
