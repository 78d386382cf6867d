package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

const (
	yearColumns    = `academic_year_id, institution_id, year_code, start_date, end_date, is_active, created_at, updated_at`
	termColumns    = `term_id, institution_id, academic_year_id, term_number, term_name, start_date, end_date, created_at`
	facultyColumns = `faculty_id, institution_id, name, code, description, is_active, created_at`
	programColumns = `program_id, institution_id, faculty_id, name, code, program_type, duration_months, description, is_active, created_at`
)

// PostgresRepository stores the academic structure of every institution.
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

// created runs insert and its audit entry in one transaction.
func (r *PostgresRepository) created(ctx context.Context, institutionID uuid.UUID, insert func(pgx.Tx) (audit.Entry, error)) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		entry, err := insert(tx)
		if err != nil {
			return err
		}
		entry.InstitutionID = &institutionID
		_, err = audit.Write(ctx, tx, entry)
		return err
	})
}

func (r *PostgresRepository) CreateYear(ctx context.Context, y service.AcademicYear) (service.AcademicYear, error) {
	var out service.AcademicYear
	err := r.created(ctx, y.InstitutionID, func(tx pgx.Tx) (audit.Entry, error) {
		if y.IsActive {
			if err := deactivateYears(ctx, tx, y.InstitutionID); err != nil {
				return audit.Entry{}, err
			}
		}
		var err error
		out, err = scanYear(tx.QueryRow(ctx, `
			INSERT INTO academic_years (academic_year_id, institution_id, year_code, start_date, end_date, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+yearColumns,
			y.ID, y.InstitutionID, y.Code, y.StartDate, y.EndDate, y.IsActive, y.CreatedAt, y.UpdatedAt))
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionAcademicYearCreated,
			EntityType:  "academic_year",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Created academic year %s", out.Code),
			Changes:     map[string]any{"isActive": out.IsActive},
		}, nil
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "academic_years_code_unique"):
		return service.AcademicYear{}, service.ErrYearCodeTaken
	case persistence.IsExclusionViolation(err, "academic_years_no_overlap"):
		return service.AcademicYear{}, service.ErrYearOverlap
	}
	return service.AcademicYear{}, err
}

func deactivateYears(ctx context.Context, tx pgx.Tx, institutionID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		UPDATE academic_years SET is_active = FALSE, updated_at = NOW()
		WHERE institution_id = $1 AND is_active`, institutionID); err != nil {
		return fmt.Errorf("deactivate academic years: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ActivateYear(ctx context.Context, institutionID, yearID uuid.UUID) (service.AcademicYear, error) {
	var out service.AcademicYear
	err := r.created(ctx, institutionID, func(tx pgx.Tx) (audit.Entry, error) {
		if err := deactivateYears(ctx, tx, institutionID); err != nil {
			return audit.Entry{}, err
		}
		var err error
		out, err = scanYear(tx.QueryRow(ctx, `
			UPDATE academic_years SET is_active = TRUE, updated_at = NOW()
			WHERE institution_id = $1 AND academic_year_id = $2
			RETURNING `+yearColumns, institutionID, yearID))
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Entry{}, service.ErrYearNotFound
		}
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionAcademicYearActivated,
			EntityType:  "academic_year",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Activated academic year %s", out.Code),
		}, nil
	})
	if err != nil {
		return service.AcademicYear{}, err
	}
	return out, nil
}

func (r *PostgresRepository) GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (service.AcademicYear, error) {
	return r.oneYear(ctx, `institution_id = $1 AND academic_year_id = $2`, service.ErrYearNotFound, institutionID, yearID)
}

func (r *PostgresRepository) ActiveYear(ctx context.Context, institutionID uuid.UUID) (service.AcademicYear, error) {
	return r.oneYear(ctx, `institution_id = $1 AND is_active`, service.ErrNoActiveYear, institutionID)
}

func (r *PostgresRepository) YearByCode(ctx context.Context, institutionID uuid.UUID, code string) (service.AcademicYear, error) {
	return r.oneYear(ctx, `institution_id = $1 AND year_code = $2`, service.ErrYearNotFound, institutionID, code)
}

func (r *PostgresRepository) oneYear(ctx context.Context, where string, notFound error, args ...any) (service.AcademicYear, error) {
	y, err := scanYear(r.db.Reader().QueryRow(ctx, `SELECT `+yearColumns+` FROM academic_years WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.AcademicYear{}, notFound
	}
	return y, err
}

func (r *PostgresRepository) ListYears(ctx context.Context, institutionID uuid.UUID) ([]service.AcademicYear, error) {
	rows, err := r.db.Reader().Query(ctx,
		`SELECT `+yearColumns+` FROM academic_years WHERE institution_id = $1 ORDER BY start_date DESC`, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.AcademicYear, error) { return scanYear(row) })
}

func (r *PostgresRepository) CreateTerm(ctx context.Context, t service.Term) (service.Term, error) {
	var out service.Term
	err := r.created(ctx, t.InstitutionID, func(tx pgx.Tx) (audit.Entry, error) {
		var err error
		out, err = scanTerm(tx.QueryRow(ctx, `
			INSERT INTO terms (term_id, institution_id, academic_year_id, term_number, term_name, start_date, end_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+termColumns,
			t.ID, t.InstitutionID, t.AcademicYearID, t.Number, t.Name, t.StartDate, t.EndDate, t.CreatedAt))
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionTermCreated,
			EntityType:  "term",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Created %s", out.Name),
			Changes:     map[string]any{"academicYearId": out.AcademicYearID.String(), "number": out.Number},
		}, nil
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "terms_number_unique"):
		return service.Term{}, service.ErrTermNumberTaken
	case persistence.IsForeignKeyViolation(err, "terms_year_fk"):
		return service.Term{}, service.ErrYearNotFound
	}
	return service.Term{}, err
}

func (r *PostgresRepository) GetTerm(ctx context.Context, institutionID, termID uuid.UUID) (service.Term, error) {
	t, err := scanTerm(r.db.Reader().QueryRow(ctx,
		`SELECT `+termColumns+` FROM terms WHERE institution_id = $1 AND term_id = $2`, institutionID, termID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Term{}, service.ErrTermNotFound
	}
	return t, err
}

func (r *PostgresRepository) ListTerms(ctx context.Context, institutionID, yearID uuid.UUID) ([]service.Term, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+termColumns+` FROM terms
		WHERE institution_id = $1 AND academic_year_id = $2
		ORDER BY term_number`, institutionID, yearID)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Term, error) { return scanTerm(row) })
}

func (r *PostgresRepository) CreateFaculty(ctx context.Context, f service.Faculty) (service.Faculty, error) {
	var out service.Faculty
	err := r.created(ctx, f.InstitutionID, func(tx pgx.Tx) (audit.Entry, error) {
		var err error
		out, err = scanFaculty(tx.QueryRow(ctx, `
			INSERT INTO faculties (faculty_id, institution_id, name, code, description, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+facultyColumns,
			f.ID, f.InstitutionID, f.Name, f.Code, f.Description, f.IsActive, f.CreatedAt))
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionFacultyCreated,
			EntityType:  "faculty",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Created faculty %s (%s)", out.Name, out.Code),
		}, nil
	})
	if persistence.IsUniqueViolation(err, "faculties_code_unique") {
		return service.Faculty{}, service.ErrFacultyCodeUsed
	}
	if err != nil {
		return service.Faculty{}, err
	}
	return out, nil
}

func (r *PostgresRepository) GetFaculty(ctx context.Context, institutionID, facultyID uuid.UUID) (service.Faculty, error) {
	f, err := scanFaculty(r.db.Reader().QueryRow(ctx,
		`SELECT `+facultyColumns+` FROM faculties WHERE institution_id = $1 AND faculty_id = $2`, institutionID, facultyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Faculty{}, service.ErrFacultyNotFound
	}
	return f, err
}

func (r *PostgresRepository) ListFaculties(ctx context.Context, institutionID uuid.UUID) ([]service.Faculty, error) {
	rows, err := r.db.Reader().Query(ctx,
		`SELECT `+facultyColumns+` FROM faculties WHERE institution_id = $1 ORDER BY name`, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Faculty, error) { return scanFaculty(row) })
}

func (r *PostgresRepository) CreateProgram(ctx context.Context, p service.Program) (service.Program, error) {
	var out service.Program
	err := r.created(ctx, p.InstitutionID, func(tx pgx.Tx) (audit.Entry, error) {
		var err error
		out, err = scanProgram(tx.QueryRow(ctx, `
			INSERT INTO programs (program_id, institution_id, faculty_id, name, code, program_type, duration_months, description, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+programColumns,
			p.ID, p.InstitutionID, p.FacultyID, p.Name, p.Code, string(p.Type), p.DurationMonths, p.Description, p.IsActive, p.CreatedAt))
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionProgramCreated,
			EntityType:  "program",
			EntityID:    out.ID.String(),
			Description: fmt.Sprintf("Created program %s (%s)", out.Name, out.Code),
			Changes:     map[string]any{"facultyId": out.FacultyID.String(), "type": string(out.Type)},
		}, nil
	})
	switch {
	case err == nil:
		return out, nil
	case persistence.IsUniqueViolation(err, "programs_code_unique"):
		return service.Program{}, service.ErrProgramCodeUsed
	case persistence.IsForeignKeyViolation(err, "programs_faculty_fk"):
		return service.Program{}, service.ErrFacultyNotFound
	}
	return service.Program{}, err
}

func (r *PostgresRepository) GetProgram(ctx context.Context, institutionID, programID uuid.UUID) (service.Program, error) {
	return r.oneProgram(ctx, `program_id = $2`, institutionID, programID)
}

func (r *PostgresRepository) ProgramByCode(ctx context.Context, institutionID uuid.UUID, code string) (service.Program, error) {
	return r.oneProgram(ctx, `code = $2`, institutionID, code)
}

func (r *PostgresRepository) oneProgram(ctx context.Context, where string, institutionID uuid.UUID, key any) (service.Program, error) {
	p, err := scanProgram(r.db.Reader().QueryRow(ctx,
		`SELECT `+programColumns+` FROM programs WHERE institution_id = $1 AND `+where, institutionID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Program{}, service.ErrProgramNotFound
	}
	return p, err
}

func (r *PostgresRepository) ListPrograms(ctx context.Context, institutionID uuid.UUID, facultyID *uuid.UUID) ([]service.Program, error) {
	rows, err := r.db.Reader().Query(ctx, `
		SELECT `+programColumns+` FROM programs
		WHERE institution_id = $1 AND ($2::uuid IS NULL OR faculty_id = $2)
		ORDER BY name`, institutionID, facultyID)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Program, error) { return scanProgram(row) })
}

func scanYear(row pgx.Row) (service.AcademicYear, error) {
	var y service.AcademicYear
	err := row.Scan(&y.ID, &y.InstitutionID, &y.Code, &y.StartDate, &y.EndDate, &y.IsActive, &y.CreatedAt, &y.UpdatedAt)
	return y, err
}

func scanTerm(row pgx.Row) (service.Term, error) {
	var t service.Term
	var number int16
	err := row.Scan(&t.ID, &t.InstitutionID, &t.AcademicYearID, &number, &t.Name, &t.StartDate, &t.EndDate, &t.CreatedAt)
	t.Number = int(number)
	return t, err
}

func scanFaculty(row pgx.Row) (service.Faculty, error) {
	var f service.Faculty
	err := row.Scan(&f.ID, &f.InstitutionID, &f.Name, &f.Code, &f.Description, &f.IsActive, &f.CreatedAt)
	return f, err
}

func scanProgram(row pgx.Row) (service.Program, error) {
	var p service.Program
	var kind string
	err := row.Scan(&p.ID, &p.InstitutionID, &p.FacultyID, &p.Name, &p.Code, &kind, &p.DurationMonths, &p.Description, &p.IsActive, &p.CreatedAt)
	p.Type = service.ProgramType(kind)
	return p, err
}
