package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/edupay-saas/domains/messaging/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

const messageColumns = `message_id, institution_id, sent_by, subject, message_type, content, target,
	recipient_count, is_active, sent_at`

const recipientSelect = `SELECT s.student_id, s.full_name, s.admission_number, s.email FROM students s`

// PostgresRepository stores principal messages in the tenant tables.
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

func resolveQuery(target service.Target) string {
	switch target {
	case service.TargetOverdue:
		return recipientSelect + ` WHERE s.institution_id = $1 AND s.is_active AND EXISTS (
			SELECT 1 FROM student_fee_assignments a
			WHERE a.institution_id = s.institution_id AND a.student_id = s.student_id AND a.is_overdue)
			ORDER BY s.full_name, s.student_id`
	case service.TargetSpecific:
		return recipientSelect + ` WHERE s.institution_id = $1 AND s.is_active AND s.student_id = ANY($2)
			ORDER BY s.full_name, s.student_id`
	default:
		return recipientSelect + ` WHERE s.institution_id = $1 AND s.is_active ORDER BY s.full_name, s.student_id`
	}
}

func (r *PostgresRepository) Send(ctx context.Context, m service.Message, studentIDs []uuid.UUID) (service.Delivery, error) {
	var out service.Delivery
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		args := []any{m.InstitutionID}
		if m.Target == service.TargetSpecific {
			args = append(args, studentIDs)
		}
		rows, err := tx.Query(ctx, resolveQuery(m.Target), args...)
		if err != nil {
			return fmt.Errorf("resolve recipients: %w", err)
		}
		recipients, err := pgx.CollectRows(rows, scanRecipient)
		if err != nil {
			return fmt.Errorf("scan recipients: %w", err)
		}
		if m.Target == service.TargetSpecific && len(recipients) != len(studentIDs) {
			return domainerr.Invalid("studentIds", "every student must be an active student of this institution")
		}
		if len(recipients) == 0 {
			return domainerr.Invalid("target", "no students match the selected target")
		}

		m.RecipientCount = len(recipients)
		row := tx.QueryRow(ctx, `
			INSERT INTO principal_messages (message_id, institution_id, sent_by, subject, message_type, content,
				target, recipient_count, is_active, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+messageColumns,
			m.ID, m.InstitutionID, m.SentByStaffID, m.Subject, string(m.Type), m.Content,
			string(m.Target), m.RecipientCount, m.IsActive, m.SentAt)
		if out.Message, err = scanMessage(row); err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(recipients))
		for _, rec := range recipients {
			ids = append(ids, rec.StudentID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO principal_message_recipients (institution_id, message_id, student_id)
			SELECT $1, $2, unnest($3::uuid[])`, m.InstitutionID, m.ID, ids); err != nil {
			return fmt.Errorf("insert recipients: %w", err)
		}
		out.Recipients = recipients

		institutionID := m.InstitutionID
		_, err = audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &institutionID,
			Action:        audit.ActionMessageSent,
			EntityType:    "principal_message",
			EntityID:      m.ID.String(),
			Description:   fmt.Sprintf("Sent message to %d students", len(recipients)),
			Changes: map[string]any{
				"subject": m.Subject,
				"type":    string(m.Type),
				"target":  string(m.Target),
			},
		})
		return err
	})
	if err != nil {
		return service.Delivery{}, err
	}
	return out, nil
}

func (r *PostgresRepository) List(ctx context.Context, institutionID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	q := r.db.Reader()
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM principal_messages WHERE institution_id = $1`, institutionID).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count messages: %w", err)
	}
	limit, offset := persistence.LimitOffset(opts.Page, opts.PageSize)
	rows, err := q.Query(ctx, `SELECT `+messageColumns+` FROM principal_messages
		WHERE institution_id = $1 ORDER BY sent_at DESC, message_id LIMIT $2 OFFSET $3`, institutionID, limit, offset)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list messages: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.Message, error) { return scanMessage(row) })
	if err != nil {
		return service.ListResult{}, fmt.Errorf("scan messages: %w", err)
	}
	return service.ListResult{Messages: items, TotalItems: total}, nil
}

func (r *PostgresRepository) Get(ctx context.Context, institutionID, id uuid.UUID) (service.Delivery, error) {
	q := r.db.Reader()
	m, err := scanMessage(q.QueryRow(ctx, `SELECT `+messageColumns+` FROM principal_messages
		WHERE institution_id = $1 AND message_id = $2`, institutionID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Delivery{}, service.ErrNotFound
	}
	if err != nil {
		return service.Delivery{}, err
	}
	rows, err := q.Query(ctx, recipientSelect+`
		JOIN principal_message_recipients pr ON pr.institution_id = s.institution_id AND pr.student_id = s.student_id
		WHERE pr.institution_id = $1 AND pr.message_id = $2
		ORDER BY s.full_name, s.student_id`, institutionID, id)
	if err != nil {
		return service.Delivery{}, fmt.Errorf("list recipients: %w", err)
	}
	recipients, err := pgx.CollectRows(rows, scanRecipient)
	if err != nil {
		return service.Delivery{}, fmt.Errorf("scan recipients: %w", err)
	}
	return service.Delivery{Message: m, Recipients: recipients}, nil
}

func scanRecipient(row pgx.CollectableRow) (service.Recipient, error) {
	var rec service.Recipient
	err := row.Scan(&rec.StudentID, &rec.FullName, &rec.AdmissionNumber, &rec.Email)
	return rec, err
}

func scanMessage(row pgx.Row) (service.Message, error) {
	var m service.Message
	var kind, target string
	err := row.Scan(&m.ID, &m.InstitutionID, &m.SentByStaffID, &m.Subject, &kind, &m.Content, &target,
		&m.RecipientCount, &m.IsActive, &m.SentAt)
	if err != nil {
		return service.Message{}, err
	}
	m.Type, m.Target = service.Type(kind), service.Target(target)
	return m, nil
}
