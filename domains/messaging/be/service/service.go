package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
)

var ErrNotFound = domainerr.NotFound("message not found")

// Type categorises a message for the recipient.
type Type string

const (
	TypeReminder       Type = "reminder"
	TypeUrgent         Type = "urgent"
	TypeAnnouncement   Type = "announcement"
	TypeCongratulation Type = "congratulation"
)

func parseType(s string) (Type, bool) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeReminder, TypeUrgent, TypeAnnouncement, TypeCongratulation:
		return t, true
	}
	return "", false
}

// Target selects the recipients of a message.
type Target string

const (
	// TargetAll reaches every active student.
	TargetAll Target = "all"
	// TargetOverdue reaches active students holding at least one overdue fee assignment.
	TargetOverdue Target = "overdue"
	// TargetSpecific reaches the listed students, all of which must be active members of the institution.
	TargetSpecific Target = "specific"
)

func parseTarget(s string) (Target, bool) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetAll, TargetOverdue, TargetSpecific:
		return t, true
	}
	return "", false
}

// Message is a principal broadcast. Recipients are fixed when it is sent.
type Message struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	SentByStaffID  *uuid.UUID
	Subject        string
	Type           Type
	Content        string
	Target         Target
	RecipientCount int
	IsActive       bool
	SentAt         time.Time
}

// Recipient is a student a message was addressed to.
type Recipient struct {
	StudentID       uuid.UUID
	FullName        string
	AdmissionNumber string
	Email           string
}

// Delivery is a message together with its resolved recipients.
type Delivery struct {
	Message    Message
	Recipients []Recipient
}

// SendInput is the compose payload.
type SendInput struct {
	InstitutionID   uuid.UUID
	InstitutionName string
	SentByStaffID   *uuid.UUID
	Subject         string
	Type            string
	Content         string
	Target          string
	StudentIDs      []uuid.UUID
}

type ListOptions struct {
	Page     int
	PageSize int
}

type ListResult struct {
	Messages   []Message
	TotalItems int
}

// Repository abstracts persistence.
type Repository interface {
	// Send resolves the recipients of m inside one transaction, stores the message with them and writes
	// the institution audit entry. studentIDs is only consulted for TargetSpecific.
	Send(ctx context.Context, m Message, studentIDs []uuid.UUID) (Delivery, error)
	List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, institutionID, id uuid.UUID) (Delivery, error)
}

// SendRecorder counts sent messages; *observability.Metrics satisfies it.
type SendRecorder interface {
	MessageSent(target string)
}

// Service provides principal messaging.
type Service struct {
	repo    Repository
	mailer  notify.Mailer
	metrics SendRecorder
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

// WithMailer emails each recipient that has an address on file.
func WithMailer(m notify.Mailer) Option { return func(s *Service) { s.mailer = m } }

func WithMetrics(m SendRecorder) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(repo Repository, opts ...Option) *Service {
	if repo == nil {
		panic("messaging repo is required")
	}
	s := &Service{repo: repo, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates and stores a message, then emails recipients best-effort.
func (s *Service) Send(ctx context.Context, in SendInput) (Delivery, error) {
	fields := domainerr.FieldErrors{}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		fields.Add("subject", "subject is required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		fields.Add("content", "content is required")
	}
	kind, ok := parseType(in.Type)
	if !ok {
		fields.Add("type", fmt.Sprintf("unknown message type %q", in.Type))
	}
	target, ok := parseTarget(in.Target)
	if !ok {
		fields.Add("target", fmt.Sprintf("unknown target %q", in.Target))
	}

	var studentIDs []uuid.UUID
	switch {
	case target == TargetSpecific:
		seen := make(map[uuid.UUID]bool, len(in.StudentIDs))
		for _, id := range in.StudentIDs {
			if id == uuid.Nil || seen[id] {
				continue
			}
			seen[id] = true
			studentIDs = append(studentIDs, id)
		}
		if len(studentIDs) == 0 {
			fields.Add("studentIds", "at least one student is required")
		}
	case len(in.StudentIDs) > 0:
		fields.Add("studentIds", "only allowed with the specific target")
	}
	if err := fields.Err(); err != nil {
		return Delivery{}, err
	}

	d, err := s.repo.Send(ctx, Message{
		ID:            uuid.New(),
		InstitutionID: in.InstitutionID,
		SentByStaffID: in.SentByStaffID,
		Subject:       subject,
		Type:          kind,
		Content:       content,
		Target:        target,
		IsActive:      true,
		SentAt:        s.now().UTC(),
	}, studentIDs)
	if err != nil {
		return Delivery{}, err
	}
	if s.metrics != nil {
		s.metrics.MessageSent(string(target))
	}
	s.logger.Info("principal message sent",
		zap.String("message_id", d.Message.ID.String()),
		zap.String("target", string(target)),
		zap.Int("recipients", d.Message.RecipientCount))

	for _, r := range d.Recipients {
		if r.Email == "" {
			continue
		}
		notify.BestEffort(ctx, s.logger, s.mailer, email(d.Message, r, in.InstitutionName))
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, institutionID, opts)
}

func (s *Service) Get(ctx context.Context, institutionID, id uuid.UUID) (Delivery, error) {
	if id == uuid.Nil {
		return Delivery{}, ErrNotFound
	}
	return s.repo.Get(ctx, institutionID, id)
}

func email(m Message, r Recipient, institutionName string) notify.Message {
	if institutionName == "" {
		institutionName = "your institution"
	}
	subject := m.Subject
	if m.Type == TypeUrgent {
		subject = "[Urgent] " + subject
	}
	return notify.Message{
		ToName:      r.FullName,
		ToAddress:   r.Email,
		Subject:     subject,
		TextContent: fmt.Sprintf("Dear %s,\n\n%s\n\nOffice of the Principal, %s", r.FullName, m.Content, institutionName),
	}
}
