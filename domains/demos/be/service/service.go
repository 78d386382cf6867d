package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/validation"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = domainerr.NotFound("demo request not found")
	ErrConflictSlug = domainerr.Conflict("institution slug already exists")
	// ErrStatusChanged is returned by repositories when the stored status no longer matches the transition source.
	ErrStatusChanged = domainerr.Conflict("demo request status changed, reload and retry")
)

// Status is the triage state of a demo request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus decodes a stored or submitted status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", domainerr.Invalid("status", fmt.Sprintf("unknown status %q", s))
	}
}

// Choice lists of the intake form.
var (
	InstitutionTypes = []string{"university", "college", "secondary_school", "primary_school", "vocational", "other"}
	StudentCounts    = []string{"below_100", "100_500", "500_1000", "1000_5000", "5000_above"}
	Challenges       = []string{
		"manual_collection", "tracking", "reconciliation", "communication",
		"multiple_systems", "security", "reporting", "other_challenge",
	}
	PreferredTimes = []string{"morning", "afternoon", "evening", "flexible"}
)

// registryType maps an intake institution type onto the registry's types.
func registryType(t string) string {
	switch t {
	case "secondary_school":
		return "secondary"
	case "primary_school":
		return "primary"
	case "vocational":
		return "technical"
	default:
		return t
	}
}

// DemoRequest is a lead submitted through the public site.
type DemoRequest struct {
	ID              uuid.UUID
	FullName        string
	Email           string
	Phone           string
	JobTitle        string
	InstitutionName string
	InstitutionType string
	StudentCount    string
	Country         string
	Challenge       string
	Message         string
	PreferredTime   string
	IncludeTeam     bool
	Status          Status
	Notes           string
	InstitutionID   *uuid.UUID
	ApprovedAt      *time.Time
	ApprovedBy      *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubmitInput is the public intake payload. Agree must be true.
type SubmitInput struct {
	FullName        string
	Email           string
	Phone           string
	JobTitle        string
	InstitutionName string
	InstitutionType string
	StudentCount    string
	Country         string
	Challenge       string
	Message         string
	PreferredTime   string
	IncludeTeam     bool
	Agree           bool
}

// ApproveInput carries the optional registry overrides used when a request is approved.
type ApproveInput struct {
	Slug            string
	OnboardingNotes string
	ApprovedBy      *uuid.UUID
}

// NewInstitution is the pending registry row created by an approval.
type NewInstitution struct {
	ID              uuid.UUID
	Slug            string
	Name            string
	Type            string
	ContactName     string
	ContactEmail    string
	ContactPhone    string
	OnboardingNotes string
}

// Approval is a validated approval handed to the repository.
type Approval struct {
	From        Status
	Institution NewInstitution
	ApprovedBy  *uuid.UUID
	At          time.Time
}

// StatusChange is a validated reject or reopen handed to the repository.
type StatusChange struct {
	Action audit.Action
	From   Status
	To     Status
	Notes  string
	At     time.Time
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Status   *Status
	Page     int
	PageSize int
}

// ListResult wraps a page of demo requests.
type ListResult struct {
	Requests   []DemoRequest
	TotalItems int
}

// Repository abstracts persistence. Each mutation writes its platform audit entry in the same transaction.
type Repository interface {
	Create(ctx context.Context, d DemoRequest) (DemoRequest, error)
	Get(ctx context.Context, id uuid.UUID) (DemoRequest, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	// Approve registers a.Institution as pending with a status log row and marks the request approved.
	// It returns ErrStatusChanged when the stored status is no longer a.From.
	Approve(ctx context.Context, id uuid.UUID, a Approval) (DemoRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (DemoRequest, error)
}

// EventRecorder counts demo request events; *observability.Metrics satisfies it.
type EventRecorder interface {
	DemoRequestEvent(event string)
}

// Service provides demo request intake and triage.
type Service struct {
	repo    Repository
	mailer  notify.Mailer
	metrics EventRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMailer sends the intake confirmation.
func WithMailer(m notify.Mailer) Option { return func(s *Service) { s.mailer = m } }

func WithMetrics(m EventRecorder) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New constructs a Service with required dependencies.
func New(repo Repository, opts ...Option) *Service {
	if repo == nil {
		panic("demos repo is required")
	}
	s := &Service{repo: repo, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func required(fields domainerr.FieldErrors, field, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		fields.Add(field, "is required")
	}
	return value
}

func oneOf(fields domainerr.FieldErrors, field, value string, allowed []string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		fields.Add(field, "is required")
		return value
	}
	for _, a := range allowed {
		if a == value {
			return value
		}
	}
	fields.Add(field, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
	return value
}

// Submit records a demo request and emails a best-effort confirmation to the requester.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (DemoRequest, error) {
	fields := domainerr.FieldErrors{}

	email, err := validation.Email(in.Email)
	if err != nil {
		fields.Add("email", err.Error())
	}
	now := s.now().UTC()
	d := DemoRequest{
		ID:              uuid.New(),
		FullName:        required(fields, "fullName", in.FullName),
		Email:           email,
		Phone:           required(fields, "phone", in.Phone),
		JobTitle:        required(fields, "jobTitle", in.JobTitle),
		InstitutionName: required(fields, "institutionName", in.InstitutionName),
		InstitutionType: oneOf(fields, "institutionType", in.InstitutionType, InstitutionTypes),
		StudentCount:    oneOf(fields, "studentCount", in.StudentCount, StudentCounts),
		Country:         required(fields, "country", in.Country),
		Challenge:       oneOf(fields, "challenge", in.Challenge, Challenges),
		Message:         strings.TrimSpace(in.Message),
		PreferredTime:   oneOf(fields, "preferredTime", in.PreferredTime, PreferredTimes),
		IncludeTeam:     in.IncludeTeam,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !in.Agree {
		fields.Add("agree", "the terms must be accepted")
	}
	if err := fields.Err(); err != nil {
		return DemoRequest{}, err
	}

	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return DemoRequest{}, err
	}
	if s.metrics != nil {
		s.metrics.DemoRequestEvent("submitted")
	}
	notify.BestEffort(ctx, s.logger, s.mailer, confirmation(created))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (DemoRequest, error) {
	if id == uuid.Nil {
		return DemoRequest{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Approve turns the request into a pending institution. Pending and rejected requests may be approved;
// an approved request is final.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, in ApproveInput) (DemoRequest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return DemoRequest{}, err
	}
	if d.Status == StatusApproved {
		return DemoRequest{}, domainerr.Conflict("demo request is already approved")
	}

	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = persistence.SlugFromName(d.InstitutionName)
	}
	slug, err = persistence.NormalizeSlug(slug)
	if err != nil {
		return DemoRequest{}, domainerr.Invalid("slug", err.Error())
	}

	notes := strings.TrimSpace(in.OnboardingNotes)
	if notes == "" {
		notes = "Created from demo request approval"
	}
	out, err := s.repo.Approve(ctx, id, Approval{
		From: d.Status,
		Institution: NewInstitution{
			ID:              uuid.New(),
			Slug:            slug,
			Name:            d.InstitutionName,
			Type:            registryType(d.InstitutionType),
			ContactName:     d.FullName,
			ContactEmail:    d.Email,
			ContactPhone:    d.Phone,
			OnboardingNotes: notes,
		},
		ApprovedBy: in.ApprovedBy,
		At:         s.now().UTC(),
	})
	if err != nil {
		return DemoRequest{}, err
	}
	if s.metrics != nil {
		s.metrics.DemoRequestEvent("approved")
	}
	s.logger.Info("demo request approved",
		zap.String("demo_request_id", id.String()),
		zap.String("slug", slug))
	return out, nil
}

// Reject closes a pending request.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes string) (DemoRequest, error) {
	return s.move(ctx, id, StatusPending, StatusRejected, audit.ActionDemoRejected, notes)
}

// Reopen returns a rejected request to the pending queue.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID, notes string) (DemoRequest, error) {
	return s.move(ctx, id, StatusRejected, StatusPending, audit.ActionDemoReopened, notes)
}

func (s *Service) move(ctx context.Context, id uuid.UUID, from, to Status, action audit.Action, notes string) (DemoRequest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return DemoRequest{}, err
	}
	if d.Status != from {
		return DemoRequest{}, domainerr.Conflict(fmt.Sprintf("demo request is %s, expected %s", d.Status, from))
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = d.Notes
	}
	out, err := s.repo.SetStatus(ctx, id, StatusChange{Action: action, From: from, To: to, Notes: notes, At: s.now().UTC()})
	if err != nil {
		return DemoRequest{}, err
	}
	if s.metrics != nil {
		s.metrics.DemoRequestEvent(strings.TrimPrefix(string(action), "demo_request_"))
	}
	return out, nil
}

func confirmation(d DemoRequest) notify.Message {
	body := fmt.Sprintf("Dear %s,\n\nThank you for requesting a demo of EduPay Africa for %s.\n"+
		"Our team will review your request and get back to you within 24 business hours "+
		"to schedule a session at your preferred time (%s).\n\nThe EduPay Africa Team",
		d.FullName, d.InstitutionName, d.PreferredTime)
	return notify.Message{
		ToName:      d.FullName,
		ToAddress:   d.Email,
		Subject:     "Welcome to EduPay Africa - Demo Request Confirmed",
		TextContent: body,
	}
}
