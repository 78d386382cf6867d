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
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
	"github.com/zenGate-Global/edupay-saas/platform/go/validation"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = domainerr.NotFound("institution not found")
	ErrConflictSlug = domainerr.Conflict("institution slug already exists")
	// ErrStatusChanged is returned by repositories when the stored status no longer matches the transition source.
	ErrStatusChanged = domainerr.Conflict("institution status changed, reload and retry")
)

// Type classifies the institution.
type Type string

const (
	TypeUniversity Type = "university"
	TypeCollege    Type = "college"
	TypeTechnical  Type = "technical"
	TypeSecondary  Type = "secondary"
	TypePrimary    Type = "primary"
	TypeOther      Type = "other"
)

func parseType(s string) (Type, bool) {
	switch t := Type(s); t {
	case TypeUniversity, TypeCollege, TypeTechnical, TypeSecondary, TypePrimary, TypeOther:
		return t, true
	}
	return "", false
}

// Institution is a tenant registry entry.
type Institution struct {
	ID              uuid.UUID
	Slug            string
	Name            string
	Type            Type
	ContactName     string
	ContactEmail    string
	ContactPhone    string
	Address         string
	LogoURL         *string
	Status          Status
	OnboardingNotes string
	ApprovedAt      *time.Time
	ActivatedAt     *time.Time
	SuspendedAt     *time.Time
	DeactivatedAt   *time.Time
	RejectedAt      *time.Time
	CreatedBy       *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Profile is the subset of fields an institution admin may edit.
func (i Institution) Profile() map[string]any {
	logo := ""
	if i.LogoURL != nil {
		logo = *i.LogoURL
	}
	return map[string]any{
		"name":         i.Name,
		"contactName":  i.ContactName,
		"contactEmail": i.ContactEmail,
		"contactPhone": i.ContactPhone,
		"address":      i.Address,
		"logoUrl":      logo,
	}
}

// StatusLog is one entry of the append-only lifecycle log.
type StatusLog struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	Action         string
	PreviousStatus Status
	NewStatus      Status
	Note           string
	ActorID        *uuid.UUID
	CreatedAt      time.Time
}

// Transition is a validated lifecycle change handed to the repository.
type Transition struct {
	Action Action
	From   Status
	To     Status
	Note   string
	At     time.Time
}

// CreateInput is the registration payload.
type CreateInput struct {
	Name            string
	Slug            string
	Type            string
	ContactName     string
	ContactEmail    string
	ContactPhone    string
	Address         string
	OnboardingNotes string
	CreatedBy       *uuid.UUID
}

// ProfileInput carries optional profile changes.
type ProfileInput struct {
	Name         *string
	ContactName  *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	LogoURL      *string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Status   *Status
	Search   *string
	Page     int
	PageSize int
}

// ListResult wraps a page of institutions.
type ListResult struct {
	Institutions []Institution
	TotalItems   int
}

// Repository abstracts persistence. Each mutation writes its audit entry in the same transaction.
type Repository interface {
	Create(ctx context.Context, inst Institution) (Institution, error)
	Get(ctx context.Context, id uuid.UUID) (Institution, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	// ApplyTransition moves the institution from t.From to t.To, appends a status log row and a
	// platform audit entry. It returns ErrStatusChanged when the stored status is no longer t.From.
	ApplyTransition(ctx context.Context, id uuid.UUID, t Transition) (Institution, error)
	UpdateProfile(ctx context.Context, before, after Institution) (Institution, error)
	StatusLog(ctx context.Context, id uuid.UUID) ([]StatusLog, error)
}

// TransitionRecorder counts lifecycle transitions; *observability.Metrics satisfies it.
type TransitionRecorder interface {
	InstitutionTransition(action string)
}

// Service provides institution registry operations.
type Service struct {
	repo    Repository
	mailer  notify.Mailer
	metrics TransitionRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMailer notifies institution contacts of lifecycle decisions.
func WithMailer(m notify.Mailer) Option { return func(s *Service) { s.mailer = m } }

// WithMetrics records transitions.
func WithMetrics(m TransitionRecorder) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New constructs a Service with required dependencies.
func New(repo Repository, opts ...Option) *Service {
	if repo == nil {
		panic("institutions repo is required")
	}
	s := &Service{repo: repo, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new institution in the pending state.
func (s *Service) Create(ctx context.Context, input CreateInput) (Institution, error) {
	fields := domainerr.FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields.Add("name", "name is required")
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = persistence.SlugFromName(name)
	}
	slug, err := persistence.NormalizeSlug(slug)
	if err != nil {
		fields.Add("slug", err.Error())
	}

	kind := TypeOther
	if strings.TrimSpace(input.Type) != "" {
		var ok bool
		if kind, ok = parseType(strings.TrimSpace(input.Type)); !ok {
			fields.Add("type", fmt.Sprintf("unknown institution type %q", input.Type))
		}
	}

	email, err := validation.Email(input.ContactEmail)
	if err != nil {
		fields.Add("contactEmail", "a valid contact email is required")
	}

	if err := fields.Err(); err != nil {
		return Institution{}, err
	}

	now := s.now().UTC()
	inst := Institution{
		ID:              uuid.New(),
		Slug:            slug,
		Name:            name,
		Type:            kind,
		ContactName:     strings.TrimSpace(input.ContactName),
		ContactEmail:    email,
		ContactPhone:    strings.TrimSpace(input.ContactPhone),
		Address:         strings.TrimSpace(input.Address),
		Status:          StatusPending,
		OnboardingNotes: strings.TrimSpace(input.OnboardingNotes),
		CreatedBy:       input.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.repo.Create(ctx, inst)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Institution, error) {
	if id == uuid.Nil {
		return Institution{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.Search != nil && strings.TrimSpace(*opts.Search) == "" {
		opts.Search = nil
	}
	return s.repo.List(ctx, opts)
}

// Transition applies a lifecycle action. Invalid transitions are Conflict errors and write nothing.
// The contact email after approve, reject and suspend is best-effort.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action, note string) (Institution, error) {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return Institution{}, err
	}
	to, err := action.Next(inst.Status)
	if err != nil {
		return Institution{}, err
	}

	updated, err := s.repo.ApplyTransition(ctx, id, Transition{
		Action: action,
		From:   inst.Status,
		To:     to,
		Note:   strings.TrimSpace(note),
		At:     s.now().UTC(),
	})
	if err != nil {
		return Institution{}, err
	}

	if s.metrics != nil {
		s.metrics.InstitutionTransition(string(action))
	}
	s.logger.Info("institution transitioned",
		zap.Stringer("institution_id", id),
		zap.String("from", string(inst.Status)),
		zap.String("to", string(to)))

	if action.notifies() {
		notify.BestEffort(ctx, s.logger, s.mailer, statusMessage(updated, action, note))
	}
	return updated, nil
}

func (s *Service) StatusLog(ctx context.Context, id uuid.UUID) ([]StatusLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.StatusLog(ctx, id)
}

// UpdateProfile edits the contact and presentation fields of an institution.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, input ProfileInput) (Institution, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return Institution{}, err
	}

	after := before
	fields := domainerr.FieldErrors{}
	if input.Name != nil {
		if after.Name = strings.TrimSpace(*input.Name); after.Name == "" {
			fields.Add("name", "name cannot be empty")
		}
	}
	if input.ContactEmail != nil {
		email, err := validation.Email(*input.ContactEmail)
		if err != nil {
			fields.Add("contactEmail", "must be a valid email")
		}
		after.ContactEmail = email
	}
	if input.ContactName != nil {
		after.ContactName = strings.TrimSpace(*input.ContactName)
	}
	if input.ContactPhone != nil {
		after.ContactPhone = strings.TrimSpace(*input.ContactPhone)
	}
	if input.Address != nil {
		after.Address = strings.TrimSpace(*input.Address)
	}
	if input.LogoURL != nil {
		logo := strings.TrimSpace(*input.LogoURL)
		after.LogoURL = &logo
		if logo == "" {
			after.LogoURL = nil
		}
	}
	if err := fields.Err(); err != nil {
		return Institution{}, err
	}
	after.UpdatedAt = s.now().UTC()

	return s.repo.UpdateProfile(ctx, before, after)
}

// ResolveInstitution adapts the registry for the institution scope middleware.
func (s *Service) ResolveInstitution(ctx context.Context, id uuid.UUID) (tenantmw.Institution, error) {
	inst, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenantmw.Institution{}, err
	}
	return tenantmw.Institution{ID: inst.ID, Slug: inst.Slug, Name: inst.Name, Status: string(inst.Status)}, nil
}

func statusMessage(inst Institution, action Action, note string) notify.Message {
	var subject, body string
	switch action {
	case ActionApprove:
		subject = inst.Name + " has been approved"
		body = fmt.Sprintf("Your institution %s has been approved on EduPay. Your administrators can now sign in and complete onboarding.", inst.Name)
	case ActionReject:
		subject = inst.Name + " registration was not approved"
		body = fmt.Sprintf("The registration of %s was not approved.", inst.Name)
	default:
		subject = inst.Name + " has been suspended"
		body = fmt.Sprintf("Access to EduPay for %s has been suspended.", inst.Name)
	}
	if note = strings.TrimSpace(note); note != "" {
		body += "\n\nNote from the EduPay team: " + note
	}
	return notify.Message{
		ToName:      inst.ContactName,
		ToAddress:   inst.ContactEmail,
		Subject:     subject,
		TextContent: body,
	}
}
