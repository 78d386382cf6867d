package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
	"github.com/zenGate-Global/edupay-saas/platform/go/validation"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = domainerr.NotFound("staff member not found")
	ErrAlreadyMember = domainerr.Conflict("this user is already a staff member of the institution")
	ErrSelfChange    = domainerr.Conflict("you cannot change your own staff record")
	ErrNotOnboarding = domainerr.Forbidden("only institution admins with a home institution can be onboarded")
)

// Staff is a (institution, user, role) membership.
type Staff struct {
	ID            uuid.UUID
	InstitutionID uuid.UUID
	UserID        uuid.UUID
	FullName      string
	Email         string
	Phone         string
	Role          rbac.Role
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Membership is the authorization view of s.
func (s Staff) Membership() rbac.Membership {
	return rbac.Membership{
		StaffID:       s.ID,
		InstitutionID: s.InstitutionID,
		UserID:        s.UserID,
		Role:          s.Role,
		IsActive:      s.IsActive,
	}
}

// AddInput is the payload for adding a staff member.
type AddInput struct {
	Email    string
	FullName string
	Phone    string
	Role     string
	// InstitutionName is used in the invitation email only.
	InstitutionName string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Role     *rbac.Role
	Active   *bool
	Page     int
	PageSize int
}

// ListResult wraps a page of staff.
type ListResult struct {
	Staff      []Staff
	TotalItems int
}

// NewMember is what the repository needs to add a member. A platform user with Email is reused
// when it exists and created otherwise; ExternalUID is only stored on a newly created user.
type NewMember struct {
	Staff       Staff
	ExternalUID *string
}

// Repository persists staff. Every query is filtered by institution.
type Repository interface {
	FindMembership(ctx context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error)
	// Add gets or creates the user by email and inserts the staff row in one transaction.
	// A second staff row for the same (institution, user) is ErrAlreadyMember.
	Add(ctx context.Context, m NewMember) (Staff, error)
	Get(ctx context.Context, institutionID, staffID uuid.UUID) (Staff, error)
	List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error)
	ChangeRole(ctx context.Context, before Staff, role rbac.Role) (Staff, error)
	Deactivate(ctx context.Context, before Staff) (Staff, error)
	// EnsureAdmin inserts s unless (institution, user) already has a staff row, and reports whether it did.
	EnsureAdmin(ctx context.Context, s Staff) (Staff, bool, error)
}

// IdentityProvisioner creates identity-provider accounts for new members.
type IdentityProvisioner interface {
	EnsureIdentity(ctx context.Context, email, displayName string) (string, error)
}

// InstitutionResolver loads the registry entry used by onboarding.
type InstitutionResolver interface {
	ResolveInstitution(ctx context.Context, id uuid.UUID) (tenantmw.Institution, error)
}

// Service manages staff and implements rbac.MembershipLookup.
type Service struct {
	repo         Repository
	institutions InstitutionResolver
	identity     IdentityProvisioner
	mailer       notify.Mailer
	appURL       string
	logger       *zap.Logger
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithIdentityProvisioner(p IdentityProvisioner) Option {
	return func(s *Service) { s.identity = p }
}

// WithMailer sends invitation emails linking to appURL.
func WithMailer(m notify.Mailer, appURL string) Option {
	return func(s *Service) { s.mailer, s.appURL = m, appURL }
}

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now for the timestamps of new staff records.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New constructs a staff Service.
func New(repo Repository, institutions InstitutionResolver, opts ...Option) *Service {
	if repo == nil {
		panic("staff repository is required")
	}
	if institutions == nil {
		panic("institution resolver is required")
	}
	s := &Service{repo: repo, institutions: institutions, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ rbac.MembershipLookup = (*Service)(nil)

// FindMembership returns the staff record of userID at institutionID, or rbac.ErrNoMembership.
func (s *Service) FindMembership(ctx context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error) {
	return s.repo.FindMembership(ctx, institutionID, userID)
}

// Add registers a staff member. Identity provisioning and the invitation email are best-effort.
func (s *Service) Add(ctx context.Context, institutionID uuid.UUID, input AddInput) (Staff, error) {
	fields := domainerr.FieldErrors{}
	email, err := validation.Email(input.Email)
	if err != nil {
		fields.Add("email", "a valid email is required")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fields.Add("fullName", "fullName is required")
	}
	role, err := rbac.ParseRole(input.Role)
	if err != nil {
		fields.Add("role", "unknown staff role")
	}
	if err := fields.Err(); err != nil {
		return Staff{}, err
	}

	now := s.now().UTC()
	member := NewMember{Staff: Staff{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		FullName:      fullName,
		Email:         email,
		Phone:         strings.TrimSpace(input.Phone),
		Role:          role,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}

	if s.identity != nil {
		uid, err := s.identity.EnsureIdentity(ctx, email, fullName)
		if err != nil {
			s.logger.Error("provision staff identity", zap.String("email", email), zap.Error(err))
		} else {
			member.ExternalUID = &uid
		}
	}

	created, err := s.repo.Add(ctx, member)
	if err != nil {
		return Staff{}, err
	}

	notify.BestEffort(ctx, s.logger, s.mailer, s.invitation(created, input.InstitutionName))
	return created, nil
}

func (s *Service) Get(ctx context.Context, institutionID, staffID uuid.UUID) (Staff, error) {
	return s.repo.Get(ctx, institutionID, staffID)
}

func (s *Service) List(ctx context.Context, institutionID uuid.UUID, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, institutionID, opts)
}

// ChangeRole assigns a new role. Callers cannot change their own record.
func (s *Service) ChangeRole(ctx context.Context, institutionID, staffID uuid.UUID, rawRole string) (Staff, error) {
	role, err := rbac.ParseRole(rawRole)
	if err != nil {
		return Staff{}, err
	}
	before, err := s.editable(ctx, institutionID, staffID)
	if err != nil {
		return Staff{}, err
	}
	if before.Role == role {
		return before, nil
	}
	return s.repo.ChangeRole(ctx, before, role)
}

// Deactivate revokes the member's access to the institution.
func (s *Service) Deactivate(ctx context.Context, institutionID, staffID uuid.UUID) (Staff, error) {
	before, err := s.editable(ctx, institutionID, staffID)
	if err != nil {
		return Staff{}, err
	}
	if !before.IsActive {
		return before, nil
	}
	return s.repo.Deactivate(ctx, before)
}

// EnsureOnboarding gives an institution admin an admin staff record at their home institution once it is
// approved or active. It is idempotent: an existing record is returned unchanged and nothing is written.
func (s *Service) EnsureOnboarding(ctx context.Context, principal platformauth.Principal) (Staff, bool, error) {
	if principal.PlatformRole != platformauth.PlatformRoleInstitutionAdmin || principal.InstitutionID == nil || !principal.IsActive {
		return Staff{}, false, ErrNotOnboarding
	}

	inst, err := s.institutions.ResolveInstitution(ctx, *principal.InstitutionID)
	if err != nil {
		return Staff{}, false, err
	}
	if !inst.Operational() {
		return Staff{}, false, domainerr.Forbidden(fmt.Sprintf("institution %s is %s", inst.Name, inst.Status))
	}

	now := s.now().UTC()
	staff, created, err := s.repo.EnsureAdmin(ctx, Staff{
		ID:            uuid.New(),
		InstitutionID: inst.ID,
		UserID:        principal.UserID,
		FullName:      principal.FullName,
		Email:         principal.Email,
		Role:          rbac.RoleAdmin,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Staff{}, false, err
	}
	if created {
		s.logger.Info("institution admin onboarded",
			zap.Stringer("institution_id", inst.ID),
			zap.Stringer("user_id", principal.UserID))
	}
	return staff, created, nil
}

func (s *Service) editable(ctx context.Context, institutionID, staffID uuid.UUID) (Staff, error) {
	st, err := s.repo.Get(ctx, institutionID, staffID)
	if err != nil {
		return Staff{}, err
	}
	if actor := requesttrace.ActorID(ctx); actor != nil && *actor == st.UserID {
		return Staff{}, ErrSelfChange
	}
	return st, nil
}

func (s *Service) invitation(st Staff, institutionName string) notify.Message {
	if institutionName == "" {
		institutionName = "your institution"
	}
	body := fmt.Sprintf("Hello %s,\n\nYou have been added to %s on EduPay as %s.", st.FullName, institutionName, st.Role.Label())
	if s.appURL != "" {
		body += "\nSign in at " + strings.TrimRight(s.appURL, "/") + "/login with this email address."
	}
	return notify.Message{
		ToName:      st.FullName,
		ToAddress:   st.Email,
		Subject:     "You have been invited to " + institutionName,
		TextContent: body,
	}
}
