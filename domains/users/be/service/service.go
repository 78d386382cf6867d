package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/validation"
)

// Domain sentinel errors.
var (
	ErrNotFound     = domainerr.NotFound("user not found")
	ErrEmailTaken   = domainerr.Conflict("a user with this email already exists")
	ErrIdentityUsed = domainerr.Conflict("identity is already linked to another user")
)

// User is a platform identity.
type User struct {
	ID            uuid.UUID
	ExternalUID   *string
	Email         string
	FullName      string
	PlatformRole  platformauth.PlatformRole
	InstitutionID *uuid.UUID
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal converts u into the request principal.
func (u User) Principal() platformauth.Principal {
	p := platformauth.Principal{
		UserID:        u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		PlatformRole:  u.PlatformRole,
		InstitutionID: u.InstitutionID,
		IsActive:      u.IsActive,
	}
	if u.ExternalUID != nil {
		p.ExternalUID = *u.ExternalUID
	}
	return p
}

// Membership is one staff record of the user, as shown on /me.
type Membership struct {
	StaffID         uuid.UUID
	InstitutionID   uuid.UUID
	InstitutionName string
	InstitutionSlug string
	Role            rbac.Role
	IsActive        bool
}

// Me is the caller's own profile.
type Me struct {
	User        User
	Memberships []Membership
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Email         *string
	PlatformRole  *platformauth.PlatformRole
	InstitutionID *uuid.UUID
	Page          int
	PageSize      int
}

// ListResult wraps a page of users.
type ListResult struct {
	Users      []User
	TotalItems int
}

// CreateInput is the payload for registering a platform user.
type CreateInput struct {
	Email         string
	FullName      string
	PlatformRole  string
	InstitutionID *uuid.UUID
}

// Repository persists platform users. Mutations write their platform audit entry in the same transaction.
type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	FindByExternalUID(ctx context.Context, uid string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	LinkExternalUID(ctx context.Context, id uuid.UUID, uid string) (User, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Deactivate(ctx context.Context, id uuid.UUID) (User, error)
	// AssignAdmin makes the user an active institution admin of institutionID. before is the state the
	// caller validated; it feeds the audit diff.
	AssignAdmin(ctx context.Context, before User, institutionID uuid.UUID) (User, error)
	Memberships(ctx context.Context, userID uuid.UUID) ([]Membership, error)
}

// IdentityProvisioner creates identity-provider accounts. Optional.
type IdentityProvisioner interface {
	EnsureIdentity(ctx context.Context, email, displayName string) (string, error)
}

// Service implements the platform user registry and principal resolution.
type Service struct {
	repo     Repository
	identity IdentityProvisioner
	logger   *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithIdentityProvisioner provisions identity-provider accounts for new users.
func WithIdentityProvisioner(p IdentityProvisioner) Option {
	return func(s *Service) { s.identity = p }
}

// WithLogger sets the logger used for integration failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New constructs a users Service backed by the provided repository.
func New(r Repository, opts ...Option) *Service {
	if r == nil {
		panic("users repository is required")
	}
	s := &Service{repo: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	fields := domainerr.FieldErrors{}

	email, err := validation.Email(input.Email)
	if err != nil {
		fields.Add("email", err.Error())
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fields.Add("fullName", "fullName is required")
	}
	role := platformauth.PlatformRoleOther
	if strings.TrimSpace(input.PlatformRole) != "" {
		if role, err = platformauth.ParsePlatformRole(input.PlatformRole); err != nil {
			fields.Add("platformRole", err.Error())
		}
	}
	if role == platformauth.PlatformRoleInstitutionAdmin && input.InstitutionID == nil {
		fields.Add("institutionId", "institution admins need a home institution")
	}
	if err := fields.Err(); err != nil {
		return User{}, err
	}

	u := User{
		ID:            uuid.New(),
		Email:         email,
		FullName:      fullName,
		PlatformRole:  role,
		InstitutionID: input.InstitutionID,
		IsActive:      true,
	}

	if s.identity != nil {
		uid, err := s.identity.EnsureIdentity(ctx, email, fullName)
		if err != nil {
			s.logger.Error("provision identity", zap.String("email", email), zap.Error(err))
		} else {
			u.ExternalUID = &uid
		}
	}

	return s.repo.Create(ctx, u)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*opts.Email))
		opts.Email = &e
		if e == "" {
			opts.Email = nil
		}
	}
	return s.repo.List(ctx, opts)
}

// Deactivate blocks the user from every institution; staff records are left untouched.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}
	return s.repo.Deactivate(ctx, id)
}

// AssignAdmin makes an existing user the active admin of an institution. Super admins keep their role.
func (s *Service) AssignAdmin(ctx context.Context, userID, institutionID uuid.UUID) (User, error) {
	if institutionID == uuid.Nil {
		return User{}, domainerr.Invalid("institutionId", "institutionId is required")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if u.PlatformRole == platformauth.PlatformRoleSuperAdmin {
		return User{}, domainerr.Conflict("super admins cannot be assigned to an institution")
	}
	if u.PlatformRole == platformauth.PlatformRoleInstitutionAdmin && u.IsActive &&
		u.InstitutionID != nil && *u.InstitutionID == institutionID {
		return u, nil
	}
	out, err := s.repo.AssignAdmin(ctx, u, institutionID)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("institution admin assigned",
		zap.Stringer("user_id", out.ID),
		zap.Stringer("institution_id", institutionID))
	return out, nil
}

// Me returns the caller's profile and staff memberships.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (Me, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Me{}, err
	}
	memberships, err := s.repo.Memberships(ctx, userID)
	if err != nil {
		return Me{}, err
	}
	return Me{User: u, Memberships: memberships}, nil
}

// ResolvePrincipal maps verified token credentials to a platform user. Users registered before their
// first sign-in have no external uid yet; they are linked by verified email on first use.
func (s *Service) ResolvePrincipal(ctx context.Context, creds platformauth.UserCredentials) (platformauth.Principal, error) {
	if creds.Id == "" {
		return platformauth.Principal{}, platformauth.ErrUnknownPrincipal
	}

	u, err := s.repo.FindByExternalUID(ctx, creds.Id)
	if err == nil {
		return u.Principal(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return platformauth.Principal{}, err
	}

	if creds.Email == "" || !creds.EmailVerified {
		return platformauth.Principal{}, platformauth.ErrUnknownPrincipal
	}
	u, err = s.repo.FindByEmail(ctx, strings.ToLower(creds.Email))
	if errors.Is(err, ErrNotFound) {
		return platformauth.Principal{}, platformauth.ErrUnknownPrincipal
	}
	if err != nil {
		return platformauth.Principal{}, err
	}
	if u.ExternalUID != nil {
		// The email belongs to a different identity-provider account.
		return platformauth.Principal{}, platformauth.ErrUnknownPrincipal
	}

	linked, err := s.repo.LinkExternalUID(ctx, u.ID, creds.Id)
	if err != nil {
		return platformauth.Principal{}, err
	}
	s.logger.Info("linked identity to platform user", zap.Stringer("user_id", linked.ID))
	return linked.Principal(), nil
}
