package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

// Snapshot is the persisted collection position of one academic year on one day.
// It is written once and never recomputed.
type Snapshot struct {
	ID                   uuid.UUID
	InstitutionID        uuid.UUID
	AcademicYearID       uuid.UUID
	Date                 time.Time
	Summary              Summary
	AverageFeePerStudent decimal.Decimal
	CreatedAt            time.Time
}

// Repository reads the ledger and stores snapshots.
type Repository interface {
	// Assignments lists the institution's assignments, limited to one academic year when yearID is set.
	Assignments(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) ([]fees.Assignment, error)
	// CountStudents counts active students, limited to one academic year when yearID is set.
	CountStudents(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) (int, error)
	CountStaff(ctx context.Context, institutionID uuid.UUID) (int, error)
	// CreateSnapshot inserts s unless a snapshot exists for the same institution, year and date,
	// in which case the existing one is returned with created=false.
	CreateSnapshot(ctx context.Context, s Snapshot) (out Snapshot, created bool, err error)
	ListSnapshots(ctx context.Context, institutionID, yearID uuid.UUID) ([]Snapshot, error)
}

// Calendar resolves academic years.
type Calendar interface {
	GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (academics.AcademicYear, error)
	ActiveYear(ctx context.Context, institutionID uuid.UUID) (academics.AcademicYear, error)
}

// SnapshotRecorder counts created snapshots.
type SnapshotRecorder interface {
	SnapshotCreated()
}

type Service struct {
	repo     Repository
	calendar Calendar
	metrics  SnapshotRecorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithMetrics(m SnapshotRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo Repository, calendar Calendar, opts ...Option) *Service {
	if repo == nil {
		panic("analytics repository is required")
	}
	if calendar == nil {
		panic("academic calendar is required")
	}
	s := &Service{repo: repo, calendar: calendar, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the service's current date in UTC.
func (s *Service) Today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Summary aggregates the year's assignments live.
func (s *Service) Summary(ctx context.Context, institutionID, yearID uuid.UUID) (Summary, error) {
	if _, err := s.calendar.GetYear(ctx, institutionID, yearID); err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, institutionID, &yearID)
}

func (s *Service) summarize(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) (Summary, error) {
	assignments, err := s.repo.Assignments(ctx, institutionID, yearID)
	if err != nil {
		return Summary{}, fmt.Errorf("load assignments: %w", err)
	}
	students, err := s.repo.CountStudents(ctx, institutionID, yearID)
	if err != nil {
		return Summary{}, fmt.Errorf("count students: %w", err)
	}
	return Summarize(students, assignments), nil
}

// EnsureSnapshot returns the snapshot of (institution, year, date), creating it from live figures on
// the first call of the day. Later calls return the stored figures unchanged.
func (s *Service) EnsureSnapshot(ctx context.Context, institutionID, yearID uuid.UUID, date time.Time) (Snapshot, error) {
	summary, err := s.Summary(ctx, institutionID, yearID)
	if err != nil {
		return Snapshot{}, err
	}
	y, m, d := date.Date()
	out, created, err := s.repo.CreateSnapshot(ctx, Snapshot{
		ID:                   uuid.New(),
		InstitutionID:        institutionID,
		AcademicYearID:       yearID,
		Date:                 time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Summary:              summary,
		AverageFeePerStudent: summary.AverageFeePerStudent(),
		CreatedAt:            s.now().UTC(),
	})
	if err != nil {
		return Snapshot{}, err
	}
	if created {
		if s.metrics != nil {
			s.metrics.SnapshotCreated()
		}
		s.logger.Info("fee snapshot created",
			zap.String("institution_id", institutionID.String()),
			zap.String("academic_year_id", yearID.String()),
			zap.String("collection_rate", out.Summary.CollectionRate.StringFixed(2)))
	}
	return out, nil
}

func (s *Service) ListSnapshots(ctx context.Context, institutionID, yearID uuid.UUID) ([]Snapshot, error) {
	if _, err := s.calendar.GetYear(ctx, institutionID, yearID); err != nil {
		return nil, err
	}
	return s.repo.ListSnapshots(ctx, institutionID, yearID)
}

// FeeAnalysis is the live position of a year next to its snapshot for today.
type FeeAnalysis struct {
	Year     academics.AcademicYear
	Live     Summary
	Snapshot Snapshot
}

// Analyze builds the fee analysis of yearID, or of the active year when yearID is nil.
// Today's snapshot is ensured on the way.
func (s *Service) Analyze(ctx context.Context, institutionID uuid.UUID, yearID *uuid.UUID) (FeeAnalysis, error) {
	var (
		year academics.AcademicYear
		err  error
	)
	if yearID == nil {
		year, err = s.calendar.ActiveYear(ctx, institutionID)
	} else {
		year, err = s.calendar.GetYear(ctx, institutionID, *yearID)
	}
	if err != nil {
		return FeeAnalysis{}, err
	}
	live, err := s.summarize(ctx, institutionID, &year.ID)
	if err != nil {
		return FeeAnalysis{}, err
	}
	snap, err := s.EnsureSnapshot(ctx, institutionID, year.ID, s.Today())
	if err != nil {
		return FeeAnalysis{}, err
	}
	return FeeAnalysis{Year: year, Live: live, Snapshot: snap}, nil
}

// DashboardKind names the dashboard layout served to a role.
type DashboardKind string

const (
	DashboardAdmin      DashboardKind = "admin"
	DashboardLeadership DashboardKind = "leadership"
	DashboardFinance    DashboardKind = "finance"
	DashboardTeaching   DashboardKind = "teaching"
	DashboardGeneral    DashboardKind = "general"
)

// Dashboard carries the sections visible to the caller's role; absent sections are nil.
type Dashboard struct {
	Kind           DashboardKind
	Role           rbac.Role
	ActiveYear     *academics.AcademicYear
	ActiveStudents *int
	ActiveStaff    *int
	Collection     *Summary
	Snapshot       *Snapshot
}

// Dashboard builds the role-specific dashboard of scope. The finance dashboard ensures today's
// snapshot for the active year.
func (s *Service) Dashboard(ctx context.Context, scope tenant.Scope) (Dashboard, error) {
	institutionID := scope.InstitutionID
	out := Dashboard{Role: scope.Role()}

	active, err := s.calendar.ActiveYear(ctx, institutionID)
	switch {
	case err == nil:
		out.ActiveYear = &active
	case errors.Is(err, academics.ErrNoActiveYear):
	default:
		return Dashboard{}, err
	}

	switch scope.Role() {
	case rbac.RoleAdmin:
		out.Kind = DashboardAdmin
		if err := s.headcount(ctx, institutionID, &out, true); err != nil {
			return Dashboard{}, err
		}
		all, err := s.summarize(ctx, institutionID, nil)
		if err != nil {
			return Dashboard{}, err
		}
		out.Collection = &all
	case rbac.RolePrincipal, rbac.RoleDeputyPrincipal:
		out.Kind = DashboardLeadership
		if err := s.headcount(ctx, institutionID, &out, true); err != nil {
			return Dashboard{}, err
		}
		if out.ActiveYear != nil {
			live, err := s.summarize(ctx, institutionID, &active.ID)
			if err != nil {
				return Dashboard{}, err
			}
			out.Collection = &live
		}
	case rbac.RoleBursar, rbac.RoleAccountant:
		out.Kind = DashboardFinance
		if out.ActiveYear != nil {
			live, err := s.summarize(ctx, institutionID, &active.ID)
			if err != nil {
				return Dashboard{}, err
			}
			out.Collection = &live
			snap, err := s.EnsureSnapshot(ctx, institutionID, active.ID, s.Today())
			if err != nil {
				return Dashboard{}, err
			}
			out.Snapshot = &snap
		}
	case rbac.RoleTeacher:
		out.Kind = DashboardTeaching
		if err := s.headcount(ctx, institutionID, &out, false); err != nil {
			return Dashboard{}, err
		}
	case rbac.RoleRegistrar, rbac.RoleSupportStaff:
		out.Kind = DashboardGeneral
	default:
		return Dashboard{}, fmt.Errorf("no dashboard for role %q", scope.Role())
	}
	return out, nil
}

func (s *Service) headcount(ctx context.Context, institutionID uuid.UUID, d *Dashboard, withStaff bool) error {
	students, err := s.repo.CountStudents(ctx, institutionID, nil)
	if err != nil {
		return fmt.Errorf("count students: %w", err)
	}
	d.ActiveStudents = &students
	if !withStaff {
		return nil
	}
	staff, err := s.repo.CountStaff(ctx, institutionID)
	if err != nil {
		return fmt.Errorf("count staff: %w", err)
	}
	d.ActiveStaff = &staff
	return nil
}
