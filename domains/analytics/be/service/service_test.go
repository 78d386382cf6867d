package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assignment(school, year uuid.UUID, total, discount, penalty, paid string, overdue bool) fees.Assignment {
	return fees.Assignment{
		ID: uuid.New(), InstitutionID: school, StudentID: uuid.New(), AcademicYearID: year,
		TotalFees: money(total), DiscountAmount: money(discount), PenaltyAmount: money(penalty), AmountPaid: money(paid),
		IsOverdue: overdue,
	}
}

func TestCollectionRate(t *testing.T) {
	cases := []struct{ paid, billed, want string }{
		{"0", "0", "0"},
		{"50", "100", "50"},
		{"100", "100", "100"},
		{"1", "3", "33.33"},
		{"2", "3", "66.67"},
		{"150", "100", "150"},
		{"10", "0", "0"},
	}
	for _, tc := range cases {
		got := service.CollectionRate(money(tc.paid), money(tc.billed))
		require.True(t, money(tc.want).Equal(got), "rate(%s, %s) = %s", tc.paid, tc.billed, got)
	}
}

func TestSummarizePartitionsAssignments(t *testing.T) {
	school, year := uuid.New(), uuid.New()
	s := service.Summarize(4, []fees.Assignment{
		assignment(school, year, "1000", "0", "0", "1000", false),
		assignment(school, year, "1000", "100", "0", "900", false),
		assignment(school, year, "1000", "0", "50", "400", true),
		assignment(school, year, "500", "0", "0", "0", true),
	})
	require.Equal(t, 2, s.FullyPaid)
	require.Equal(t, 1, s.PartiallyPaid)
	require.Equal(t, 1, s.NotPaid)
	require.Equal(t, 2, s.Overdue)
	require.True(t, money("3500").Equal(s.TotalBilled))
	require.True(t, money("2300").Equal(s.TotalPaid))
	// Outstanding sums balances: 0 + 0 + 650 + 500, not billed - paid.
	require.True(t, money("1150").Equal(s.TotalOutstanding))
	require.True(t, money("65.71").Equal(s.CollectionRate))
	require.True(t, money("875").Equal(s.AverageFeePerStudent()))

	empty := service.Summarize(0, nil)
	require.True(t, empty.CollectionRate.IsZero())
	require.True(t, empty.AverageFeePerStudent().IsZero())
}

type snapshotCounter int

func (c *snapshotCounter) SnapshotCreated() { *c++ }

type fixture struct {
	svc     *service.Service
	repo    *repo.MemoryRepository
	created *snapshotCounter
	school  uuid.UUID
	year    academics.AcademicYear
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{school: uuid.New(), repo: repo.NewMemoryRepository(), created: new(snapshotCounter), now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	calendar := academics.New(academicsrepo.NewMemoryRepository())
	var err error
	f.year, err = calendar.CreateYear(t.Context(), f.school, academics.YearInput{
		Code: "2025", StartDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC), Activate: true,
	})
	require.NoError(t, err)
	f.svc = service.New(f.repo, calendar,
		service.WithMetrics(f.created),
		service.WithLogger(zaptest.NewLogger(t)),
		service.WithClock(func() time.Time { return f.now }))
	return f
}

func TestEnsureSnapshotIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.repo.AddStudent(f.school, &f.year.ID)
	f.repo.AddAssignment(assignment(f.school, f.year.ID, "1000", "0", "0", "400", false))

	first, err := f.svc.EnsureSnapshot(ctx, f.school, f.year.ID, f.svc.Today())
	require.NoError(t, err)
	require.True(t, money("40").Equal(first.Summary.CollectionRate))

	// Later payments the same day do not change the stored figures.
	f.repo.AddAssignment(assignment(f.school, f.year.ID, "1000", "0", "0", "1000", false))
	f.now = f.now.Add(6 * time.Hour)
	second, err := f.svc.EnsureSnapshot(ctx, f.school, f.year.ID, f.svc.Today())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, first.Summary.TotalPaid.Equal(second.Summary.TotalPaid))
	require.Equal(t, 1, int(*f.created))

	list, err := f.svc.ListSnapshots(ctx, f.school, f.year.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	live, err := f.svc.Summary(ctx, f.school, f.year.ID)
	require.NoError(t, err)
	require.True(t, money("1400").Equal(live.TotalPaid))

	_, err = f.svc.EnsureSnapshot(ctx, uuid.New(), f.year.ID, f.svc.Today())
	require.ErrorIs(t, err, academics.ErrYearNotFound)
}

func TestDashboardByRole(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.repo.AddStudent(f.school, &f.year.ID)
	f.repo.AddStudent(f.school, nil)
	f.repo.AddStaff(f.school, 5)
	f.repo.AddAssignment(assignment(f.school, f.year.ID, "1000", "0", "0", "250", false))

	scope := func(role rbac.Role) tenant.Scope {
		return tenant.Scope{InstitutionID: f.school, Membership: rbac.Membership{InstitutionID: f.school, Role: role, IsActive: true}}
	}

	admin, err := f.svc.Dashboard(ctx, scope(rbac.RoleAdmin))
	require.NoError(t, err)
	require.Equal(t, service.DashboardAdmin, admin.Kind)
	require.Equal(t, 2, *admin.ActiveStudents)
	require.Equal(t, 5, *admin.ActiveStaff)
	require.NotNil(t, admin.Collection)
	require.Nil(t, admin.Snapshot)
	require.Zero(t, int(*f.created))

	teacher, err := f.svc.Dashboard(ctx, scope(rbac.RoleTeacher))
	require.NoError(t, err)
	require.Equal(t, service.DashboardTeaching, teacher.Kind)
	require.Nil(t, teacher.Collection, "teachers see no fee figures")
	require.Nil(t, teacher.ActiveStaff)

	bursar, err := f.svc.Dashboard(ctx, scope(rbac.RoleBursar))
	require.NoError(t, err)
	require.Equal(t, service.DashboardFinance, bursar.Kind)
	require.NotNil(t, bursar.Snapshot)
	require.True(t, money("25").Equal(bursar.Snapshot.Summary.CollectionRate))
	require.Equal(t, 1, int(*f.created))

	accountant, err := f.svc.Dashboard(ctx, scope(rbac.RoleAccountant))
	require.NoError(t, err)
	require.Equal(t, bursar.Snapshot.ID, accountant.Snapshot.ID)
	require.Equal(t, 1, int(*f.created))

	for _, role := range []rbac.Role{rbac.RoleRegistrar, rbac.RoleSupportStaff} {
		d, err := f.svc.Dashboard(ctx, scope(role))
		require.NoError(t, err)
		require.Equal(t, service.DashboardGeneral, d.Kind)
	}

	_, err = f.svc.Dashboard(ctx, scope(rbac.Role("janitor")))
	require.Error(t, err)
}

func TestAnalyzeWithoutActiveYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Analyze(t.Context(), uuid.New(), nil)
	require.ErrorIs(t, err, academics.ErrNoActiveYear)

	got, err := f.svc.Analyze(t.Context(), f.school, nil)
	require.NoError(t, err)
	require.Equal(t, f.year.ID, got.Year.ID)
	require.Equal(t, f.year.ID, got.Snapshot.AcademicYearID)
}
