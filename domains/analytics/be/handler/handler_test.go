package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

type institutions map[uuid.UUID]tenantmw.Institution

func (i institutions) ResolveInstitution(_ context.Context, id uuid.UUID) (tenantmw.Institution, error) {
	inst, ok := i[id]
	if !ok {
		return tenantmw.Institution{}, domainerr.NotFound("institution not found")
	}
	return inst, nil
}

type memberships map[uuid.UUID]rbac.Membership

func (m memberships) FindMembership(_ context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error) {
	rec, ok := m[userID]
	if !ok || rec.InstitutionID != institutionID {
		return rbac.Membership{}, rbac.ErrNoMembership
	}
	return rec, nil
}

type fixture struct {
	router http.Handler
	school uuid.UUID
	users  map[rbac.Role]uuid.UUID
	year   academics.AcademicYear
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{school: uuid.New(), users: make(map[rbac.Role]uuid.UUID)}
	members := memberships{}
	for _, role := range []rbac.Role{rbac.RoleAdmin, rbac.RolePrincipal, rbac.RoleBursar, rbac.RoleTeacher, rbac.RoleSupportStaff} {
		id := uuid.New()
		f.users[role] = id
		members[id] = rbac.Membership{StaffID: uuid.New(), InstitutionID: f.school, UserID: id, Role: role, IsActive: true}
	}
	registry := institutions{f.school: {ID: f.school, Slug: "school", Name: "Hill School", Status: "active"}}

	calendar := academics.New(academicsrepo.NewMemoryRepository())
	var err error
	f.year, err = calendar.CreateYear(t.Context(), f.school, academics.YearInput{
		Code: "2025", StartDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC), Activate: true,
	})
	require.NoError(t, err)

	store := repo.NewMemoryRepository()
	store.AddStudent(f.school, &f.year.ID)
	store.AddStudent(f.school, &f.year.ID)
	store.AddStaff(f.school, len(members))
	for _, paid := range []string{"1000", "250"} {
		store.AddAssignment(fees.Assignment{
			ID: uuid.New(), InstitutionID: f.school, StudentID: uuid.New(), AcademicYearID: f.year.ID,
			TotalFees: decimal.NewFromInt(1000), AmountPaid: decimal.RequireFromString(paid),
		})
	}

	logger := zaptest.NewLogger(t)
	guard := tenantmw.NewGuard(rbac.NewGate(members), registry, logger, nil)
	svc := service.New(store, calendar, service.WithLogger(logger), service.WithClock(func() time.Time {
		return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	}))
	h := New(svc, logger)

	r := chi.NewRouter()
	r.Route("/institutions/{institutionId}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				id := uuid.MustParse(req.Header.Get("X-Test-User"))
				ctx := platformauth.WithPrincipal(req.Context(), platformauth.Principal{UserID: id, IsActive: true})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		r.Use(guard.Scope)
		h.MountScoped(r, guard)
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, role rbac.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/institutions/"+f.school.String()+path, &buf)
	req.Header.Set("X-Test-User", f.users[role].String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestDashboardPerRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, rbac.RoleAdmin, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var admin dashboardDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &admin))
	require.Equal(t, "admin", admin.Kind)
	require.Equal(t, "Hill School", admin.Institution)
	require.Equal(t, 5, *admin.ActiveStaff)
	require.Equal(t, "2025", admin.ActiveYear.Code)
	require.Nil(t, admin.Snapshot)

	rec = f.do(t, rbac.RoleBursar, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var finance dashboardDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finance))
	require.Equal(t, "finance", finance.Kind)
	require.Equal(t, "62.50", finance.Collection.CollectionRate)
	require.Equal(t, "750.00", finance.Collection.TotalOutstanding)
	require.NotNil(t, finance.Snapshot)
	require.Equal(t, "2025-03-10", finance.Snapshot.SnapshotDate.String())

	rec = f.do(t, rbac.RoleTeacher, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "collection")
	require.Contains(t, rec.Body.String(), `"activeStudents":2`)

	rec = f.do(t, rbac.RoleSupportStaff, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind":"general"`)
}

func TestFeeAnalysisOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, rbac.RoleTeacher, http.MethodGet, "/fee-analysis", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, rbac.RoleAdmin, http.MethodGet, "/fee-analysis", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, rbac.RolePrincipal, http.MethodGet, "/fee-analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var analysis analysisDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	require.Equal(t, f.year.ID, analysis.AcademicYear.ID)
	require.Equal(t, "2000.00", analysis.Live.TotalBilled)
	require.Equal(t, 1, analysis.Live.FullyPaid)
	require.Equal(t, 1, analysis.Live.PartiallyPaid)
	require.Equal(t, "1000.00", analysis.Snapshot.AverageFeePerStudent)

	rec = f.do(t, rbac.RoleBursar, http.MethodPost, "/fee-analysis/snapshots", map[string]any{"academicYearId": f.year.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again snapshotDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	require.Equal(t, analysis.Snapshot.ID, again.ID)

	rec = f.do(t, rbac.RoleBursar, http.MethodPost, "/fee-analysis/snapshots", map[string]any{
		"academicYearId": f.year.ID, "date": "2025-03-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, rbac.RoleBursar, http.MethodGet, "/fee-analysis/snapshots?academicYearId="+f.year.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []snapshotDTO `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	require.Equal(t, "2025-03-10", list.Items[0].SnapshotDate.String())

	rec = f.do(t, rbac.RoleBursar, http.MethodGet, "/fee-analysis/snapshots", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, rbac.RoleBursar, http.MethodGet, "/fee-analysis?academicYearId="+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
