package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

type staffDirectory map[uuid.UUID]rbac.Membership

func (s staffDirectory) FindMembership(_ context.Context, institutionID, userID uuid.UUID) (rbac.Membership, error) {
	m, ok := s[userID]
	if !ok || m.InstitutionID != institutionID {
		return rbac.Membership{}, rbac.ErrNoMembership
	}
	return m, nil
}

type registry map[uuid.UUID]Institution

func (r registry) ResolveInstitution(_ context.Context, id uuid.UUID) (Institution, error) {
	inst, ok := r[id]
	if !ok {
		return Institution{}, domainerr.NotFound("institution not found")
	}
	return inst, nil
}

type denialCounter map[string]int

func (d denialCounter) AuthorizationDenied(permission string) { d[permission]++ }

type fixture struct {
	router   http.Handler
	school   uuid.UUID
	closed   uuid.UUID
	teacher  platformauth.Principal
	bursar   platformauth.Principal
	denials  denialCounter
	scopeHit *tenant.Scope
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		school:  uuid.New(),
		closed:  uuid.New(),
		teacher: platformauth.Principal{UserID: uuid.New(), IsActive: true},
		bursar:  platformauth.Principal{UserID: uuid.New(), IsActive: true},
		denials: denialCounter{},
	}

	staff := staffDirectory{
		f.teacher.UserID: {StaffID: uuid.New(), InstitutionID: f.school, UserID: f.teacher.UserID, Role: rbac.RoleTeacher, IsActive: true},
		f.bursar.UserID:  {StaffID: uuid.New(), InstitutionID: f.closed, UserID: f.bursar.UserID, Role: rbac.RoleBursar, IsActive: true},
	}
	institutions := registry{
		f.school: {ID: f.school, Slug: "hill-school", Name: "Hill School", Status: "active"},
		f.closed: {ID: f.closed, Slug: "closed-college", Name: "Closed College", Status: "suspended"},
	}

	guard := NewGuard(rbac.NewGate(staff), institutions, zaptest.NewLogger(t), f.denials)

	r := chi.NewRouter()
	r.Route("/institutions/{institutionId}", func(r chi.Router) {
		r.Use(guard.Scope)
		r.With(guard.Require(rbac.PermViewStudents)).Get("/students", func(w http.ResponseWriter, req *http.Request) {
			scope, ok := tenant.FromContext(req.Context())
			require.True(t, ok)
			f.scopeHit = &scope
			w.WriteHeader(http.StatusOK)
		})
		r.With(guard.Require(rbac.PermRecordPayments)).Post("/payments", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	f.router = r
	return f
}

func (f *fixture) do(p *platformauth.Principal, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		req = req.WithContext(platformauth.WithPrincipal(req.Context(), *p))
	}
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestGuardScopesTeacherRead(t *testing.T) {
	f := newFixture(t)

	resp := f.do(&f.teacher, http.MethodGet, "/institutions/"+f.school.String()+"/students")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, f.scopeHit)
	require.Equal(t, f.school, f.scopeHit.InstitutionID)
	require.Equal(t, rbac.RoleTeacher, f.scopeHit.Role())
	require.Equal(t, "hill-school", f.scopeHit.Slug)
}

func TestGuardDeniesTeacherPayments(t *testing.T) {
	f := newFixture(t)

	resp := f.do(&f.teacher, http.MethodPost, "/institutions/"+f.school.String()+"/payments")
	require.Equal(t, http.StatusForbidden, resp.Code)

	var body struct {
		RequiredRoles []string `json:"requiredRoles"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, []string{"bursar", "accountant"}, body.RequiredRoles)
	require.Equal(t, 1, f.denials[string(rbac.PermRecordPayments)])
}

func TestGuardRejectsOtherTenantsAndClosedInstitutions(t *testing.T) {
	f := newFixture(t)

	resp := f.do(&f.teacher, http.MethodGet, "/institutions/"+f.closed.String()+"/students")
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(&f.bursar, http.MethodGet, "/institutions/"+f.closed.String()+"/students")
	require.Equal(t, http.StatusForbidden, resp.Code)
	require.Contains(t, resp.Body.String(), "suspended")

	resp = f.do(nil, http.MethodGet, "/institutions/"+f.school.String()+"/students")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = f.do(&f.teacher, http.MethodGet, "/institutions/not-a-uuid/students")
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
