package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/domains/students/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/students/be/service"
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
	// rival is a second tenant on the same store, staffed by rivalRegistrar only.
	rival          uuid.UUID
	rivalRegistrar uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{school: uuid.New(), users: make(map[rbac.Role]uuid.UUID), rival: uuid.New(), rivalRegistrar: uuid.New()}
	members := memberships{}
	for _, role := range []rbac.Role{rbac.RoleRegistrar, rbac.RoleTeacher, rbac.RoleBursar} {
		id := uuid.New()
		f.users[role] = id
		members[id] = rbac.Membership{StaffID: uuid.New(), InstitutionID: f.school, UserID: id, Role: role, IsActive: true}
	}
	members[f.rivalRegistrar] = rbac.Membership{StaffID: uuid.New(), InstitutionID: f.rival, UserID: f.rivalRegistrar, Role: rbac.RoleRegistrar, IsActive: true}
	registry := institutions{
		f.school: {ID: f.school, Slug: "hill-school", Name: "Hill School", Status: "active"},
		f.rival:  {ID: f.rival, Slug: "valley-school", Name: "Valley School", Status: "active"},
	}

	logger := zaptest.NewLogger(t)
	catalog := academics.New(academicsrepo.NewMemoryRepository())
	h := New(service.New(repo.NewMemoryRepository(), catalog, service.WithLogger(logger)), logger)
	guard := tenantmw.NewGuard(rbac.NewGate(members), registry, logger, nil)

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

func (f *fixture) send(role rbac.Role, req *http.Request) *httptest.ResponseRecorder {
	return f.sendAs(f.users[role], req)
}

func (f *fixture) sendAs(user uuid.UUID, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("X-Test-User", user.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) path(p string) string {
	return "/institutions/" + f.school.String() + p
}

func (f *fixture) upload(t *testing.T, role rbac.Role, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, f.path("/students/import"), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.send(role, req)
}

func TestRegistrarImportsStudents(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, rbac.RoleRegistrar, "intake.csv", "full_name,admission_number,email,program_code,academic_year_code\nAmina,A-1,,,\n,A-2,,,\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res importDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 1, res.Created)
	require.Equal(t, []string{"Row 3: full name is required"}, res.Errors)

	rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodGet, f.path("/students?search=amina"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalItems":1`)

	rec = f.upload(t, rbac.RoleBursar, "intake.csv", "full_name,admission_number\nX,Y\n")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndDeactivateStudent(t *testing.T) {
	f := newFixture(t)

	body := strings.NewReader(`{"fullName":"Brian Otieno","admissionNumber":"B-1","dateOfBirth":"2008-04-12"}`)
	rec := f.send(rbac.RoleRegistrar, httptest.NewRequest(http.MethodPost, f.path("/students"), body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var st studentDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "2008-04-12", st.DateOfBirth.Format("2006-01-02"))

	rec = f.send(rbac.RoleRegistrar, httptest.NewRequest(http.MethodPost, f.path("/students"),
		strings.NewReader(`{"fullName":"Dup","admissionNumber":"B-1"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodPost, f.path("/students/"+st.ID.String()+"/deactivate"), nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.send(rbac.RoleRegistrar, httptest.NewRequest(http.MethodPost, f.path("/students/"+st.ID.String()+"/deactivate"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"isActive":false`)

	rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodGet, f.path("/students/"+uuid.NewString()), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeacherSeesOnlyOwnInstitution(t *testing.T) {
	f := newFixture(t)
	rivalPath := "/institutions/" + f.rival.String()

	rec := f.send(rbac.RoleRegistrar, httptest.NewRequest(http.MethodPost, f.path("/students"),
		strings.NewReader(`{"fullName":"Amina Njeri","admissionNumber":"A-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.sendAs(f.rivalRegistrar, httptest.NewRequest(http.MethodPost, rivalPath+"/students",
		strings.NewReader(`{"fullName":"Wanjiru Kamau","admissionNumber":"A-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rivalStudent studentDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rivalStudent))

	rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodGet, f.path("/students"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalItems":1`)
	require.Contains(t, rec.Body.String(), "Amina Njeri")
	require.NotContains(t, rec.Body.String(), "Wanjiru Kamau")

	rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodGet, f.path("/students/"+rivalStudent.ID.String()), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	for _, p := range []string{"/students", "/students/" + rivalStudent.ID.String()} {
		rec = f.send(rbac.RoleTeacher, httptest.NewRequest(http.MethodGet, rivalPath+p, nil))
		require.Equal(t, http.StatusForbidden, rec.Code, p)
		require.NotContains(t, rec.Body.String(), "Wanjiru Kamau")
	}

	rec = f.sendAs(f.rivalRegistrar, httptest.NewRequest(http.MethodGet, rivalPath+"/students", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalItems":1`)
	require.NotContains(t, rec.Body.String(), "Amina Njeri")
}

func TestImportTemplate(t *testing.T) {
	f := newFixture(t)
	rec := f.send(rbac.RoleRegistrar, httptest.NewRequest(http.MethodGet, f.path("/students/import/template"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Equal(t, "full_name,admission_number,email,program_code,academic_year_code\n", rec.Body.String())
}
