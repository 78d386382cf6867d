package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/edupay-saas/domains/users/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

func newRouter(t *testing.T, principal *platformauth.Principal) (http.Handler, *service.Service) {
	t.Helper()
	return newRouterWithService(t, service.New(repo.NewMemoryRepository()), principal)
}

func newRouterWithService(t *testing.T, svc *service.Service, principal *platformauth.Principal) (http.Handler, *service.Service) {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(platformauth.WithPrincipal(req.Context(), *principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.Mount(r)
	return r, svc
}

func TestCreateAndGetUser(t *testing.T) {
	admin := &platformauth.Principal{UserID: uuid.New(), PlatformRole: platformauth.PlatformRoleSuperAdmin, IsActive: true}
	router, _ := newRouter(t, admin)

	body, _ := json.Marshal(map[string]any{"email": "bursar@school.ac.ke", "fullName": "Jane Bursar", "platformRole": "bursar"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created userDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "bursar", created.PlatformRole)
	require.Equal(t, "/api/v1/admin/users/"+created.ID.String(), rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users?platformRole=bursar", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalItems":1`)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	admin := &platformauth.Principal{UserID: uuid.New(), PlatformRole: platformauth.PlatformRoleSuperAdmin, IsActive: true}
	router, _ := newRouter(t, admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewBufferString(`{"email":"nope"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAdminRoutesRequireSuperAdmin(t *testing.T) {
	router, _ := newRouter(t, &platformauth.Principal{UserID: uuid.New(), PlatformRole: platformauth.PlatformRoleBursar, IsActive: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "super_admin")
}

func TestMe(t *testing.T) {
	router, svc := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	u, err := svc.Create(t.Context(), service.CreateInput{Email: "me@school.ac.ke", FullName: "Me"})
	require.NoError(t, err)

	router, _ = newRouterWithService(t, svc, &platformauth.Principal{UserID: u.ID, IsActive: true})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var me meDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "me@school.ac.ke", me.User.Email)
	require.Empty(t, me.Memberships)
}

func TestAssignAdminOverHTTP(t *testing.T) {
	admin := &platformauth.Principal{UserID: uuid.New(), PlatformRole: platformauth.PlatformRoleSuperAdmin, IsActive: true}
	router, svc := newRouter(t, admin)
	u, err := svc.Create(t.Context(), service.CreateInput{Email: "deputy@school.ac.ke", FullName: "Deputy"})
	require.NoError(t, err)
	school := uuid.New()

	body, _ := json.Marshal(map[string]any{"institutionId": school})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users/"+u.ID.String()+"/assign-admin", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var out userDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "institution_admin", out.PlatformRole)
	require.Equal(t, &school, out.InstitutionID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users/"+uuid.NewString()+"/assign-admin", bytes.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users/"+u.ID.String()+"/assign-admin", bytes.NewReader([]byte(`{}`))))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	bursar := &platformauth.Principal{UserID: uuid.New(), PlatformRole: platformauth.PlatformRoleBursar, IsActive: true}
	router, _ = newRouterWithService(t, svc, bursar)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users/"+u.ID.String()+"/assign-admin", bytes.NewReader(body)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
