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

	"github.com/zenGate-Global/edupay-saas/domains/demos/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/demos/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

// newRouter mounts the public route without a principal and the admin routes behind one with role.
func newRouter(t *testing.T, role platformauth.PlatformRole) http.Handler {
	t.Helper()
	h := New(service.New(repo.NewMemoryRepository()), zaptest.NewLogger(t))
	principal := platformauth.Principal{UserID: uuid.New(), PlatformRole: role, IsActive: true}

	r := chi.NewRouter()
	r.Group(h.MountPublic)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(platformauth.WithPrincipal(req.Context(), principal)))
			})
		})
		h.Mount(r)
	})
	return r
}

func do(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func submission() map[string]any {
	return map[string]any{
		"fullName":        "Peter Mwangi",
		"email":           "bursar@nyeri-high.ac.ke",
		"phone":           "+254711000111",
		"jobTitle":        "Bursar",
		"institutionName": "Nyeri High School",
		"institutionType": "secondary_school",
		"studentCount":    "500_1000",
		"country":         "Kenya",
		"challenge":       "tracking",
		"preferredTime":   "afternoon",
		"agree":           true,
	}
}

func TestDemoIntakeAndApprovalOverHTTP(t *testing.T) {
	router := newRouter(t, platformauth.PlatformRoleSuperAdmin)

	rec := do(router, http.MethodPost, "/demo-requests", submission())
	require.Equal(t, http.StatusCreated, rec.Code)
	var receipt receiptDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.Equal(t, "pending", receipt.Status)
	require.NotContains(t, rec.Body.String(), "bursar@nyeri-high.ac.ke")

	rec = do(router, http.MethodGet, "/admin/demo-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalItems":1`)
	require.Contains(t, rec.Body.String(), `"jobTitle":"Bursar"`)

	base := "/admin/demo-requests/" + receipt.ID.String()
	rec = do(router, http.MethodPost, base+"/reopen", map[string]any{})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodPost, base+"/approve", map[string]any{"onboardingNotes": "Term 2 go-live"})
	require.Equal(t, http.StatusOK, rec.Code)
	var approved demoDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	require.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.InstitutionID)
	require.NotNil(t, approved.ApprovedBy)

	rec = do(router, http.MethodPost, base+"/reject", map[string]any{})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodGet, "/admin/demo-requests/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemoIntakeValidation(t *testing.T) {
	router := newRouter(t, platformauth.PlatformRoleSuperAdmin)

	body := submission()
	delete(body, "phone")
	rec := do(router, http.MethodPost, "/demo-requests", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "phone")

	body = submission()
	body["agree"] = false
	body["preferredTime"] = "midnight"
	rec = do(router, http.MethodPost, "/demo-requests", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "agree")
	require.Contains(t, rec.Body.String(), "preferredTime")
}

func TestDemoTriageRequiresSuperAdmin(t *testing.T) {
	router := newRouter(t, platformauth.PlatformRoleInstitutionAdmin)

	rec := do(router, http.MethodPost, "/demo-requests", submission())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodGet, "/admin/demo-requests", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
