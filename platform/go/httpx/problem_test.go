package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

type roleErr struct{ roles []string }

func (e roleErr) Error() string           { return "permission denied: requires " + strings.Join(e.roles, ", ") }
func (e roleErr) RequiredRoles() []string { return e.roles }

func TestWriteErrorMapsKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", domainerr.Invalid("amount", "must be greater than zero"), http.StatusBadRequest, ProblemTypeValidation},
		{"not found", fmt.Errorf("get: %w", domainerr.NotFound("student not found")), http.StatusNotFound, ProblemTypeNotFound},
		{"conflict", domainerr.Conflict("admission number already exists"), http.StatusConflict, ProblemTypeConflict},
		{"roles", fmt.Errorf("authorize: %w", roleErr{roles: []string{"admin", "bursar"}}), http.StatusForbidden, ProblemTypeForbidden},
		{"internal", fmt.Errorf("connection reset"), http.StatusInternalServerError, ProblemTypeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/things", nil)
			resp := httptest.NewRecorder()
			WriteError(resp, req, zaptest.NewLogger(t), tc.err)

			require.Equal(t, tc.status, resp.Code)
			require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))

			var body Problem
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tc.typ, body.Type)
			require.Equal(t, "/api/v1/things", body.Instance)
			if tc.status == http.StatusForbidden {
				require.Equal(t, []string{"admin", "bursar"}, body.RequiredRoles)
			}
			if tc.status == http.StatusInternalServerError {
				require.Equal(t, "internal error", body.Detail)
			}
		})
	}
}

type createStudentBody struct {
	FullName        string `json:"fullName" validate:"required,max=200"`
	AdmissionNumber string `json:"admissionNumber" validate:"required"`
	Email           string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSONValidation(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"fullName":"","admissionNumber":"ADM-1","email":"nope"}`))
	var body createStudentBody
	err := DecodeJSON(req, &body)
	require.True(t, domainerr.Is(err, domainerr.KindValidation))

	var de *domainerr.Error
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "fullName")
	require.Contains(t, de.Fields, "email")
	require.NotContains(t, de.Fields, "admissionNumber")
}

func TestDecodeJSONRejectsUnknownFieldsAndEmptyBody(t *testing.T) {
	t.Parallel()

	var body createStudentBody
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"fullName":"A","admissionNumber":"1","grade":"A"}`)), &body)
	require.True(t, domainerr.Is(err, domainerr.KindValidation))

	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	p := NewPage[int](nil, 2, 20, 41)
	require.NotNil(t, p.Items)
	require.Equal(t, 3, p.TotalPages)
	require.Zero(t, NewPage([]int{}, 1, 20, 0).TotalPages)
}
