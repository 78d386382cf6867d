// Package httpx holds the JSON and problem-details plumbing shared by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	platformlogging "github.com/zenGate-Global/edupay-saas/platform/go/logging"
)

const (
	ProblemTypeValidation   = "https://edupay.africa/problems/validation-error"
	ProblemTypeNotFound     = "https://edupay.africa/problems/not-found"
	ProblemTypeConflict     = "https://edupay.africa/problems/conflict"
	ProblemTypeForbidden    = "https://edupay.africa/problems/permission-denied"
	ProblemTypeUnauthorized = "https://edupay.africa/problems/unauthorized"
	ProblemTypeInternal     = "https://edupay.africa/problems/internal-error"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type          string              `json:"type"`
	Title         string              `json:"title"`
	Status        int                 `json:"status"`
	Detail        string              `json:"detail,omitempty"`
	Instance      string              `json:"instance,omitempty"`
	Errors        map[string][]string `json:"errors,omitempty"`
	RequiredRoles []string            `json:"requiredRoles,omitempty"`
}

// RoleRequirement is implemented by authorization errors that can name the roles an operation needs.
type RoleRequirement interface {
	error
	RequiredRoles() []string
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ProblemForError classifies err into a status code and problem body.
// The second return value is false for unclassified (internal) errors.
func ProblemForError(err error) (Problem, bool) {
	var roleErr RoleRequirement
	if errors.As(err, &roleErr) {
		return Problem{
			Type:          ProblemTypeForbidden,
			Title:         "Permission denied",
			Status:        http.StatusForbidden,
			Detail:        roleErr.Error(),
			RequiredRoles: roleErr.RequiredRoles(),
		}, true
	}

	var de *domainerr.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domainerr.KindValidation:
			return Problem{
				Type:   ProblemTypeValidation,
				Title:  "Invalid request",
				Status: http.StatusBadRequest,
				Detail: de.Message,
				Errors: de.Fields,
			}, true
		case domainerr.KindNotFound:
			return Problem{Type: ProblemTypeNotFound, Title: "Not found", Status: http.StatusNotFound, Detail: de.Message}, true
		case domainerr.KindConflict:
			return Problem{Type: ProblemTypeConflict, Title: "Conflict", Status: http.StatusConflict, Detail: de.Message}, true
		case domainerr.KindForbidden:
			return Problem{Type: ProblemTypeForbidden, Title: "Permission denied", Status: http.StatusForbidden, Detail: de.Message}, true
		}
	}

	return Problem{
		Type:   ProblemTypeInternal,
		Title:  "Internal error",
		Status: http.StatusInternalServerError,
		Detail: "internal error",
	}, false
}

// WriteError maps err onto a problem response. Unclassified errors are logged at error level,
// which also reports them when an error reporter is configured.
func WriteError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	problem, known := ProblemForError(err)
	if !known {
		logger := platformlogging.FromRequest(r, fallback)
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
	}
	problem.Instance = r.URL.Path
	WriteProblem(w, problem)
}

// Unauthorized writes a 401 problem with a bearer challenge.
func Unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	WriteProblem(w, Problem{Type: ProblemTypeUnauthorized, Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: detail})
}
