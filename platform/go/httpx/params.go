package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PathUUID binds a required UUID path parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return uuid.Nil, domainerr.Invalid(name, "must be a UUID")
	}
	return uuid.UUID(id), nil
}

// QueryUUID binds an optional UUID query parameter.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	var id *openapi_types.UUID
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &id); err != nil {
		return nil, domainerr.Invalid(name, "must be a UUID")
	}
	if id == nil {
		return nil, nil
	}
	out := uuid.UUID(*id)
	return &out, nil
}

// QueryString binds an optional string query parameter.
func QueryString(r *http.Request, name string) (*string, error) {
	var v *string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return nil, domainerr.Invalid(name, "invalid value")
	}
	return v, nil
}

// QueryBool binds an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	var v *bool
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return nil, domainerr.Invalid(name, "must be true or false")
	}
	return v, nil
}

// QueryDate binds an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (*time.Time, error) {
	var v *openapi_types.Date
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return nil, domainerr.Invalid(name, "must be a date (YYYY-MM-DD)")
	}
	if v == nil {
		return nil, nil
	}
	t := v.Time
	return &t, nil
}

// Pagination reads page and pageSize, clamping to sane bounds.
func Pagination(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = 1, DefaultPageSize

	var p, ps *int
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &p); err != nil {
		return 0, 0, domainerr.Invalid("page", "must be an integer")
	}
	if err := runtime.BindQueryParameter("form", true, false, "pageSize", r.URL.Query(), &ps); err != nil {
		return 0, 0, domainerr.Invalid("pageSize", "must be an integer")
	}
	if p != nil && *p > 0 {
		page = *p
	}
	if ps != nil && *ps > 0 {
		pageSize = *ps
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, nil
}

// Location joins path segments for Location headers.
func Location(base string, id uuid.UUID) string {
	return base + "/" + id.String()
}
