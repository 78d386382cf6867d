package middleware

import (
	"context"
	"errors"

	"github.com/getkin/kin-openapi/openapi3filter"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

// ValidateBearerSecurity is the openapi3filter.AuthenticationFunc used by the request validator.
// Operations declaring bearerAuth require a principal already resolved by auth.ResolvePrincipal;
// role checks stay with the rbac gate.
func ValidateBearerSecurity(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errors.New("no request in validation input")
	}
	if _, ok := platformauth.PrincipalFromContext(r.Context()); !ok {
		return errors.New("missing or invalid Authorization header")
	}
	return nil
}
