// Package validation holds field checks shared by services that accept input from more than one
// transport (HTTP bodies, CLI flags, spreadsheet rows).
package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email is not a valid address")
)

var validate = validator.New()

// Email trims and lower-cases raw and checks it with the validator "email" rule.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrEmailRequired
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// OptionalEmail is Email with an empty value accepted as absent.
func OptionalEmail(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return Email(raw)
}
