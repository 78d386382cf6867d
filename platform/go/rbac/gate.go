package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

// Membership is a principal's staff record at one institution.
type Membership struct {
	StaffID       uuid.UUID
	InstitutionID uuid.UUID
	UserID        uuid.UUID
	Role          Role
	IsActive      bool
}

// ErrNoMembership is returned by lookups when the user has no staff record at the institution.
var ErrNoMembership = errors.New("no staff record at institution")

// MembershipLookup finds the staff record of a user at an institution.
type MembershipLookup interface {
	FindMembership(ctx context.Context, institutionID, userID uuid.UUID) (Membership, error)
}

// PermissionDeniedError names the roles that would have been admitted.
type PermissionDeniedError struct {
	Required RoleSet
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: requires one of " + strings.Join(e.Required.Strings(), ", ")
}

// RequiredRoles is read by the HTTP layer to render the problem body.
func (e *PermissionDeniedError) RequiredRoles() []string {
	return e.Required.Strings()
}

// IsPermissionDenied reports whether err is a denial from the gate.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}

// Gate resolves a principal's operative role at an institution.
type Gate struct {
	lookup MembershipLookup
}

func NewGate(lookup MembershipLookup) *Gate {
	if lookup == nil {
		panic("rbac: membership lookup is required")
	}
	return &Gate{lookup: lookup}
}

// Authorize admits the principal iff it is active and holds an active staff record at
// institutionID whose role is in allowed. The returned membership is the caller's scope.
func (g *Gate) Authorize(ctx context.Context, principal platformauth.Principal, institutionID uuid.UUID, allowed RoleSet) (Membership, error) {
	denied := &PermissionDeniedError{Required: allowed}
	if !principal.IsActive || principal.UserID == uuid.Nil {
		return Membership{}, denied
	}

	m, err := g.lookup.FindMembership(ctx, institutionID, principal.UserID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return Membership{}, denied
		}
		return Membership{}, fmt.Errorf("lookup membership: %w", err)
	}
	if m.InstitutionID != institutionID || m.UserID != principal.UserID {
		return Membership{}, denied
	}

	if err := Check(m, allowed); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Check applies the role rule to an already resolved membership.
func Check(m Membership, allowed RoleSet) error {
	if !m.IsActive || !allowed.Contains(m.Role) {
		return &PermissionDeniedError{Required: allowed}
	}
	return nil
}
