// Package rbac decides what a staff member may do at an institution.
package rbac

import (
	"slices"
	"strings"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

// Role is the operative permission level of a user within one institution.
type Role string

const (
	RoleAdmin           Role = "admin"
	RolePrincipal       Role = "principal"
	RoleDeputyPrincipal Role = "deputy_principal"
	RoleBursar          Role = "bursar"
	RoleTeacher         Role = "teacher"
	RoleAccountant      Role = "accountant"
	RoleRegistrar       Role = "registrar"
	RoleSupportStaff    Role = "support_staff"
)

var allRoles = []Role{
	RoleAdmin,
	RolePrincipal,
	RoleDeputyPrincipal,
	RoleBursar,
	RoleTeacher,
	RoleAccountant,
	RoleRegistrar,
	RoleSupportStaff,
}

// AllRoles lists every staff role.
func AllRoles() RoleSet {
	return RoleSet(slices.Clone(allRoles))
}

// ParseRole decodes a role at the boundary. Unknown values are validation errors.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !slices.Contains(allRoles, r) {
		return "", domainerr.Invalid("role", "must be one of "+strings.Join(AllRoles().Strings(), ", "))
	}
	return r, nil
}

// Label is the human readable role name.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RolePrincipal:
		return "Principal"
	case RoleDeputyPrincipal:
		return "Deputy Principal"
	case RoleBursar:
		return "Bursar"
	case RoleTeacher:
		return "Teacher"
	case RoleAccountant:
		return "Accountant"
	case RoleRegistrar:
		return "Registrar"
	case RoleSupportStaff:
		return "Support Staff"
	}
	return string(r)
}

// RoleSet is an ordered set of roles.
type RoleSet []Role

// NewRoleSet builds a set, dropping duplicates while keeping the canonical role order.
func NewRoleSet(roles ...Role) RoleSet {
	out := make(RoleSet, 0, len(roles))
	for _, r := range allRoles {
		if slices.Contains(roles, r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s, r)
}

func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
