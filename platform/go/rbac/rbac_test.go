package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

type memberships map[[2]uuid.UUID]Membership

func (m memberships) FindMembership(_ context.Context, institutionID, userID uuid.UUID) (Membership, error) {
	found, ok := m[[2]uuid.UUID{institutionID, userID}]
	if !ok {
		return Membership{}, ErrNoMembership
	}
	return found, nil
}

func (m memberships) add(institutionID, userID uuid.UUID, role Role, active bool) {
	m[[2]uuid.UUID{institutionID, userID}] = Membership{
		StaffID:       uuid.New(),
		InstitutionID: institutionID,
		UserID:        userID,
		Role:          role,
		IsActive:      active,
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Bursar ")
	require.NoError(t, err)
	require.Equal(t, RoleBursar, r)

	_, err = ParseRole("janitor")
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}

func TestPermissionMap(t *testing.T) {
	cases := map[Permission]RoleSet{
		PermViewDashboard:            AllRoles(),
		PermManageInstitutionProfile: {RoleAdmin},
		PermViewStaff:                {RoleAdmin, RolePrincipal, RoleDeputyPrincipal},
		PermImportStudents:           {RoleAdmin, RoleRegistrar},
		PermViewStudents:             {RoleAdmin, RolePrincipal, RoleDeputyPrincipal, RoleBursar, RoleTeacher, RoleAccountant, RoleRegistrar},
		PermManagePrograms:           {RoleAdmin, RoleBursar, RoleAccountant},
		PermManageFeeStructures:      {RoleBursar, RoleAccountant},
		PermAssignFees:               {RoleAdmin, RoleBursar, RoleAccountant},
		PermRecordPayments:           {RoleBursar, RoleAccountant},
		PermViewFeeAnalysis:          {RolePrincipal, RoleBursar, RoleAccountant},
		PermViewAuditLog:             {RoleAdmin, RolePrincipal},
		PermSendMessages:             {RolePrincipal},
		PermViewMessages:             {RoleAdmin, RolePrincipal, RoleDeputyPrincipal},
	}
	for perm, want := range cases {
		require.Equal(t, want, perm.AllowedRoles(), string(perm))
	}

	for _, perm := range AllPermissions() {
		require.NotEmpty(t, perm.AllowedRoles(), string(perm))
	}
	require.False(t, Role("janitor").Grants(PermViewDashboard))
}

func TestGateTeacherDeniedFinanceButAllowedOwnRead(t *testing.T) {
	ctx := context.Background()
	schoolA, schoolB := uuid.New(), uuid.New()
	teacher := platformauth.Principal{UserID: uuid.New(), IsActive: true}

	lookup := memberships{}
	lookup.add(schoolA, teacher.UserID, RoleTeacher, true)
	gate := NewGate(lookup)

	_, err := gate.Authorize(ctx, teacher, schoolA, NewRoleSet(RoleAdmin, RoleBursar))
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, []string{"admin", "bursar"}, denied.RequiredRoles())
	require.Contains(t, err.Error(), "admin, bursar")

	m, err := gate.Authorize(ctx, teacher, schoolA, NewRoleSet(RoleTeacher))
	require.NoError(t, err)
	require.Equal(t, schoolA, m.InstitutionID)
	require.Equal(t, RoleTeacher, m.Role)

	_, err = gate.Authorize(ctx, teacher, schoolB, NewRoleSet(RoleTeacher))
	require.True(t, IsPermissionDenied(err))
}

func TestGateRejectsInactive(t *testing.T) {
	ctx := context.Background()
	school := uuid.New()
	user := platformauth.Principal{UserID: uuid.New(), IsActive: true}

	lookup := memberships{}
	lookup.add(school, user.UserID, RoleAdmin, false)
	gate := NewGate(lookup)

	_, err := gate.Authorize(ctx, user, school, AllRoles())
	require.True(t, IsPermissionDenied(err))

	lookup.add(school, user.UserID, RoleAdmin, true)
	user.IsActive = false
	_, err = gate.Authorize(ctx, user, school, AllRoles())
	require.True(t, IsPermissionDenied(err))
}

func TestNewRoleSetIsCanonical(t *testing.T) {
	require.Equal(t, RoleSet{RoleAdmin, RoleBursar}, NewRoleSet(RoleBursar, RoleAdmin, RoleBursar))
}
