package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
)

func newMember(institutionID uuid.UUID, email string, role rbac.Role) service.NewMember {
	now := time.Now().UTC()
	return service.NewMember{Staff: service.Staff{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		FullName:      "Staff " + email,
		Email:         email,
		Role:          role,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
}

func TestPostgresRepositoryAddAndMembership(t *testing.T) {
	pool := pgtest.NewPool(t)
	db := persistence.NewDB(pool)
	r := NewPostgresRepository(db)
	ctx := context.Background()

	schoolA := pgtest.SeedInstitution(t, db)
	schoolB := pgtest.SeedInstitution(t, db)

	st, err := r.Add(ctx, newMember(schoolA, "bursar@school.test", rbac.RoleBursar))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, st.UserID)

	_, err = r.Add(ctx, newMember(schoolA, "BURSAR@school.test", rbac.RoleTeacher))
	require.ErrorIs(t, err, service.ErrAlreadyMember)

	other, err := r.Add(ctx, newMember(schoolB, "bursar@school.test", rbac.RoleAccountant))
	require.NoError(t, err)
	require.Equal(t, st.UserID, other.UserID, "the platform user is reused across institutions")

	m, err := r.FindMembership(ctx, schoolA, st.UserID)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleBursar, m.Role)

	_, err = r.FindMembership(ctx, uuid.New(), st.UserID)
	require.ErrorIs(t, err, rbac.ErrNoMembership)

	_, err = r.Get(ctx, schoolB, st.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	changed, err := r.ChangeRole(ctx, st, rbac.RoleAccountant)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAccountant, changed.Role)

	records, total, err := audit.NewStore(pool).List(ctx, audit.Filter{InstitutionID: &schoolA})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, audit.ActionStaffRoleChanged, records[0].Action)
	require.Equal(t, map[string]any{"from": "bursar", "to": "accountant"}, records[0].Changes["role"])
}

func TestPostgresRepositoryEnsureAdminIsIdempotent(t *testing.T) {
	pool := pgtest.NewPool(t)
	db := persistence.NewDB(pool)
	r := NewPostgresRepository(db)
	ctx := context.Background()

	school := pgtest.SeedInstitution(t, db)
	userID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (user_id, email, full_name, platform_role, institution_id)
		VALUES ($1, 'head@school.test', 'Head', 'institution_admin', $2)`, userID, school)
	require.NoError(t, err)

	admin := service.Staff{
		ID: uuid.New(), InstitutionID: school, UserID: userID, FullName: "Head", Email: "head@school.test",
		Role: rbac.RoleAdmin, IsActive: true, CreatedAt: time.Now().UTC(),
	}
	first, created, err := r.EnsureAdmin(ctx, admin)
	require.NoError(t, err)
	require.True(t, created)

	admin.ID = uuid.New()
	second, created, err := r.EnsureAdmin(ctx, admin)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	action := audit.ActionOnboardingCompleted
	_, total, err := audit.NewStore(pool).List(ctx, audit.Filter{InstitutionID: &school, Action: &action})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}
