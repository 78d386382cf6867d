package audit_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

func TestDiff(t *testing.T) {
	before := map[string]any{"role": "teacher", "isActive": true, "phone": "0700"}
	after := map[string]any{"role": "bursar", "isActive": true}

	diff := audit.Diff(before, after)
	require.Equal(t, map[string]any{
		"role":  map[string]any{"from": "teacher", "to": "bursar"},
		"phone": map[string]any{"from": "0700", "to": nil},
	}, diff)

	require.Nil(t, audit.Diff(after, after))
}

func TestWriteAndListAreScopedPerLog(t *testing.T) {
	pool := pgtest.NewPool(t)
	db := persistence.NewDB(pool)

	actor := uuid.New()
	ctx := requesttrace.IntoContext(context.Background(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &actor,
	})

	schoolA, schoolB := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{schoolA, schoolB} {
		_, err := pool.Exec(ctx, `
			INSERT INTO institutions (institution_id, slug, name, contact_email)
			VALUES ($1, $2, 'School', 'ops@school.test')`, id, "school-"+id.String()[:8])
		require.NoError(t, err)
	}

	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &schoolA,
			Action:        audit.ActionStaffRoleChanged,
			EntityType:    "staff",
			EntityID:      "s-1",
			Description:   "Changed role",
			Changes:       audit.Diff(map[string]any{"role": "teacher"}, map[string]any{"role": "bursar"}),
		}); err != nil {
			return err
		}
		if _, err := audit.Write(ctx, tx, audit.Entry{
			InstitutionID: &schoolB,
			Action:        audit.ActionStudentCreated,
			EntityType:    "student",
		}); err != nil {
			return err
		}
		_, err := audit.Write(context.Background(), tx, audit.Entry{
			Action:     audit.ActionInstitutionApproved,
			EntityType: "institution",
			EntityID:   schoolA.String(),
		})
		return err
	})
	require.NoError(t, err)

	store := audit.NewStore(pool)

	records, total, err := store.List(ctx, audit.Filter{InstitutionID: &schoolA})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, records, 1)
	require.Equal(t, audit.ActionStaffRoleChanged, records[0].Action)
	require.Equal(t, actor, *records[0].ActorID)
	require.Equal(t, schoolA, *records[0].InstitutionID)
	require.Equal(t, map[string]any{"from": "teacher", "to": "bursar"}, records[0].Changes["role"])

	platform, total, err := store.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Nil(t, platform[0].ActorID)
	require.Nil(t, platform[0].InstitutionID)
}

func TestWriteRequiresAction(t *testing.T) {
	_, err := audit.Write(context.Background(), nil, audit.Entry{EntityType: "student"})
	require.Error(t, err)
}
