package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/domains/users/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

type stubIdentity struct {
	uid string
	err error
}

func (s stubIdentity) EnsureIdentity(context.Context, string, string) (string, error) {
	return s.uid, s.err
}

func TestCreateValidatesInput(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())

	_, err := svc.Create(t.Context(), service.CreateInput{Email: "not-an-email", PlatformRole: "wizard"})
	require.Error(t, err)
	require.True(t, domainerr.Is(err, domainerr.KindValidation))

	var de *domainerr.Error
	require.True(t, errors.As(err, &de))
	require.Contains(t, de.Fields, "email")
	require.Contains(t, de.Fields, "fullName")
	require.Contains(t, de.Fields, "platformRole")
}

func TestCreateInstitutionAdminNeedsInstitution(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())

	_, err := svc.Create(t.Context(), service.CreateInput{
		Email:        "head@school.ac.ke",
		FullName:     "Head Teacher",
		PlatformRole: string(platformauth.PlatformRoleInstitutionAdmin),
	})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}

func TestCreateNormalisesEmailAndRejectsDuplicates(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())

	u, err := svc.Create(t.Context(), service.CreateInput{Email: "  Bursar@School.AC.KE ", FullName: "Jane Bursar"})
	require.NoError(t, err)
	require.Equal(t, "bursar@school.ac.ke", u.Email)
	require.Equal(t, platformauth.PlatformRoleOther, u.PlatformRole)
	require.True(t, u.IsActive)

	_, err = svc.Create(t.Context(), service.CreateInput{Email: "bursar@school.ac.ke", FullName: "Someone Else"})
	require.ErrorIs(t, err, service.ErrEmailTaken)
}

func TestCreateSurvivesIdentityProviderFailure(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository(), service.WithIdentityProvisioner(stubIdentity{err: errors.New("provider down")}))

	u, err := svc.Create(t.Context(), service.CreateInput{Email: "teacher@school.ac.ke", FullName: "A Teacher"})
	require.NoError(t, err)
	require.Nil(t, u.ExternalUID)
}

func TestCreateStoresProvisionedIdentity(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository(), service.WithIdentityProvisioner(stubIdentity{uid: "firebase-uid"}))

	u, err := svc.Create(t.Context(), service.CreateInput{Email: "teacher@school.ac.ke", FullName: "A Teacher"})
	require.NoError(t, err)
	require.NotNil(t, u.ExternalUID)
	require.Equal(t, "firebase-uid", *u.ExternalUID)
}

func TestResolvePrincipal(t *testing.T) {
	ctx := t.Context()

	t.Run("by external uid", func(t *testing.T) {
		svc := service.New(repo.NewMemoryRepository(), service.WithIdentityProvisioner(stubIdentity{uid: "uid-1"}))
		u, err := svc.Create(ctx, service.CreateInput{Email: "a@school.ac.ke", FullName: "A"})
		require.NoError(t, err)

		p, err := svc.ResolvePrincipal(ctx, platformauth.UserCredentials{Id: "uid-1"})
		require.NoError(t, err)
		require.Equal(t, u.ID, p.UserID)
		require.Equal(t, "uid-1", p.ExternalUID)
	})

	t.Run("links verified email on first sign in", func(t *testing.T) {
		repository := repo.NewMemoryRepository()
		svc := service.New(repository)
		u, err := svc.Create(ctx, service.CreateInput{Email: "b@school.ac.ke", FullName: "B"})
		require.NoError(t, err)

		p, err := svc.ResolvePrincipal(ctx, platformauth.UserCredentials{Id: "uid-2", Email: "B@school.ac.ke", EmailVerified: true})
		require.NoError(t, err)
		require.Equal(t, u.ID, p.UserID)

		stored, err := repository.Get(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ExternalUID)
		require.Equal(t, "uid-2", *stored.ExternalUID)
	})

	t.Run("unverified email is not linked", func(t *testing.T) {
		svc := service.New(repo.NewMemoryRepository())
		_, err := svc.Create(ctx, service.CreateInput{Email: "c@school.ac.ke", FullName: "C"})
		require.NoError(t, err)

		_, err = svc.ResolvePrincipal(ctx, platformauth.UserCredentials{Id: "uid-3", Email: "c@school.ac.ke"})
		require.ErrorIs(t, err, platformauth.ErrUnknownPrincipal)
	})

	t.Run("email already bound to another identity", func(t *testing.T) {
		svc := service.New(repo.NewMemoryRepository(), service.WithIdentityProvisioner(stubIdentity{uid: "uid-4"}))
		_, err := svc.Create(ctx, service.CreateInput{Email: "d@school.ac.ke", FullName: "D"})
		require.NoError(t, err)

		_, err = svc.ResolvePrincipal(ctx, platformauth.UserCredentials{Id: "uid-other", Email: "d@school.ac.ke", EmailVerified: true})
		require.ErrorIs(t, err, platformauth.ErrUnknownPrincipal)
	})

	t.Run("unknown", func(t *testing.T) {
		svc := service.New(repo.NewMemoryRepository())
		_, err := svc.ResolvePrincipal(ctx, platformauth.UserCredentials{Id: "nobody"})
		require.ErrorIs(t, err, platformauth.ErrUnknownPrincipal)
	})
}

func TestMeIncludesMemberships(t *testing.T) {
	repository := repo.NewMemoryRepository()
	svc := service.New(repository)
	u, err := svc.Create(t.Context(), service.CreateInput{Email: "e@school.ac.ke", FullName: "E"})
	require.NoError(t, err)

	repository.AddMembership(u.ID, service.Membership{StaffID: uuid.New(), InstitutionID: uuid.New(), InstitutionName: "Moi Girls", Role: "bursar", IsActive: true})

	me, err := svc.Me(t.Context(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, me.User.ID)
	require.Len(t, me.Memberships, 1)
	require.Equal(t, "Moi Girls", me.Memberships[0].InstitutionName)
}

func TestDeactivate(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	u, err := svc.Create(t.Context(), service.CreateInput{Email: "f@school.ac.ke", FullName: "F"})
	require.NoError(t, err)

	out, err := svc.Deactivate(t.Context(), u.ID)
	require.NoError(t, err)
	require.False(t, out.IsActive)

	_, err = svc.Deactivate(t.Context(), uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestAssignAdmin(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	ctx := t.Context()
	school := uuid.New()

	u, err := svc.Create(ctx, service.CreateInput{Email: "head@school.ac.ke", FullName: "Head", PlatformRole: "bursar"})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, u.ID)
	require.NoError(t, err)

	out, err := svc.AssignAdmin(ctx, u.ID, school)
	require.NoError(t, err)
	require.Equal(t, platformauth.PlatformRoleInstitutionAdmin, out.PlatformRole)
	require.Equal(t, &school, out.InstitutionID)
	require.True(t, out.IsActive)

	again, err := svc.AssignAdmin(ctx, u.ID, school)
	require.NoError(t, err)
	require.Equal(t, out.UpdatedAt, again.UpdatedAt, "reassigning the same institution is a no-op")

	other := uuid.New()
	moved, err := svc.AssignAdmin(ctx, u.ID, other)
	require.NoError(t, err)
	require.Equal(t, &other, moved.InstitutionID)

	root, err := svc.Create(ctx, service.CreateInput{Email: "root@edupay.africa", FullName: "Root", PlatformRole: "super_admin"})
	require.NoError(t, err)
	_, err = svc.AssignAdmin(ctx, root.ID, school)
	require.True(t, domainerr.Is(err, domainerr.KindConflict))

	_, err = svc.AssignAdmin(ctx, uuid.New(), school)
	require.True(t, domainerr.Is(err, domainerr.KindNotFound))

	_, err = svc.AssignAdmin(ctx, u.ID, uuid.Nil)
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}
