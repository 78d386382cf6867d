package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/edupay-saas/domains/institutions/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
)

type recordingMailer struct {
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type transitionCounter map[string]int

func (c transitionCounter) InstitutionTransition(action string) { c[action]++ }

func newPending(t *testing.T, svc *service.Service) service.Institution {
	t.Helper()
	inst, err := svc.Create(t.Context(), service.CreateInput{
		Name:         "Moi Girls High School",
		Type:         "secondary",
		ContactName:  "Grace Wanjiru",
		ContactEmail: "Principal@MoiGirls.ac.ke",
	})
	require.NoError(t, err)
	return inst
}

func TestActionNext(t *testing.T) {
	cases := []struct {
		action service.Action
		from   service.Status
		to     service.Status
		ok     bool
	}{
		{service.ActionApprove, service.StatusPending, service.StatusApproved, true},
		{service.ActionApprove, service.StatusActive, "", false},
		{service.ActionReject, service.StatusPending, service.StatusRejected, true},
		{service.ActionReject, service.StatusApproved, "", false},
		{service.ActionActivate, service.StatusApproved, service.StatusActive, true},
		{service.ActionActivate, service.StatusPending, "", false},
		{service.ActionSuspend, service.StatusApproved, service.StatusSuspended, true},
		{service.ActionSuspend, service.StatusActive, service.StatusSuspended, true},
		{service.ActionSuspend, service.StatusPending, "", false},
		{service.ActionReinstate, service.StatusSuspended, service.StatusActive, true},
		{service.ActionReinstate, service.StatusActive, "", false},
		{service.ActionDeactivate, service.StatusRejected, service.StatusDeactivated, true},
		{service.ActionDeactivate, service.StatusDeactivated, "", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"_from_"+string(tc.from), func(t *testing.T) {
			to, err := tc.action.Next(tc.from)
			if !tc.ok {
				require.True(t, domainerr.Is(err, domainerr.KindConflict))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.to, to)
		})
	}
}

func TestCreateDerivesSlugAndStartsPending(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	inst := newPending(t, svc)

	require.Equal(t, "moi-girls-high-school", inst.Slug)
	require.Equal(t, service.StatusPending, inst.Status)
	require.Equal(t, service.TypeSecondary, inst.Type)
	require.Equal(t, "principal@moigirls.ac.ke", inst.ContactEmail)

	_, err := svc.Create(t.Context(), service.CreateInput{Name: "Moi Girls High School", ContactEmail: "x@moigirls.ac.ke"})
	require.ErrorIs(t, err, service.ErrConflictSlug)
}

func TestCreateValidation(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())

	_, err := svc.Create(t.Context(), service.CreateInput{Name: " ", Type: "kindergarten", ContactEmail: "nope"})
	var de *domainerr.Error
	require.True(t, errors.As(err, &de))
	require.Equal(t, domainerr.KindValidation, de.Kind)
	require.Contains(t, de.Fields, "name")
	require.Contains(t, de.Fields, "type")
	require.Contains(t, de.Fields, "contactEmail")
}

func TestTransitionLifecycle(t *testing.T) {
	mailer := &recordingMailer{}
	counter := transitionCounter{}
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	store := repo.NewMemoryRepository()
	svc := service.New(store,
		service.WithMailer(mailer),
		service.WithMetrics(counter),
		service.WithLogger(zaptest.NewLogger(t)),
		service.WithClock(func() time.Time { return now }))

	inst := newPending(t, svc)

	approved, err := svc.Transition(t.Context(), inst.ID, service.ActionApprove, "documents verified")
	require.NoError(t, err)
	require.Equal(t, service.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, now, *approved.ApprovedAt)

	active, err := svc.Transition(t.Context(), inst.ID, service.ActionActivate, "")
	require.NoError(t, err)
	require.Equal(t, service.StatusActive, active.Status)

	_, err = svc.Transition(t.Context(), inst.ID, service.ActionApprove, "")
	require.True(t, domainerr.Is(err, domainerr.KindConflict))

	logs, err := svc.StatusLog(t.Context(), inst.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "activated", logs[0].Action)
	require.Equal(t, "approved", logs[1].Action)
	require.Equal(t, "documents verified", logs[1].Note)

	require.Len(t, mailer.sent, 1, "only approve notifies here")
	require.Equal(t, "principal@moigirls.ac.ke", mailer.sent[0].ToAddress)
	require.Contains(t, mailer.sent[0].TextContent, "documents verified")
	require.Equal(t, 1, counter["approve"])
	require.Equal(t, 1, counter["activate"])
}

func TestTransitionSurvivesMailerFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	svc := service.New(repo.NewMemoryRepository(), service.WithMailer(mailer), service.WithLogger(zaptest.NewLogger(t)))
	inst := newPending(t, svc)

	rejected, err := svc.Transition(t.Context(), inst.ID, service.ActionReject, "incomplete documents")
	require.NoError(t, err)
	require.Equal(t, service.StatusRejected, rejected.Status)
	require.Len(t, mailer.sent, 1)
}

func TestTransitionUnknownInstitution(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	_, err := svc.Transition(t.Context(), uuid.New(), service.ActionApprove, "")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	inst := newPending(t, svc)

	name := "Moi Girls School"
	logo := "https://cdn.example.com/logo.png"
	updated, err := svc.UpdateProfile(t.Context(), inst.ID, service.ProfileInput{Name: &name, LogoURL: &logo})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
	require.Equal(t, logo, *updated.LogoURL)
	require.Equal(t, inst.Slug, updated.Slug, "slug is immutable")

	bad := "not-an-email"
	_, err = svc.UpdateProfile(t.Context(), inst.ID, service.ProfileInput{ContactEmail: &bad})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}

func TestResolveInstitution(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	inst := newPending(t, svc)

	resolved, err := svc.ResolveInstitution(t.Context(), inst.ID)
	require.NoError(t, err)
	require.Equal(t, inst.Slug, resolved.Slug)
	require.False(t, resolved.Operational())

	_, err = svc.Transition(t.Context(), inst.ID, service.ActionApprove, "")
	require.NoError(t, err)
	resolved, err = svc.ResolveInstitution(t.Context(), inst.ID)
	require.NoError(t, err)
	require.True(t, resolved.Operational())
}
