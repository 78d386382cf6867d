package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/domains/messaging/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/messaging/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
)

type recordingMailer struct{ sent []notify.Message }

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type sendCounter map[string]int

func (c sendCounter) MessageSent(target string) { c[target]++ }

type fixture struct {
	store      *repo.MemoryRepository
	school     uuid.UUID
	rival      uuid.UUID
	onTime     uuid.UUID
	overdue    uuid.UUID
	noEmail    uuid.UUID
	inactive   uuid.UUID
	rivalPupil uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		store:      repo.NewMemoryRepository(),
		school:     uuid.New(),
		rival:      uuid.New(),
		onTime:     uuid.New(),
		overdue:    uuid.New(),
		noEmail:    uuid.New(),
		inactive:   uuid.New(),
		rivalPupil: uuid.New(),
	}
	f.store.AddStudent(f.school, service.Recipient{StudentID: f.onTime, FullName: "Akinyi Odera", AdmissionNumber: "S-1", Email: "akinyi@pupil.test"}, true, false)
	f.store.AddStudent(f.school, service.Recipient{StudentID: f.overdue, FullName: "Brian Kamau", AdmissionNumber: "S-2", Email: "brian@pupil.test"}, true, true)
	f.store.AddStudent(f.school, service.Recipient{StudentID: f.noEmail, FullName: "Cheruto Kiprop", AdmissionNumber: "S-3"}, true, true)
	f.store.AddStudent(f.school, service.Recipient{StudentID: f.inactive, FullName: "Dalmas Ouma", AdmissionNumber: "S-4", Email: "dalmas@pupil.test"}, false, true)
	f.store.AddStudent(f.rival, service.Recipient{StudentID: f.rivalPupil, FullName: "Esther Njeri", AdmissionNumber: "S-1", Email: "esther@pupil.test"}, true, true)
	return f
}

func (f fixture) input(target string, ids ...uuid.UUID) service.SendInput {
	return service.SendInput{
		InstitutionID:   f.school,
		InstitutionName: "Maseno School",
		Subject:         "Fee reminder",
		Type:            "reminder",
		Content:         "Please clear the term balance by Friday.",
		Target:          target,
		StudentIDs:      ids,
	}
}

func TestSendTargets(t *testing.T) {
	f := newFixture()
	mailer := &recordingMailer{}
	counts := sendCounter{}
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	svc := service.New(f.store, service.WithMailer(mailer), service.WithMetrics(counts),
		service.WithClock(func() time.Time { return at }))

	all, err := svc.Send(t.Context(), f.input("all"))
	require.NoError(t, err)
	require.Equal(t, 3, all.Message.RecipientCount)
	require.Equal(t, at, all.Message.SentAt)
	require.True(t, all.Message.IsActive)
	require.Len(t, mailer.sent, 2, "students without an email are skipped")

	overdue, err := svc.Send(t.Context(), f.input("overdue"))
	require.NoError(t, err)
	require.Equal(t, 2, overdue.Message.RecipientCount)
	ids := []uuid.UUID{overdue.Recipients[0].StudentID, overdue.Recipients[1].StudentID}
	require.ElementsMatch(t, []uuid.UUID{f.overdue, f.noEmail}, ids)

	specific, err := svc.Send(t.Context(), f.input("specific", f.onTime, f.onTime))
	require.NoError(t, err)
	require.Equal(t, 1, specific.Message.RecipientCount)
	require.Equal(t, "akinyi@pupil.test", mailer.sent[len(mailer.sent)-1].ToAddress)
	require.Contains(t, mailer.sent[len(mailer.sent)-1].TextContent, "Maseno School")

	require.Equal(t, sendCounter{"all": 1, "overdue": 1, "specific": 1}, counts)

	list, err := svc.List(t.Context(), f.school, service.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, list.TotalItems)

	got, err := svc.Get(t.Context(), f.school, specific.Message.ID)
	require.NoError(t, err)
	require.Len(t, got.Recipients, 1)

	_, err = svc.Get(t.Context(), f.rival, specific.Message.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestSendRejectsForeignAndInactiveStudents(t *testing.T) {
	f := newFixture()
	svc := service.New(f.store)

	for _, id := range []uuid.UUID{f.rivalPupil, f.inactive, uuid.New()} {
		_, err := svc.Send(t.Context(), f.input("specific", f.onTime, id))
		var de *domainerr.Error
		require.ErrorAs(t, err, &de)
		require.Contains(t, de.Fields, "studentIds")
	}

	list, err := svc.List(t.Context(), f.school, service.ListOptions{})
	require.NoError(t, err)
	require.Zero(t, list.TotalItems)
}

func TestSendValidation(t *testing.T) {
	f := newFixture()
	svc := service.New(f.store)

	in := f.input("everyone")
	in.Subject = " "
	in.Content = ""
	in.Type = "gossip"
	_, err := svc.Send(t.Context(), in)
	var de *domainerr.Error
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "subject")
	require.Contains(t, de.Fields, "content")
	require.Contains(t, de.Fields, "type")
	require.Contains(t, de.Fields, "target")

	_, err = svc.Send(t.Context(), f.input("specific"))
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "studentIds")

	_, err = svc.Send(t.Context(), f.input("all", f.onTime))
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "studentIds")

	empty := f.input("overdue")
	empty.InstitutionID = uuid.New()
	_, err = svc.Send(t.Context(), empty)
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "target")
}

func TestUrgentSubjectIsFlagged(t *testing.T) {
	f := newFixture()
	mailer := &recordingMailer{}
	svc := service.New(f.store, service.WithMailer(mailer))

	in := f.input("specific", f.overdue)
	in.Type = "URGENT"
	d, err := svc.Send(t.Context(), in)
	require.NoError(t, err)
	require.Equal(t, service.TypeUrgent, d.Message.Type)
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "[Urgent] Fee reminder", mailer.sent[0].Subject)
}
