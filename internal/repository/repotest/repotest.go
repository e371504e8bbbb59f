// Package repotest holds behaviour checks every datastore backend must pass.
package repotest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// Run exercises store against the shared repository contract.
func Run(t *testing.T, newStore func(t *testing.T) *repository.Store) {
	t.Run("principals", func(t *testing.T) { testPrincipals(t, newStore(t)) })
	t.Run("appointments", func(t *testing.T) { testAppointments(t, newStore(t)) })
	t.Run("consultations", func(t *testing.T) { testConsultations(t, newStore(t)) })
	t.Run("prescriptions", func(t *testing.T) { testPrescriptions(t, newStore(t)) })
	t.Run("notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("outbox", func(t *testing.T) { testOutbox(t, newStore(t)) })
}

func principal(t *testing.T, store *repository.Store, role model.Role) *model.Principal {
	t.Helper()
	p := &model.Principal{
		Email:        uuid.NewString() + "@Clinic.test",
		Name:         string(role),
		PasswordHash: "hash",
		Role:         role,
		Status:       model.PrincipalStatusActive,
	}
	require.NoError(t, store.Principals.Create(context.Background(), p))
	return p
}

func appointment(t *testing.T, store *repository.Store) *model.Appointment {
	t.Helper()
	patient := principal(t, store, model.RolePatient)
	doctor := principal(t, store, model.RoleDoctor)
	apt := &model.Appointment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      time.Now().UTC().Truncate(time.Millisecond),
		Time:      "09:30",
		Status:    model.AppointmentStatusScheduled,
		Reason:    "checkup",
	}
	require.NoError(t, store.Appointments.Create(context.Background(), apt))
	return apt
}

func consultation(t *testing.T, store *repository.Store) *model.Consultation {
	t.Helper()
	apt := appointment(t, store)
	c := &model.Consultation{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		Status:        model.ConsultationStatusOngoing,
		StartTime:     time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Consultations.Create(context.Background(), c))
	return c
}

func testPrincipals(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	p := principal(t, store, model.RolePatient)

	got, err := store.Principals.GetByEmail(ctx, " "+p.Email+" ")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, model.NormalizeEmail(p.Email), got.Email)

	dup := &model.Principal{Email: p.Email, Name: "x", PasswordHash: "h", Role: model.RolePatient, Status: model.PrincipalStatusActive}
	assert.ErrorIs(t, store.Principals.Create(ctx, dup), repository.ErrDuplicate)

	token := "refresh-token"
	require.NoError(t, store.Principals.SetRefreshToken(ctx, p.ID, &token))
	got, err = store.Principals.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RefreshToken)
	assert.Equal(t, token, *got.RefreshToken)

	require.NoError(t, store.Principals.SetRefreshToken(ctx, p.ID, nil))
	got, err = store.Principals.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RefreshToken)

	require.NoError(t, store.Principals.UpdateRole(ctx, p.ID, model.RoleDoctor))
	require.NoError(t, store.Principals.UpdateStatus(ctx, p.ID, model.PrincipalStatusSuspended))
	got, err = store.Principals.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, got.Role)
	assert.Equal(t, model.PrincipalStatusSuspended, got.Status)

	doctors, err := store.Principals.List(ctx, model.PrincipalFilter{Role: model.RoleDoctor})
	require.NoError(t, err)
	assert.NotEmpty(t, doctors)
	for _, d := range doctors {
		assert.Equal(t, model.RoleDoctor, d.Role)
	}

	_, err = store.Principals.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.Principals.UpdateRole(ctx, uuid.New(), model.RoleAdmin), repository.ErrNotFound)
}

func testAppointments(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	apt := appointment(t, store)

	listed, err := store.Appointments.List(ctx, model.AppointmentFilter{PatientID: apt.PatientID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, apt.ID, listed[0].ID)

	apt.Status = model.AppointmentStatusConfirmed
	require.NoError(t, store.Appointments.UpdateStatus(ctx, apt, model.AppointmentStatusScheduled))

	stale := *apt
	stale.Status = model.AppointmentStatusCancelled
	assert.ErrorIs(t, store.Appointments.UpdateStatus(ctx, &stale, model.AppointmentStatusScheduled), repository.ErrConflict)

	got, err := store.Appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, got.Status)

	missing := *apt
	missing.ID = uuid.New()
	assert.ErrorIs(t, store.Appointments.UpdateStatus(ctx, &missing, model.AppointmentStatusConfirmed), repository.ErrNotFound)

	require.NoError(t, store.Appointments.Delete(ctx, apt.ID))
	_, err = store.Appointments.Get(ctx, apt.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.Appointments.Delete(ctx, apt.ID), repository.ErrNotFound)
}

func testConsultations(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	c := consultation(t, store)

	again := &model.Consultation{
		AppointmentID: c.AppointmentID,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		Status:        model.ConsultationStatusOngoing,
		StartTime:     c.StartTime,
	}
	assert.ErrorIs(t, store.Consultations.Create(ctx, again), repository.ErrDuplicate)

	c.Notes = append(c.Notes, model.ClinicalNote{Text: "note", AuthorID: c.DoctorID, CreatedAt: time.Now().UTC()})
	require.NoError(t, store.Consultations.Update(ctx, c, model.ConsultationStatusOngoing))

	got, err := store.Consultations.GetByAppointment(ctx, c.AppointmentID)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "note", got.Notes[0].Text)

	c.Status = model.ConsultationStatusCompleted
	require.NoError(t, store.Consultations.Update(ctx, c, model.ConsultationStatusOngoing))
	c.Status = model.ConsultationStatusLocked
	assert.ErrorIs(t, store.Consultations.Update(ctx, c, model.ConsultationStatusOngoing), repository.ErrConflict)
}

func testPrescriptions(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	c := consultation(t, store)

	p := &model.Prescription{
		ConsultationID: c.ID,
		AppointmentID:  c.AppointmentID,
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		IssueDate:      time.Now().UTC().Truncate(time.Millisecond),
		Status:         model.PrescriptionStatusActive,
		Medications:    model.Medications{{Name: "amoxicillin", Dosage: "500mg", Frequency: "tid", Duration: "10 days"}},
	}
	require.NoError(t, store.Prescriptions.Create(ctx, p))

	byPatient, err := store.Prescriptions.ListByPatient(ctx, c.PatientID)
	require.NoError(t, err)
	require.Len(t, byPatient, 1)
	assert.Equal(t, "10 days", byPatient[0].Medications[0].Duration)

	byConsultation, err := store.Prescriptions.ListByConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, byConsultation, 1)

	changed, err := store.Prescriptions.TransitionStatus(ctx, p.ID, model.PrescriptionStatusActive, model.PrescriptionStatusCompleted)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Prescriptions.TransitionStatus(ctx, p.ID, model.PrescriptionStatusActive, model.PrescriptionStatusCompleted)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.Prescriptions.TransitionStatus(ctx, uuid.New(), model.PrescriptionStatusActive, model.PrescriptionStatusCompleted)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testNotifications(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	recipient := uuid.New()
	other := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n := &model.Notification{
			RecipientID: recipient,
			Type:        model.NotificationAppointmentBooked,
			Message:     "booked",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Millisecond),
		}
		require.NoError(t, store.Notifications.Create(ctx, n))
		ids = append(ids, n.ID)
	}

	count, err := store.Notifications.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	listed, err := store.Notifications.ListByRecipient(ctx, recipient, model.NotificationFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID)

	assert.ErrorIs(t, store.Notifications.MarkRead(ctx, ids[0], other), repository.ErrNotFound)
	require.NoError(t, store.Notifications.MarkRead(ctx, ids[0], recipient))

	unread, err := store.Notifications.ListByRecipient(ctx, recipient, model.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	marked, err := store.Notifications.MarkAllRead(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	count, err = store.Notifications.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testOutbox(t *testing.T, store *repository.Store) {
	ctx := context.Background()

	event := &model.OutboxEvent{EventType: "email", Payload: json.RawMessage(`{"to":"a@b.c"}`)}
	require.NoError(t, store.Outbox.Create(ctx, event))

	claimed, err := store.Outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, model.OutboxStatusProcessing, claimed[0].Status)
	assert.JSONEq(t, `{"to":"a@b.c"}`, string(claimed[0].Payload))

	again, err := store.Outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	past := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Outbox.MarkFailed(ctx, event.ID, "smtp down", &past))
	retried, err := store.Outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].RetryCount)

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.Outbox.MarkFailed(ctx, event.ID, "smtp down", &future))
	notDue, err := store.Outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, notDue)

	require.NoError(t, store.Outbox.MarkProcessed(ctx, event.ID))
	deleted, err := store.Outbox.DeleteProcessedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
