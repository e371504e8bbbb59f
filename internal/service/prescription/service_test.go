package prescription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notification.Event) (*model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return &model.Notification{ID: uuid.New()}, nil
}

type fixture struct {
	svc           *Service
	consultations *consultation.Service
	store         *repository.Store
	notifier      *recordingNotifier
	metrics       *metrics.Metrics
	clock         time.Time
	record        *model.Consultation
	doctor        *model.Session
	patient       *model.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		notifier: &recordingNotifier{},
		metrics:  metrics.New("test", prometheus.NewRegistry()),
		clock:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	f.consultations = consultation.NewService(f.store.Consultations, f.notifier, nil, zerolog.Nop(), f.metrics)
	f.svc = NewService(f.store.Prescriptions, f.consultations, f.notifier, zerolog.Nop(), f.metrics)
	f.svc.now = func() time.Time { return f.clock }

	apt := &model.Appointment{Base: model.NewBase(f.clock), PatientID: uuid.New(), DoctorID: uuid.New()}
	record, err := f.consultations.Start(context.Background(), apt)
	require.NoError(t, err)
	f.record = record
	f.doctor = &model.Session{PrincipalID: apt.DoctorID, Role: model.RoleDoctor}
	f.patient = &model.Session{PrincipalID: apt.PatientID, Role: model.RolePatient}
	return f
}

func (f *fixture) issue(t *testing.T, duration string) *model.Prescription {
	t.Helper()
	p, err := f.svc.Issue(context.Background(), f.doctor, f.record.ID, &model.IssuePrescriptionRequest{
		Medications: []model.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", Duration: duration}},
	})
	require.NoError(t, err)
	return p
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	p := f.issue(t, "10 days")

	assert.Equal(t, model.PrescriptionStatusActive, p.Status)
	assert.Equal(t, f.record.PatientID, p.PatientID)
	assert.Equal(t, f.clock, p.IssueDate)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.NotificationPrescriptionIssued, f.notifier.events[0].Type)
	assert.Equal(t, f.record.PatientID, f.notifier.events[0].RecipientID)
}

func TestIssueRequiresOngoingConsultation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.patient, f.record.ID, &model.IssuePrescriptionRequest{
		Medications: []model.Medication{{Name: "x"}},
	})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = f.consultations.End(ctx, f.doctor, f.record.ID, &model.EndConsultationRequest{})
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, f.doctor, f.record.ID, &model.IssuePrescriptionRequest{
		Medications: []model.Medication{{Name: "x"}},
	})
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	_, err = f.svc.Issue(ctx, f.doctor, f.record.ID, &model.IssuePrescriptionRequest{})
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonMissingField))
}

func TestLazyExpiryOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.issue(t, "10 days")

	f.clock = p.IssueDate.Add(10*24*time.Hour - time.Second)
	got, err := f.svc.Get(ctx, f.patient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusActive, got.Status)

	f.clock = p.IssueDate.Add(10 * 24 * time.Hour)
	got, err = f.svc.Get(ctx, f.patient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusCompleted, got.Status)

	stored, err := f.store.Prescriptions.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusCompleted, stored.Status)

	_, err = f.svc.Get(ctx, f.patient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PrescriptionsExpired))
}

func TestConcurrentReadsExpireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.issue(t, "1 week")
	f.clock = p.IssueDate.Add(8 * 24 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.Get(ctx, f.doctor, p.ID)
			assert.NoError(t, err)
			assert.Equal(t, model.PrescriptionStatusCompleted, got.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PrescriptionsExpired))
}

func TestListsEvaluateExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short := f.issue(t, "2 days")
	long := f.issue(t, "1 month")
	open := f.issue(t, "as directed")

	f.clock = f.clock.Add(3 * 24 * time.Hour)

	list, err := f.svc.ListForPatient(ctx, f.patient, f.patient.PrincipalID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	status := map[uuid.UUID]model.PrescriptionStatus{}
	for _, p := range list {
		status[p.ID] = p.Status
	}
	assert.Equal(t, model.PrescriptionStatusCompleted, status[short.ID])
	assert.Equal(t, model.PrescriptionStatusActive, status[long.ID])
	assert.Equal(t, model.PrescriptionStatusActive, status[open.ID])

	mine, err := f.svc.ListMine(ctx, f.doctor)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	_, err = f.svc.ListForPatient(ctx, &model.Session{PrincipalID: uuid.New(), Role: model.RolePatient}, f.patient.PrincipalID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.issue(t, "10 days")
	expired := f.issue(t, "1 day")

	_, err := f.svc.Cancel(ctx, f.patient, p.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	out, err := f.svc.Cancel(ctx, f.doctor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusCancelled, out.Status)

	_, err = f.svc.Cancel(ctx, f.doctor, p.ID)
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonInvalidTransition))

	f.clock = f.clock.Add(2 * 24 * time.Hour)
	_, err = f.svc.Cancel(ctx, f.doctor, expired.ID)
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonInvalidTransition))
	assert.Contains(t, apperrors.PublicMessage(err), "completed")
}
