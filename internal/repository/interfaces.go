package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a conditional update found the row in a different state.
	ErrConflict  = errors.New("state changed concurrently")
	ErrDuplicate = errors.New("duplicate")
)

// All repository interfaces in one file
type (
	PrincipalRepository interface {
		Create(ctx context.Context, p *model.Principal) error
		Get(ctx context.Context, id uuid.UUID) (*model.Principal, error)
		GetByEmail(ctx context.Context, email string) (*model.Principal, error)
		List(ctx context.Context, filter model.PrincipalFilter) ([]*model.Principal, error)
		// SetRefreshToken overwrites the stored token; nil clears it.
		SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
		UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.PrincipalStatus) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, apt *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error)
		// UpdateStatus persists apt only if the stored status still equals from.
		UpdateStatus(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	ConsultationRepository interface {
		Create(ctx context.Context, c *model.Consultation) error
		Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error)
		// Update persists c only if the stored status still equals from.
		Update(ctx context.Context, c *model.Consultation, from model.ConsultationStatus) error
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
		ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Prescription, error)
		ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Prescription, error)
		// TransitionStatus reports whether the row was in from and is now in to.
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.PrescriptionStatus) (bool, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		ListByRecipient(ctx context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
		MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
		CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending moves due events to processing so concurrent workers never share one.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed schedules a retry at retryAt, or gives up when retryAt is nil.
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Store bundles one datastore backend.
type Store struct {
	Principals    PrincipalRepository
	Appointments  AppointmentRepository
	Consultations ConsultationRepository
	Prescriptions PrescriptionRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
	Ping          func(ctx context.Context) error
	Close         func() error
}

// DefaultListLimit caps unbounded list queries.
const DefaultListLimit = 100
