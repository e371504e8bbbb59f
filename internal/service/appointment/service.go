package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// ConsultationStarter opens the clinical record when a visit begins.
type ConsultationStarter interface {
	Start(ctx context.Context, apt *model.Appointment) (*model.Consultation, error)
}

type Service struct {
	repo          repository.AppointmentRepository
	principals    repository.PrincipalRepository
	consultations ConsultationStarter
	notifier      notification.Notifier
	messages      outbound.Sender
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewService returns a Service. messages may be nil, in which case no email or SMS is sent.
func NewService(repo repository.AppointmentRepository, principals repository.PrincipalRepository,
	consultations ConsultationStarter, notifier notification.Notifier, messages outbound.Sender,
	logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:          repo,
		principals:    principals,
		consultations: consultations,
		notifier:      notifier,
		messages:      messages,
		logger:        logger.With().Str("component", "appointment").Logger(),
		metrics:       m,
		now:           time.Now,
	}
}

// Book creates a scheduled appointment. Patients always book for themselves.
func (s *Service) Book(ctx context.Context, session *model.Session, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if err := authz.Require(session, model.RolePatient, model.RoleAdmin); err != nil {
		return nil, err
	}

	patientID := req.PatientID
	if session.Role == model.RolePatient {
		patientID = session.PrincipalID
	}
	if patientID == uuid.Nil {
		return nil, apperrors.MissingField("patient_id")
	}
	if req.Date.IsZero() {
		return nil, apperrors.MissingField("date")
	}

	if session.Role == model.RoleAdmin {
		patient, err := s.principals.Get(ctx, patientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NotFound("patient", err)
			}
			return nil, apperrors.Dependency("load patient", err)
		}
		if patient.Role != model.RolePatient || !patient.IsActive() {
			return nil, apperrors.BadRequest("patient_id does not name an active patient", nil)
		}
	}

	doctor, err := s.principals.Get(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, apperrors.Dependency("load doctor", err)
	}
	if doctor.Role != model.RoleDoctor || !doctor.IsActive() {
		return nil, apperrors.BadRequest("doctor is not available for booking", nil)
	}

	apt := &model.Appointment{
		PatientID: patientID,
		DoctorID:  doctor.ID,
		Date:      req.Date.UTC(),
		Time:      req.Time,
		Status:    model.AppointmentStatusScheduled,
		Reason:    req.Reason,
	}
	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, apperrors.Dependency("create appointment", err)
	}

	s.notify(ctx, session, apt, apt.DoctorID, model.NotificationAppointmentBooked,
		fmt.Sprintf("New appointment booked for %s at %s", apt.Date.Format("2006-01-02"), apt.Time))

	s.logger.Info().
		Str("appointment_id", apt.ID.String()).
		Str("patient_id", apt.PatientID.String()).
		Str("doctor_id", apt.DoctorID.String()).
		Msg("Appointment booked")
	return apt, nil
}

// Get returns the appointment to its participants and to admins.
func (s *Service) Get(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Appointment, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Role != model.RoleAdmin && !apt.Involves(session.PrincipalID) {
		return nil, apperrors.Forbidden("not a participant of this appointment")
	}
	return apt, nil
}

// List scopes the filter to the caller: patients and doctors only see their own appointments.
func (s *Service) List(ctx context.Context, session *model.Session, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	switch session.Role {
	case model.RolePatient:
		filter.PatientID = session.PrincipalID
	case model.RoleDoctor:
		filter.DoctorID = session.PrincipalID
	}

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Dependency("list appointments", err)
	}
	return list, nil
}

// Delete is an admin operation outside the lifecycle.
func (s *Service) Delete(ctx context.Context, session *model.Session, id uuid.UUID) error {
	if err := authz.Require(session, model.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, "delete appointment")
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("by", session.PrincipalID.String()).Msg("Appointment deleted")
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load appointment")
	}
	return apt, nil
}

// notify creates a notification for recipient. Failures are logged; the state change already happened.
func (s *Service) notify(ctx context.Context, session *model.Session, apt *model.Appointment, recipient uuid.UUID,
	typ model.NotificationType, message string) {
	sender := session.PrincipalID
	related := apt.ID
	_, err := s.notifier.Notify(ctx, notification.Event{
		RecipientID: recipient,
		SenderID:    &sender,
		Type:        typ,
		Message:     message,
		RelatedID:   &related,
		Link:        "/appointments/" + apt.ID.String(),
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", apt.ID.String()).
			Str("recipient", recipient.String()).
			Msg("Failed to notify")
	}
}

func mapRepoError(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("appointment", err)
	}
	return apperrors.Dependency(op, err)
}
