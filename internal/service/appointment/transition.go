package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/repository"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

var notificationTypes = map[model.AppointmentStatus]model.NotificationType{
	model.AppointmentStatusConfirmed:  model.NotificationAppointmentConfirmed,
	model.AppointmentStatusCancelled:  model.NotificationAppointmentCancelled,
	model.AppointmentStatusInProgress: model.NotificationAppointmentStarted,
	model.AppointmentStatusCompleted:  model.NotificationAppointmentCompleted,
	model.AppointmentStatusNoShow:     model.NotificationAppointmentNoShow,
}

// Transition applies one lifecycle step. Input is validated before anything is read or written,
// so a rejected request leaves no notification behind.
func (s *Service) Transition(ctx context.Context, session *model.Session, id uuid.UUID, req *model.TransitionRequest) (*model.Appointment, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	to := req.Status
	if !to.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown status %q", to), nil)
	}
	reason := strings.TrimSpace(req.CancelReason)
	if to == model.AppointmentStatusCancelled && reason == "" {
		return nil, apperrors.MissingField("cancel_reason")
	}

	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkParticipation(session, apt, to); err != nil {
		return nil, err
	}

	from := apt.Status
	if !from.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransition(string(from), string(to))
	}

	now := s.now().UTC()
	apt.Status = to
	switch to {
	case model.AppointmentStatusCancelled:
		apt.CancelReason = &reason
	case model.AppointmentStatusInProgress:
		apt.StartedAt = &now
	case model.AppointmentStatusCompleted:
		apt.CompletedAt = &now
		mergeClinicalFields(apt, req)
	}

	if err := s.repo.UpdateStatus(ctx, apt, from); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			current, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, apperrors.InvalidTransition(string(current.Status), string(to))
		}
		return nil, mapRepoError(err, "update appointment")
	}
	s.metrics.Transitions.WithLabelValues("appointment", string(from), string(to)).Inc()

	s.logger.Info().
		Str("appointment_id", apt.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("by", session.PrincipalID.String()).
		Msg("Appointment transitioned")

	if to == model.AppointmentStatusInProgress && s.consultations != nil {
		if _, err := s.consultations.Start(ctx, apt); err != nil {
			s.logger.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("Failed to start consultation")
		}
	}

	s.notify(ctx, session, apt, counterpart(session, apt), notificationTypes[to], transitionMessage(apt))
	s.sendExternal(ctx, apt)

	return apt, nil
}

// checkParticipation: admins act on everything, doctors on their own appointments,
// patients may only cancel their own.
func checkParticipation(session *model.Session, apt *model.Appointment, to model.AppointmentStatus) error {
	switch session.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleDoctor:
		if apt.DoctorID != session.PrincipalID {
			return apperrors.Forbidden("appointment is assigned to another doctor")
		}
		return nil
	case model.RolePatient:
		if apt.PatientID != session.PrincipalID {
			return apperrors.Forbidden("not a participant of this appointment")
		}
		if to != model.AppointmentStatusCancelled {
			return apperrors.Forbidden("patients may only cancel appointments")
		}
		return nil
	}
	return apperrors.Forbidden("")
}

func mergeClinicalFields(apt *model.Appointment, req *model.TransitionRequest) {
	if req.Notes != "" {
		apt.Notes = req.Notes
	}
	if req.Diagnosis != "" {
		apt.Diagnosis = req.Diagnosis
	}
	if req.Treatment != "" {
		apt.Treatment = req.Treatment
	}
}

// counterpart is the other party: the doctor when the patient acted, the patient otherwise.
func counterpart(session *model.Session, apt *model.Appointment) uuid.UUID {
	if session.PrincipalID == apt.PatientID {
		return apt.DoctorID
	}
	return apt.PatientID
}

func transitionMessage(apt *model.Appointment) string {
	when := fmt.Sprintf("%s at %s", apt.Date.Format("2006-01-02"), apt.Time)
	switch apt.Status {
	case model.AppointmentStatusConfirmed:
		return "Your appointment on " + when + " has been confirmed"
	case model.AppointmentStatusCancelled:
		return fmt.Sprintf("The appointment on %s was cancelled: %s", when, *apt.CancelReason)
	case model.AppointmentStatusInProgress:
		return "Your consultation has started"
	case model.AppointmentStatusCompleted:
		return "Your appointment on " + when + " is complete"
	case model.AppointmentStatusNoShow:
		return "The appointment on " + when + " was marked as missed"
	}
	return "Appointment updated"
}

// sendExternal reaches the patient outside the app on confirmation and cancellation.
// Delivery problems are logged and never fail the transition.
func (s *Service) sendExternal(ctx context.Context, apt *model.Appointment) {
	if s.messages == nil {
		return
	}
	if apt.Status != model.AppointmentStatusConfirmed && apt.Status != model.AppointmentStatusCancelled {
		return
	}

	patient, err := s.principals.Get(ctx, apt.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", apt.ID.String()).Msg("Patient contact lookup failed")
		return
	}

	body := transitionMessage(apt)
	msgs := []outbound.Message{{
		Channel: outbound.ChannelEmail,
		To:      patient.Email,
		Subject: "Appointment " + string(apt.Status),
		Body:    body,
	}}
	if apt.Status == model.AppointmentStatusConfirmed && patient.Phone != "" {
		msgs = append(msgs, outbound.Message{Channel: outbound.ChannelSMS, To: patient.Phone, Body: body})
	}

	for _, msg := range msgs {
		if err := s.messages.Send(ctx, msg); err != nil {
			s.logger.Error().Err(err).
				Str("appointment_id", apt.ID.String()).
				Str("channel", string(msg.Channel)).
				Msg("Outbound message failed")
		}
	}
}
