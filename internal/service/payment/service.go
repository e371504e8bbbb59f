// Package payment checks gateway callbacks. Order creation stays with the gateway.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type Service struct {
	appointments repository.AppointmentRepository
	notifier     notification.Notifier
	secret       string
	logger       zerolog.Logger
}

func NewService(appointments repository.AppointmentRepository, notifier notification.Notifier, secret string, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		notifier:     notifier,
		secret:       secret,
		logger:       logger.With().Str("component", "payment").Logger(),
	}
}

// Verify accepts the callback only if the signature matches, then tells the doctor.
func (s *Service) Verify(ctx context.Context, session *model.Session, req *model.VerifyPaymentRequest) (*model.PaymentVerification, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	if !security.VerifyPaymentSignature(s.secret, req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn().Str("order_id", req.OrderID).Str("by", session.PrincipalID.String()).Msg("Payment signature mismatch")
		return nil, apperrors.BadRequest("invalid payment signature", nil)
	}

	apt, err := s.appointments.Get(ctx, req.AppointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, apperrors.Dependency("load appointment", err)
	}
	if session.Role != model.RoleAdmin && apt.PatientID != session.PrincipalID {
		return nil, apperrors.Forbidden("payment does not belong to this patient")
	}

	sender := apt.PatientID
	related := apt.ID
	if _, err := s.notifier.Notify(ctx, notification.Event{
		RecipientID: apt.DoctorID,
		SenderID:    &sender,
		Type:        model.NotificationPaymentReceived,
		Message:     fmt.Sprintf("Payment %s received for appointment on %s", req.PaymentID, apt.Date.Format("2006-01-02")),
		RelatedID:   &related,
		Link:        "/appointments/" + apt.ID.String(),
	}); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("Failed to notify doctor")
	}

	return &model.PaymentVerification{
		AppointmentID: apt.ID,
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		Verified:      true,
	}, nil
}
