package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// ConsultationGuard admits writes only to an ONGOING consultation the caller may edit.
type ConsultationGuard interface {
	EnsureWritable(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Consultation, error)
}

type Service struct {
	repo          repository.PrescriptionRepository
	consultations ConsultationGuard
	notifier      notification.Notifier
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(repo repository.PrescriptionRepository, consultations ConsultationGuard, notifier notification.Notifier,
	logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:          repo,
		consultations: consultations,
		notifier:      notifier,
		logger:        logger.With().Str("component", "prescription").Logger(),
		metrics:       m,
		now:           time.Now,
	}
}

// Issue adds a prescription to an ongoing consultation and notifies the patient.
func (s *Service) Issue(ctx context.Context, session *model.Session, consultationID uuid.UUID, req *model.IssuePrescriptionRequest) (*model.Prescription, error) {
	if len(req.Medications) == 0 {
		return nil, apperrors.MissingField("medications")
	}
	c, err := s.consultations.EnsureWritable(ctx, session, consultationID)
	if err != nil {
		return nil, err
	}

	p := &model.Prescription{
		ConsultationID: c.ID,
		AppointmentID:  c.AppointmentID,
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		IssueDate:      s.now().UTC(),
		ValidUntil:     req.ValidUntil,
		Status:         model.PrescriptionStatusActive,
		Medications:    model.Medications(req.Medications),
		Instructions:   req.Instructions,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperrors.Dependency("create prescription", err)
	}

	sender := session.PrincipalID
	related := p.ID
	if _, err := s.notifier.Notify(ctx, notification.Event{
		RecipientID: p.PatientID,
		SenderID:    &sender,
		Type:        model.NotificationPrescriptionIssued,
		Message:     fmt.Sprintf("A new prescription with %d medication(s) was issued", len(p.Medications)),
		RelatedID:   &related,
		Link:        "/prescriptions/" + p.ID.String(),
	}); err != nil {
		s.logger.Error().Err(err).Str("prescription_id", p.ID.String()).Msg("Failed to notify patient")
	}

	return p, nil
}

func (s *Service) Get(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.load(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if err := s.evaluate(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListForPatient is open to the patient, doctors and admins.
func (s *Service) ListForPatient(ctx context.Context, session *model.Session, patientID uuid.UUID) ([]*model.Prescription, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	if session.Role == model.RolePatient && session.PrincipalID != patientID {
		return nil, apperrors.Forbidden("cannot view another patient's prescriptions")
	}

	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.Dependency("list prescriptions", err)
	}
	return s.evaluateAll(ctx, list)
}

// ListMine returns a patient's own prescriptions, or the ones a doctor issued.
func (s *Service) ListMine(ctx context.Context, session *model.Session) ([]*model.Prescription, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}

	var (
		list []*model.Prescription
		err  error
	)
	if session.Role == model.RolePatient {
		list, err = s.repo.ListByPatient(ctx, session.PrincipalID)
	} else {
		list, err = s.repo.ListByDoctor(ctx, session.PrincipalID)
	}
	if err != nil {
		return nil, apperrors.Dependency("list prescriptions", err)
	}
	return s.evaluateAll(ctx, list)
}

// Cancel moves an active prescription to cancelled. Expiry is evaluated first,
// so a lapsed prescription reports completed instead.
func (s *Service) Cancel(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Prescription, error) {
	if err := authz.Require(session, model.RoleDoctor, model.RoleAdmin); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PrescriptionStatusActive {
		return nil, apperrors.InvalidTransition(string(p.Status), string(model.PrescriptionStatusCancelled))
	}

	ok, err := s.repo.TransitionStatus(ctx, id, model.PrescriptionStatusActive, model.PrescriptionStatusCancelled)
	if err != nil {
		return nil, mapRepoError(err, "cancel prescription")
	}
	if !ok {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, mapRepoError(err, "load prescription")
		}
		return nil, apperrors.InvalidTransition(string(current.Status), string(model.PrescriptionStatusCancelled))
	}
	s.metrics.Transitions.WithLabelValues("prescription", string(model.PrescriptionStatusActive), string(model.PrescriptionStatusCancelled)).Inc()

	p.Status = model.PrescriptionStatusCancelled
	return p, nil
}

func (s *Service) load(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Prescription, error) {
	if err := authz.Require(session); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load prescription")
	}

	switch session.Role {
	case model.RoleAdmin:
		return p, nil
	case model.RoleDoctor:
		if p.DoctorID == session.PrincipalID {
			return p, nil
		}
	case model.RolePatient:
		if p.PatientID == session.PrincipalID {
			return p, nil
		}
	}
	return nil, apperrors.Forbidden("cannot access this prescription")
}

func (s *Service) evaluateAll(ctx context.Context, list []*model.Prescription) ([]*model.Prescription, error) {
	for _, p := range list {
		if err := s.evaluate(ctx, p); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// evaluate flips an expired active prescription to completed. The write is conditional on
// the stored status still being active, so concurrent readers flip it at most once.
func (s *Service) evaluate(ctx context.Context, p *model.Prescription) error {
	if !IsExpired(p, s.now()) {
		return nil
	}

	ok, err := s.repo.TransitionStatus(ctx, p.ID, model.PrescriptionStatusActive, model.PrescriptionStatusCompleted)
	if err != nil {
		return mapRepoError(err, "expire prescription")
	}
	if !ok {
		current, err := s.repo.Get(ctx, p.ID)
		if err != nil {
			return mapRepoError(err, "load prescription")
		}
		p.Status = current.Status
		return nil
	}

	s.metrics.PrescriptionsExpired.Inc()
	s.logger.Debug().Str("prescription_id", p.ID.String()).Msg("Prescription expired")
	p.Status = model.PrescriptionStatusCompleted
	return nil
}

func mapRepoError(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("prescription", err)
	}
	return apperrors.Dependency(op, err)
}
