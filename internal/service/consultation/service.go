package consultation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

// Service tracks the ONGOING -> COMPLETED -> LOCKED workflow of an appointment's clinical record.
type Service struct {
	repo      repository.ConsultationRepository
	notifier  notification.Notifier
	encryptor security.Encryptor
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService returns a Service. A nil encryptor stores the diagnosis as plain text.
func NewService(repo repository.ConsultationRepository, notifier notification.Notifier, encryptor security.Encryptor,
	logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		encryptor: encryptor,
		logger:    logger.With().Str("component", "consultation").Logger(),
		metrics:   m,
		now:       time.Now,
	}
}

// Start opens the record for apt in ONGOING state. Calling it again returns the existing record.
func (s *Service) Start(ctx context.Context, apt *model.Appointment) (*model.Consultation, error) {
	existing, err := s.repo.GetByAppointment(ctx, apt.ID)
	if err == nil {
		return s.reveal(existing)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Dependency("load consultation", err)
	}

	c := &model.Consultation{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		Status:        model.ConsultationStatusOngoing,
		StartTime:     s.now().UTC(),
		Notes:         model.ClinicalNotes{},
		LabOrders:     model.LabOrders{},
		Attachments:   model.Attachments{},
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, err := s.repo.GetByAppointment(ctx, apt.ID)
			if err != nil {
				return nil, apperrors.Dependency("load consultation", err)
			}
			return s.reveal(existing)
		}
		return nil, apperrors.Dependency("create consultation", err)
	}

	s.logger.Info().
		Str("consultation_id", c.ID.String()).
		Str("appointment_id", apt.ID.String()).
		Msg("Consultation started")
	return c, nil
}

func (s *Service) Get(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.load(ctx, session, id, false)
	if err != nil {
		return nil, err
	}
	return s.reveal(c)
}

func (s *Service) GetByAppointment(ctx context.Context, session *model.Session, appointmentID uuid.UUID) (*model.Consultation, error) {
	c, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, mapRepoError(err, "load consultation")
	}
	if err := canAccess(session, c, false); err != nil {
		return nil, err
	}
	return s.reveal(c)
}

// EnsureWritable returns the consultation if session may write to it and it is still ONGOING.
func (s *Service) EnsureWritable(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.load(ctx, session, id, true)
	if err != nil {
		return nil, err
	}
	if !c.Writable() {
		return nil, notWritable(c.Status)
	}
	return c, nil
}

func (s *Service) SetDiagnosis(ctx context.Context, session *model.Session, id uuid.UUID, req *model.DiagnosisRequest) (*model.Consultation, error) {
	sealed, err := s.seal(req.Diagnosis)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.write(ctx, session, id, func(c *model.Consultation) {
		c.Diagnosis = sealed
	})
}

func (s *Service) AddNote(ctx context.Context, session *model.Session, id uuid.UUID, req *model.NoteRequest) (*model.Consultation, error) {
	return s.write(ctx, session, id, func(c *model.Consultation) {
		c.Notes = append(c.Notes, model.ClinicalNote{
			Text:      req.Text,
			AuthorID:  session.PrincipalID,
			CreatedAt: s.now().UTC(),
		})
	})
}

func (s *Service) AddLabOrder(ctx context.Context, session *model.Session, id uuid.UUID, req *model.LabOrderRequest) (*model.Consultation, error) {
	return s.write(ctx, session, id, func(c *model.Consultation) {
		c.LabOrders = append(c.LabOrders, model.LabOrder{
			Test:         req.Test,
			Instructions: req.Instructions,
			OrderedAt:    s.now().UTC(),
		})
	})
}

// AddAttachment records the URL returned by blob storage; the upload itself happens elsewhere.
func (s *Service) AddAttachment(ctx context.Context, session *model.Session, id uuid.UUID, req *model.AttachmentRequest) (*model.Consultation, error) {
	return s.write(ctx, session, id, func(c *model.Consultation) {
		c.Attachments = append(c.Attachments, model.Attachment{
			Name:       req.Name,
			URL:        req.URL,
			UploadedAt: s.now().UTC(),
		})
	})
}

// End moves ONGOING to COMPLETED, stamping the end time and the duration in whole minutes.
// An empty summary is generated from the record.
func (s *Service) End(ctx context.Context, session *model.Session, id uuid.UUID, req *model.EndConsultationRequest) (*model.Consultation, error) {
	c, err := s.load(ctx, session, id, true)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusOngoing {
		return nil, apperrors.InvalidTransition(string(c.Status), string(model.ConsultationStatusCompleted))
	}

	end := s.now().UTC()
	duration := int(math.Round(end.Sub(c.StartTime).Minutes()))
	c.EndTime = &end
	c.DurationMinutes = &duration
	c.Status = model.ConsultationStatusCompleted
	c.Summary = req.Summary
	if c.Summary == "" {
		c.Summary = autoSummary(c)
	}

	if err := s.repo.Update(ctx, c, model.ConsultationStatusOngoing); err != nil {
		return nil, transitionError(err, model.ConsultationStatusOngoing, model.ConsultationStatusCompleted)
	}
	s.metrics.Transitions.WithLabelValues("consultation", string(model.ConsultationStatusOngoing), string(c.Status)).Inc()

	related := c.AppointmentID
	sender := session.PrincipalID
	if _, err := s.notifier.Notify(ctx, notification.Event{
		RecipientID: c.PatientID,
		SenderID:    &sender,
		Type:        model.NotificationConsultationCompleted,
		Message:     fmt.Sprintf("Your consultation has ended after %d minutes", duration),
		RelatedID:   &related,
		Link:        "/consultations/" + c.ID.String(),
	}); err != nil {
		s.logger.Error().Err(err).Str("consultation_id", c.ID.String()).Msg("Failed to notify patient")
	}

	return s.reveal(c)
}

// Lock is the only move out of COMPLETED. A locked record accepts no writes at all.
func (s *Service) Lock(ctx context.Context, session *model.Session, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.load(ctx, session, id, true)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusCompleted {
		return nil, apperrors.InvalidTransition(string(c.Status), string(model.ConsultationStatusLocked))
	}

	c.Status = model.ConsultationStatusLocked
	if err := s.repo.Update(ctx, c, model.ConsultationStatusCompleted); err != nil {
		return nil, transitionError(err, model.ConsultationStatusCompleted, model.ConsultationStatusLocked)
	}
	s.metrics.Transitions.WithLabelValues("consultation", string(model.ConsultationStatusCompleted), string(c.Status)).Inc()

	return s.reveal(c)
}

func (s *Service) write(ctx context.Context, session *model.Session, id uuid.UUID, apply func(*model.Consultation)) (*model.Consultation, error) {
	c, err := s.EnsureWritable(ctx, session, id)
	if err != nil {
		return nil, err
	}

	apply(c)
	if err := s.repo.Update(ctx, c, model.ConsultationStatusOngoing); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.BadRequest("consultation is no longer writable", err)
		}
		return nil, mapRepoError(err, "update consultation")
	}
	return s.reveal(c)
}

func (s *Service) load(ctx context.Context, session *model.Session, id uuid.UUID, write bool) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load consultation")
	}
	if err := canAccess(session, c, write); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) seal(plain string) (string, error) {
	if s.encryptor == nil {
		return plain, nil
	}
	return security.EncryptString(s.encryptor, plain)
}

// reveal returns a copy of c with the diagnosis decrypted.
func (s *Service) reveal(c *model.Consultation) (*model.Consultation, error) {
	out := *c
	if s.encryptor == nil {
		return &out, nil
	}
	plain, err := security.DecryptString(s.encryptor, c.Diagnosis)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to decrypt diagnosis: %w", err))
	}
	out.Diagnosis = plain
	return &out, nil
}

// canAccess admits admins and the assigned doctor; the patient may only read.
func canAccess(session *model.Session, c *model.Consultation, write bool) error {
	if write {
		if err := authz.Require(session, model.RoleDoctor, model.RoleAdmin); err != nil {
			return err
		}
	} else if err := authz.Require(session); err != nil {
		return err
	}

	switch session.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleDoctor:
		if c.DoctorID == session.PrincipalID {
			return nil
		}
	case model.RolePatient:
		if c.PatientID == session.PrincipalID {
			return nil
		}
	}
	return apperrors.Forbidden("not a participant of this consultation")
}

func autoSummary(c *model.Consultation) string {
	diagnosis := "no diagnosis recorded"
	if c.Diagnosis != "" {
		diagnosis = "diagnosis recorded"
	}
	return fmt.Sprintf("Consultation of %d minutes; %s; %d notes, %d lab orders, %d attachments.",
		*c.DurationMinutes, diagnosis, len(c.Notes), len(c.LabOrders), len(c.Attachments))
}

func notWritable(status model.ConsultationStatus) error {
	return apperrors.BadRequest(fmt.Sprintf("consultation is %s; records can only be changed while %s",
		status, model.ConsultationStatusOngoing), nil)
}

func transitionError(err error, from, to model.ConsultationStatus) error {
	if errors.Is(err, repository.ErrConflict) {
		return apperrors.InvalidTransition(string(from), string(to))
	}
	return mapRepoError(err, "update consultation")
}

func mapRepoError(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("consultation", err)
	}
	return apperrors.Dependency(op, err)
}
