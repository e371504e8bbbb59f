package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

const prescriptionColumns = `id, consultation_id, appointment_id, patient_id, doctor_id, issue_date,
	valid_until, status, medications, instructions, created_at, updated_at`

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if p.ID == uuid.Nil {
		p.Base = model.NewBase(time.Now().UTC())
	}
	if p.Medications == nil {
		p.Medications = model.Medications{}
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.ConsultationID,
		p.AppointmentID,
		p.PatientID,
		p.DoctorID,
		p.IssueDate,
		p.ValidUntil,
		p.Status,
		p.Medications,
		p.Instructions,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "get prescription")
	}
	return &p, nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, "patient_id", patientID)
}

func (r *prescriptionRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, "doctor_id", doctorID)
}

func (r *prescriptionRepository) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, "consultation_id", consultationID)
}

func (r *prescriptionRepository) listBy(ctx context.Context, column string, id uuid.UUID) ([]*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE ` + column + ` = $1 ORDER BY issue_date DESC`

	prescriptions := []*model.Prescription{}
	if err := r.db.SelectContext(ctx, &prescriptions, query, id); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.PrescriptionStatus) (bool, error) {
	query := `UPDATE prescriptions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition prescription: %w", err)
	}

	err = r.conditional(ctx, result, "prescriptions", id, "transition prescription")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrConflict):
		return false, nil
	default:
		return false, err
	}
}
