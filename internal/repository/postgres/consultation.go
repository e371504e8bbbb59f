package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type consultationRepository struct {
	BaseRepository
}

func NewConsultationRepository(base BaseRepository) repository.ConsultationRepository {
	return &consultationRepository{base}
}

const consultationColumns = `id, appointment_id, patient_id, doctor_id, status, start_time, end_time,
	duration_minutes, summary, diagnosis, notes, lab_orders, attachments, created_at, updated_at`

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (` + consultationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if c.ID == uuid.Nil {
		c.Base = model.NewBase(time.Now().UTC())
	}
	normalizeConsultation(c)

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.AppointmentID,
		c.PatientID,
		c.DoctorID,
		c.Status,
		c.StartTime,
		c.EndTime,
		c.DurationMinutes,
		c.Summary,
		c.Diagnosis,
		c.Notes,
		c.LabOrders,
		c.Attachments,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return duplicate(err, "create consultation")
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`

	var c model.Consultation
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err, "get consultation")
	}
	return &c, nil
}

func (r *consultationRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE appointment_id = $1`

	var c model.Consultation
	if err := r.db.GetContext(ctx, &c, query, appointmentID); err != nil {
		return nil, notFound(err, "get consultation by appointment")
	}
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation, from model.ConsultationStatus) error {
	query := `
		UPDATE consultations
		SET status = $1, end_time = $2, duration_minutes = $3, summary = $4, diagnosis = $5,
			notes = $6, lab_orders = $7, attachments = $8, updated_at = $9
		WHERE id = $10 AND status = $11
	`
	c.UpdatedAt = time.Now().UTC()
	normalizeConsultation(c)

	result, err := r.db.ExecContext(ctx, query,
		c.Status,
		c.EndTime,
		c.DurationMinutes,
		c.Summary,
		c.Diagnosis,
		c.Notes,
		c.LabOrders,
		c.Attachments,
		c.UpdatedAt,
		c.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update consultation: %w", err)
	}
	return r.conditional(ctx, result, "consultations", c.ID, "update consultation")
}

// normalizeConsultation keeps JSONB columns as [] rather than null.
func normalizeConsultation(c *model.Consultation) {
	if c.Notes == nil {
		c.Notes = model.ClinicalNotes{}
	}
	if c.LabOrders == nil {
		c.LabOrders = model.LabOrders{}
	}
	if c.Attachments == nil {
		c.Attachments = model.Attachments{}
	}
}
