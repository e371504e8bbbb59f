package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "active"
	PrescriptionStatusCompleted PrescriptionStatus = "completed"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

type Medication struct {
	Name      string `json:"name" bson:"name" binding:"required"`
	Dosage    string `json:"dosage" bson:"dosage"`
	Frequency string `json:"frequency" bson:"frequency"`
	// Duration is free text such as "10 days" or "2 weeks".
	Duration string `json:"duration" bson:"duration"`
}

type Medications []Medication

func (m Medications) Value() (driver.Value, error) { return jsonValue(m) }
func (m *Medications) Scan(src interface{}) error  { return scanJSON(src, m) }

type Prescription struct {
	Base           `bson:",inline"`
	ConsultationID uuid.UUID          `db:"consultation_id" json:"consultation_id" bson:"consultation_id"`
	AppointmentID  uuid.UUID          `db:"appointment_id" json:"appointment_id" bson:"appointment_id"`
	PatientID      uuid.UUID          `db:"patient_id" json:"patient_id" bson:"patient_id"`
	DoctorID       uuid.UUID          `db:"doctor_id" json:"doctor_id" bson:"doctor_id"`
	IssueDate      time.Time          `db:"issue_date" json:"issue_date" bson:"issue_date"`
	ValidUntil     *time.Time         `db:"valid_until" json:"valid_until,omitempty" bson:"valid_until"`
	Status         PrescriptionStatus `db:"status" json:"status" bson:"status"`
	Medications    Medications        `db:"medications" json:"medications" bson:"medications"`
	Instructions   string             `db:"instructions" json:"instructions,omitempty" bson:"instructions"`
}

type IssuePrescriptionRequest struct {
	Medications  []Medication `json:"medications" binding:"required,min=1,dive"`
	ValidUntil   *time.Time   `json:"valid_until"`
	Instructions string       `json:"instructions"`
}
