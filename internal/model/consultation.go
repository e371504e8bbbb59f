package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	ConsultationStatusOngoing   ConsultationStatus = "ONGOING"
	ConsultationStatusCompleted ConsultationStatus = "COMPLETED"
	ConsultationStatusLocked    ConsultationStatus = "LOCKED"
)

type ClinicalNote struct {
	Text      string    `json:"text" bson:"text"`
	AuthorID  uuid.UUID `json:"author_id" bson:"author_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type LabOrder struct {
	Test         string    `json:"test" bson:"test"`
	Instructions string    `json:"instructions,omitempty" bson:"instructions"`
	OrderedAt    time.Time `json:"ordered_at" bson:"ordered_at"`
}

// Attachment stores the URL returned by blob storage.
type Attachment struct {
	Name       string    `json:"name" bson:"name"`
	URL        string    `json:"url" bson:"url"`
	UploadedAt time.Time `json:"uploaded_at" bson:"uploaded_at"`
}

type ClinicalNotes []ClinicalNote

func (n ClinicalNotes) Value() (driver.Value, error) { return jsonValue(n) }
func (n *ClinicalNotes) Scan(src interface{}) error  { return scanJSON(src, n) }

type LabOrders []LabOrder

func (o LabOrders) Value() (driver.Value, error) { return jsonValue(o) }
func (o *LabOrders) Scan(src interface{}) error  { return scanJSON(src, o) }

type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) { return jsonValue(a) }
func (a *Attachments) Scan(src interface{}) error  { return scanJSON(src, a) }

// Consultation is the clinical record of one appointment.
type Consultation struct {
	Base            `bson:",inline"`
	AppointmentID   uuid.UUID          `db:"appointment_id" json:"appointment_id" bson:"appointment_id"`
	PatientID       uuid.UUID          `db:"patient_id" json:"patient_id" bson:"patient_id"`
	DoctorID        uuid.UUID          `db:"doctor_id" json:"doctor_id" bson:"doctor_id"`
	Status          ConsultationStatus `db:"status" json:"status" bson:"status"`
	StartTime       time.Time          `db:"start_time" json:"start_time" bson:"start_time"`
	EndTime         *time.Time         `db:"end_time" json:"end_time,omitempty" bson:"end_time"`
	DurationMinutes *int               `db:"duration_minutes" json:"duration_minutes,omitempty" bson:"duration_minutes"`
	Summary         string             `db:"summary" json:"summary,omitempty" bson:"summary"`
	// Diagnosis is sealed at rest; services decrypt before returning it.
	Diagnosis   string        `db:"diagnosis" json:"diagnosis,omitempty" bson:"diagnosis"`
	Notes       ClinicalNotes `db:"notes" json:"notes" bson:"notes"`
	LabOrders   LabOrders     `db:"lab_orders" json:"lab_orders" bson:"lab_orders"`
	Attachments Attachments   `db:"attachments" json:"attachments" bson:"attachments"`
}

func (c *Consultation) Writable() bool {
	return c.Status == ConsultationStatusOngoing
}

type DiagnosisRequest struct {
	Diagnosis string `json:"diagnosis" binding:"required"`
}

type NoteRequest struct {
	Text string `json:"text" binding:"required"`
}

type LabOrderRequest struct {
	Test         string `json:"test" binding:"required"`
	Instructions string `json:"instructions"`
}

type AttachmentRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required,url"`
}

type EndConsultationRequest struct {
	Summary string `json:"summary"`
}
