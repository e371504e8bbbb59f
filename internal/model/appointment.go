package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in-progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no-show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled: {
		AppointmentStatusConfirmed,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusInProgress,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusInProgress: {
		AppointmentStatusCompleted,
	},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is directly reachable from s.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return len(appointmentTransitions[s]) == 0
}

type Appointment struct {
	Base         `bson:",inline"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id" bson:"patient_id"`
	DoctorID     uuid.UUID         `db:"doctor_id" json:"doctor_id" bson:"doctor_id"`
	Date         time.Time         `db:"date" json:"date" bson:"date"`
	Time         string            `db:"time" json:"time" bson:"time"`
	Status       AppointmentStatus `db:"status" json:"status" bson:"status"`
	Reason       string            `db:"reason" json:"reason" bson:"reason"`
	CancelReason *string           `db:"cancel_reason" json:"cancel_reason,omitempty" bson:"cancel_reason"`
	Notes        string            `db:"notes" json:"notes,omitempty" bson:"notes"`
	Diagnosis    string            `db:"diagnosis" json:"diagnosis,omitempty" bson:"diagnosis"`
	Treatment    string            `db:"treatment" json:"treatment,omitempty" bson:"treatment"`
	StartedAt    *time.Time        `db:"started_at" json:"started_at,omitempty" bson:"started_at"`
	CompletedAt  *time.Time        `db:"completed_at" json:"completed_at,omitempty" bson:"completed_at"`
}

// Involves reports whether id is the patient or the doctor of the appointment.
func (a *Appointment) Involves(id uuid.UUID) bool {
	return a.PatientID == id || a.DoctorID == id
}

type BookAppointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	Date      time.Time `json:"date" binding:"required"`
	Time      string    `json:"time" binding:"required,hhmm"`
	Reason    string    `json:"reason" binding:"required,max=1000"`
}

// TransitionRequest carries the optional inputs some transitions need.
type TransitionRequest struct {
	Status       AppointmentStatus `json:"status" binding:"required,appointment_status"`
	CancelReason string            `json:"cancel_reason" binding:"max=1000"`
	Notes        string            `json:"notes"`
	Diagnosis    string            `json:"diagnosis"`
	Treatment    string            `json:"treatment"`
}

type AppointmentFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
}
