package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAppointmentBooked     NotificationType = "appointment_booked"
	NotificationAppointmentConfirmed  NotificationType = "appointment_confirmed"
	NotificationAppointmentCancelled  NotificationType = "appointment_cancelled"
	NotificationAppointmentStarted    NotificationType = "appointment_started"
	NotificationAppointmentCompleted  NotificationType = "appointment_completed"
	NotificationAppointmentNoShow     NotificationType = "appointment_no_show"
	NotificationConsultationCompleted NotificationType = "consultation_completed"
	NotificationPrescriptionIssued    NotificationType = "prescription_issued"
	NotificationPaymentReceived       NotificationType = "payment_received"
)

type Notification struct {
	ID          uuid.UUID        `db:"id" json:"id" bson:"_id"`
	RecipientID uuid.UUID        `db:"recipient_id" json:"recipient_id" bson:"recipient_id"`
	SenderID    *uuid.UUID       `db:"sender_id" json:"sender_id,omitempty" bson:"sender_id"`
	Type        NotificationType `db:"type" json:"type" bson:"type"`
	Message     string           `db:"message" json:"message" bson:"message"`
	RelatedID   *uuid.UUID       `db:"related_id" json:"related_id,omitempty" bson:"related_id"`
	Link        string           `db:"link" json:"link,omitempty" bson:"link"`
	Read        bool             `db:"read" json:"read" bson:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at" bson:"created_at"`
}

// LiveEvent is the frame written to realtime connections.
type LiveEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification"`
}

const LiveEventNotification = "notification"

type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}
