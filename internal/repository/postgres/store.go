package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

// NewStore wires every repository onto one connection pool.
func NewStore(db *sqlx.DB) *repository.Store {
	base := NewBaseRepository(db)
	return &repository.Store{
		Principals:    NewPrincipalRepository(base),
		Appointments:  NewAppointmentRepository(base),
		Consultations: NewConsultationRepository(base),
		Prescriptions: NewPrescriptionRepository(base),
		Notifications: NewNotificationRepository(base),
		Outbox:        NewOutboxRepository(base),
		Ping:          db.PingContext,
		Close:         db.Close,
	}
}
