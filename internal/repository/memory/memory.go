// Package memory is a mutex-guarded in-process datastore used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type db struct {
	mu            sync.RWMutex
	principals    map[uuid.UUID]model.Principal
	appointments  map[uuid.UUID]model.Appointment
	consultations map[uuid.UUID]model.Consultation
	prescriptions map[uuid.UUID]model.Prescription
	notifications map[uuid.UUID]model.Notification
	outbox        map[uuid.UUID]model.OutboxEvent
}

// NewStore returns a Store whose repositories share one set of maps.
func NewStore() *repository.Store {
	d := &db{
		principals:    make(map[uuid.UUID]model.Principal),
		appointments:  make(map[uuid.UUID]model.Appointment),
		consultations: make(map[uuid.UUID]model.Consultation),
		prescriptions: make(map[uuid.UUID]model.Prescription),
		notifications: make(map[uuid.UUID]model.Notification),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
	}
	return &repository.Store{
		Principals:    &principalRepository{d},
		Appointments:  &appointmentRepository{d},
		Consultations: &consultationRepository{d},
		Prescriptions: &prescriptionRepository{d},
		Notifications: &notificationRepository{d},
		Outbox:        &outboxRepository{d},
		Ping:          func(context.Context) error { return nil },
		Close:         func() error { return nil },
	}
}

func now() time.Time {
	return time.Now().UTC()
}

type principalRepository struct{ *db }

func (r *principalRepository) Create(_ context.Context, p *model.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.Email = model.NormalizeEmail(p.Email)
	for _, existing := range r.principals {
		if existing.Email == p.Email {
			return repository.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.Base = model.NewBase(now())
	}
	r.principals[p.ID] = *p
	return nil
}

func (r *principalRepository) Get(_ context.Context, id uuid.UUID) (*model.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.principals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *principalRepository) GetByEmail(_ context.Context, email string) (*model.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = model.NormalizeEmail(email)
	for _, p := range r.principals {
		if p.Email == email {
			return clonePrincipal(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *principalRepository) List(_ context.Context, filter model.PrincipalFilter) ([]*model.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Principal, 0)
	for _, p := range r.principals {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, clonePrincipal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *principalRepository) SetRefreshToken(_ context.Context, id uuid.UUID, token *string) error {
	return r.mutate(id, func(p *model.Principal) {
		if token == nil {
			p.RefreshToken = nil
			return
		}
		t := *token
		p.RefreshToken = &t
	})
}

func (r *principalRepository) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.mutate(id, func(p *model.Principal) { p.Role = role })
}

func (r *principalRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.PrincipalStatus) error {
	return r.mutate(id, func(p *model.Principal) { p.Status = status })
}

func (r *principalRepository) mutate(id uuid.UUID, fn func(*model.Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&p)
	p.UpdatedAt = now()
	r.principals[id] = p
	return nil
}

func clonePrincipal(p model.Principal) *model.Principal {
	if p.RefreshToken != nil {
		t := *p.RefreshToken
		p.RefreshToken = &t
	}
	return &p
}

type appointmentRepository struct{ *db }

func (r *appointmentRepository) Create(_ context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if apt.ID == uuid.Nil {
		apt.Base = model.NewBase(now())
	}
	r.appointments[apt.ID] = *apt
	return nil
}

func (r *appointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apt, ok := r.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &apt, nil
}

func (r *appointmentRepository) List(_ context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Appointment, 0)
	for _, apt := range r.appointments {
		if filter.PatientID != uuid.Nil && apt.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != uuid.Nil && apt.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Status != "" && apt.Status != filter.Status {
			continue
		}
		apt := apt
		out = append(out, &apt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *appointmentRepository) UpdateStatus(_ context.Context, apt *model.Appointment, from model.AppointmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.appointments[apt.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrConflict
	}
	apt.UpdatedAt = now()
	r.appointments[apt.ID] = *apt
	return nil
}

func (r *appointmentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.appointments, id)
	return nil
}

type consultationRepository struct{ *db }

func (r *consultationRepository) Create(_ context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.consultations {
		if existing.AppointmentID == c.AppointmentID {
			return repository.ErrDuplicate
		}
	}
	if c.ID == uuid.Nil {
		c.Base = model.NewBase(now())
	}
	r.consultations[c.ID] = cloneConsultation(*c)
	return nil
}

func (r *consultationRepository) Get(_ context.Context, id uuid.UUID) (*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneConsultation(c)
	return &out, nil
}

func (r *consultationRepository) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.consultations {
		if c.AppointmentID == appointmentID {
			out := cloneConsultation(c)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *consultationRepository) Update(_ context.Context, c *model.Consultation, from model.ConsultationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.consultations[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrConflict
	}
	c.UpdatedAt = now()
	r.consultations[c.ID] = cloneConsultation(*c)
	return nil
}

func cloneConsultation(c model.Consultation) model.Consultation {
	c.Notes = append(model.ClinicalNotes(nil), c.Notes...)
	c.LabOrders = append(model.LabOrders(nil), c.LabOrders...)
	c.Attachments = append(model.Attachments(nil), c.Attachments...)
	return c
}

type prescriptionRepository struct{ *db }

func (r *prescriptionRepository) Create(_ context.Context, p *model.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.Base = model.NewBase(now())
	}
	r.prescriptions[p.ID] = clonePrescription(*p)
	return nil
}

func (r *prescriptionRepository) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clonePrescription(p)
	return &out, nil
}

func (r *prescriptionRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return r.list(func(p model.Prescription) bool { return p.PatientID == patientID }), nil
}

func (r *prescriptionRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.Prescription, error) {
	return r.list(func(p model.Prescription) bool { return p.DoctorID == doctorID }), nil
}

func (r *prescriptionRepository) ListByConsultation(_ context.Context, consultationID uuid.UUID) ([]*model.Prescription, error) {
	return r.list(func(p model.Prescription) bool { return p.ConsultationID == consultationID }), nil
}

func (r *prescriptionRepository) list(match func(model.Prescription) bool) []*model.Prescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Prescription, 0)
	for _, p := range r.prescriptions {
		if match(p) {
			cp := clonePrescription(p)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out
}

func (r *prescriptionRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.PrescriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now()
	r.prescriptions[id] = p
	return true, nil
}

func clonePrescription(p model.Prescription) model.Prescription {
	p.Medications = append(model.Medications(nil), p.Medications...)
	if p.ValidUntil != nil {
		v := *p.ValidUntil
		p.ValidUntil = &v
	}
	return p
}

type notificationRepository struct{ *db }

func (r *notificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	r.notifications[n.ID] = *n
	return nil
}

func (r *notificationRepository) ListByRecipient(_ context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Notification, 0)
	for _, n := range r.notifications {
		if n.RecipientID != recipientID || (filter.UnreadOnly && n.Read) {
			continue
		}
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepository) MarkRead(_ context.Context, id, recipientID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return repository.ErrNotFound
	}
	n.Read = true
	r.notifications[id] = n
	return nil
}

func (r *notificationRepository) MarkAllRead(_ context.Context, recipientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, n := range r.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			r.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) CountUnread(_ context.Context, recipientID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

type outboxRepository struct{ *db }

func (r *outboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := now()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = ts
	event.UpdatedAt = ts
	r.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepository) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := now()
	due := make([]model.OutboxEvent, 0)
	for _, e := range r.outbox {
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(ts) {
			continue
		}
		due = append(due, e)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.OutboxEvent, 0, len(due))
	for _, e := range due {
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = ts
		r.outbox[e.ID] = e
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r *outboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	ts := now()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &ts
	e.UpdatedAt = ts
	r.outbox[id] = e
	return nil
}

func (r *outboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.ErrorMessage = &errorMessage
	e.RetryCount++
	e.RetryAt = retryAt
	e.Status = model.OutboxStatusFailed
	if retryAt != nil {
		e.Status = model.OutboxStatusRetry
	}
	e.UpdatedAt = now()
	r.outbox[id] = e
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, e := range r.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.outbox, id)
			count++
		}
	}
	return count, nil
}
