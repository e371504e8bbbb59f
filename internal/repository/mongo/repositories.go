package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

func now() time.Time {
	return time.Now().UTC()
}

type principalRepository struct {
	coll *mongo.Collection
}

func (r *principalRepository) Create(ctx context.Context, p *model.Principal) error {
	if p.ID == uuid.Nil {
		p.Base = model.NewBase(now())
	}
	p.Email = model.NormalizeEmail(p.Email)

	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create principal: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

func (r *principalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Principal, error) {
	var p model.Principal
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &p, "get principal"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	var p model.Principal
	filter := bson.M{"email": model.NormalizeEmail(email)}
	if err := findOne(ctx, r.coll, filter, &p, "get principal by email"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepository) List(ctx context.Context, filter model.PrincipalFilter) ([]*model.Principal, error) {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findAll[model.Principal](ctx, r.coll, query, opts, "list principals")
}

func (r *principalRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	return r.set(ctx, id, bson.M{"refresh_token": token}, "set refresh token")
}

func (r *principalRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.set(ctx, id, bson.M{"role": role}, "update role")
}

func (r *principalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PrincipalStatus) error {
	return r.set(ctx, id, bson.M{"status": status}, "update status")
}

func (r *principalRepository) set(ctx context.Context, id uuid.UUID, fields bson.M, op string) error {
	fields["updated_at"] = now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return matchedOne(res, op)
}

type appointmentRepository struct {
	coll *mongo.Collection
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	if apt.ID == uuid.Nil {
		apt.Base = model.NewBase(now())
	}
	if _, err := r.coll.InsertOne(ctx, apt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt model.Appointment
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &apt, "get appointment"); err != nil {
		return nil, err
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	query := bson.M{}
	if filter.PatientID != uuid.Nil {
		query["patient_id"] = filter.PatientID
	}
	if filter.DoctorID != uuid.Nil {
		query["doctor_id"] = filter.DoctorID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}})
	return findAll[model.Appointment](ctx, r.coll, query, opts, "list appointments")
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus) error {
	apt.UpdatedAt = now()
	update := bson.M{"$set": bson.M{
		"status":        apt.Status,
		"cancel_reason": apt.CancelReason,
		"notes":         apt.Notes,
		"diagnosis":     apt.Diagnosis,
		"treatment":     apt.Treatment,
		"started_at":    apt.StartedAt,
		"completed_at":  apt.CompletedAt,
		"updated_at":    apt.UpdatedAt,
	}}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": apt.ID, "status": from}, update)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return conditional(ctx, r.coll, res, apt.ID, "update appointment status")
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("failed to delete appointment: %w", repository.ErrNotFound)
	}
	return nil
}

type consultationRepository struct {
	coll *mongo.Collection
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	if c.ID == uuid.Nil {
		c.Base = model.NewBase(now())
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create consultation: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	var c model.Consultation
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &c, "get consultation"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultationRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error) {
	var c model.Consultation
	filter := bson.M{"appointment_id": appointmentID}
	if err := findOne(ctx, r.coll, filter, &c, "get consultation by appointment"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation, from model.ConsultationStatus) error {
	c.UpdatedAt = now()
	update := bson.M{"$set": bson.M{
		"status":           c.Status,
		"end_time":         c.EndTime,
		"duration_minutes": c.DurationMinutes,
		"summary":          c.Summary,
		"diagnosis":        c.Diagnosis,
		"notes":            c.Notes,
		"lab_orders":       c.LabOrders,
		"attachments":      c.Attachments,
		"updated_at":       c.UpdatedAt,
	}}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": c.ID, "status": from}, update)
	if err != nil {
		return fmt.Errorf("failed to update consultation: %w", err)
	}
	return conditional(ctx, r.coll, res, c.ID, "update consultation")
}

type prescriptionRepository struct {
	coll *mongo.Collection
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	if p.ID == uuid.Nil {
		p.Base = model.NewBase(now())
	}
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &p, "get prescription"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, bson.M{"patient_id": patientID})
}

func (r *prescriptionRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, bson.M{"doctor_id": doctorID})
}

func (r *prescriptionRepository) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*model.Prescription, error) {
	return r.listBy(ctx, bson.M{"consultation_id": consultationID})
}

func (r *prescriptionRepository) listBy(ctx context.Context, filter bson.M) ([]*model.Prescription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "issue_date", Value: -1}})
	return findAll[model.Prescription](ctx, r.coll, filter, opts, "list prescriptions")
}

func (r *prescriptionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.PrescriptionStatus) (bool, error) {
	update := bson.M{"$set": bson.M{"status": to, "updated_at": now()}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return false, fmt.Errorf("failed to transition prescription: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to transition prescription: %w", err)
	}
	if n == 0 {
		return false, fmt.Errorf("failed to transition prescription: %w", repository.ErrNotFound)
	}
	return false, nil
}

type notificationRepository struct {
	coll *mongo.Collection
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, filter model.NotificationFilter) ([]*model.Notification, error) {
	query := bson.M{"recipient_id": recipientID}
	if filter.UnreadOnly {
		query["read"] = false
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	return findAll[model.Notification](ctx, r.coll, query, opts, "list notifications")
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return matchedOne(res, "mark notification read")
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

type outboxRepository struct {
	coll *mongo.Collection
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	ts := now()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = ts
	event.UpdatedAt = ts

	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ClaimPending flips due events to processing one at a time; each FindOneAndUpdate is atomic.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	ts := now()
	filter := bson.M{
		"status": bson.M{"$in": []model.OutboxStatus{model.OutboxStatusPending, model.OutboxStatusRetry}},
		"$or": []bson.M{
			{"retry_at": nil},
			{"retry_at": bson.M{"$lte": ts}},
		},
	}
	update := bson.M{"$set": bson.M{"status": model.OutboxStatusProcessing, "updated_at": ts}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	events := []*model.OutboxEvent{}
	for len(events) < limit {
		var event model.OutboxEvent
		err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
		if err == mongo.ErrNoDocuments {
			break
		}
		if err != nil {
			return events, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	ts := now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       model.OutboxStatusProcessed,
		"processed_at": ts,
		"updated_at":   ts,
	}})
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return matchedOne(res, "mark event processed")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error {
	status := model.OutboxStatusFailed
	if retryAt != nil {
		status = model.OutboxStatusRetry
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        status,
			"error_message": errorMessage,
			"retry_at":      retryAt,
			"updated_at":    now(),
		},
		"$inc": bson.M{"retry_count": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return matchedOne(res, "mark event failed")
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"status":       model.OutboxStatusProcessed,
		"processed_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return res.DeletedCount, nil
}
