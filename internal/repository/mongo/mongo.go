// Package mongo stores every entity in its own collection with ids encoded as strings.
package mongo

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

const (
	principalsCollection    = "principals"
	appointmentsCollection  = "appointments"
	consultationsCollection = "consultations"
	prescriptionsCollection = "prescriptions"
	notificationsCollection = "notifications"
	outboxCollection        = "outbox_events"
)

var tUUID = reflect.TypeOf(uuid.UUID{})

// NewRegistry returns the default bson registry with uuid.UUID stored as its string form.
func NewRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tUUID, bsoncodec.ValueEncoderFunc(encodeUUID))
	reg.RegisterTypeDecoder(tUUID, bsoncodec.ValueDecoderFunc(decodeUUID))
	return reg
}

func encodeUUID(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tUUID {
		return bsoncodec.ValueEncoderError{Name: "UUIDEncodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}
	return vw.WriteString(val.Interface().(uuid.UUID).String())
}

func decodeUUID(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tUUID {
		return bsoncodec.ValueDecoderError{Name: "UUIDDecodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}

	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		val.Set(reflect.ValueOf(id))
		return nil
	case bsontype.Null:
		val.Set(reflect.ValueOf(uuid.Nil))
		return vr.ReadNull()
	default:
		return fmt.Errorf("cannot decode %v into uuid.UUID", vr.Type())
	}
}

// Connect opens a client using the uuid-aware registry.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		principalsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		appointmentsCollection: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}}},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}}},
		},
		consultationsCollection: {
			{Keys: bson.D{{Key: "appointment_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		prescriptionsCollection: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}}},
			{Keys: bson.D{{Key: "consultation_id", Value: 1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "retry_at", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// NewStore wires every repository onto one database.
func NewStore(client *mongo.Client, database string) *repository.Store {
	db := client.Database(database)
	return &repository.Store{
		Principals:    &principalRepository{coll: db.Collection(principalsCollection)},
		Appointments:  &appointmentRepository{coll: db.Collection(appointmentsCollection)},
		Consultations: &consultationRepository{coll: db.Collection(consultationsCollection)},
		Prescriptions: &prescriptionRepository{coll: db.Collection(prescriptionsCollection)},
		Notifications: &notificationRepository{coll: db.Collection(notificationsCollection)},
		Outbox:        &outboxRepository{coll: db.Collection(outboxCollection)},
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		Close: func() error {
			return client.Disconnect(context.Background())
		},
	}
}

func findOne(ctx context.Context, coll *mongo.Collection, filter interface{}, out interface{}, op string) error {
	err := coll.FindOne(ctx, filter).Decode(out)
	if err == mongo.ErrNoDocuments {
		return fmt.Errorf("failed to %s: %w", op, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts *options.FindOptions, op string) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer cursor.Close(ctx)

	out := []*T{}
	for cursor.Next(ctx) {
		item := new(T)
		if err := cursor.Decode(item); err != nil {
			return nil, fmt.Errorf("failed to %s: %w", op, err)
		}
		out = append(out, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return out, nil
}

// matchedOne maps an UpdateResult onto NotFound for unconditional updates.
func matchedOne(res *mongo.UpdateResult, op string) error {
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to %s: %w", op, repository.ErrNotFound)
	}
	return nil
}

// conditional separates a missing document from one whose status moved on.
func conditional(ctx context.Context, coll *mongo.Collection, res *mongo.UpdateResult, id uuid.UUID, op string) error {
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", op, repository.ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w", op, repository.ErrConflict)
}
