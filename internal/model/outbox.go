package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusRetry      OutboxStatus = "retry"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEvent is a queued outbound message awaiting delivery by the worker.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id" bson:"_id"`
	EventType    string          `db:"event_type" json:"event_type" bson:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload" bson:"payload"`
	Status       OutboxStatus    `db:"status" json:"status" bson:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty" bson:"error_message"`
	RetryCount   int             `db:"retry_count" json:"retry_count" bson:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty" bson:"retry_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty" bson:"processed_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at" bson:"updated_at"`
}
