package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// NotificationOutbox implements a transactional outbox for the notification
// collaborator: the row is written inside the caller's DB transaction, and a
// dispatcher publishes it to Pub/Sub after commit. A mutation and its
// notification therefore commit or vanish together.
type NotificationOutbox struct {
	ID           int    `gorm:"primary_key" json:"id"`
	InspectionId int    `gorm:"index;not null" json:"inspection_id"`
	EventType    string `gorm:"size:50;not null" json:"event_type"`
	Payload      []byte `gorm:"type:mediumblob" json:"payload"`

	PublishStatus OutboxPublishStatus `gorm:"size:20;not null;default:PENDING;index" json:"publish_status"`
	Attempts      int                 `json:"attempts"`
	LastError     *string             `gorm:"size:1000" json:"last_error"`
	NextAttemptAt *time.Time          `json:"next_attempt_at"`

	// Claim fields let a crashed dispatcher's batch be reclaimed.
	ClaimedBy *string    `gorm:"size:40" json:"claimed_by"`
	ClaimedAt *time.Time `json:"claimed_at"`

	PublishedAt     *time.Time `json:"published_at"`
	PubSubMessageId *string    `gorm:"size:40" json:"pubsub_message_id"`

	CorrelationId string    `gorm:"size:40" json:"correlation_id"`
	OccurredAt    time.Time `gorm:"autoCreateTime" json:"occurred_at"`
}

// EnqueueNotification writes an outbox row inside tx. Publishing happens
// asynchronously in the dispatcher.
func EnqueueNotification(ctx context.Context, tx *gorm.DB, inspectionId int, eventType string, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := NotificationOutbox{
		InspectionId:  inspectionId,
		EventType:     eventType,
		Payload:       b,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
