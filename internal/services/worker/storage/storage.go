// Package storage defines the persistence records and store interface for
// the notification worker.
package storage

import (
	"context"
	"time"
)

// AttemptRecord is one durable delivery-status update row.
type AttemptRecord struct {
	ID                  int64
	NotificationID      string
	EventAuditReference string
	Status              string
	SentTo              string
	ChannelType         string
	TemplateID          string
	TemplateVersion     string
	CreatedAt           time.Time
	CompletedAt         *time.Time
	SentAt              *time.Time
	RecordedAt          time.Time
}

// AttemptStore persists delivery-status history and the event-log cursor.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	// ListAttempts returns history rows oldest-first, optionally scoped to
	// one notification id.
	ListAttempts(ctx context.Context, notificationID string, limit int) ([]AttemptRecord, error)

	// LoadCursor returns the last booking event id the consumer processed,
	// zero when the consumer has never run.
	LoadCursor(ctx context.Context, consumer string) (int64, error)
	SaveCursor(ctx context.Context, consumer string, afterID int64) error
}
