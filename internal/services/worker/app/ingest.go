package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/castlegate/visitbooker/internal/services/worker/domain"
	workerstorage "github.com/castlegate/visitbooker/internal/services/worker/storage"
)

// ProviderCallback is one delivery-status update as delivered by the
// notification provider.
type ProviderCallback struct {
	NotificationID      string
	EventAuditReference string
	Status              string
	SentTo              string
	CreatedAt           time.Time
	CompletedAt         *time.Time
	SentAt              *time.Time
	ChannelType         string
	TemplateID          string
	TemplateVersion     string
}

// Ingestor records provider delivery-status callbacks into the history
// store and serves the compacted view.
type Ingestor struct {
	store workerstorage.AttemptStore
	clock func() time.Time
}

// NewIngestor builds the callback ingestion surface. clock may be nil.
func NewIngestor(store workerstorage.AttemptStore, clock func() time.Time) *Ingestor {
	if clock == nil {
		clock = time.Now
	}
	return &Ingestor{store: store, clock: clock}
}

// Ingest maps the provider status vocabulary and appends one history row.
// Unrecognized status strings record as UNKNOWN rather than failing.
func (i *Ingestor) Ingest(ctx context.Context, callback ProviderCallback) error {
	if i == nil || i.store == nil {
		return fmt.Errorf("ingestor is not configured")
	}
	if strings.TrimSpace(callback.NotificationID) == "" {
		return fmt.Errorf("notification id is required")
	}

	createdAt := callback.CreatedAt
	if createdAt.IsZero() {
		createdAt = i.clock().UTC()
	}

	return i.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		NotificationID:      strings.TrimSpace(callback.NotificationID),
		EventAuditReference: callback.EventAuditReference,
		Status:              string(domain.MapProviderStatus(callback.Status)),
		SentTo:              callback.SentTo,
		ChannelType:         callback.ChannelType,
		TemplateID:          callback.TemplateID,
		TemplateVersion:     callback.TemplateVersion,
		CreatedAt:           createdAt,
		CompletedAt:         callback.CompletedAt,
		SentAt:              callback.SentAt,
		RecordedAt:          i.clock().UTC(),
	})
}

// CompactedHistory returns one authoritative record per notification id
// over the stored history, oldest-first discovery order.
func (i *Ingestor) CompactedHistory(ctx context.Context, limit int) ([]domain.NotifyAttempt, error) {
	if i == nil || i.store == nil {
		return nil, fmt.Errorf("ingestor is not configured")
	}

	records, err := i.store.ListAttempts(ctx, "", limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	attempts := make([]domain.NotifyAttempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, domain.NotifyAttempt{
			NotificationID:      record.NotificationID,
			EventAuditReference: record.EventAuditReference,
			Status:              domain.DeliveryStatus(record.Status),
			SentTo:              record.SentTo,
			CreatedAt:           record.CreatedAt,
			CompletedAt:         record.CompletedAt,
			SentAt:              record.SentAt,
			ChannelType:         record.ChannelType,
			TemplateID:          record.TemplateID,
			TemplateVersion:     record.TemplateVersion,
		})
	}
	return domain.CompactHistory(attempts), nil
}
