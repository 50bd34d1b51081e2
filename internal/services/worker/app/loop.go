package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	bookingstorage "github.com/castlegate/visitbooker/internal/services/booking/storage"
	"github.com/castlegate/visitbooker/internal/services/worker/domain"
	workerstorage "github.com/castlegate/visitbooker/internal/services/worker/storage"
)

// EventSource reads the booking notification event log.
type EventSource interface {
	ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]bookingstorage.VisitEventRecord, error)
}

// Config controls the polling loop.
type Config struct {
	Consumer     string
	PollInterval time.Duration
	BatchSize    int
}

const (
	defaultConsumer     = "notify-worker"
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
)

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Consumer) == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// templateForEvent names the notification template a booking event triggers.
func templateForEvent(eventType string) string {
	switch eventType {
	case "visit.booked":
		return "visit-booked"
	case "visit.cancelled":
		return "visit-cancelled"
	case "visit.superseded":
		return "visit-updated"
	default:
		return "visit-generic"
	}
}

// Loop drains the booking event log and records one SENDING history row per
// event. Provider callbacks later append terminal rows for the same
// notification id through the Ingestor.
type Loop struct {
	source EventSource
	store  workerstorage.AttemptStore
	cfg    Config
	logf   func(format string, args ...any)
	clock  func() time.Time
}

// NewLoop builds the polling loop. logf and clock may be nil.
func NewLoop(source EventSource, store workerstorage.AttemptStore, cfg Config, logf func(string, ...any)) *Loop {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Loop{
		source: source,
		store:  store,
		cfg:    cfg.normalized(),
		logf:   logf,
		clock:  time.Now,
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick; they never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.source == nil || l.store == nil {
		return fmt.Errorf("loop is not configured")
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if processed, err := l.pollOnce(ctx); err != nil {
			l.logf("worker poll: %v", err)
		} else if processed > 0 {
			l.logf("worker recorded %d notification(s)", processed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce drains one batch from the event log and advances the cursor.
// The cursor advances only past events whose history row committed, so a
// crash re-delivers rather than drops.
func (l *Loop) pollOnce(ctx context.Context) (int, error) {
	cursor, err := l.store.LoadCursor(ctx, l.cfg.Consumer)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	events, err := l.source.ListEventsAfter(ctx, cursor, l.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list events after %d: %w", cursor, err)
	}

	processed := 0
	for _, event := range events {
		if err := l.recordEvent(ctx, event); err != nil {
			if processed > 0 {
				if saveErr := l.store.SaveCursor(ctx, l.cfg.Consumer, cursor); saveErr != nil {
					return processed, fmt.Errorf("save cursor %d: %w", cursor, saveErr)
				}
			}
			return processed, fmt.Errorf("record event %d: %w", event.ID, err)
		}
		cursor = event.ID
		processed++
	}

	if processed > 0 {
		if err := l.store.SaveCursor(ctx, l.cfg.Consumer, cursor); err != nil {
			return processed, fmt.Errorf("save cursor %d: %w", cursor, err)
		}
	}
	return processed, nil
}

func (l *Loop) recordEvent(ctx context.Context, event bookingstorage.VisitEventRecord) error {
	now := l.clock().UTC()
	return l.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		NotificationID:      strconv.FormatInt(event.ID, 10),
		EventAuditReference: event.Reference,
		Status:              string(domain.StatusSending),
		TemplateID:          templateForEvent(event.EventType),
		CreatedAt:           event.CreatedAt,
		RecordedAt:          now,
	})
}
