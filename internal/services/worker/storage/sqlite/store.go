// Package sqlite provides SQLite-backed persistence for the notification
// worker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/storage/sqlitemigrate"
	"github.com/castlegate/visitbooker/internal/platform/timeouts"
	"github.com/castlegate/visitbooker/internal/services/worker/storage"
	"github.com/castlegate/visitbooker/internal/services/worker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed delivery-history persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a worker SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func optionalMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func optionalTime(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	resolved := fromMillis(value.Int64)
	return &resolved
}

func callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeouts.Store)
}

// RecordAttempt persists one delivery-status update row.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attempt.NotificationID = strings.TrimSpace(attempt.NotificationID)
	attempt.Status = strings.TrimSpace(attempt.Status)
	if attempt.NotificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	if attempt.Status == "" {
		return fmt.Errorf("status is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if attempt.RecordedAt.IsZero() {
		attempt.RecordedAt = time.Now().UTC()
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	_, err := s.sqlDB.ExecContext(callCtx, `
INSERT INTO notify_history (
	notification_id,
	event_audit_reference,
	status,
	sent_to,
	channel_type,
	template_id,
	template_version,
	created_at,
	completed_at,
	sent_at,
	recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.NotificationID,
		attempt.EventAuditReference,
		attempt.Status,
		attempt.SentTo,
		attempt.ChannelType,
		attempt.TemplateID,
		attempt.TemplateVersion,
		toMillis(attempt.CreatedAt),
		optionalMillis(attempt.CompletedAt),
		optionalMillis(attempt.SentAt),
		toMillis(attempt.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists history rows oldest-first. An empty notificationID
// lists across all notifications.
func (s *Store) ListAttempts(ctx context.Context, notificationID string, limit int) ([]storage.AttemptRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	query := `
SELECT id, notification_id, event_audit_reference, status, sent_to,
	channel_type, template_id, template_version, created_at, completed_at,
	sent_at, recorded_at
FROM notify_history
`
	params := []any{}
	if strings.TrimSpace(notificationID) != "" {
		query += "WHERE notification_id = ?\n"
		params = append(params, strings.TrimSpace(notificationID))
	}
	query += "ORDER BY id ASC LIMIT ?"
	params = append(params, limit)

	callCtx, cancel := callContext(ctx)
	defer cancel()

	rows, err := s.sqlDB.QueryContext(callCtx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []storage.AttemptRecord
	for rows.Next() {
		var attempt storage.AttemptRecord
		var createdAt, recordedAt int64
		var completedAt, sentAt sql.NullInt64
		if err := rows.Scan(
			&attempt.ID,
			&attempt.NotificationID,
			&attempt.EventAuditReference,
			&attempt.Status,
			&attempt.SentTo,
			&attempt.ChannelType,
			&attempt.TemplateID,
			&attempt.TemplateVersion,
			&createdAt,
			&completedAt,
			&sentAt,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.CreatedAt = fromMillis(createdAt)
		attempt.RecordedAt = fromMillis(recordedAt)
		attempt.CompletedAt = optionalTime(completedAt)
		attempt.SentAt = optionalTime(sentAt)
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// LoadCursor returns the booking event id the consumer last processed.
func (s *Store) LoadCursor(ctx context.Context, consumer string) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return 0, fmt.Errorf("consumer is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	var afterID int64
	err := s.sqlDB.QueryRowContext(callCtx, `SELECT after_id FROM event_cursors WHERE consumer = ?`, consumer).Scan(&afterID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	return afterID, nil
}

// SaveCursor advances the consumer's booking event cursor.
func (s *Store) SaveCursor(ctx context.Context, consumer string, afterID int64) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if afterID < 0 {
		return fmt.Errorf("cursor must not be negative")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	_, err := s.sqlDB.ExecContext(callCtx, `
INSERT INTO event_cursors (consumer, after_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (consumer) DO UPDATE SET after_id = excluded.after_id, updated_at = excluded.updated_at
`, consumer, afterID, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
