// Package sqlite provides SQLite-backed persistence for the booking service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/storage/sqlitemigrate"
	"github.com/castlegate/visitbooker/internal/platform/timeouts"
	"github.com/castlegate/visitbooker/internal/services/booking/storage"
	"github.com/castlegate/visitbooker/internal/services/booking/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for booking lifecycle state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a booking SQLite store at the provided path.
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
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.Apply(s.sqlDB, migrations.FS)
}

// callContext bounds every store call so no operation can block indefinitely.
// Deadline expiry surfaces as storage.ErrRetryable through mapError.
func callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeouts.Store)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToUpper(err.Error())
	return strings.Contains(value, "SQLITE_BUSY") ||
		strings.Contains(value, "SQLITE_LOCKED") ||
		strings.Contains(value, "DATABASE IS LOCKED")
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// mapError folds driver failure modes into the storage sentinel errors.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), isBusyError(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrRetryable, err)
	case isConstraintError(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

type txRollbacker interface {
	Rollback() error
}

func rollbackWith(tx txRollbacker, cause error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("%w: rollback: %v", cause, rollbackErr)
	}
	return cause
}
