package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/castlegate/visitbooker/internal/services/booking/storage"
)

// CreateApplication persists one draft application row and returns it with
// its assigned id. The reference is assigned separately by the lifecycle
// manager's post-commit hook.
func (s *Store) CreateApplication(ctx context.Context, record storage.ApplicationRecord) (storage.ApplicationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.ApplicationRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.PrisonerID) == "" {
		return storage.ApplicationRecord{}, fmt.Errorf("prisoner id is required")
	}
	if strings.TrimSpace(record.PrisonCode) == "" {
		return storage.ApplicationRecord{}, fmt.Errorf("prison code is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	result, err := s.sqlDB.ExecContext(callCtx, `
INSERT INTO applications (reference, lineage_ref, prisoner_id, prison_code, slot_start, slot_end, created_by, status, visit_id, created_at)
VALUES (NULL, ?, ?, ?, ?, ?, ?, ?, 0, ?)
`,
		record.LineageRef,
		record.PrisonerID,
		record.PrisonCode,
		toMillis(record.SlotStart),
		toMillis(record.SlotEnd),
		record.CreatedBy,
		record.Status,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return storage.ApplicationRecord{}, mapError("create application", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.ApplicationRecord{}, mapError("create application id", err)
	}
	record.ID = id
	record.Reference = ""
	return record, nil
}

// AssignApplicationReference stores the derived reference for one
// application. An already-assigned reference is never overwritten; retrying
// with the same reference is a no-op.
func (s *Store) AssignApplicationReference(ctx context.Context, id int64, reference string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	reference = strings.TrimSpace(reference)
	if id <= 0 || reference == "" {
		return fmt.Errorf("application id and reference are required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	result, err := s.sqlDB.ExecContext(callCtx, `
UPDATE applications SET reference = ? WHERE id = ? AND reference IS NULL
`, reference, id)
	if err != nil {
		return mapError("assign application reference", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError("assign application reference rows", err)
	}
	if affected == 1 {
		return nil
	}

	var existing sql.NullString
	row := s.sqlDB.QueryRowContext(callCtx, `SELECT reference FROM applications WHERE id = ?`, id)
	if err := row.Scan(&existing); err != nil {
		return mapError("read application reference", err)
	}
	if existing.Valid && existing.String == reference {
		return nil
	}
	return fmt.Errorf("application %d already holds reference %q: %w", id, existing.String, storage.ErrConflict)
}

// FindApplication loads one application row by its public reference.
func (s *Store) FindApplication(ctx context.Context, reference string) (storage.ApplicationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.ApplicationRecord{}, fmt.Errorf("storage is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return storage.ApplicationRecord{}, fmt.Errorf("application reference is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	row := s.sqlDB.QueryRowContext(callCtx, `
SELECT id, reference, lineage_ref, prisoner_id, prison_code, slot_start, slot_end, created_by, status, visit_id, created_at
FROM applications
WHERE reference = ?
`, reference)
	record, err := scanApplication(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ApplicationRecord{}, storage.ErrNotFound
		}
		return storage.ApplicationRecord{}, mapError("find application", err)
	}
	return record, nil
}

func scanApplication(scan func(dest ...any) error) (storage.ApplicationRecord, error) {
	var record storage.ApplicationRecord
	var reference sql.NullString
	var slotStart, slotEnd, createdAt int64
	if err := scan(
		&record.ID,
		&reference,
		&record.LineageRef,
		&record.PrisonerID,
		&record.PrisonCode,
		&slotStart,
		&slotEnd,
		&record.CreatedBy,
		&record.Status,
		&record.VisitID,
		&createdAt,
	); err != nil {
		return storage.ApplicationRecord{}, err
	}
	if reference.Valid {
		record.Reference = reference.String
	}
	record.SlotStart = fromMillis(slotStart)
	record.SlotEnd = fromMillis(slotEnd)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
