package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/castlegate/visitbooker/internal/services/booking/storage"
)

const visitColumns = `id, reference, prisoner_id, prison_code, slot_start, slot_end, status, outcome, created_by, updated_by, cancelled_by, created_at, updated_at`

// FindVisitByID loads one visit row by its numeric id.
func (s *Store) FindVisitByID(ctx context.Context, id int64) (storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VisitRecord{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return storage.VisitRecord{}, fmt.Errorf("visit id is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	row := s.sqlDB.QueryRowContext(callCtx, `SELECT `+visitColumns+` FROM visits WHERE id = ?`, id)
	return scanVisitRow(row)
}

// FindVisit loads the most recent visit row for a reference lineage
// regardless of status.
func (s *Store) FindVisit(ctx context.Context, reference string) (storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VisitRecord{}, fmt.Errorf("storage is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return storage.VisitRecord{}, fmt.Errorf("visit reference is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	row := s.sqlDB.QueryRowContext(callCtx, `
SELECT `+visitColumns+` FROM visits
WHERE reference = ?
ORDER BY id DESC
LIMIT 1
`, reference)
	return scanVisitRow(row)
}

// FindBookedVisit loads the single BOOKED visit row for a lineage, if any.
func (s *Store) FindBookedVisit(ctx context.Context, reference string) (storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VisitRecord{}, fmt.Errorf("storage is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return storage.VisitRecord{}, fmt.Errorf("visit reference is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	row := s.sqlDB.QueryRowContext(callCtx, `
SELECT `+visitColumns+` FROM visits
WHERE reference = ? AND status = 'BOOKED'
`, reference)
	return scanVisitRow(row)
}

// buildVisitQuery translates the typed filter into the store's native query
// form. Zero-valued filter fields add no constraint.
func buildVisitQuery(filter storage.VisitFilter) (string, []any) {
	query := `SELECT ` + visitColumns + ` FROM visits`
	var clauses []string
	var params []any

	if filter.PrisonCode != "" {
		clauses = append(clauses, "prison_code = ?")
		params = append(params, filter.PrisonCode)
	}
	if filter.PrisonerID != "" {
		clauses = append(clauses, "prisoner_id = ?")
		params = append(params, filter.PrisonerID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Statuses)), ", ")
		clauses = append(clauses, "status IN ("+placeholders+")")
		for _, status := range filter.Statuses {
			params = append(params, status)
		}
	}
	if !filter.FromDate.IsZero() {
		clauses = append(clauses, "slot_start >= ?")
		params = append(params, toMillis(filter.FromDate))
	}
	if !filter.ToDate.IsZero() {
		// ToDate is an inclusive calendar date; constrain to its end of day.
		clauses = append(clauses, "slot_start < ?")
		params = append(params, toMillis(filter.ToDate.AddDate(0, 0, 1)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY slot_start ASC, id ASC"
	return query, params
}

// ListVisits returns visit rows matching the typed filter, ordered by slot.
func (s *Store) ListVisits(ctx context.Context, filter storage.VisitFilter) ([]storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	query, params := buildVisitQuery(filter)
	rows, err := s.sqlDB.QueryContext(callCtx, query, params...)
	if err != nil {
		return nil, mapError("list visits", err)
	}
	defer rows.Close()

	var records []storage.VisitRecord
	for rows.Next() {
		record, err := scanVisit(rows.Scan)
		if err != nil {
			return nil, mapError("scan visit", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate visits", err)
	}
	return records, nil
}

// ListVisitNotes returns the ordered note sequence for one visit.
func (s *Store) ListVisitNotes(ctx context.Context, visitID int64) ([]storage.VisitNoteRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if visitID <= 0 {
		return nil, fmt.Errorf("visit id is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	rows, err := s.sqlDB.QueryContext(callCtx, `
SELECT id, visit_id, note_type, text, created_by, created_at
FROM visit_notes
WHERE visit_id = ?
ORDER BY id ASC
`, visitID)
	if err != nil {
		return nil, mapError("list visit notes", err)
	}
	defer rows.Close()

	var notes []storage.VisitNoteRecord
	for rows.Next() {
		var note storage.VisitNoteRecord
		var createdAt int64
		if err := rows.Scan(&note.ID, &note.VisitID, &note.NoteType, &note.Text, &note.CreatedBy, &createdAt); err != nil {
			return nil, mapError("scan visit note", err)
		}
		note.CreatedAt = fromMillis(createdAt)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate visit notes", err)
	}
	return notes, nil
}

// AllocateVisitID reserves the next visit identifier without creating a
// visible visit row.
func (s *Store) AllocateVisitID(ctx context.Context) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	result, err := s.sqlDB.ExecContext(callCtx, `INSERT INTO visit_ids (allocated_at) VALUES (?)`, toMillis(time.Now()))
	if err != nil {
		return 0, mapError("allocate visit id", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, mapError("allocate visit id result", err)
	}
	return id, nil
}

// CommitBooking applies one booking transition atomically: the optional
// supersession of the prior BOOKED row on the lineage, the new BOOKED visit
// row, the application status flip, and the notification events. A partial
// unique index on BOOKED lineage rows guarantees at-most-one-winner; the
// loser observes storage.ErrConflict.
func (s *Store) CommitBooking(ctx context.Context, commit storage.BookingCommitRecord) (storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VisitRecord{}, fmt.Errorf("storage is not configured")
	}
	if commit.Visit.ID <= 0 || strings.TrimSpace(commit.Visit.Reference) == "" {
		return storage.VisitRecord{}, fmt.Errorf("visit id and reference are required")
	}
	if commit.ApplicationID <= 0 {
		return storage.VisitRecord{}, fmt.Errorf("application id is required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	tx, err := s.sqlDB.BeginTx(callCtx, nil)
	if err != nil {
		return storage.VisitRecord{}, mapError("begin booking commit", err)
	}

	if commit.Supersession != nil {
		result, err := tx.ExecContext(callCtx, `
UPDATE visits
SET status = 'CANCELLED', outcome = ?, cancelled_by = ?, updated_by = ?, updated_at = ?
WHERE reference = ? AND status = 'BOOKED'
`,
			commit.Supersession.Outcome,
			commit.Supersession.Actor,
			commit.Supersession.Actor,
			toMillis(commit.Visit.UpdatedAt),
			commit.Supersession.Reference,
		)
		if err != nil {
			return storage.VisitRecord{}, rollbackWith(tx, mapError("supersede visit", err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return storage.VisitRecord{}, rollbackWith(tx, mapError("supersede visit rows", err))
		}
		if affected != 1 {
			// The prior booking vanished between read and commit.
			return storage.VisitRecord{}, rollbackWith(tx, fmt.Errorf("supersede visit %s: %w", commit.Supersession.Reference, storage.ErrConflict))
		}
	}

	if _, err := tx.ExecContext(callCtx, `
INSERT INTO visits (`+visitColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		commit.Visit.ID,
		commit.Visit.Reference,
		commit.Visit.PrisonerID,
		commit.Visit.PrisonCode,
		toMillis(commit.Visit.SlotStart),
		toMillis(commit.Visit.SlotEnd),
		commit.Visit.Status,
		commit.Visit.Outcome,
		commit.Visit.CreatedBy,
		commit.Visit.UpdatedBy,
		commit.Visit.CancelledBy,
		toMillis(commit.Visit.CreatedAt),
		toMillis(commit.Visit.UpdatedAt),
	); err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, mapError("insert visit", err))
	}

	result, err := tx.ExecContext(callCtx, `
UPDATE applications SET status = 'BOOKED', visit_id = ? WHERE id = ? AND status = 'DRAFT'
`, commit.Visit.ID, commit.ApplicationID)
	if err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, mapError("consume application", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, mapError("consume application rows", err))
	}
	if affected != 1 {
		// A concurrent Book call consumed the application first.
		return storage.VisitRecord{}, rollbackWith(tx, fmt.Errorf("consume application %d: %w", commit.ApplicationID, storage.ErrConflict))
	}

	for _, event := range commit.Events {
		if err := insertEventExec(callCtx, tx, event); err != nil {
			return storage.VisitRecord{}, rollbackWith(tx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.VisitRecord{}, mapError("commit booking", err)
	}
	return commit.Visit, nil
}

// CommitCancellation applies one cancellation transition atomically. The
// status guard makes the update race-safe: if the row already left BOOKED,
// the caller observes storage.ErrConflict and no rows change.
func (s *Store) CommitCancellation(ctx context.Context, commit storage.CancellationCommitRecord) (storage.VisitRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VisitRecord{}, fmt.Errorf("storage is not configured")
	}
	if commit.VisitID <= 0 {
		return storage.VisitRecord{}, fmt.Errorf("visit id is required")
	}
	if strings.TrimSpace(commit.Outcome) == "" || strings.TrimSpace(commit.Actor) == "" {
		return storage.VisitRecord{}, fmt.Errorf("cancellation outcome and actor are required")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	tx, err := s.sqlDB.BeginTx(callCtx, nil)
	if err != nil {
		return storage.VisitRecord{}, mapError("begin cancellation commit", err)
	}

	now := toMillis(commit.Event.CreatedAt)
	result, err := tx.ExecContext(callCtx, `
UPDATE visits
SET status = 'CANCELLED', outcome = ?, cancelled_by = ?, updated_by = ?, updated_at = ?
WHERE id = ? AND status = 'BOOKED'
`, commit.Outcome, commit.Actor, commit.Actor, now, commit.VisitID)
	if err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, mapError("cancel visit", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, mapError("cancel visit rows", err))
	}
	if affected != 1 {
		return storage.VisitRecord{}, rollbackWith(tx, fmt.Errorf("cancel visit %d: %w", commit.VisitID, storage.ErrConflict))
	}

	if commit.Note != nil {
		if _, err := tx.ExecContext(callCtx, `
INSERT INTO visit_notes (visit_id, note_type, text, created_by, created_at)
VALUES (?, ?, ?, ?, ?)
`, commit.VisitID, commit.Note.NoteType, commit.Note.Text, commit.Note.CreatedBy, toMillis(commit.Note.CreatedAt)); err != nil {
			return storage.VisitRecord{}, rollbackWith(tx, mapError("insert visit note", err))
		}
	}

	if err := insertEventExec(callCtx, tx, commit.Event); err != nil {
		return storage.VisitRecord{}, rollbackWith(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return storage.VisitRecord{}, mapError("commit cancellation", err)
	}

	return s.FindVisitByID(ctx, commit.VisitID)
}

func scanVisitRow(row *sql.Row) (storage.VisitRecord, error) {
	record, err := scanVisit(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.VisitRecord{}, storage.ErrNotFound
		}
		return storage.VisitRecord{}, mapError("find visit", err)
	}
	return record, nil
}

func scanVisit(scan func(dest ...any) error) (storage.VisitRecord, error) {
	var record storage.VisitRecord
	var slotStart, slotEnd, createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.Reference,
		&record.PrisonerID,
		&record.PrisonCode,
		&slotStart,
		&slotEnd,
		&record.Status,
		&record.Outcome,
		&record.CreatedBy,
		&record.UpdatedBy,
		&record.CancelledBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.VisitRecord{}, err
	}
	record.SlotStart = fromMillis(slotStart)
	record.SlotEnd = fromMillis(slotEnd)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
