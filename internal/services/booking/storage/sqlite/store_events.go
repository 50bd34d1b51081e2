package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/castlegate/visitbooker/internal/services/booking/storage"
	"github.com/castlegate/visitbooker/internal/services/booking/storage/filter"
)

// execer is satisfied by both *sql.DB and *sql.Tx so event inserts can run
// inside commit transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertEventExec appends one notification event row with its attributes.
// Events are write-once; no update path exists.
func insertEventExec(ctx context.Context, db execer, event storage.VisitEventRecord) error {
	result, err := db.ExecContext(ctx, `
INSERT INTO visit_events (visit_id, reference, event_type, created_at)
VALUES (?, ?, ?, ?)
`, event.VisitID, event.Reference, event.EventType, toMillis(event.CreatedAt))
	if err != nil {
		return mapError("insert event", err)
	}
	eventID, err := result.LastInsertId()
	if err != nil {
		return mapError("insert event result", err)
	}
	for _, attribute := range event.Attributes {
		if _, err := db.ExecContext(ctx, `
INSERT INTO visit_event_attributes (event_id, name, value)
VALUES (?, ?, ?)
`, eventID, attribute.Name, attribute.Value); err != nil {
			return mapError("insert event attribute", err)
		}
	}
	return nil
}

// ListEventsAfter returns up to limit events with ids greater than afterID
// in id order. Polling consumers advance their cursor by the last id seen.
func (s *Store) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]storage.VisitEventRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	callCtx, cancel := callContext(ctx)
	defer cancel()

	rows, err := s.sqlDB.QueryContext(callCtx, `
SELECT id, visit_id, reference, event_type, created_at
FROM visit_events
WHERE id > ?
ORDER BY id ASC
LIMIT ?
`, afterID, limit)
	if err != nil {
		return nil, mapError("list events", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	return s.attachAttributes(callCtx, events)
}

// QueryEvents returns events matching an AIP-160 filter expression in id
// order. An empty expression matches everything up to limit.
func (s *Store) QueryEvents(ctx context.Context, filterExpr string, limit int) ([]storage.VisitEventRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	condition, err := filter.ParseEventFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("parse event filter: %w", err)
	}

	query := `SELECT id, visit_id, reference, event_type, created_at FROM visit_events`
	params := condition.Params
	if condition.Clause != "" {
		query += " WHERE " + condition.Clause
	}
	query += " ORDER BY id ASC LIMIT ?"
	params = append(params, limit)

	callCtx, cancel := callContext(ctx)
	defer cancel()

	rows, err := s.sqlDB.QueryContext(callCtx, query, params...)
	if err != nil {
		return nil, mapError("query events", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	return s.attachAttributes(callCtx, events)
}

func collectEvents(rows *sql.Rows) ([]storage.VisitEventRecord, error) {
	defer rows.Close()

	var events []storage.VisitEventRecord
	for rows.Next() {
		var event storage.VisitEventRecord
		var createdAt int64
		if err := rows.Scan(&event.ID, &event.VisitID, &event.Reference, &event.EventType, &createdAt); err != nil {
			return nil, mapError("scan event", err)
		}
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate events", err)
	}
	return events, nil
}

// attachAttributes loads the attribute rows for a batch of events with a
// single query.
func (s *Store) attachAttributes(ctx context.Context, events []storage.VisitEventRecord) ([]storage.VisitEventRecord, error) {
	if len(events) == 0 {
		return events, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(events)), ", ")
	params := make([]any, 0, len(events))
	index := make(map[int64]int, len(events))
	for i, event := range events {
		params = append(params, event.ID)
		index[event.ID] = i
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id, name, value
FROM visit_event_attributes
WHERE event_id IN (`+placeholders+`)
ORDER BY id ASC
`, params...)
	if err != nil {
		return nil, mapError("list event attributes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID int64
		var attribute storage.EventAttributeRecord
		if err := rows.Scan(&eventID, &attribute.Name, &attribute.Value); err != nil {
			return nil, mapError("scan event attribute", err)
		}
		i, ok := index[eventID]
		if !ok {
			continue
		}
		events[i].Attributes = append(events[i].Attributes, attribute)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate event attributes", err)
	}
	return events, nil
}
