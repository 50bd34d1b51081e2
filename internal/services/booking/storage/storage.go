// Package storage defines the persistence records and store interfaces for
// the booking service.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested application or visit row is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a guarded write found the row in another state.
	ErrConflict = errors.New("record conflict")
	// ErrRetryable indicates transient contention or a store-call timeout;
	// the caller may retry the whole operation.
	ErrRetryable = errors.New("transient storage contention")
)

// ApplicationRecord stores one draft visit request row.
type ApplicationRecord struct {
	ID         int64
	Reference  string
	LineageRef string
	PrisonerID string
	PrisonCode string
	SlotStart  time.Time
	SlotEnd    time.Time
	CreatedBy  string
	Status     string
	VisitID    int64
	CreatedAt  time.Time
}

// VisitRecord stores one booking-attempt row.
type VisitRecord struct {
	ID          int64
	Reference   string
	PrisonerID  string
	PrisonCode  string
	SlotStart   time.Time
	SlotEnd     time.Time
	Status      string
	Outcome     string
	CreatedBy   string
	UpdatedBy   string
	CancelledBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VisitNoteRecord stores one immutable visit annotation row.
type VisitNoteRecord struct {
	ID        int64
	VisitID   int64
	NoteType  string
	Text      string
	CreatedBy string
	CreatedAt time.Time
}

// VisitEventRecord stores one notification outbox row.
type VisitEventRecord struct {
	ID         int64
	VisitID    int64
	Reference  string
	EventType  string
	Attributes []EventAttributeRecord
	CreatedAt  time.Time
}

// EventAttributeRecord stores one write-once event attribute row. Attribute
// rows never outlive or precede their parent event.
type EventAttributeRecord struct {
	Name  string
	Value string
}

// SupersessionRecord identifies the prior BOOKED row a booking commit must
// cancel atomically.
type SupersessionRecord struct {
	Reference string
	Outcome   string
	Actor     string
}

// BookingCommitRecord is the atomic unit applied by CommitBooking.
type BookingCommitRecord struct {
	ApplicationID int64
	Visit         VisitRecord
	Supersession  *SupersessionRecord
	Events        []VisitEventRecord
}

// CancellationCommitRecord is the atomic unit applied by CommitCancellation.
type CancellationCommitRecord struct {
	VisitID int64
	Outcome string
	Actor   string
	Note    *VisitNoteRecord
	Event   VisitEventRecord
}

// VisitFilter is the explicit typed filter for visit listings, translated
// by the store into its native query form. Zero fields are unconstrained.
type VisitFilter struct {
	PrisonCode string
	PrisonerID string
	Statuses   []string
	FromDate   time.Time
	ToDate     time.Time
}

// BookingStore persists the booking lifecycle state.
type BookingStore interface {
	CreateApplication(ctx context.Context, record ApplicationRecord) (ApplicationRecord, error)
	AssignApplicationReference(ctx context.Context, id int64, reference string) error
	FindApplication(ctx context.Context, reference string) (ApplicationRecord, error)

	FindVisitByID(ctx context.Context, id int64) (VisitRecord, error)
	FindVisit(ctx context.Context, reference string) (VisitRecord, error)
	FindBookedVisit(ctx context.Context, reference string) (VisitRecord, error)
	ListVisits(ctx context.Context, filter VisitFilter) ([]VisitRecord, error)
	ListVisitNotes(ctx context.Context, visitID int64) ([]VisitNoteRecord, error)

	AllocateVisitID(ctx context.Context) (int64, error)
	CommitBooking(ctx context.Context, commit BookingCommitRecord) (VisitRecord, error)
	CommitCancellation(ctx context.Context, commit CancellationCommitRecord) (VisitRecord, error)
}

// EventStore reads the append-only notification event log.
type EventStore interface {
	// ListEventsAfter returns up to limit events with ids greater than
	// afterID in id order, for polling consumers.
	ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]VisitEventRecord, error)
	// QueryEvents returns events matching an AIP-160 filter expression.
	QueryEvents(ctx context.Context, filterExpr string, limit int) ([]VisitEventRecord, error)
}
