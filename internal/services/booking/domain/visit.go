// Package domain implements the visit booking lifecycle: applications,
// visits, supersession, cancellation, and the admission rule engine.
package domain

import (
	"time"
)

// Identity is the composed persistent identity shared by bookable entities:
// the store-assigned numeric id plus the public reference derived from it.
// The reference is empty until the post-commit assignment hook runs.
type Identity struct {
	ID        int64
	Reference string
}

// ApplicationStatus identifies one application lifecycle state.
type ApplicationStatus string

const (
	// ApplicationStatusDraft means the application awaits an admission decision.
	ApplicationStatusDraft ApplicationStatus = "DRAFT"
	// ApplicationStatusBooked means the application has been consumed by a booking.
	ApplicationStatusBooked ApplicationStatus = "BOOKED"
)

// VisitStatus identifies one visit lifecycle state.
type VisitStatus string

const (
	// VisitStatusBooked means the visit occupies its session slot.
	VisitStatusBooked VisitStatus = "BOOKED"
	// VisitStatusCancelled means the visit was cancelled or superseded.
	VisitStatusCancelled VisitStatus = "CANCELLED"
)

// OutcomeStatus records why a visit left the BOOKED state.
type OutcomeStatus string

const (
	// OutcomeSupersededCancellation marks a visit replaced by a later booking
	// on the same reference lineage.
	OutcomeSupersededCancellation OutcomeStatus = "SUPERSEDED_CANCELLATION"
	// OutcomeVisitorCancelled marks a cancellation requested by a visitor.
	OutcomeVisitorCancelled OutcomeStatus = "VISITOR_CANCELLED"
	// OutcomePrisonerCancelled marks a cancellation requested by the prisoner.
	OutcomePrisonerCancelled OutcomeStatus = "PRISONER_CANCELLED"
	// OutcomeEstablishmentCancelled marks a cancellation by the prison.
	OutcomeEstablishmentCancelled OutcomeStatus = "ESTABLISHMENT_CANCELLED"
	// OutcomeAdministrativeError marks a booking voided as entered in error.
	OutcomeAdministrativeError OutcomeStatus = "ADMINISTRATIVE_ERROR"
)

// NoteType categorizes one immutable visit annotation.
type NoteType string

const (
	// NoteTypeVisitOutcomes carries free text explaining a cancellation outcome.
	NoteTypeVisitOutcomes NoteType = "VISIT_OUTCOMES"
	// NoteTypeVisitComment carries general booking commentary.
	NoteTypeVisitComment NoteType = "VISIT_COMMENT"
	// NoteTypeStatusChangedReason carries the reason for a status change.
	NoteTypeStatusChangedReason NoteType = "STATUS_CHANGED_REASON"
)

// SessionSlot is the prison-defined bookable time window an application
// requests. Slot computation itself is an external scheduling concern; the
// core only carries the window through the lifecycle.
type SessionSlot struct {
	Start time.Time
	End   time.Time
}

// Date returns the calendar date of the slot in UTC.
func (s SessionSlot) Date() time.Time {
	start := s.Start.UTC()
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

// Application is a draft visit request pending an admission decision. It is
// consumed exactly once by the lifecycle manager. LineageRef carries the
// booking reference this application re-books; it is empty for a brand-new
// booking and the first committed visit's reference becomes the lineage.
type Application struct {
	Identity
	LineageRef string
	PrisonerID string
	PrisonCode string
	Slot       SessionSlot
	CreatedBy  string
	Status     ApplicationStatus
	VisitID    int64
	CreatedAt  time.Time
}

// VisitNote is an immutable free-text annotation tied to one visit.
type VisitNote struct {
	Type      NoteType
	Text      string
	CreatedBy string
	CreatedAt time.Time
}

// Visit is one booking attempt occupying a session slot. Supersession
// creates a new Visit row on the same reference lineage instead of mutating
// the slot assignment of the prior row.
type Visit struct {
	Identity
	PrisonerID  string
	PrisonCode  string
	Slot        SessionSlot
	Status      VisitStatus
	Outcome     OutcomeStatus
	CreatedBy   string
	UpdatedBy   string
	CancelledBy string
	Notes       []VisitNote
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Booked reports whether the visit currently occupies its slot.
func (v Visit) Booked() bool {
	return v.Status == VisitStatusBooked
}

func validOutcome(outcome OutcomeStatus) bool {
	switch outcome {
	case OutcomeSupersededCancellation,
		OutcomeVisitorCancelled,
		OutcomePrisonerCancelled,
		OutcomeEstablishmentCancelled,
		OutcomeAdministrativeError:
		return true
	}
	return false
}
