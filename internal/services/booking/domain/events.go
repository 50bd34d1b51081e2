package domain

import "time"

// EventType identifies one notification event kind. The set is closed but
// new kinds may be added alongside new lifecycle transitions.
type EventType string

const (
	// EventTypeVisitBooked records a committed booking.
	EventTypeVisitBooked EventType = "visit.booked"
	// EventTypeVisitCancelled records an audited cancellation.
	EventTypeVisitCancelled EventType = "visit.cancelled"
	// EventTypeVisitSuperseded records the automatic cancellation of a prior
	// booking replaced on the same lineage.
	EventTypeVisitSuperseded EventType = "visit.superseded"
)

// ValidEventType reports whether value names a known event kind.
func ValidEventType(value EventType) bool {
	switch value {
	case EventTypeVisitBooked, EventTypeVisitCancelled, EventTypeVisitSuperseded:
		return true
	}
	return false
}

// AttributeName identifies one typed notification event attribute.
type AttributeName string

const (
	// AttributeVisitReference carries the booking reference of the visit.
	AttributeVisitReference AttributeName = "visit_reference"
	// AttributePrisonerID carries the prisoner the visit belongs to.
	AttributePrisonerID AttributeName = "prisoner_id"
	// AttributePrisonCode carries the prison the visit belongs to.
	AttributePrisonCode AttributeName = "prison_code"
	// AttributeOutcomeStatus carries the cancellation outcome.
	AttributeOutcomeStatus AttributeName = "outcome_status"
	// AttributeActor carries the identity that caused the transition.
	AttributeActor AttributeName = "actor"
	// AttributeSupersededBy carries the reference of the replacing booking.
	AttributeSupersededBy AttributeName = "superseded_by"
)

// ValidAttributeName reports whether value names a known attribute.
func ValidAttributeName(value AttributeName) bool {
	switch value {
	case AttributeVisitReference, AttributePrisonerID, AttributePrisonCode,
		AttributeOutcomeStatus, AttributeActor, AttributeSupersededBy:
		return true
	}
	return false
}

// EventAttribute is one write-once name/value pair owned by its event.
type EventAttribute struct {
	Name  AttributeName
	Value string
}

// NotificationEvent is one durable outbox entry. Events and their attributes
// are committed atomically with the state transition that produced them and
// are immutable afterwards.
type NotificationEvent struct {
	ID         int64
	VisitID    int64
	Reference  string
	Type       EventType
	Attributes []EventAttribute
	CreatedAt  time.Time
}

func bookedEvent(visit Visit) NotificationEvent {
	return NotificationEvent{
		VisitID:   visit.ID,
		Reference: visit.Reference,
		Type:      EventTypeVisitBooked,
		Attributes: []EventAttribute{
			{Name: AttributeVisitReference, Value: visit.Reference},
			{Name: AttributePrisonerID, Value: visit.PrisonerID},
			{Name: AttributePrisonCode, Value: visit.PrisonCode},
			{Name: AttributeActor, Value: visit.UpdatedBy},
		},
	}
}

func cancelledEvent(visit Visit) NotificationEvent {
	return NotificationEvent{
		VisitID:   visit.ID,
		Reference: visit.Reference,
		Type:      EventTypeVisitCancelled,
		Attributes: []EventAttribute{
			{Name: AttributeVisitReference, Value: visit.Reference},
			{Name: AttributePrisonerID, Value: visit.PrisonerID},
			{Name: AttributePrisonCode, Value: visit.PrisonCode},
			{Name: AttributeOutcomeStatus, Value: string(visit.Outcome)},
			{Name: AttributeActor, Value: visit.CancelledBy},
		},
	}
}

func supersededEvent(prior Visit, successorRef string, actor string) NotificationEvent {
	return NotificationEvent{
		VisitID:   prior.ID,
		Reference: prior.Reference,
		Type:      EventTypeVisitSuperseded,
		Attributes: []EventAttribute{
			{Name: AttributeVisitReference, Value: prior.Reference},
			{Name: AttributePrisonerID, Value: prior.PrisonerID},
			{Name: AttributePrisonCode, Value: prior.PrisonCode},
			{Name: AttributeOutcomeStatus, Value: string(OutcomeSupersededCancellation)},
			{Name: AttributeActor, Value: actor},
			{Name: AttributeSupersededBy, Value: successorRef},
		},
	}
}
