package domain

import (
	"context"
	"strings"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/errors"
)

// Store is the persistence boundary for the booking lifecycle. Every
// mutating call executes as a single atomic unit against the backing store;
// transient contention and call-timeout expiry surface as a retryable error
// so callers can safely retry the whole operation.
type Store interface {
	CreateApplication(ctx context.Context, application Application) (Application, error)
	// AssignApplicationReference persists the reference for a freshly created
	// application. It never overwrites an already-assigned reference and is
	// idempotent for the same id/reference pair.
	AssignApplicationReference(ctx context.Context, id int64, reference string) error
	FindApplication(ctx context.Context, reference string) (Application, error)

	FindVisitByID(ctx context.Context, id int64) (Visit, error)
	// FindVisit returns the most recent visit row for a reference lineage
	// regardless of status.
	FindVisit(ctx context.Context, reference string) (Visit, error)
	// FindBookedVisit returns the single BOOKED visit for a lineage, if any.
	FindBookedVisit(ctx context.Context, reference string) (Visit, error)
	FindBookedVisits(ctx context.Context, prisonCode, prisonerID string, from, to time.Time) ([]Visit, error)

	// AllocateVisitID reserves the next visit identifier without creating a
	// visible visit row, so the reference can be derived before commit.
	AllocateVisitID(ctx context.Context) (int64, error)
	CommitBooking(ctx context.Context, commit BookingCommit) (Visit, error)
	CommitCancellation(ctx context.Context, commit CancellationCommit) (Visit, error)
}

// IsRetryable reports whether err marks transient contention the caller may
// retry. Book and Cancel are idempotent with respect to already-applied
// effects, so retrying the whole operation is always safe.
func IsRetryable(err error) bool {
	return isCode(err, errors.CodeRetryable)
}

func isCode(err error, code errors.Code) bool {
	domainErr, ok := err.(*errors.Error)
	return ok && domainErr.Code == code
}

// BookingCommit is the atomic unit CommitBooking applies: the new BOOKED
// visit row, the optional supersession of the prior booking on the same
// lineage, the application status flip, and the notification events.
type BookingCommit struct {
	ApplicationID   int64
	Visit           Visit
	SupersededRef   string
	SupersededActor string
	Events          []NotificationEvent
}

// CancellationCommit is the atomic unit CommitCancellation applies.
type CancellationCommit struct {
	VisitID int64
	Outcome OutcomeStatus
	Actor   string
	Note    *VisitNote
	Event   NotificationEvent
}

// SubmitApplicationInput describes one draft visit request.
type SubmitApplicationInput struct {
	LineageRef string
	PrisonerID string
	PrisonCode string
	Slot       SessionSlot
	CreatedBy  string
}

// Service is the booking lifecycle manager. It orchestrates booking,
// supersession, and cancellation transitions over the Store and evaluates
// admission rules on submission.
type Service struct {
	store  Store
	engine *Engine
	clock  func() time.Time
}

// NewService constructs the lifecycle manager. The engine is optional; with
// no engine every submission is auto-bookable.
func NewService(store Store, engine *Engine, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, engine: engine, clock: clock}
}

// SubmitApplication persists a draft application, assigns its reference via
// the post-commit hook, and evaluates the prison's admission rules. A
// violated rule routes the application to manual review; it never blocks
// the submission itself.
func (s *Service) SubmitApplication(ctx context.Context, input SubmitApplicationInput) (Application, Decision, error) {
	if err := validateSubmission(input); err != nil {
		return Application{}, Decision{}, err
	}

	application := Application{
		LineageRef: strings.TrimSpace(input.LineageRef),
		PrisonerID: strings.TrimSpace(input.PrisonerID),
		PrisonCode: strings.TrimSpace(input.PrisonCode),
		Slot:       input.Slot,
		CreatedBy:  strings.TrimSpace(input.CreatedBy),
		Status:     ApplicationStatusDraft,
		CreatedAt:  s.clock().UTC(),
	}

	created, err := s.store.CreateApplication(ctx, application)
	if err != nil {
		return Application{}, Decision{}, err
	}

	reference, err := Reference(created.ID)
	if err != nil {
		return Application{}, Decision{}, err
	}
	if err := s.store.AssignApplicationReference(ctx, created.ID, reference); err != nil {
		return Application{}, Decision{}, err
	}
	created.Reference = reference

	decision := Decision{}
	if s.engine != nil {
		decision, err = s.engine.Evaluate(ctx, created)
		if err != nil {
			return Application{}, Decision{}, err
		}
	}
	return created, decision, nil
}

// Book commits the application identified by reference as a BOOKED visit,
// atomically superseding any prior BOOKED visit on the same lineage.
// Re-invoking Book on an already-booked application returns the committed
// visit unchanged.
func (s *Service) Book(ctx context.Context, applicationReference string) (Visit, error) {
	applicationReference = strings.TrimSpace(applicationReference)
	if applicationReference == "" {
		return Visit{}, errors.New(errors.CodeApplicationEmptyReference, "application reference is required")
	}

	application, err := s.store.FindApplication(ctx, applicationReference)
	if err != nil {
		return Visit{}, err
	}
	if application.Status == ApplicationStatusBooked {
		return s.store.FindVisitByID(ctx, application.VisitID)
	}

	var prior Visit
	superseding := false
	lineage := application.LineageRef
	if lineage != "" {
		prior, err = s.store.FindBookedVisit(ctx, lineage)
		switch {
		case err == nil:
			superseding = true
		case isCode(err, errors.CodeNotFound):
			// The lineage has no live booking; the new visit re-occupies it.
		default:
			return Visit{}, err
		}
	}

	visitID, err := s.store.AllocateVisitID(ctx)
	if err != nil {
		return Visit{}, err
	}
	reference := lineage
	if reference == "" {
		reference, err = Reference(visitID)
		if err != nil {
			return Visit{}, err
		}
	}

	now := s.clock().UTC()
	visit := Visit{
		Identity:   Identity{ID: visitID, Reference: reference},
		PrisonerID: application.PrisonerID,
		PrisonCode: application.PrisonCode,
		Slot:       application.Slot,
		Status:     VisitStatusBooked,
		CreatedBy:  application.CreatedBy,
		UpdatedBy:  application.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	commit := BookingCommit{ApplicationID: application.ID, Visit: visit}
	if superseding {
		// Authorship continuity: the successor keeps the lineage's original
		// creator while updated-by records who re-booked it.
		visit.CreatedBy = prior.CreatedBy
		commit.SupersededRef = lineage
		commit.SupersededActor = application.CreatedBy
		commit.Events = append(commit.Events, supersededEvent(prior, reference, application.CreatedBy))
	}
	commit.Visit = visit
	commit.Events = append(commit.Events, bookedEvent(visit))

	booked, err := s.store.CommitBooking(ctx, commit)
	if err == nil {
		return booked, nil
	}
	if isCode(err, errors.CodeConflict) {
		return s.convergeOnWinner(ctx, applicationReference, err)
	}
	return Visit{}, err
}

// convergeOnWinner resolves a lost booking race: if a concurrent Book call
// already consumed the application, its committed visit is the answer.
func (s *Service) convergeOnWinner(ctx context.Context, applicationReference string, cause error) (Visit, error) {
	application, err := s.store.FindApplication(ctx, applicationReference)
	if err == nil && application.Status == ApplicationStatusBooked {
		return s.store.FindVisitByID(ctx, application.VisitID)
	}
	return Visit{}, errors.Wrap(errors.CodeRetryable, "booking lost a concurrent write race", cause)
}

// Cancel transitions the BOOKED visit for reference to CANCELLED, recording
// the outcome and acting identity, and appending an immutable outcome note
// when noteText is present.
func (s *Service) Cancel(ctx context.Context, reference string, outcome OutcomeStatus, actor string, noteText string) (Visit, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Visit{}, errors.New(errors.CodeVisitEmptyReference, "visit reference is required")
	}
	if !validOutcome(outcome) {
		return Visit{}, errors.WithMetadata(errors.CodeVisitEmptyOutcome, "cancellation outcome is required", map[string]string{
			"outcome": string(outcome),
		})
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Visit{}, errors.New(errors.CodeVisitEmptyActor, "cancelling actor is required")
	}

	visit, err := s.store.FindVisit(ctx, reference)
	if err != nil {
		return Visit{}, err
	}
	if !visit.Booked() {
		if visit.Status == VisitStatusCancelled && visit.Outcome == outcome && visit.CancelledBy == actor {
			// A retried cancellation that already took effect.
			return visit, nil
		}
		return Visit{}, errors.WithMetadata(errors.CodeInvalidState, "visit is not in a cancellable state", map[string]string{
			"reference": reference,
			"status":    string(visit.Status),
		})
	}

	now := s.clock().UTC()
	cancelled := visit
	cancelled.Status = VisitStatusCancelled
	cancelled.Outcome = outcome
	cancelled.CancelledBy = actor
	cancelled.UpdatedBy = actor
	cancelled.UpdatedAt = now

	commit := CancellationCommit{
		VisitID: visit.ID,
		Outcome: outcome,
		Actor:   actor,
		Event:   cancelledEvent(cancelled),
	}
	if strings.TrimSpace(noteText) != "" {
		commit.Note = &VisitNote{
			Type:      NoteTypeVisitOutcomes,
			Text:      strings.TrimSpace(noteText),
			CreatedBy: actor,
			CreatedAt: now,
		}
	}

	result, err := s.store.CommitCancellation(ctx, commit)
	if err == nil {
		return result, nil
	}
	if isCode(err, errors.CodeConflict) {
		// The row left BOOKED between read and commit; report the live state.
		current, readErr := s.store.FindVisit(ctx, reference)
		if readErr == nil && current.Status == VisitStatusCancelled && current.Outcome == outcome && current.CancelledBy == actor {
			return current, nil
		}
		return Visit{}, errors.WrapWithMetadata(errors.CodeInvalidState, "visit was modified concurrently", map[string]string{
			"reference": reference,
		}, err)
	}
	return Visit{}, err
}

func validateSubmission(input SubmitApplicationInput) error {
	if strings.TrimSpace(input.PrisonerID) == "" {
		return errors.New(errors.CodeApplicationEmptyPrisonerID, "prisoner id is required")
	}
	if strings.TrimSpace(input.PrisonCode) == "" {
		return errors.New(errors.CodeApplicationEmptyPrisonCode, "prison code is required")
	}
	if strings.TrimSpace(input.CreatedBy) == "" {
		return errors.New(errors.CodeApplicationEmptyCreator, "application creator is required")
	}
	if input.Slot.Start.IsZero() || input.Slot.End.IsZero() {
		return errors.New(errors.CodeVisitInvalidStatus, "session slot is required")
	}
	return nil
}
