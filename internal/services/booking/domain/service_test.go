package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/errors"
)

// memoryStore is an in-memory Store honoring the guarded-write semantics of
// the real store: supersession and application consumption fail with a
// conflict when the guarded row already left its expected state.
type memoryStore struct {
	mu           sync.Mutex
	applications map[int64]Application
	visits       map[int64]Visit
	events       []NotificationEvent
	nextAppID    int64
	nextVisitID  int64

	failCommits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		applications: make(map[int64]Application),
		visits:       make(map[int64]Visit),
	}
}

func (m *memoryStore) CreateApplication(_ context.Context, application Application) (Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAppID++
	application.ID = m.nextAppID
	m.applications[application.ID] = application
	return application, nil
}

func (m *memoryStore) AssignApplicationReference(_ context.Context, id int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	application, ok := m.applications[id]
	if !ok {
		return errors.New(errors.CodeNotFound, "application not found")
	}
	if application.Reference != "" {
		if application.Reference == reference {
			return nil
		}
		return errors.New(errors.CodeConflict, "reference already assigned")
	}
	application.Reference = reference
	m.applications[id] = application
	return nil
}

func (m *memoryStore) FindApplication(_ context.Context, reference string) (Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, application := range m.applications {
		if application.Reference == reference {
			return application, nil
		}
	}
	return Application{}, errors.New(errors.CodeNotFound, "application not found")
}

func (m *memoryStore) FindVisitByID(_ context.Context, id int64) (Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	visit, ok := m.visits[id]
	if !ok {
		return Visit{}, errors.New(errors.CodeNotFound, "visit not found")
	}
	return visit, nil
}

func (m *memoryStore) FindVisit(_ context.Context, reference string) (Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest Visit
	found := false
	for _, visit := range m.visits {
		if visit.Reference == reference && (!found || visit.ID > latest.ID) {
			latest = visit
			found = true
		}
	}
	if !found {
		return Visit{}, errors.New(errors.CodeNotFound, "visit not found")
	}
	return latest, nil
}

func (m *memoryStore) FindBookedVisit(_ context.Context, reference string) (Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, visit := range m.visits {
		if visit.Reference == reference && visit.Status == VisitStatusBooked {
			return visit, nil
		}
	}
	return Visit{}, errors.New(errors.CodeNotFound, "visit not found")
}

func (m *memoryStore) FindBookedVisits(_ context.Context, prisonCode, prisonerID string, from, to time.Time) ([]Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Visit
	for _, visit := range m.visits {
		if visit.Status != VisitStatusBooked || visit.PrisonCode != prisonCode || visit.PrisonerID != prisonerID {
			continue
		}
		date := visit.Slot.Date()
		if date.Before(from) || date.After(to) {
			continue
		}
		matched = append(matched, visit)
	}
	return matched, nil
}

func (m *memoryStore) AllocateVisitID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextVisitID++
	return m.nextVisitID, nil
}

func (m *memoryStore) CommitBooking(_ context.Context, commit BookingCommit) (Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCommits > 0 {
		m.failCommits--
		return Visit{}, errors.New(errors.CodeRetryable, "injected commit failure")
	}

	if commit.SupersededRef != "" {
		superseded := false
		for id, visit := range m.visits {
			if visit.Reference == commit.SupersededRef && visit.Status == VisitStatusBooked {
				visit.Status = VisitStatusCancelled
				visit.Outcome = OutcomeSupersededCancellation
				visit.CancelledBy = commit.SupersededActor
				visit.UpdatedBy = commit.SupersededActor
				m.visits[id] = visit
				superseded = true
			}
		}
		if !superseded {
			return Visit{}, errors.New(errors.CodeConflict, "superseded row is not booked")
		}
	}

	for _, visit := range m.visits {
		if visit.Reference == commit.Visit.Reference && visit.Status == VisitStatusBooked {
			return Visit{}, errors.New(errors.CodeConflict, "lineage already has a booked visit")
		}
	}

	application, ok := m.applications[commit.ApplicationID]
	if !ok || application.Status != ApplicationStatusDraft {
		return Visit{}, errors.New(errors.CodeConflict, "application already consumed")
	}
	application.Status = ApplicationStatusBooked
	application.VisitID = commit.Visit.ID
	m.applications[commit.ApplicationID] = application

	m.visits[commit.Visit.ID] = commit.Visit
	m.events = append(m.events, commit.Events...)
	return commit.Visit, nil
}

func (m *memoryStore) CommitCancellation(_ context.Context, commit CancellationCommit) (Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visit, ok := m.visits[commit.VisitID]
	if !ok || visit.Status != VisitStatusBooked {
		return Visit{}, errors.New(errors.CodeConflict, "visit is not booked")
	}
	visit.Status = VisitStatusCancelled
	visit.Outcome = commit.Outcome
	visit.CancelledBy = commit.Actor
	visit.UpdatedBy = commit.Actor
	if commit.Note != nil {
		visit.Notes = append(visit.Notes, *commit.Note)
	}
	m.visits[commit.VisitID] = visit
	m.events = append(m.events, commit.Event)
	return visit, nil
}

func (m *memoryStore) bookedCountForReference(reference string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, visit := range m.visits {
		if visit.Reference == reference && visit.Status == VisitStatusBooked {
			count++
		}
	}
	return count
}

func fixedClock() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func submitInput(lineage string) SubmitApplicationInput {
	start := time.Date(2026, time.March, 20, 14, 0, 0, 0, time.UTC)
	return SubmitApplicationInput{
		LineageRef: lineage,
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       SessionSlot{Start: start, End: start.Add(time.Hour)},
		CreatedBy:  "staff-1",
	}
}

func TestSubmitApplicationAssignsReference(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, decision, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if application.Reference == "" {
		t.Fatal("submitted application has no reference")
	}
	if decision.RequiresReview {
		t.Fatal("submission with no engine required review")
	}

	expected, err := Reference(application.ID)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if application.Reference != expected {
		t.Fatalf("reference = %q, want %q", application.Reference, expected)
	}

	again, err := store.FindApplication(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("find application: %v", err)
	}
	if again.Status != ApplicationStatusDraft {
		t.Fatalf("application status = %q, want DRAFT", again.Status)
	}
}

func TestSubmitApplicationValidatesInput(t *testing.T) {
	t.Parallel()

	service := NewService(newMemoryStore(), nil, fixedClock)
	input := submitInput("")
	input.PrisonerID = " "
	if _, _, err := service.SubmitApplication(context.Background(), input); err == nil {
		t.Fatal("submission with empty prisoner id succeeded")
	}
}

func TestBookCommitsVisitAndEvent(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	visit, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !visit.Booked() {
		t.Fatalf("visit status = %q, want BOOKED", visit.Status)
	}
	if visit.Reference == "" {
		t.Fatal("booked visit has no reference")
	}
	if visit.CreatedBy != "staff-1" || visit.UpdatedBy != "staff-1" {
		t.Fatalf("visit actors = %q/%q, want staff-1", visit.CreatedBy, visit.UpdatedBy)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	if store.events[0].Type != EventTypeVisitBooked {
		t.Fatalf("event type = %q, want %q", store.events[0].Type, EventTypeVisitBooked)
	}
	if store.events[0].Reference != visit.Reference {
		t.Fatalf("event reference = %q, want %q", store.events[0].Reference, visit.Reference)
	}
}

func TestBookIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	second, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if first.ID != second.ID || first.Reference != second.Reference {
		t.Fatalf("rebook returned visit %d/%q, want %d/%q", second.ID, second.Reference, first.ID, first.Reference)
	}
	if len(store.events) != 1 {
		t.Fatalf("idempotent rebook appended events: %d, want 1", len(store.events))
	}
}

func TestBookSupersedesPriorBooking(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	original, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	prior, err := service.Book(context.Background(), original.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	rebook := submitInput(prior.Reference)
	rebook.CreatedBy = "staff-2"
	replacement, _, err := service.SubmitApplication(context.Background(), rebook)
	if err != nil {
		t.Fatalf("submit replacement: %v", err)
	}
	successor, err := service.Book(context.Background(), replacement.Reference)
	if err != nil {
		t.Fatalf("book replacement: %v", err)
	}

	if successor.Reference != prior.Reference {
		t.Fatalf("successor reference = %q, want lineage %q", successor.Reference, prior.Reference)
	}
	if successor.ID == prior.ID {
		t.Fatal("supersession reused the prior visit row")
	}
	if count := store.bookedCountForReference(prior.Reference); count != 1 {
		t.Fatalf("booked visits on lineage = %d, want exactly 1", count)
	}

	cancelled, err := store.FindVisitByID(context.Background(), prior.ID)
	if err != nil {
		t.Fatalf("find prior: %v", err)
	}
	if cancelled.Status != VisitStatusCancelled {
		t.Fatalf("prior status = %q, want CANCELLED", cancelled.Status)
	}
	if cancelled.Outcome != OutcomeSupersededCancellation {
		t.Fatalf("prior outcome = %q, want SUPERSEDED_CANCELLATION", cancelled.Outcome)
	}

	// Authorship continuity across supersession.
	if successor.CreatedBy != "staff-1" {
		t.Fatalf("successor created-by = %q, want original creator staff-1", successor.CreatedBy)
	}
	if successor.UpdatedBy != "staff-2" {
		t.Fatalf("successor updated-by = %q, want rebooking actor staff-2", successor.UpdatedBy)
	}

	types := make(map[EventType]int)
	for _, event := range store.events {
		types[event.Type]++
	}
	if types[EventTypeVisitBooked] != 2 || types[EventTypeVisitSuperseded] != 1 {
		t.Fatalf("event types = %v, want 2 booked and 1 superseded", types)
	}
}

func TestBookConvergesOnConcurrentWinner(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan Visit, racers)
	failures := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			visit, err := service.Book(context.Background(), application.Reference)
			if err != nil {
				failures <- err
				return
			}
			results <- visit
		}()
	}
	wg.Wait()
	close(results)
	close(failures)

	for err := range failures {
		if !IsRetryable(err) {
			t.Fatalf("concurrent book failed non-retryably: %v", err)
		}
	}

	var winner Visit
	seen := 0
	for visit := range results {
		seen++
		if winner.ID == 0 {
			winner = visit
		}
		if visit.ID != winner.ID {
			t.Fatalf("concurrent bookings observed visits %d and %d", winner.ID, visit.ID)
		}
	}
	if seen == 0 {
		t.Fatal("no concurrent booking succeeded")
	}
	if count := store.bookedCountForReference(winner.Reference); count != 1 {
		t.Fatalf("booked visits on lineage = %d, want exactly 1", count)
	}
}

func TestBookSurfacesRetryableOnLostRace(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	store.failCommits = 1

	_, err = service.Book(context.Background(), application.Reference)
	if err == nil {
		t.Fatal("book with failing commit succeeded")
	}
	if !IsRetryable(err) {
		t.Fatalf("book error = %v, want retryable", err)
	}

	// The retry succeeds once contention clears.
	if _, err := service.Book(context.Background(), application.Reference); err != nil {
		t.Fatalf("retry book: %v", err)
	}
}

func TestCancelRecordsOutcomeActorAndNote(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	visit, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, err := service.Cancel(context.Background(), visit.Reference, OutcomeVisitorCancelled, "staff-3", "visitor called to cancel")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != VisitStatusCancelled {
		t.Fatalf("status = %q, want CANCELLED", cancelled.Status)
	}
	if cancelled.Outcome != OutcomeVisitorCancelled {
		t.Fatalf("outcome = %q, want VISITOR_CANCELLED", cancelled.Outcome)
	}
	if cancelled.CancelledBy != "staff-3" {
		t.Fatalf("cancelled-by = %q, want staff-3", cancelled.CancelledBy)
	}
	if len(cancelled.Notes) != 1 || cancelled.Notes[0].Type != NoteTypeVisitOutcomes {
		t.Fatalf("notes = %v, want one VISIT_OUTCOMES note", cancelled.Notes)
	}

	last := store.events[len(store.events)-1]
	if last.Type != EventTypeVisitCancelled {
		t.Fatalf("last event = %q, want %q", last.Type, EventTypeVisitCancelled)
	}
}

func TestCancelNonBookedVisitFailsAndLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	visit, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := service.Cancel(context.Background(), visit.Reference, OutcomeVisitorCancelled, "staff-3", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = service.Cancel(context.Background(), visit.Reference, OutcomeEstablishmentCancelled, "staff-4", "")
	if err == nil {
		t.Fatal("cancel on a cancelled visit succeeded")
	}
	domainErr, ok := err.(*errors.Error)
	if !ok || domainErr.Code != errors.CodeInvalidState {
		t.Fatalf("cancel error = %v, want INVALID_STATE", err)
	}

	current, err := store.FindVisit(context.Background(), visit.Reference)
	if err != nil {
		t.Fatalf("find visit: %v", err)
	}
	if current.Outcome != OutcomeVisitorCancelled || current.CancelledBy != "staff-3" {
		t.Fatalf("failed cancel mutated state: outcome=%q cancelled-by=%q", current.Outcome, current.CancelledBy)
	}
}

func TestCancelIsIdempotentForSameOutcomeAndActor(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, nil, fixedClock)

	application, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	visit, err := service.Book(context.Background(), application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := service.Cancel(context.Background(), visit.Reference, OutcomePrisonerCancelled, "staff-3", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	again, err := service.Cancel(context.Background(), visit.Reference, OutcomePrisonerCancelled, "staff-3", "")
	if err != nil {
		t.Fatalf("retried cancel: %v", err)
	}
	if again.Status != VisitStatusCancelled {
		t.Fatalf("retried cancel status = %q", again.Status)
	}
}

func TestCancelValidatesInput(t *testing.T) {
	t.Parallel()

	service := NewService(newMemoryStore(), nil, fixedClock)
	cases := []struct {
		name      string
		reference string
		outcome   OutcomeStatus
		actor     string
	}{
		{name: "empty reference", reference: "", outcome: OutcomeVisitorCancelled, actor: "staff-1"},
		{name: "invalid outcome", reference: "bb-bb-bb-bc", outcome: "NO_SHOW", actor: "staff-1"},
		{name: "empty actor", reference: "bb-bb-bb-bc", outcome: OutcomeVisitorCancelled, actor: " "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Cancel(context.Background(), tc.reference, tc.outcome, tc.actor, ""); err == nil {
				t.Fatalf("cancel with %s succeeded", tc.name)
			}
		})
	}
}

func TestBookUnknownApplicationReturnsNotFound(t *testing.T) {
	t.Parallel()

	service := NewService(newMemoryStore(), nil, fixedClock)
	_, err := service.Book(context.Background(), "zz-zz-zz-zz")
	if err == nil {
		t.Fatal("booking an unknown application succeeded")
	}
	domainErr, ok := err.(*errors.Error)
	if !ok || domainErr.Code != errors.CodeNotFound {
		t.Fatalf("book error = %v, want NOT_FOUND", err)
	}
}

func TestSubmitWithEngineRoutesToReview(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	engine, err := NewEngineFromDescriptors(store, map[string][]RuleDescriptor{
		"HEI": {{Type: RuleTypeInterval, Parameters: map[string]string{ParamIntervalDays: "3"}}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	service := NewService(store, engine, fixedClock)

	first, _, err := service.SubmitApplication(context.Background(), submitInput(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.Book(context.Background(), first.Reference); err != nil {
		t.Fatalf("book: %v", err)
	}

	near := submitInput("")
	near.Slot.Start = near.Slot.Start.AddDate(0, 0, 2)
	near.Slot.End = near.Slot.End.AddDate(0, 0, 2)
	_, decision, err := service.SubmitApplication(context.Background(), near)
	if err != nil {
		t.Fatalf("submit near: %v", err)
	}
	if !decision.RequiresReview {
		t.Fatal("application 2 days from a booked visit was not routed to review")
	}
	if len(decision.Violations) != 1 || decision.Violations[0] != RuleTypeInterval {
		t.Fatalf("violations = %v, want interval", decision.Violations)
	}
}
