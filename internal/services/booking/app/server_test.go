package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/castlegate/visitbooker/internal/services/booking/domain"
)

func openTestRuntime(t *testing.T, rules string) *Runtime {
	t.Helper()
	cfg := RuntimeConfig{DBPath: filepath.Join(t.TempDir(), "booking.db")}
	if rules != "" {
		cfg.RulesPath = writeRulesFile(t, rules)
	}
	runtime, err := NewRuntime(cfg)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() {
		if err := runtime.Close(); err != nil {
			t.Errorf("close runtime: %v", err)
		}
	})
	return runtime
}

func slotOn(day time.Time) domain.SessionSlot {
	return domain.SessionSlot{Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)}
}

func TestRuntimeBookingLifecycleEndToEnd(t *testing.T) {
	runtime := openTestRuntime(t, "")
	ctx := context.Background()
	day := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)

	application, decision, err := runtime.Service.SubmitApplication(ctx, domain.SubmitApplicationInput{
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       slotOn(day),
		CreatedBy:  "staff-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if decision.RequiresReview {
		t.Fatal("submission required review with no rules configured")
	}

	visit, err := runtime.Service.Book(ctx, application.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !visit.Booked() {
		t.Fatalf("visit status = %q, want BOOKED", visit.Status)
	}

	cancelled, err := runtime.Service.Cancel(ctx, visit.Reference, domain.OutcomeVisitorCancelled, "staff-2", "visitor called")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.VisitStatusCancelled {
		t.Fatalf("status = %q, want CANCELLED", cancelled.Status)
	}
	if len(cancelled.Notes) != 1 || cancelled.Notes[0].Type != domain.NoteTypeVisitOutcomes {
		t.Fatalf("notes = %+v, want one VISIT_OUTCOMES note", cancelled.Notes)
	}

	events, err := runtime.Events.ListEventsAfter(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want booked and cancelled", len(events))
	}
	if events[0].EventType != string(domain.EventTypeVisitBooked) || events[1].EventType != string(domain.EventTypeVisitCancelled) {
		t.Fatalf("event types = %q, %q", events[0].EventType, events[1].EventType)
	}
}

func TestRuntimeSupersessionAgainstRealStore(t *testing.T) {
	runtime := openTestRuntime(t, "")
	ctx := context.Background()
	day := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)

	first, _, err := runtime.Service.SubmitApplication(ctx, domain.SubmitApplicationInput{
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       slotOn(day),
		CreatedBy:  "staff-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	prior, err := runtime.Service.Book(ctx, first.Reference)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	second, _, err := runtime.Service.SubmitApplication(ctx, domain.SubmitApplicationInput{
		LineageRef: prior.Reference,
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       slotOn(day.AddDate(0, 0, 7)),
		CreatedBy:  "staff-2",
	})
	if err != nil {
		t.Fatalf("submit rebook: %v", err)
	}
	successor, err := runtime.Service.Book(ctx, second.Reference)
	if err != nil {
		t.Fatalf("book rebook: %v", err)
	}

	if successor.Reference != prior.Reference {
		t.Fatalf("successor reference = %q, want lineage %q", successor.Reference, prior.Reference)
	}
	if successor.CreatedBy != "staff-1" || successor.UpdatedBy != "staff-2" {
		t.Fatalf("successor actors = %q/%q", successor.CreatedBy, successor.UpdatedBy)
	}

	events, err := runtime.Events.QueryEvents(ctx, `type = "visit.superseded"`, 10)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("superseded events = %d, want 1", len(events))
	}
}

func TestRuntimeRulesRouteToReview(t *testing.T) {
	runtime := openTestRuntime(t, `{"HEI": [{"type": "interval", "parameters": {"intervalDays": "3"}}]}`)
	ctx := context.Background()
	day := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)

	first, _, err := runtime.Service.SubmitApplication(ctx, domain.SubmitApplicationInput{
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       slotOn(day),
		CreatedBy:  "staff-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := runtime.Service.Book(ctx, first.Reference); err != nil {
		t.Fatalf("book: %v", err)
	}

	_, decision, err := runtime.Service.SubmitApplication(ctx, domain.SubmitApplicationInput{
		PrisonerID: "A1234BC",
		PrisonCode: "HEI",
		Slot:       slotOn(day.AddDate(0, 0, 2)),
		CreatedBy:  "staff-1",
	})
	if err != nil {
		t.Fatalf("submit near: %v", err)
	}
	if !decision.RequiresReview {
		t.Fatal("application 2 days from a booked visit was not routed to review")
	}
}
