package app

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/errors"
	"github.com/castlegate/visitbooker/internal/services/booking/domain"
	"github.com/castlegate/visitbooker/internal/services/booking/storage"
)

// domainStore adapts a storage.BookingStore to the lifecycle manager's
// persistence boundary, translating records and sentinel errors.
type domainStore struct {
	store storage.BookingStore
}

func newDomainStore(store storage.BookingStore) *domainStore {
	return &domainStore{store: store}
}

func (d *domainStore) CreateApplication(ctx context.Context, application domain.Application) (domain.Application, error) {
	record, err := d.store.CreateApplication(ctx, applicationRecord(application))
	if err != nil {
		return domain.Application{}, mapStorageError("create application", err)
	}
	return applicationFromRecord(record), nil
}

func (d *domainStore) AssignApplicationReference(ctx context.Context, id int64, reference string) error {
	if err := d.store.AssignApplicationReference(ctx, id, reference); err != nil {
		return mapStorageError("assign application reference", err)
	}
	return nil
}

func (d *domainStore) FindApplication(ctx context.Context, reference string) (domain.Application, error) {
	record, err := d.store.FindApplication(ctx, reference)
	if err != nil {
		return domain.Application{}, mapStorageError("find application", err)
	}
	return applicationFromRecord(record), nil
}

func (d *domainStore) FindVisitByID(ctx context.Context, id int64) (domain.Visit, error) {
	record, err := d.store.FindVisitByID(ctx, id)
	if err != nil {
		return domain.Visit{}, mapStorageError("find visit by id", err)
	}
	return d.visitWithNotes(ctx, record)
}

func (d *domainStore) FindVisit(ctx context.Context, reference string) (domain.Visit, error) {
	record, err := d.store.FindVisit(ctx, reference)
	if err != nil {
		return domain.Visit{}, mapStorageError("find visit", err)
	}
	return d.visitWithNotes(ctx, record)
}

func (d *domainStore) FindBookedVisit(ctx context.Context, reference string) (domain.Visit, error) {
	record, err := d.store.FindBookedVisit(ctx, reference)
	if err != nil {
		return domain.Visit{}, mapStorageError("find booked visit", err)
	}
	return d.visitWithNotes(ctx, record)
}

func (d *domainStore) FindBookedVisits(ctx context.Context, prisonCode, prisonerID string, from, to time.Time) ([]domain.Visit, error) {
	records, err := d.store.ListVisits(ctx, storage.VisitFilter{
		PrisonCode: prisonCode,
		PrisonerID: prisonerID,
		Statuses:   []string{string(domain.VisitStatusBooked)},
		FromDate:   from,
		ToDate:     to,
	})
	if err != nil {
		return nil, mapStorageError("list booked visits", err)
	}
	visits := make([]domain.Visit, 0, len(records))
	for _, record := range records {
		visits = append(visits, visitFromRecord(record))
	}
	return visits, nil
}

func (d *domainStore) AllocateVisitID(ctx context.Context) (int64, error) {
	id, err := d.store.AllocateVisitID(ctx)
	if err != nil {
		return 0, mapStorageError("allocate visit id", err)
	}
	return id, nil
}

func (d *domainStore) CommitBooking(ctx context.Context, commit domain.BookingCommit) (domain.Visit, error) {
	record := storage.BookingCommitRecord{
		ApplicationID: commit.ApplicationID,
		Visit:         visitRecord(commit.Visit),
	}
	if commit.SupersededRef != "" {
		record.Supersession = &storage.SupersessionRecord{
			Reference: commit.SupersededRef,
			Outcome:   string(domain.OutcomeSupersededCancellation),
			Actor:     commit.SupersededActor,
		}
	}
	for _, event := range commit.Events {
		record.Events = append(record.Events, eventRecord(event))
	}

	committed, err := d.store.CommitBooking(ctx, record)
	if err != nil {
		return domain.Visit{}, mapStorageError("commit booking", err)
	}
	return visitFromRecord(committed), nil
}

func (d *domainStore) CommitCancellation(ctx context.Context, commit domain.CancellationCommit) (domain.Visit, error) {
	record := storage.CancellationCommitRecord{
		VisitID: commit.VisitID,
		Outcome: string(commit.Outcome),
		Actor:   commit.Actor,
		Event:   eventRecord(commit.Event),
	}
	if commit.Note != nil {
		record.Note = &storage.VisitNoteRecord{
			VisitID:   commit.VisitID,
			NoteType:  string(commit.Note.Type),
			Text:      commit.Note.Text,
			CreatedBy: commit.Note.CreatedBy,
			CreatedAt: commit.Note.CreatedAt,
		}
	}

	cancelled, err := d.store.CommitCancellation(ctx, record)
	if err != nil {
		return domain.Visit{}, mapStorageError("commit cancellation", err)
	}
	return d.visitWithNotes(ctx, cancelled)
}

func (d *domainStore) visitWithNotes(ctx context.Context, record storage.VisitRecord) (domain.Visit, error) {
	visit := visitFromRecord(record)
	notes, err := d.store.ListVisitNotes(ctx, record.ID)
	if err != nil {
		return domain.Visit{}, mapStorageError("list visit notes", err)
	}
	for _, note := range notes {
		visit.Notes = append(visit.Notes, domain.VisitNote{
			Type:      domain.NoteType(note.NoteType),
			Text:      note.Text,
			CreatedBy: note.CreatedBy,
			CreatedAt: note.CreatedAt,
		})
	}
	return visit, nil
}

// mapStorageError translates storage sentinels into coded domain errors.
func mapStorageError(op string, err error) error {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.Wrap(errors.CodeNotFound, op+": record not found", err)
	case stderrors.Is(err, storage.ErrConflict):
		return errors.Wrap(errors.CodeConflict, op+": concurrent write conflict", err)
	case stderrors.Is(err, storage.ErrRetryable):
		return errors.Wrap(errors.CodeRetryable, op+": transient storage contention", err)
	default:
		return errors.Wrap(errors.CodeUnknown, op+" failed", err)
	}
}

func applicationRecord(application domain.Application) storage.ApplicationRecord {
	return storage.ApplicationRecord{
		ID:         application.ID,
		Reference:  application.Reference,
		LineageRef: application.LineageRef,
		PrisonerID: application.PrisonerID,
		PrisonCode: application.PrisonCode,
		SlotStart:  application.Slot.Start,
		SlotEnd:    application.Slot.End,
		CreatedBy:  application.CreatedBy,
		Status:     string(application.Status),
		VisitID:    application.VisitID,
		CreatedAt:  application.CreatedAt,
	}
}

func applicationFromRecord(record storage.ApplicationRecord) domain.Application {
	return domain.Application{
		Identity:   domain.Identity{ID: record.ID, Reference: record.Reference},
		LineageRef: record.LineageRef,
		PrisonerID: record.PrisonerID,
		PrisonCode: record.PrisonCode,
		Slot:       domain.SessionSlot{Start: record.SlotStart, End: record.SlotEnd},
		CreatedBy:  record.CreatedBy,
		Status:     domain.ApplicationStatus(record.Status),
		VisitID:    record.VisitID,
		CreatedAt:  record.CreatedAt,
	}
}

func visitRecord(visit domain.Visit) storage.VisitRecord {
	return storage.VisitRecord{
		ID:          visit.ID,
		Reference:   visit.Reference,
		PrisonerID:  visit.PrisonerID,
		PrisonCode:  visit.PrisonCode,
		SlotStart:   visit.Slot.Start,
		SlotEnd:     visit.Slot.End,
		Status:      string(visit.Status),
		Outcome:     string(visit.Outcome),
		CreatedBy:   visit.CreatedBy,
		UpdatedBy:   visit.UpdatedBy,
		CancelledBy: visit.CancelledBy,
		CreatedAt:   visit.CreatedAt,
		UpdatedAt:   visit.UpdatedAt,
	}
}

func visitFromRecord(record storage.VisitRecord) domain.Visit {
	return domain.Visit{
		Identity:    domain.Identity{ID: record.ID, Reference: record.Reference},
		PrisonerID:  record.PrisonerID,
		PrisonCode:  record.PrisonCode,
		Slot:        domain.SessionSlot{Start: record.SlotStart, End: record.SlotEnd},
		Status:      domain.VisitStatus(record.Status),
		Outcome:     domain.OutcomeStatus(record.Outcome),
		CreatedBy:   record.CreatedBy,
		UpdatedBy:   record.UpdatedBy,
		CancelledBy: record.CancelledBy,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func eventRecord(event domain.NotificationEvent) storage.VisitEventRecord {
	record := storage.VisitEventRecord{
		ID:        event.ID,
		VisitID:   event.VisitID,
		Reference: event.Reference,
		EventType: string(event.Type),
		CreatedAt: event.CreatedAt,
	}
	for _, attribute := range event.Attributes {
		record.Attributes = append(record.Attributes, storage.EventAttributeRecord{
			Name:  string(attribute.Name),
			Value: attribute.Value,
		})
	}
	return record
}
