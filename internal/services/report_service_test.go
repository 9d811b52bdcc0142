package services

import (
	"context"
	"testing"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/events"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/settings"
	"github.com/jcarville/intelsync/internal/store"
	syncpkg "github.com/jcarville/intelsync/internal/sync"
)

// stubSubmitter accepts every submission.
type stubSubmitter struct{}

func (stubSubmitter) Submit(_ context.Context, rec *models.OfflineRecord, _ syncpkg.Credential) (string, error) {
	return "receipt-" + rec.LocalID, nil
}

func (stubSubmitter) FetchAll(_ context.Context) ([]models.RemoteRecord, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*ReportService, *events.Notifier, *store.RecordStore) {
	t.Helper()
	mem := kv.NewMemoryStore()
	mgr := settings.NewManager(mem, "")
	records := store.New(mem)
	notifier := events.NewNotifier()
	engine := syncpkg.NewEngine(records, mgr, notifier, stubSubmitter{}, mem, nil)
	return New(records, mgr, notifier, engine), notifier, records
}

func validPayload() models.OfflineRecord {
	return models.OfflineRecord{
		Title:     "Checkpoint report",
		Content:   "two vehicles waved through",
		Tags:      []string{"checkpoint"},
		Latitude:  40.0,
		Longitude: -74.0,
		Timestamp: 1000,
		Author:    "field-7",
	}
}

// TestCreateRecord verifies creation: draft status, generated ID, and the
// report-created event.
func TestCreateRecord(t *testing.T) {
	svc, notifier, _ := newTestService(t)

	var created []*models.OfflineRecord
	notifier.Subscribe(events.EventReportCreated, func(ev events.Event) {
		created = append(created, ev.Payload.(events.ReportCreated).Record)
	})

	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	if rec.LocalID == "" {
		t.Error("CreateRecord() assigned no local ID")
	}
	if rec.Status != models.RecordStatusDraft {
		t.Errorf("status = %q, want draft", rec.Status)
	}
	if !rec.CreatedOffline {
		t.Error("CreatedOffline = false, want true")
	}
	if len(created) != 1 || created[0].LocalID != rec.LocalID {
		t.Errorf("report-created events = %v, want one for %s", created, rec.LocalID)
	}
}

// TestCreateRecord_validation covers the rejected payloads.
func TestCreateRecord_validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*models.OfflineRecord)
	}{
		{"empty title", func(r *models.OfflineRecord) { r.Title = "" }},
		{"latitude too low", func(r *models.OfflineRecord) { r.Latitude = -90.5 }},
		{"latitude too high", func(r *models.OfflineRecord) { r.Latitude = 91 }},
		{"longitude too low", func(r *models.OfflineRecord) { r.Longitude = -180.5 }},
		{"longitude too high", func(r *models.OfflineRecord) { r.Longitude = 181 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			tt.mutate(&payload)
			_, err := svc.CreateRecord(payload)
			if err == nil {
				t.Fatal("CreateRecord() succeeded, want validation error")
			}
			if errors.CodeOf(err) != errors.ErrValidation {
				t.Errorf("error code = %q, want %q", errors.CodeOf(err), errors.ErrValidation)
			}
		})
	}
}

// TestUpdateRecord verifies partial patching and the report-updated event.
func TestUpdateRecord(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}

	updates := 0
	notifier.Subscribe(events.EventReportUpdated, func(events.Event) { updates++ })

	newTitle := "Checkpoint report (amended)"
	got, err := svc.UpdateRecord(rec.LocalID, RecordPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("UpdateRecord() error: %v", err)
	}
	if got.Title != newTitle {
		t.Errorf("title = %q, want %q", got.Title, newTitle)
	}
	if got.Content != rec.Content {
		t.Errorf("content changed to %q on a title-only patch", got.Content)
	}
	if updates != 1 {
		t.Errorf("report-updated events = %d, want 1", updates)
	}
}

// TestUpdateRecord_rejectedWhileSyncing verifies that edits are refused
// while the orchestrator holds the record.
func TestUpdateRecord_rejectedWhileSyncing(t *testing.T) {
	svc, _, records := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	if _, err := records.Update(rec.LocalID, func(r *models.OfflineRecord) error {
		r.Status = models.RecordStatusSyncing
		return nil
	}); err != nil {
		t.Fatalf("forcing syncing status: %v", err)
	}

	newTitle := "too late"
	_, err = svc.UpdateRecord(rec.LocalID, RecordPatch{Title: &newTitle})
	if err == nil {
		t.Fatal("UpdateRecord() succeeded on syncing record, want error")
	}
	if errors.CodeOf(err) != errors.ErrRecordSyncing {
		t.Errorf("error code = %q, want %q", errors.CodeOf(err), errors.ErrRecordSyncing)
	}
}

// TestFinalizeRecord verifies the draft to pending transition and that a
// second finalize is rejected.
func TestFinalizeRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}

	got, err := svc.FinalizeRecord(rec.LocalID)
	if err != nil {
		t.Fatalf("FinalizeRecord() error: %v", err)
	}
	if got.Status != models.RecordStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	if _, err := svc.FinalizeRecord(rec.LocalID); err == nil {
		t.Error("FinalizeRecord() on pending record succeeded, want error")
	}
}

// TestRunSyncThroughService verifies the facade drives a full run.
func TestRunSyncThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	if _, err := svc.FinalizeRecord(rec.LocalID); err != nil {
		t.Fatalf("FinalizeRecord() error: %v", err)
	}

	stats, err := svc.RunSync(context.Background(), "cred")
	if err != nil {
		t.Fatalf("RunSync() error: %v", err)
	}
	if stats.SuccessfulSyncs != 1 {
		t.Errorf("stats.SuccessfulSyncs = %d, want 1", stats.SuccessfulSyncs)
	}
	got, err := svc.GetRecord(rec.LocalID)
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got.Status != models.RecordStatusSynced || got.RemoteReceipt == "" {
		t.Errorf("record after run = %+v, want synced with receipt", got)
	}
}

// TestResolveConflict_keepBoth verifies operator resolution of a parked
// conflict: the title gains the copy suffix and the record requeues.
func TestResolveConflict_keepBoth(t *testing.T) {
	svc, notifier, records := newTestService(t)
	payload := validPayload()
	payload.Title = "Patrol Log"
	rec, err := svc.CreateRecord(payload)
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	parkConflict(t, records, rec.LocalID)

	resolutions := 0
	notifier.Subscribe(events.EventConflictResolved, func(events.Event) { resolutions++ })

	got, err := svc.ResolveConflict(rec.LocalID, models.ResolutionKeepBoth, "operator-1")
	if err != nil {
		t.Fatalf("ResolveConflict() error: %v", err)
	}
	if got.Title != "Patrol Log (Offline Copy)" {
		t.Errorf("title = %q, want copy suffix", got.Title)
	}
	if got.Status != models.RecordStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.ConflictData != nil {
		t.Error("resolved record still carries conflict data")
	}
	if resolutions != 1 {
		t.Errorf("conflict-resolved events = %d, want 1", resolutions)
	}
}

// TestResolveConflict_notConflicted verifies the ErrNoConflict path.
func TestResolveConflict_notConflicted(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}

	_, err = svc.ResolveConflict(rec.LocalID, models.ResolutionMerge, "operator-1")
	if !errors.Is(err, errors.ErrConflictNotFound) {
		t.Errorf("ResolveConflict() error = %v, want ErrNoConflict", err)
	}
}

// TestResolveConflictManual verifies the manual completion path with an
// operator payload.
func TestResolveConflictManual(t *testing.T) {
	svc, _, records := newTestService(t)
	rec, err := svc.CreateRecord(validPayload())
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	parkConflict(t, records, rec.LocalID)

	payload := validPayload()
	payload.Title = "Checkpoint report (verified)"
	got, err := svc.ResolveConflictManual(rec.LocalID, payload, "operator-1")
	if err != nil {
		t.Fatalf("ResolveConflictManual() error: %v", err)
	}
	if got.Title != payload.Title || got.Status != models.RecordStatusPending {
		t.Errorf("resolved record = %+v, want operator title and pending status", got)
	}
}

// TestSubscribeUnsubscribe verifies event subscription through the facade.
func TestSubscribeUnsubscribe(t *testing.T) {
	svc, _, _ := newTestService(t)

	seen := 0
	unsubscribe := svc.Subscribe(events.EventReportCreated, func(events.Event) { seen++ })

	if _, err := svc.CreateRecord(validPayload()); err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	unsubscribe()
	if _, err := svc.CreateRecord(validPayload()); err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}

	if seen != 1 {
		t.Errorf("handler saw %d events, want 1 after unsubscribe", seen)
	}
}

// parkConflict forces a record into conflict status with attached conflict
// data, bypassing the orchestrator.
func parkConflict(t *testing.T, records *store.RecordStore, localID string) {
	t.Helper()
	_, err := records.Update(localID, func(r *models.OfflineRecord) error {
		r.Status = models.RecordStatusConflict
		r.ConflictData = &models.ConflictInfo{
			Kind: models.ConflictKindDuplicate,
			RemoteCandidate: models.RemoteRecord{
				ID: "r1", Title: "Patrol Log", Latitude: 40.0001, Longitude: -74.0001, Timestamp: 2000,
			},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("parking conflict: %v", err)
	}
}
