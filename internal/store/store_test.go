// Package store tests for the record store.
package store

import (
	"errors"
	"testing"

	interrors "github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/uuid"
)

// failingKV simulates an unreliable key-value store.
type failingKV struct {
	kv.Store
	failReads  bool
	failWrites bool
}

func (f *failingKV) Get(key string) ([]byte, bool, error) {
	if f.failReads {
		return nil, false, errors.New("read failed")
	}
	return f.Store.Get(key)
}

func (f *failingKV) Set(key string, value []byte) error {
	if f.failWrites {
		return errors.New("write failed")
	}
	return f.Store.Set(key, value)
}

func newStore() *RecordStore {
	return New(kv.NewMemoryStore())
}

// TestCreate verifies ID assignment and draft default.
func TestCreate(t *testing.T) {
	s := newStore()

	id, err := s.Create(&models.OfflineRecord{Title: "Suspicious device"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !uuid.IsValid(id) {
		t.Errorf("Create() id = %q, not a valid local ID", id)
	}

	rec, ok := s.Get(id)
	if !ok {
		t.Fatal("Get() record not found after Create()")
	}
	if rec.Status != models.RecordStatusDraft {
		t.Errorf("status = %q, want draft", rec.Status)
	}
	if rec.LastModified == 0 {
		t.Error("LastModified not set")
	}
}

// TestCreate_distinctIDs verifies IDs are never reused.
func TestCreate_distinctIDs(t *testing.T) {
	s := newStore()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := s.Create(&models.OfflineRecord{Title: "r"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate local ID %q", id)
		}
		seen[id] = true
	}
}

// TestUpdate verifies mutation, timestamp refresh and persistence.
func TestUpdate(t *testing.T) {
	s := newStore()

	id, _ := s.Create(&models.OfflineRecord{Title: "before", LastModified: 1})

	updated, err := s.Update(id, func(rec *models.OfflineRecord) error {
		rec.Title = "after"
		rec.Status = models.RecordStatusPending
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "after" {
		t.Errorf("Title = %q, want after", updated.Title)
	}
	if updated.Status != models.RecordStatusPending {
		t.Errorf("Status = %q, want pending", updated.Status)
	}

	rec, _ := s.Get(id)
	if rec.Title != "after" {
		t.Error("update not persisted")
	}
	if rec.LastModified == 0 {
		t.Error("LastModified not refreshed")
	}
}

// TestUpdate_notFound verifies the error for unknown IDs.
func TestUpdate_notFound(t *testing.T) {
	s := newStore()

	_, err := s.Update("nope", func(rec *models.OfflineRecord) error { return nil })
	if !interrors.Is(err, interrors.ErrRecordNotFound) {
		t.Errorf("Update(unknown) error = %v, want RECORD_NOT_FOUND", err)
	}
}

// TestUpdate_conflictInvariant verifies writers cannot persist a record
// violating the conflict-data coupling.
func TestUpdate_conflictInvariant(t *testing.T) {
	s := newStore()
	id, _ := s.Create(&models.OfflineRecord{Title: "r"})

	// conflict status without conflict data
	_, err := s.Update(id, func(rec *models.OfflineRecord) error {
		rec.Status = models.RecordStatusConflict
		return nil
	})
	if !interrors.Is(err, interrors.ErrValidation) {
		t.Errorf("conflict without data: error = %v, want VALIDATION_ERROR", err)
	}

	// conflict data without conflict status
	_, err = s.Update(id, func(rec *models.OfflineRecord) error {
		rec.ConflictData = &models.ConflictInfo{Kind: models.ConflictKindDuplicate}
		return nil
	})
	if !interrors.Is(err, interrors.ErrValidation) {
		t.Errorf("data without conflict: error = %v, want VALIDATION_ERROR", err)
	}

	// both together is legal
	_, err = s.Update(id, func(rec *models.OfflineRecord) error {
		rec.Status = models.RecordStatusConflict
		rec.ConflictData = &models.ConflictInfo{Kind: models.ConflictKindDuplicate}
		return nil
	})
	if err != nil {
		t.Errorf("valid conflict write: error = %v", err)
	}
}

// TestUpdate_receiptInvariant verifies receipts are only legal on synced
// records.
func TestUpdate_receiptInvariant(t *testing.T) {
	s := newStore()
	id, _ := s.Create(&models.OfflineRecord{Title: "r"})

	_, err := s.Update(id, func(rec *models.OfflineRecord) error {
		rec.RemoteReceipt = "sig123"
		return nil
	})
	if !interrors.Is(err, interrors.ErrValidation) {
		t.Errorf("receipt on draft: error = %v, want VALIDATION_ERROR", err)
	}

	_, err = s.Update(id, func(rec *models.OfflineRecord) error {
		rec.Status = models.RecordStatusSynced
		rec.RemoteReceipt = "sig123"
		return nil
	})
	if err != nil {
		t.Errorf("receipt on synced: error = %v", err)
	}
}

// TestUpdate_monotonicAttempts verifies syncAttempts may never decrease.
func TestUpdate_monotonicAttempts(t *testing.T) {
	s := newStore()
	id, _ := s.Create(&models.OfflineRecord{Title: "r"})

	if _, err := s.Update(id, func(rec *models.OfflineRecord) error {
		rec.SyncAttempts = 2
		return nil
	}); err != nil {
		t.Fatalf("increment error = %v", err)
	}

	_, err := s.Update(id, func(rec *models.OfflineRecord) error {
		rec.SyncAttempts = 1
		return nil
	})
	if !interrors.Is(err, interrors.ErrValidation) {
		t.Errorf("decreasing attempts: error = %v, want VALIDATION_ERROR", err)
	}

	rec, _ := s.Get(id)
	if rec.SyncAttempts != 2 {
		t.Errorf("SyncAttempts = %d, want 2 after rejected write", rec.SyncAttempts)
	}
}

// TestList verifies ordering and status filtering.
func TestList(t *testing.T) {
	s := newStore()

	id1, _ := s.Create(&models.OfflineRecord{Title: "first"})
	id2, _ := s.Create(&models.OfflineRecord{Title: "second"})
	s.Update(id2, func(rec *models.OfflineRecord) error {
		rec.Status = models.RecordStatusPending
		return nil
	})

	all := s.List()
	if len(all) != 2 {
		t.Fatalf("List() length = %d, want 2", len(all))
	}
	if all[0].LocalID != id1 || all[1].LocalID != id2 {
		t.Error("List() not in insertion order")
	}

	pending := s.List(models.RecordStatusPending)
	if len(pending) != 1 || pending[0].LocalID != id2 {
		t.Errorf("List(pending) = %v", pending)
	}

	eligible := s.List(models.RecordStatusPending, models.RecordStatusError)
	if len(eligible) != 1 {
		t.Errorf("List(pending, error) length = %d, want 1", len(eligible))
	}
}

// TestGet_copySemantics verifies callers cannot mutate stored state through
// returned records.
func TestGet_copySemantics(t *testing.T) {
	s := newStore()
	id, _ := s.Create(&models.OfflineRecord{Title: "original", Tags: []string{"a"}})

	rec, _ := s.Get(id)
	rec.Title = "mutated"
	rec.Tags[0] = "b"

	again, _ := s.Get(id)
	if again.Title != "original" || again.Tags[0] != "a" {
		t.Error("stored record mutated through returned copy")
	}
}

// TestDelete verifies removal semantics.
func TestDelete(t *testing.T) {
	s := newStore()
	id, _ := s.Create(&models.OfflineRecord{Title: "r"})

	if !s.Delete(id) {
		t.Error("Delete() = false for existing record")
	}
	if s.Delete(id) {
		t.Error("Delete() = true for already-deleted record")
	}
	if _, ok := s.Get(id); ok {
		t.Error("record still present after Delete()")
	}
}

// TestStorageFailure_reads verifies reads degrade to empty results.
func TestStorageFailure_reads(t *testing.T) {
	mem := kv.NewMemoryStore()
	s := New(&failingKV{Store: mem, failReads: true})

	if got := s.List(); len(got) != 0 {
		t.Errorf("List() with failing reads = %v, want empty", got)
	}
	if _, ok := s.Get("any"); ok {
		t.Error("Get() with failing reads reported a record")
	}
}

// TestStorageFailure_writes verifies writes are best effort and do not
// surface errors to the authoring flow.
func TestStorageFailure_writes(t *testing.T) {
	mem := kv.NewMemoryStore()
	s := New(&failingKV{Store: mem, failWrites: true})

	if _, err := s.Create(&models.OfflineRecord{Title: "r"}); err != nil {
		t.Errorf("Create() with failing writes error = %v, want nil", err)
	}
}

// TestCorruptCollection verifies a corrupt persisted payload degrades to an
// empty collection instead of failing.
func TestCorruptCollection(t *testing.T) {
	mem := kv.NewMemoryStore()
	mem.Set(kv.KeyRecords, []byte("not json"))

	s := New(mem)
	if got := s.List(); len(got) != 0 {
		t.Errorf("List() over corrupt data = %v, want empty", got)
	}
}
