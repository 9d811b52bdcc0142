// Package store provides durable CRUD over locally authored records. It is
// the single source of truth for local state: the whole collection is read,
// mutated as a copy, and written back, so each call is atomic with respect to
// the underlying key-value store. A collection version stamped on every write
// turns the write-back into a compare-and-swap, which closes the lost-update
// race between independent writers sharing one database.
//
// Storage failures never propagate: reads degrade to empty results and
// writes are logged and dropped, because loss of the local cache must never
// crash the authoring flow.
package store

import (
	"encoding/json"
	"sync"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/uuid"
)

// collection is the persisted envelope: the record array plus the version
// used for compare-and-swap writes.
type collection struct {
	Version int64                   `json:"version"`
	Records []*models.OfflineRecord `json:"records"`
}

// RecordStore owns the persisted record collection.
type RecordStore struct {
	kv kv.Store
	mu sync.Mutex
}

// New creates a RecordStore over the given key-value store.
func New(store kv.Store) *RecordStore {
	return &RecordStore{kv: store}
}

// load reads the collection, degrading to an empty collection on any
// storage or decode failure.
func (s *RecordStore) load() collection {
	data, ok, err := s.kv.Get(kv.KeyRecords)
	if err != nil {
		logging.Error("failed to load record collection, treating as empty",
			errors.Wrap(errors.ErrStorageRead, "load records", err))
		return collection{}
	}
	if !ok {
		return collection{}
	}

	var col collection
	if err := json.Unmarshal(data, &col); err != nil {
		logging.Error("corrupt record collection, treating as empty",
			errors.Wrap(errors.ErrStorageRead, "decode records", err))
		return collection{}
	}
	return col
}

// save writes the collection back if the persisted version still matches
// expected. A version mismatch means another writer got there first; the
// caller's cycle is retried by mutate.
func (s *RecordStore) save(col collection, expected int64) bool {
	if current := s.load(); current.Version != expected {
		return false
	}

	col.Version = expected + 1
	data, err := json.Marshal(col)
	if err != nil {
		logging.Error("failed to encode record collection",
			errors.Wrap(errors.ErrStorageWrite, "encode records", err))
		return true // nothing more to do; drop the write
	}
	if err := s.kv.Set(kv.KeyRecords, data); err != nil {
		logging.Error("failed to persist record collection, continuing",
			errors.Wrap(errors.ErrStorageWrite, "persist records", err))
	}
	return true
}

// mutate runs one read-modify-write cycle under the store lock, retrying if
// the compare-and-swap is beaten by an out-of-process writer.
func (s *RecordStore) mutate(fn func(col *collection) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		col := s.load()
		expected := col.Version
		if err := fn(&col); err != nil {
			return err
		}
		for _, rec := range col.Records {
			if err := validate(rec); err != nil {
				return err
			}
		}
		if s.save(col, expected) {
			return nil
		}
	}
}

// validate enforces the structural invariants every writer must uphold:
// conflict data present exactly in conflict status, receipts only on synced
// records, and a known status value.
func validate(rec *models.OfflineRecord) error {
	if !rec.Status.IsValid() {
		return errors.Newf(errors.ErrValidation, "unknown record status %q", rec.Status)
	}
	if (rec.Status == models.RecordStatusConflict) != (rec.ConflictData != nil) {
		return errors.Newf(errors.ErrValidation,
			"record %s: conflict data must be present exactly when status is conflict", rec.LocalID)
	}
	if rec.Status != models.RecordStatusSynced && rec.RemoteReceipt != "" {
		return errors.Newf(errors.ErrValidation,
			"record %s: remote receipt only valid on synced records", rec.LocalID)
	}
	return nil
}

// Create stores a new record and returns its generated local ID. The record
// starts in draft status unless the caller supplied another valid status.
func (s *RecordStore) Create(rec *models.OfflineRecord) (string, error) {
	stored := rec.Clone()
	stored.LocalID = uuid.New()
	if stored.Status == "" {
		stored.Status = models.RecordStatusDraft
	}
	stored.Touch()

	err := s.mutate(func(col *collection) error {
		col.Records = append(col.Records, stored)
		return nil
	})
	if err != nil {
		return "", err
	}
	return stored.LocalID, nil
}

// Restore inserts a record keeping its existing local ID, status, and
// timestamps, as when importing an archive. Records without a local ID or
// whose ID is already taken are rejected.
func (s *RecordStore) Restore(rec *models.OfflineRecord) error {
	if rec.LocalID == "" {
		return errors.New(errors.ErrValidation, "record has no local ID")
	}
	stored := rec.Clone()

	return s.mutate(func(col *collection) error {
		for _, existing := range col.Records {
			if existing.LocalID == stored.LocalID {
				return errors.Newf(errors.ErrValidation,
					"record %s already exists", stored.LocalID)
			}
		}
		col.Records = append(col.Records, stored)
		return nil
	})
}

// Update applies fn to the record under the store lock and refreshes its
// LastModified timestamp. SyncAttempts may never decrease.
func (s *RecordStore) Update(localID string, fn func(rec *models.OfflineRecord) error) (*models.OfflineRecord, error) {
	var updated *models.OfflineRecord

	err := s.mutate(func(col *collection) error {
		for i, rec := range col.Records {
			if rec.LocalID != localID {
				continue
			}
			work := rec.Clone()
			attempts := work.SyncAttempts
			if err := fn(work); err != nil {
				return err
			}
			if work.SyncAttempts < attempts {
				return errors.Newf(errors.ErrValidation,
					"record %s: sync attempts may not decrease", localID)
			}
			work.LocalID = localID // not editable
			work.Touch()
			col.Records[i] = work
			updated = work.Clone()
			return nil
		}
		return errors.Newf(errors.ErrRecordNotFound, "record %q not found", localID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns the record with the given local ID. Storage failures surface
// as absent rather than as errors.
func (s *RecordStore) Get(localID string) (*models.OfflineRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.load().Records {
		if rec.LocalID == localID {
			return rec.Clone(), true
		}
	}
	return nil, false
}

// List returns records in stable insertion order, optionally filtered by
// status. Storage failures surface as an empty list.
func (s *RecordStore) List(statuses ...models.RecordStatus) []*models.OfflineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.OfflineRecord
	for _, rec := range s.load().Records {
		if len(statuses) > 0 && !containsStatus(statuses, rec.Status) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

func containsStatus(statuses []models.RecordStatus, status models.RecordStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Delete removes the record with the given local ID, reporting whether it
// existed.
func (s *RecordStore) Delete(localID string) bool {
	found := false
	err := s.mutate(func(col *collection) error {
		for i, rec := range col.Records {
			if rec.LocalID == localID {
				col.Records = append(col.Records[:i], col.Records[i+1:]...)
				found = true
				break
			}
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to delete record", err,
			map[string]interface{}{"local_id": localID})
		return false
	}
	return found
}

// Count returns the total number of stored records.
func (s *RecordStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load().Records)
}
