// Package models provides data model definitions for the intelsync core.
package models

import "time"

// RecordStatus represents the lifecycle state of a locally authored record.
type RecordStatus string

const (
	RecordStatusDraft    RecordStatus = "draft"
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusSyncing  RecordStatus = "syncing"
	RecordStatusSynced   RecordStatus = "synced"
	RecordStatusConflict RecordStatus = "conflict"
	RecordStatusError    RecordStatus = "error"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusDraft, RecordStatusPending, RecordStatusSyncing,
		RecordStatusSynced, RecordStatusConflict, RecordStatusError:
		return true
	}
	return false
}

// OfflineRecord is a locally authored intelligence record tracked by the
// reconciliation engine. ConflictData is non-nil exactly when Status is
// RecordStatusConflict; RemoteReceipt is set only once Status is
// RecordStatusSynced. Both couplings are enforced by the record store.
type OfflineRecord struct {
	LocalID        string        `json:"local_id"`
	Status         RecordStatus  `json:"status"`
	CreatedOffline bool          `json:"created_offline"`
	LastModified   int64         `json:"last_modified"`
	SyncAttempts   int           `json:"sync_attempts"`
	ConflictData   *ConflictInfo `json:"conflict_data,omitempty"`
	RemoteReceipt  string        `json:"remote_receipt,omitempty"`

	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
}

// LastModifiedTime returns LastModified as time.Time.
func (r *OfflineRecord) LastModifiedTime() time.Time {
	return time.Unix(r.LastModified, 0)
}

// Touch updates the LastModified timestamp.
func (r *OfflineRecord) Touch() {
	r.LastModified = time.Now().Unix()
}

// Clone returns a deep copy of the record. The store hands out clones so
// callers can never mutate persisted state through a shared pointer.
func (r *OfflineRecord) Clone() *OfflineRecord {
	out := *r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.ConflictData != nil {
		cd := *r.ConflictData
		out.ConflictData = &cd
	}
	return &out
}

// RemoteRecord is the authoritative, already-published counterpart of a
// record on the remote ledger. It is a read-only snapshot; the engine never
// mutates remote state directly.
type RemoteRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
}
