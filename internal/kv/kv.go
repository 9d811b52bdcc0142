// Package kv provides the durable key-value store the reconciliation core
// persists through. Implementations are deliberately narrow: opaque bytes
// under fixed keys. The core treats a failed read as "empty" and a failed
// write as best effort, so implementations report errors honestly and leave
// the degrading to the caller.
package kv

// Store is the persistence contract consumed by the record store and the
// settings manager.
type Store interface {
	// Get returns the value for key. The second return is false when the key
	// is absent.
	Get(key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// Well-known keys for the persisted layout: one record collection, one
// settings object, two scalar timestamps, and the sealed remote credential.
const (
	KeyRecords         = "intelsync.records"
	KeySettings        = "intelsync.settings"
	KeyLastSyncAttempt = "intelsync.last_sync_attempt"
	KeyLastSuccess     = "intelsync.last_successful_sync"
	KeyCredential      = "intelsync.credential"
)
