// Package models provides data model definitions for the intelsync core.
package models

import "time"

// ResolutionPolicy is the process-wide default applied when a conflict is
// detected. "ask" defers to an operator; the other values resolve
// automatically with the named strategy.
type ResolutionPolicy string

const (
	PolicyAsk      ResolutionPolicy = "ask"
	PolicyMerge    ResolutionPolicy = "merge"
	PolicyReplace  ResolutionPolicy = "replace"
	PolicyKeepBoth ResolutionPolicy = "keep_both"
)

// Strategy returns the automatic strategy the policy maps to. The second
// return is false for PolicyAsk, which has no automatic strategy.
func (p ResolutionPolicy) Strategy() (ResolutionStrategy, bool) {
	switch p {
	case PolicyMerge:
		return ResolutionMerge, true
	case PolicyReplace:
		return ResolutionReplace, true
	case PolicyKeepBoth:
		return ResolutionKeepBoth, true
	}
	return ResolutionManual, false
}

// SyncSettings is the process-wide sync configuration. Loaded once at
// startup, mutable at runtime, persisted on change.
type SyncSettings struct {
	AutoSync          bool             `json:"auto_sync" yaml:"auto_sync"`
	DefaultResolution ResolutionPolicy `json:"default_resolution" yaml:"default_resolution"`
	MaxRetries        int              `json:"max_retries" yaml:"max_retries"`
	RetryDelayMs      int              `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	BatchSize         int              `json:"batch_size" yaml:"batch_size"`
}

// DefaultSyncSettings returns the settings used when nothing has been
// persisted or configured.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		AutoSync:          false,
		DefaultResolution: PolicyAsk,
		MaxRetries:        3,
		RetryDelayMs:      5000,
		BatchSize:         10,
	}
}

// RetryDelay returns RetryDelayMs as a time.Duration.
func (s SyncSettings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// SyncStats summarizes one orchestration run.
type SyncStats struct {
	TotalRecords    int   `json:"total_records"`
	PendingRecords  int   `json:"pending_records"`
	SuccessfulSyncs int   `json:"successful_syncs"`
	FailedSyncs     int   `json:"failed_syncs"`
	Conflicts       int   `json:"conflicts"`
	LastSyncAttempt int64 `json:"last_sync_attempt,omitempty"`
	LastSuccess     int64 `json:"last_success,omitempty"`
}
