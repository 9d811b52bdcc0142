// Package models provides data model definitions for the intelsync core.
package models

import "time"

// ConflictKind classifies a detected collision between a local record and a
// remote record.
type ConflictKind string

const (
	ConflictKindDuplicate          ConflictKind = "duplicate"
	ConflictKindCoordinateMismatch ConflictKind = "coordinate_mismatch"
	ConflictKindContentMismatch    ConflictKind = "content_mismatch"
	ConflictKindTimestampMismatch  ConflictKind = "timestamp_mismatch"
)

// ResolutionStrategy describes how a conflict is (or will be) resolved.
type ResolutionStrategy string

const (
	ResolutionMerge    ResolutionStrategy = "merge"
	ResolutionReplace  ResolutionStrategy = "replace"
	ResolutionKeepBoth ResolutionStrategy = "keep_both"
	ResolutionManual   ResolutionStrategy = "manual"
)

// IsAutomatic reports whether the strategy can run without operator input.
func (s ResolutionStrategy) IsAutomatic() bool {
	switch s {
	case ResolutionMerge, ResolutionReplace, ResolutionKeepBoth:
		return true
	}
	return false
}

// ConflictInfo captures a detected collision: its classification, the remote
// snapshot it collided with at detection time, and the resolution outcome
// once one has been applied.
type ConflictInfo struct {
	Kind            ConflictKind       `json:"kind"`
	RemoteCandidate RemoteRecord       `json:"remote_candidate"`
	Resolution      ResolutionStrategy `json:"resolution,omitempty"`
	ResolvedAt      int64              `json:"resolved_at,omitempty"`
	ResolvedBy      string             `json:"resolved_by,omitempty"`
}

// Resolved reports whether a resolution has been stamped on the conflict.
func (c *ConflictInfo) Resolved() bool {
	return c != nil && c.ResolvedAt != 0
}

// ResolvedAtTime returns ResolvedAt as time.Time.
func (c *ConflictInfo) ResolvedAtTime() time.Time {
	return time.Unix(c.ResolvedAt, 0)
}
