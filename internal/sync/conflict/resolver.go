package conflict

import (
	"sort"
	"time"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/models"
)

// KeepBothSuffix is appended to the title of a record kept alongside its
// remote counterpart, so operators can tell the two apart.
const KeepBothSuffix = " (Offline Copy)"

// Resolve applies a resolution strategy to a conflicted local record and
// returns the reconciled record together with the stamped ConflictInfo.
//
// Automatic strategies (merge, replace, keep_both) return a record in
// pending status with its conflict data detached; the stamped info records
// what was decided, when, and by whom. The manual strategy performs no
// automatic mutation: the record stays in conflict status with the chosen
// strategy noted, awaiting an explicit payload from ResolveManual.
func Resolve(local *models.OfflineRecord, info *models.ConflictInfo, strategy models.ResolutionStrategy, resolvedBy string) (*models.OfflineRecord, *models.ConflictInfo, error) {
	if local == nil {
		return nil, nil, errors.New(errors.ErrInvalid, "no record to resolve")
	}
	if info == nil {
		return nil, nil, errors.New(errors.ErrConflictNotFound, "record has no conflict to resolve")
	}

	out := local.Clone()
	switch strategy {
	case models.ResolutionMerge:
		mergeRemote(out, info.RemoteCandidate)
	case models.ResolutionReplace:
		// Local payload kept verbatim; the next submission overwrites the
		// remote copy.
	case models.ResolutionKeepBoth:
		out.Title += KeepBothSuffix
	case models.ResolutionManual:
		stamped := *info
		stamped.Resolution = models.ResolutionManual
		out.ConflictData = &stamped
		out.Touch()
		return out, &stamped, nil
	default:
		return nil, nil, errors.Newf(errors.ErrInvalid, "unknown resolution strategy %q", strategy)
	}

	stamped := *info
	stamped.Resolution = strategy
	stamped.ResolvedAt = time.Now().Unix()
	stamped.ResolvedBy = resolvedBy

	out.Status = models.RecordStatusPending
	out.ConflictData = nil
	out.RemoteReceipt = ""
	out.Touch()
	return out, &stamped, nil
}

// ResolveManual applies an operator-supplied payload to a conflicted record,
// completing a manual resolution. The record returns to pending for
// resubmission.
func ResolveManual(local *models.OfflineRecord, info *models.ConflictInfo, payload models.OfflineRecord, resolvedBy string) (*models.OfflineRecord, *models.ConflictInfo, error) {
	if local == nil {
		return nil, nil, errors.New(errors.ErrInvalid, "no record to resolve")
	}
	if info == nil {
		return nil, nil, errors.New(errors.ErrConflictNotFound, "record has no conflict to resolve")
	}

	out := local.Clone()
	out.Title = payload.Title
	out.Content = payload.Content
	out.Tags = append([]string(nil), payload.Tags...)
	out.Latitude = payload.Latitude
	out.Longitude = payload.Longitude
	out.Timestamp = payload.Timestamp

	stamped := *info
	stamped.Resolution = models.ResolutionManual
	stamped.ResolvedAt = time.Now().Unix()
	stamped.ResolvedBy = resolvedBy

	out.Status = models.RecordStatusPending
	out.ConflictData = nil
	out.RemoteReceipt = ""
	out.Touch()
	return out, &stamped, nil
}

// mergeRemote folds the remote candidate into the local record. Title and
// content come from whichever side was written later; tags are a set union;
// coordinates are averaged; the timestamp is the later of the two.
func mergeRemote(local *models.OfflineRecord, remote models.RemoteRecord) {
	if remote.Timestamp > local.LastModified {
		local.Title = remote.Title
		local.Content = remote.Content
	}
	local.Tags = unionTags(local.Tags, remote.Tags)
	local.Latitude = (local.Latitude + remote.Latitude) / 2
	local.Longitude = (local.Longitude + remote.Longitude) / 2
	if remote.Timestamp > local.Timestamp {
		local.Timestamp = remote.Timestamp
	}
}

// unionTags merges two tag lists into a sorted set, so merge order does not
// affect the result.
func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		seen[t] = struct{}{}
	}
	for _, t := range b {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
