package conflict

import (
	"math"
	"reflect"
	"testing"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/models"
)

func conflictedRecord() (*models.OfflineRecord, *models.ConflictInfo) {
	info := &models.ConflictInfo{
		Kind: models.ConflictKindDuplicate,
		RemoteCandidate: models.RemoteRecord{
			ID:        "r1",
			Title:     "Suspicious device found",
			Content:   "bomb squad dispatched",
			Tags:      []string{"ied", "urgent"},
			Latitude:  40.0001,
			Longitude: -74.0001,
			Timestamp: 2000,
		},
	}
	local := &models.OfflineRecord{
		LocalID:      "local-1",
		Status:       models.RecordStatusConflict,
		LastModified: 1000,
		SyncAttempts: 1,
		ConflictData: info,
		Title:        "Suspicious device",
		Content:      "wires under bench",
		Tags:         []string{"ied", "patrol"},
		Latitude:     40.0000,
		Longitude:    -74.0000,
		Timestamp:    1000,
		Author:       "field-7",
	}
	return local, info
}

// TestResolve_merge verifies that merging takes the later side's text, the
// tag union, averaged coordinates, and the later timestamp, and queues the
// result for resubmission.
func TestResolve_merge(t *testing.T) {
	local, info := conflictedRecord()

	out, stamped, err := Resolve(local, info, models.ResolutionMerge, "operator-1")
	if err != nil {
		t.Fatalf("Resolve(merge) error: %v", err)
	}
	if out.Title != "Suspicious device found" {
		t.Errorf("merged title = %q, want remote title (later timestamp)", out.Title)
	}
	if out.Content != "bomb squad dispatched" {
		t.Errorf("merged content = %q, want remote content", out.Content)
	}
	wantTags := []string{"ied", "patrol", "urgent"}
	if !reflect.DeepEqual(out.Tags, wantTags) {
		t.Errorf("merged tags = %v, want %v", out.Tags, wantTags)
	}
	if out.Timestamp != 2000 {
		t.Errorf("merged timestamp = %d, want 2000", out.Timestamp)
	}
	if math.Abs(out.Latitude-40.00005) > 1e-9 {
		t.Errorf("merged latitude = %v, want 40.00005", out.Latitude)
	}
	if out.Status != models.RecordStatusPending {
		t.Errorf("merged status = %q, want %q", out.Status, models.RecordStatusPending)
	}
	if out.ConflictData != nil {
		t.Error("merged record still carries conflict data")
	}
	if stamped.Resolution != models.ResolutionMerge || stamped.ResolvedAt == 0 || stamped.ResolvedBy != "operator-1" {
		t.Errorf("stamped resolution = %+v, want merge by operator-1 with resolvedAt set", stamped)
	}
}

// TestResolve_mergeTagsCommutative verifies that tag union does not depend
// on which side the tags came from.
func TestResolve_mergeTagsCommutative(t *testing.T) {
	a := unionTags([]string{"ied", "patrol"}, []string{"ied", "urgent"})
	b := unionTags([]string{"ied", "urgent"}, []string{"ied", "patrol"})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("unionTags not commutative: %v vs %v", a, b)
	}
}

// TestResolve_mergeLocalNewer verifies that local text wins when the local
// record was modified after the remote record's timestamp.
func TestResolve_mergeLocalNewer(t *testing.T) {
	local, info := conflictedRecord()
	local.LastModified = 3000

	out, _, err := Resolve(local, info, models.ResolutionMerge, "operator-1")
	if err != nil {
		t.Fatalf("Resolve(merge) error: %v", err)
	}
	if out.Title != "Suspicious device" {
		t.Errorf("merged title = %q, want local title (later lastModified)", out.Title)
	}
	if out.Timestamp != 2000 {
		t.Errorf("merged timestamp = %d, want max of both sides 2000", out.Timestamp)
	}
}

// TestResolve_replace verifies that replace keeps the local payload verbatim
// and requeues the record.
func TestResolve_replace(t *testing.T) {
	local, info := conflictedRecord()

	out, stamped, err := Resolve(local, info, models.ResolutionReplace, "operator-1")
	if err != nil {
		t.Fatalf("Resolve(replace) error: %v", err)
	}
	if out.Title != local.Title || out.Content != local.Content || out.Timestamp != local.Timestamp {
		t.Error("replace mutated the local payload")
	}
	if out.Status != models.RecordStatusPending || out.ConflictData != nil {
		t.Errorf("replace status = %q conflictData = %v, want pending with no conflict data", out.Status, out.ConflictData)
	}
	if stamped.Resolution != models.ResolutionReplace {
		t.Errorf("stamped resolution = %q, want %q", stamped.Resolution, models.ResolutionReplace)
	}
}

// TestResolve_keepBoth verifies that keep_both suffixes the title and
// requeues the record as a distinct report.
func TestResolve_keepBoth(t *testing.T) {
	local, info := conflictedRecord()
	local.Title = "Patrol Log"

	out, _, err := Resolve(local, info, models.ResolutionKeepBoth, "operator-1")
	if err != nil {
		t.Fatalf("Resolve(keep_both) error: %v", err)
	}
	if out.Title != "Patrol Log"+KeepBothSuffix {
		t.Errorf("keep_both title = %q, want suffix %q", out.Title, KeepBothSuffix)
	}
	if out.Status != models.RecordStatusPending {
		t.Errorf("keep_both status = %q, want %q", out.Status, models.RecordStatusPending)
	}
}

// TestResolve_manualNoMutation verifies that choosing manual leaves the
// record in conflict with the strategy noted but no resolution applied.
func TestResolve_manualNoMutation(t *testing.T) {
	local, info := conflictedRecord()

	out, stamped, err := Resolve(local, info, models.ResolutionManual, "operator-1")
	if err != nil {
		t.Fatalf("Resolve(manual) error: %v", err)
	}
	if out.Status != models.RecordStatusConflict {
		t.Errorf("manual status = %q, want record to stay in %q", out.Status, models.RecordStatusConflict)
	}
	if out.Title != local.Title {
		t.Errorf("manual mutated title to %q", out.Title)
	}
	if out.ConflictData == nil || out.ConflictData.Resolution != models.ResolutionManual {
		t.Error("manual did not note the chosen strategy on the conflict data")
	}
	if stamped.ResolvedAt != 0 {
		t.Errorf("manual stamped resolvedAt = %d, want 0 until a payload is supplied", stamped.ResolvedAt)
	}
}

// TestResolveManual verifies that an operator-supplied payload completes a
// manual resolution and requeues the record.
func TestResolveManual(t *testing.T) {
	local, info := conflictedRecord()
	payload := models.OfflineRecord{
		Title:     "Suspicious device (verified)",
		Content:   "confirmed by bomb squad",
		Tags:      []string{"ied", "verified"},
		Latitude:  40.00005,
		Longitude: -74.00005,
		Timestamp: 2100,
	}

	out, stamped, err := ResolveManual(local, info, payload, "operator-1")
	if err != nil {
		t.Fatalf("ResolveManual() error: %v", err)
	}
	if out.Title != payload.Title || out.Content != payload.Content || out.Timestamp != payload.Timestamp {
		t.Error("ResolveManual() did not apply the supplied payload")
	}
	if out.Status != models.RecordStatusPending || out.ConflictData != nil {
		t.Errorf("ResolveManual() status = %q conflictData = %v, want pending with no conflict data", out.Status, out.ConflictData)
	}
	if out.Author != local.Author {
		t.Errorf("ResolveManual() author = %q, want original author preserved", out.Author)
	}
	if stamped.Resolution != models.ResolutionManual || stamped.ResolvedAt == 0 || stamped.ResolvedBy != "operator-1" {
		t.Errorf("stamped resolution = %+v, want manual by operator-1 with resolvedAt set", stamped)
	}
}

// TestResolve_noConflictInfo verifies the error path for a record without
// conflict data.
func TestResolve_noConflictInfo(t *testing.T) {
	local, _ := conflictedRecord()

	_, _, err := Resolve(local, nil, models.ResolutionMerge, "operator-1")
	if err == nil {
		t.Fatal("Resolve() with nil conflict info succeeded, want error")
	}
	if errors.CodeOf(err) != errors.ErrConflictNotFound {
		t.Errorf("Resolve() error code = %q, want %q", errors.CodeOf(err), errors.ErrConflictNotFound)
	}
}

// TestResolve_unknownStrategy verifies the error path for a strategy outside
// the known set.
func TestResolve_unknownStrategy(t *testing.T) {
	local, info := conflictedRecord()

	_, _, err := Resolve(local, info, models.ResolutionStrategy("coin_flip"), "operator-1")
	if err == nil {
		t.Fatal("Resolve() with unknown strategy succeeded, want error")
	}
	if errors.CodeOf(err) != errors.ErrInvalid {
		t.Errorf("Resolve() error code = %q, want %q", errors.CodeOf(err), errors.ErrInvalid)
	}
}
