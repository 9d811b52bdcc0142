// Package sync drives reconciliation of locally authored records against
// the remote ledger: eligibility selection, conflict detection, resolution,
// and submission, with single-flight exclusion per run.
package sync

import (
	"context"
	stderrors "errors"

	"github.com/looplab/fsm"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/models"
)

// Lifecycle events that move a record between statuses.
const (
	EventFinalize      = "finalize"       // draft -> pending
	EventPickUp        = "pick_up"        // pending|error -> syncing
	EventSubmitOK      = "submit_ok"      // syncing -> synced
	EventSubmitFailed  = "submit_failed"  // syncing -> error
	EventConflictFound = "conflict_found" // syncing -> conflict
	EventResolve       = "resolve"        // conflict -> pending
	EventDeferManual   = "defer_manual"   // conflict -> conflict
)

func lifecycleEvents() fsm.Events {
	return fsm.Events{
		{Name: EventFinalize, Src: []string{string(models.RecordStatusDraft)}, Dst: string(models.RecordStatusPending)},
		{Name: EventPickUp, Src: []string{string(models.RecordStatusPending), string(models.RecordStatusError)}, Dst: string(models.RecordStatusSyncing)},
		{Name: EventSubmitOK, Src: []string{string(models.RecordStatusSyncing)}, Dst: string(models.RecordStatusSynced)},
		{Name: EventSubmitFailed, Src: []string{string(models.RecordStatusSyncing)}, Dst: string(models.RecordStatusError)},
		{Name: EventConflictFound, Src: []string{string(models.RecordStatusSyncing)}, Dst: string(models.RecordStatusConflict)},
		{Name: EventResolve, Src: []string{string(models.RecordStatusConflict)}, Dst: string(models.RecordStatusPending)},
		{Name: EventDeferManual, Src: []string{string(models.RecordStatusConflict)}, Dst: string(models.RecordStatusConflict)},
	}
}

// Transition applies a lifecycle event to a status and returns the resulting
// status. An event fired from a status it does not cover fails with
// ErrBadTransition, keeping illegal moves (e.g. synced back to syncing) out
// of the store.
func Transition(from models.RecordStatus, event string) (models.RecordStatus, error) {
	machine := fsm.NewFSM(string(from), lifecycleEvents(), nil)
	if err := machine.Event(context.Background(), event); err != nil {
		// A self-loop reports NoTransitionError; the status is still valid.
		var noop fsm.NoTransitionError
		if stderrors.As(err, &noop) {
			return models.RecordStatus(machine.Current()), nil
		}
		return from, errors.Wrap(errors.ErrBadTransition, "event "+event+" not allowed from status "+string(from), err)
	}
	return models.RecordStatus(machine.Current()), nil
}

// CanTransition reports whether an event is legal from the given status.
func CanTransition(from models.RecordStatus, event string) bool {
	machine := fsm.NewFSM(string(from), lifecycleEvents(), nil)
	return machine.Can(event)
}
