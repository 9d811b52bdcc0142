package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/events"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/settings"
	"github.com/jcarville/intelsync/internal/store"
	"github.com/jcarville/intelsync/internal/sync/conflict"
	"github.com/jcarville/intelsync/internal/telemetry"
)

// batchConcurrency bounds how many batches run at once. Records within a
// batch are always processed sequentially.
const batchConcurrency = 4

// Engine is the sync orchestrator. It selects eligible records, runs
// conflict detection against the published remote set, submits clean
// records, and drives status transitions. At most one run is in flight at a
// time.
type Engine struct {
	records  *store.RecordStore
	settings *settings.Manager
	notifier *events.Notifier
	detector *conflict.Detector
	remote   Submitter
	kv       kv.Store
	metrics  *telemetry.Metrics
	logger   *logging.Logger

	running atomic.Bool
}

// NewEngine wires an orchestrator. remote may be nil; RunSync then fails
// with ErrNotConfigured until SetSubmitter is called. metrics may be nil.
func NewEngine(records *store.RecordStore, mgr *settings.Manager, notifier *events.Notifier, remote Submitter, kvStore kv.Store, metrics *telemetry.Metrics) *Engine {
	return &Engine{
		records:  records,
		settings: mgr,
		notifier: notifier,
		detector: conflict.NewDetector(),
		remote:   remote,
		kv:       kvStore,
		metrics:  metrics,
		logger:   logging.Get(),
	}
}

// SetSubmitter installs the remote submission service. Intended for startup
// wiring, before any run is triggered.
func (e *Engine) SetSubmitter(s Submitter) {
	e.remote = s
}

// Running reports whether a sync run is currently in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// RunSync performs one orchestration run and returns its stats.
//
// Records in pending or error status are eligible, except error records
// whose attempts have reached the retry limit. A failure on one record
// marks that record and never aborts the run. A second concurrent call
// fails immediately with ErrInProgress.
func (e *Engine) RunSync(ctx context.Context, credential Credential) (*models.SyncStats, error) {
	if e.remote == nil {
		e.metrics.ObserveRun(telemetry.OutcomeRejected, 0)
		return nil, errors.ErrNotConfigured
	}
	if !e.running.CompareAndSwap(false, true) {
		e.metrics.ObserveRun(telemetry.OutcomeRejected, 0)
		return nil, errors.ErrInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	cfg := e.settings.Get()

	eligible := e.selectEligible(cfg)
	stats := &models.SyncStats{
		TotalRecords:   e.records.Count(),
		PendingRecords: len(eligible),
	}
	e.metrics.SetPending(len(eligible))
	e.notifier.Publish(events.SyncStarted{Eligible: len(eligible)})

	if len(eligible) == 0 {
		e.finishRun(stats, start)
		return stats, nil
	}

	// One snapshot of the published set per run; every record in the run is
	// detected against the same view.
	known := e.fetchRemote(ctx)

	var (
		mu        stdsync.Mutex
		processed atomic.Int64
	)
	total := len(eligible)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, batch := range partition(eligible, cfg.BatchSize) {
		batch := batch
		g.Go(func() error {
			for _, rec := range batch {
				outcome := e.processRecord(gctx, rec, known, cfg, credential)
				done := int(processed.Add(1))
				e.notifier.Publish(events.SyncProgress{
					LocalID:   rec.LocalID,
					Processed: done,
					Total:     total,
				})
				mu.Lock()
				switch outcome {
				case telemetry.ResultSynced:
					stats.SuccessfulSyncs++
				case telemetry.ResultError:
					stats.FailedSyncs++
				case telemetry.ResultConflict:
					stats.Conflicts++
				}
				mu.Unlock()
				e.metrics.ObserveRecord(outcome)
			}
			return nil
		})
	}
	// Worker funcs never return errors; per-record failures are recorded on
	// the records themselves.
	_ = g.Wait()

	e.finishRun(stats, start)
	return stats, nil
}

// selectEligible returns records awaiting submission, skipping error records
// whose retries are exhausted.
func (e *Engine) selectEligible(cfg models.SyncSettings) []*models.OfflineRecord {
	candidates := e.records.List(models.RecordStatusPending, models.RecordStatusError)
	out := candidates[:0]
	for _, rec := range candidates {
		if rec.Status == models.RecordStatusError && rec.SyncAttempts >= cfg.MaxRetries {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// fetchRemote pulls the published record set. A fetch failure degrades to an
// empty set: submissions still proceed, conflict detection is skipped for
// this run.
func (e *Engine) fetchRemote(ctx context.Context) []models.RemoteRecord {
	known, err := e.remote.FetchAll(ctx)
	if err != nil {
		e.logger.Warn("remote fetch failed, running without conflict detection", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return known
}

// processRecord drives one record through a run and returns its result as a
// telemetry label. Any failure, including a panic out of the submitter, is
// contained to this record.
func (e *Engine) processRecord(ctx context.Context, rec *models.OfflineRecord, known []models.RemoteRecord, cfg models.SyncSettings, credential Credential) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			e.markFailed(rec.LocalID, fmt.Errorf("submission panic: %v", r))
			outcome = telemetry.ResultError
		}
	}()

	current, err := e.transition(rec.LocalID, EventPickUp, nil)
	if err != nil {
		e.logger.Warn("record skipped: cannot pick up", map[string]interface{}{
			"local_id": rec.LocalID,
			"error":    err.Error(),
		})
		return telemetry.ResultError
	}

	if info := e.detector.Detect(current, known); info != nil {
		e.markConflict(current, info, cfg)
		return telemetry.ResultConflict
	}

	receipt, err := e.remote.Submit(ctx, current, credential)
	if err != nil {
		e.markFailed(rec.LocalID, err)
		return telemetry.ResultError
	}

	_, err = e.transition(rec.LocalID, EventSubmitOK, func(r *models.OfflineRecord) {
		r.SyncAttempts++
		r.RemoteReceipt = receipt
	})
	if err != nil {
		e.logger.Error("failed to record successful submission", err, map[string]interface{}{
			"local_id": rec.LocalID,
		})
		return telemetry.ResultError
	}
	return telemetry.ResultSynced
}

// transition updates a record's status through the lifecycle guard, applying
// extra mutations alongside the status change.
func (e *Engine) transition(localID, event string, mutate func(*models.OfflineRecord)) (*models.OfflineRecord, error) {
	return e.records.Update(localID, func(r *models.OfflineRecord) error {
		next, err := Transition(r.Status, event)
		if err != nil {
			return err
		}
		if mutate != nil {
			mutate(r)
		}
		r.Status = next
		return nil
	})
}

// markFailed records a submission failure: one more attempt, error status.
func (e *Engine) markFailed(localID string, cause error) {
	_, err := e.transition(localID, EventSubmitFailed, func(r *models.OfflineRecord) {
		r.SyncAttempts++
	})
	if err != nil {
		e.logger.Error("failed to record submission failure", err, map[string]interface{}{
			"local_id": localID,
		})
		return
	}
	e.logger.Warn("record submission failed", map[string]interface{}{
		"local_id": localID,
		"error":    cause.Error(),
	})
}

// markConflict parks a record in conflict status, or resolves it on the spot
// when the configured policy allows automatic resolution for this kind of
// collision. Conflicted records are never submitted within the same run.
func (e *Engine) markConflict(rec *models.OfflineRecord, info *models.ConflictInfo, cfg models.SyncSettings) {
	strategy := conflict.DefaultStrategy(info.Kind)
	if strategy.IsAutomatic() {
		if s, ok := cfg.DefaultResolution.Strategy(); ok {
			strategy = s
		} else {
			strategy = models.ResolutionManual
		}
	}

	attached := *info
	attached.Resolution = strategy
	updated, err := e.transition(rec.LocalID, EventConflictFound, func(r *models.OfflineRecord) {
		cd := attached
		r.ConflictData = &cd
	})
	if err != nil {
		e.logger.Error("failed to mark conflict", err, map[string]interface{}{
			"local_id": rec.LocalID,
		})
		return
	}
	e.notifier.Publish(events.ConflictDetected{LocalID: rec.LocalID, Conflict: attached})

	if !strategy.IsAutomatic() {
		return
	}
	resolved, stamped, err := conflict.Resolve(updated, &attached, strategy, "auto")
	if err != nil {
		e.logger.Error("automatic resolution failed", err, map[string]interface{}{
			"local_id": rec.LocalID,
			"strategy": string(strategy),
		})
		return
	}
	saved, err := e.records.Update(rec.LocalID, func(r *models.OfflineRecord) error {
		*r = *resolved
		return nil
	})
	if err != nil {
		e.logger.Error("failed to store resolved record", err, map[string]interface{}{
			"local_id": rec.LocalID,
		})
		return
	}
	e.notifier.Publish(events.ConflictResolved{
		LocalID:  rec.LocalID,
		Strategy: stamped.Resolution,
		Record:   saved,
	})
}

// finishRun persists the run timestamps, publishes completion, and reports
// metrics. Timestamp writes are best effort.
func (e *Engine) finishRun(stats *models.SyncStats, start time.Time) {
	now := time.Now().Unix()
	stats.LastSyncAttempt = now
	e.persistTimestamp(kv.KeyLastSyncAttempt, now)
	if stats.SuccessfulSyncs > 0 {
		stats.LastSuccess = now
		e.persistTimestamp(kv.KeyLastSuccess, now)
		e.metrics.MarkSuccess(time.Unix(now, 0))
	}
	e.metrics.ObserveRun(telemetry.OutcomeCompleted, time.Since(start))
	e.notifier.Publish(events.SyncCompleted{Stats: *stats})
}

func (e *Engine) persistTimestamp(key string, ts int64) {
	raw, _ := json.Marshal(ts)
	if err := e.kv.Set(key, raw); err != nil {
		e.logger.Warn("failed to persist sync timestamp", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// partition splits records into batches of at most size records, preserving
// selection order.
func partition(records []*models.OfflineRecord, size int) [][]*models.OfflineRecord {
	if size <= 0 {
		size = 1
	}
	var out [][]*models.OfflineRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
