// Package services exposes the record authoring and reconciliation surface
// consumed by daemon transports and embedding applications.
package services

import (
	"context"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/events"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/settings"
	"github.com/jcarville/intelsync/internal/store"
	syncpkg "github.com/jcarville/intelsync/internal/sync"
	"github.com/jcarville/intelsync/internal/sync/conflict"
)

// Coordinate bounds accepted for record payloads, in degrees.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// ReportService is the dependency-injected facade over the record store,
// sync engine, and event hub. All collaborators are supplied at
// construction; the service holds no global state.
type ReportService struct {
	records  *store.RecordStore
	settings *settings.Manager
	notifier *events.Notifier
	engine   *syncpkg.Engine
	logger   *logging.Logger
}

// New wires a ReportService from its collaborators.
func New(records *store.RecordStore, mgr *settings.Manager, notifier *events.Notifier, engine *syncpkg.Engine) *ReportService {
	return &ReportService{
		records:  records,
		settings: mgr,
		notifier: notifier,
		engine:   engine,
		logger:   logging.Get(),
	}
}

// RecordPatch is a partial update to a record's payload. Nil fields are
// left unchanged.
type RecordPatch struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp *int64    `json:"timestamp,omitempty"`
}

// validatePayload checks the user-supplied payload fields of a record.
func validatePayload(rec *models.OfflineRecord) error {
	if rec.Title == "" {
		return errors.New(errors.ErrValidation, "title must not be empty")
	}
	if rec.Latitude < MinLatitude || rec.Latitude > MaxLatitude {
		return errors.Newf(errors.ErrValidation, "latitude %v out of range [%v, %v]", rec.Latitude, MinLatitude, MaxLatitude)
	}
	if rec.Longitude < MinLongitude || rec.Longitude > MaxLongitude {
		return errors.Newf(errors.ErrValidation, "longitude %v out of range [%v, %v]", rec.Longitude, MinLongitude, MaxLongitude)
	}
	return nil
}

// CreateRecord validates and stores a new draft record, returning the
// stored copy with its generated local ID.
func (s *ReportService) CreateRecord(payload models.OfflineRecord) (*models.OfflineRecord, error) {
	if err := validatePayload(&payload); err != nil {
		return nil, err
	}

	rec := &models.OfflineRecord{
		Status:         models.RecordStatusDraft,
		CreatedOffline: true,
		Title:          payload.Title,
		Content:        payload.Content,
		Tags:           append([]string(nil), payload.Tags...),
		Latitude:       payload.Latitude,
		Longitude:      payload.Longitude,
		Timestamp:      payload.Timestamp,
		Author:         payload.Author,
	}
	id, err := s.records.Create(rec)
	if err != nil {
		return nil, err
	}
	created, ok := s.records.Get(id)
	if !ok {
		return nil, errors.New(errors.ErrInternal, "created record not found")
	}
	s.notifier.Publish(events.ReportCreated{Record: created})
	return created, nil
}

// UpdateRecord applies a patch to a record's payload. Edits are rejected
// while the record is being submitted, so a run never observes a payload
// change mid-flight.
func (s *ReportService) UpdateRecord(localID string, patch RecordPatch) (*models.OfflineRecord, error) {
	updated, err := s.records.Update(localID, func(r *models.OfflineRecord) error {
		if r.Status == models.RecordStatusSyncing {
			return errors.New(errors.ErrRecordSyncing, "record is being submitted, retry after the sync run completes")
		}
		if patch.Title != nil {
			r.Title = *patch.Title
		}
		if patch.Content != nil {
			r.Content = *patch.Content
		}
		if patch.Tags != nil {
			r.Tags = append([]string(nil), (*patch.Tags)...)
		}
		if patch.Latitude != nil {
			r.Latitude = *patch.Latitude
		}
		if patch.Longitude != nil {
			r.Longitude = *patch.Longitude
		}
		if patch.Timestamp != nil {
			r.Timestamp = *patch.Timestamp
		}
		return validatePayload(r)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(events.ReportUpdated{Record: updated})
	return updated, nil
}

// FinalizeRecord moves a draft into the submission queue.
func (s *ReportService) FinalizeRecord(localID string) (*models.OfflineRecord, error) {
	updated, err := s.records.Update(localID, func(r *models.OfflineRecord) error {
		next, err := syncpkg.Transition(r.Status, syncpkg.EventFinalize)
		if err != nil {
			return err
		}
		r.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(events.ReportUpdated{Record: updated})
	return updated, nil
}

// GetRecord returns one record by local ID.
func (s *ReportService) GetRecord(localID string) (*models.OfflineRecord, error) {
	rec, ok := s.records.Get(localID)
	if !ok {
		return nil, errors.Newf(errors.ErrRecordNotFound, "record %s not found", localID)
	}
	return rec, nil
}

// ListRecords returns records in insertion order, optionally filtered by
// status.
func (s *ReportService) ListRecords(statuses ...models.RecordStatus) []*models.OfflineRecord {
	return s.records.List(statuses...)
}

// DeleteRecord removes a record. Returns false when no record has the ID.
func (s *ReportService) DeleteRecord(localID string) bool {
	return s.records.Delete(localID)
}

// RunSync triggers one reconciliation run with the supplied credential.
func (s *ReportService) RunSync(ctx context.Context, credential syncpkg.Credential) (*models.SyncStats, error) {
	return s.engine.RunSync(ctx, credential)
}

// ResolveConflict applies a resolution strategy to a conflicted record.
// Automatic strategies requeue the record as pending; choosing manual
// keeps the record parked until ResolveConflictManual supplies a payload.
// Fails with ErrNoConflict when the record is not in conflict status.
func (s *ReportService) ResolveConflict(localID string, strategy models.ResolutionStrategy, resolvedBy string) (*models.OfflineRecord, error) {
	rec, ok := s.records.Get(localID)
	if !ok {
		return nil, errors.Newf(errors.ErrRecordNotFound, "record %s not found", localID)
	}
	if rec.Status != models.RecordStatusConflict {
		return nil, errors.ErrNoConflict
	}

	resolved, stamped, err := conflict.Resolve(rec, rec.ConflictData, strategy, resolvedBy)
	if err != nil {
		return nil, err
	}
	saved, err := s.records.Update(localID, func(r *models.OfflineRecord) error {
		*r = *resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stamped.Resolved() {
		s.notifier.Publish(events.ConflictResolved{
			LocalID:  localID,
			Strategy: stamped.Resolution,
			Record:   saved,
		})
	}
	return saved, nil
}

// ResolveConflictManual completes a manual resolution with an
// operator-supplied payload.
func (s *ReportService) ResolveConflictManual(localID string, payload models.OfflineRecord, resolvedBy string) (*models.OfflineRecord, error) {
	if err := validatePayload(&payload); err != nil {
		return nil, err
	}
	rec, ok := s.records.Get(localID)
	if !ok {
		return nil, errors.Newf(errors.ErrRecordNotFound, "record %s not found", localID)
	}
	if rec.Status != models.RecordStatusConflict {
		return nil, errors.ErrNoConflict
	}

	resolved, stamped, err := conflict.ResolveManual(rec, rec.ConflictData, payload, resolvedBy)
	if err != nil {
		return nil, err
	}
	saved, err := s.records.Update(localID, func(r *models.OfflineRecord) error {
		*r = *resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(events.ConflictResolved{
		LocalID:  localID,
		Strategy: stamped.Resolution,
		Record:   saved,
	})
	return saved, nil
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (s *ReportService) Subscribe(t events.EventType, h events.Handler) func() {
	return s.notifier.Subscribe(t, h)
}

// Settings returns the current sync settings.
func (s *ReportService) Settings() models.SyncSettings {
	return s.settings.Get()
}

// UpdateSettings applies and persists new sync settings, returning the
// normalized result.
func (s *ReportService) UpdateSettings(cfg models.SyncSettings) models.SyncSettings {
	return s.settings.Update(cfg)
}
