// REST handlers for the record authoring and reconciliation API.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/export"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/services"
	"github.com/jcarville/intelsync/internal/sync/scheduler"
)

// api bundles the handlers' collaborators.
type api struct {
	svc       *services.ReportService
	exporter  *export.Service
	scheduler *scheduler.Scheduler
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.health)
	mux.HandleFunc("GET /api/records", a.listRecords)
	mux.HandleFunc("POST /api/records", a.createRecord)
	mux.HandleFunc("GET /api/records/{id}", a.getRecord)
	mux.HandleFunc("PATCH /api/records/{id}", a.updateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", a.deleteRecord)
	mux.HandleFunc("POST /api/records/{id}/finalize", a.finalizeRecord)
	mux.HandleFunc("POST /api/records/{id}/resolve", a.resolveConflict)
	mux.HandleFunc("POST /api/sync", a.runSync)
	mux.HandleFunc("GET /api/settings", a.getSettings)
	mux.HandleFunc("PUT /api/settings", a.updateSettings)
	mux.HandleFunc("GET /api/export", a.exportRecords)
	mux.HandleFunc("POST /api/import", a.importRecords)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrValidation, errors.ErrInvalid:
		status = http.StatusBadRequest
	case errors.ErrRecordNotFound, errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrRecordSyncing, errors.ErrSyncInProgress:
		status = http.StatusConflict
	case errors.ErrConflictNotFound, errors.ErrBadTransition:
		status = http.StatusUnprocessableEntity
	case errors.ErrSyncNotConfigured:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"service":      "intelsyncd",
		"auto_sync":    a.svc.Settings().AutoSync,
		"scheduler_on": a.scheduler != nil && a.scheduler.IsRunning(),
	})
}

func (a *api) listRecords(w http.ResponseWriter, r *http.Request) {
	var statuses []models.RecordStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.RecordStatus(raw)
		if !status.IsValid() {
			writeError(w, errors.Newf(errors.ErrInvalid, "unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}
	records := a.svc.ListRecords(statuses...)
	if records == nil {
		records = []*models.OfflineRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *api) createRecord(w http.ResponseWriter, r *http.Request) {
	var payload models.OfflineRecord
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid record payload", err))
		return
	}
	rec, err := a.svc.CreateRecord(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *api) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) updateRecord(w http.ResponseWriter, r *http.Request) {
	var patch services.RecordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid patch payload", err))
		return
	}
	rec, err := a.svc.UpdateRecord(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if !a.svc.DeleteRecord(r.PathValue("id")) {
		writeError(w, errors.Newf(errors.ErrRecordNotFound, "record %s not found", r.PathValue("id")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) finalizeRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.FinalizeRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// resolveRequest is the body of a conflict resolution call. Payload is
// required only for manual resolutions that supply the reconciled record.
type resolveRequest struct {
	Strategy   models.ResolutionStrategy `json:"strategy"`
	ResolvedBy string                    `json:"resolved_by"`
	Payload    *models.OfflineRecord     `json:"payload,omitempty"`
}

func (a *api) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid resolve payload", err))
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "operator"
	}

	var (
		rec *models.OfflineRecord
		err error
	)
	if req.Strategy == models.ResolutionManual && req.Payload != nil {
		rec, err = a.svc.ResolveConflictManual(r.PathValue("id"), *req.Payload, req.ResolvedBy)
	} else {
		rec, err = a.svc.ResolveConflict(r.PathValue("id"), req.Strategy, req.ResolvedBy)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type runSyncRequest struct {
	Credential string `json:"credential"`
}

func (a *api) runSync(w http.ResponseWriter, r *http.Request) {
	var req runSyncRequest
	if r.Body != nil {
		// An empty body runs with no credential.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	stats, err := a.svc.RunSync(r.Context(), req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) exportRecords(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="intelsync-export.json.gz"`)
	if _, err := a.exporter.Export(w); err != nil {
		// Headers are already out; the truncated body fails the
		// importer's checksum on the other end.
		logging.Error("export failed mid-stream", err)
	}
}

func (a *api) importRecords(w http.ResponseWriter, r *http.Request) {
	res, err := a.exporter.Import(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"imported": res.Imported,
		"skipped":  res.Skipped,
	})
}

func (a *api) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Settings())
}

func (a *api) updateSettings(w http.ResponseWriter, r *http.Request) {
	var cfg models.SyncSettings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid settings payload", err))
		return
	}
	writeJSON(w, http.StatusOK, a.svc.UpdateSettings(cfg))
}
