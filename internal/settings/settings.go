// Package settings manages the process-wide sync configuration. Settings are
// resolved once at startup (defaults, then an optional YAML file, then
// whatever was last persisted), stay mutable at runtime behind a mutex, and
// are written back to the key-value store on every change.
package settings

import (
	"encoding/json"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
)

// Manager owns the live SyncSettings value.
type Manager struct {
	kv kv.Store

	mu      sync.RWMutex
	current models.SyncSettings
}

// NewManager resolves the startup settings. filePath may be empty; a missing
// or unreadable file falls back to defaults, and a previously persisted
// settings object always wins over the file.
func NewManager(store kv.Store, filePath string) *Manager {
	m := &Manager{kv: store, current: models.DefaultSyncSettings()}

	if filePath != "" {
		if fromFile, err := loadFile(filePath); err != nil {
			logging.Warn("failed to load settings file, using defaults",
				map[string]interface{}{"path": filePath, "error": err.Error()})
		} else {
			m.current = fromFile
		}
	}

	if persisted, ok := m.loadPersisted(); ok {
		m.current = persisted
	}

	m.current = normalize(m.current)
	return m
}

// loadFile reads SyncSettings from a YAML file, applying defaults for
// unspecified fields.
func loadFile(path string) (models.SyncSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SyncSettings{}, err
	}
	s := models.DefaultSyncSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return models.SyncSettings{}, err
	}
	return s, nil
}

// loadPersisted reads the last persisted settings from the key-value store.
func (m *Manager) loadPersisted() (models.SyncSettings, bool) {
	data, ok, err := m.kv.Get(kv.KeySettings)
	if err != nil {
		logging.Error("failed to load persisted settings, using defaults",
			errors.Wrap(errors.ErrStorageRead, "load settings", err))
		return models.SyncSettings{}, false
	}
	if !ok {
		return models.SyncSettings{}, false
	}

	var s models.SyncSettings
	if err := json.Unmarshal(data, &s); err != nil {
		logging.Error("corrupt persisted settings, using defaults",
			errors.Wrap(errors.ErrStorageRead, "decode settings", err))
		return models.SyncSettings{}, false
	}
	return s, true
}

// normalize clamps out-of-range values back to usable ones.
func normalize(s models.SyncSettings) models.SyncSettings {
	def := models.DefaultSyncSettings()
	if s.MaxRetries < 0 {
		s.MaxRetries = def.MaxRetries
	}
	if s.RetryDelayMs <= 0 {
		s.RetryDelayMs = def.RetryDelayMs
	}
	if s.BatchSize <= 0 {
		s.BatchSize = def.BatchSize
	}
	switch s.DefaultResolution {
	case models.PolicyAsk, models.PolicyMerge, models.PolicyReplace, models.PolicyKeepBoth:
	default:
		s.DefaultResolution = def.DefaultResolution
	}
	return s
}

// Get returns the current settings value.
func (m *Manager) Get() models.SyncSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update replaces the current settings and persists them. Persistence is
// best effort: a failed write keeps the in-memory value live.
func (m *Manager) Update(s models.SyncSettings) models.SyncSettings {
	s = normalize(s)

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		logging.Error("failed to encode settings",
			errors.Wrap(errors.ErrStorageWrite, "encode settings", err))
		return s
	}
	if err := m.kv.Set(kv.KeySettings, data); err != nil {
		logging.Error("failed to persist settings, continuing",
			errors.Wrap(errors.ErrStorageWrite, "persist settings", err))
	}
	return s
}
