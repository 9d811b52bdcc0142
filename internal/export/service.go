// Package export produces and restores portable archives of the local
// record collection, for transfer between field devices or off-device
// backup. An archive is a gzip-compressed JSON document with an embedded
// manifest and integrity checksum.
package export

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/store"
)

// FormatVersion is bumped when the archive layout changes incompatibly.
const FormatVersion = 1

// Manifest describes an archive's contents.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	ExportedAt    int64  `json:"exported_at"`
	RecordCount   int    `json:"record_count"`
	Checksum      string `json:"checksum"`
}

// archive is the on-disk document: manifest plus records. The checksum in
// the manifest covers the serialized records array only.
type archive struct {
	Manifest Manifest                `json:"manifest"`
	Records  []*models.OfflineRecord `json:"records"`
}

// Result summarizes one completed export.
type Result struct {
	RecordCount int
	Checksum    string
	ExportedAt  int64
}

// ImportResult summarizes one completed import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Service exports and imports record archives against a record store.
type Service struct {
	records *store.RecordStore
}

// NewService creates an export service.
func NewService(records *store.RecordStore) *Service {
	return &Service{records: records}
}

// Export writes the full record collection to w as a compressed archive.
func (s *Service) Export(w io.Writer) (*Result, error) {
	records := s.records.List()

	serialized, err := json.Marshal(records)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to serialize records", err)
	}
	sum := sha256.Sum256(serialized)

	doc := archive{
		Manifest: Manifest{
			FormatVersion: FormatVersion,
			ExportedAt:    time.Now().Unix(),
			RecordCount:   len(records),
			Checksum:      hex.EncodeToString(sum[:]),
		},
		Records: records,
	}

	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		return nil, errors.Wrap(errors.ErrInternal, "failed to write archive", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to finish archive", err)
	}

	return &Result{
		RecordCount: doc.Manifest.RecordCount,
		Checksum:    doc.Manifest.Checksum,
		ExportedAt:  doc.Manifest.ExportedAt,
	}, nil
}

// Import restores records from an archive. Records whose local ID already
// exists in the store are skipped; the importing device keeps its copy.
func (s *Service) Import(r io.Reader) (*ImportResult, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "not a valid archive", err)
	}
	defer zr.Close()

	var doc archive
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to decode archive", err)
	}
	if doc.Manifest.FormatVersion != FormatVersion {
		return nil, errors.Newf(errors.ErrInvalid, "unsupported archive format version %d", doc.Manifest.FormatVersion)
	}

	serialized, err := json.Marshal(doc.Records)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to reserialize records", err)
	}
	sum := sha256.Sum256(serialized)
	if hex.EncodeToString(sum[:]) != doc.Manifest.Checksum {
		return nil, errors.New(errors.ErrInvalid, "archive checksum mismatch")
	}

	out := &ImportResult{}
	for _, rec := range doc.Records {
		if _, exists := s.records.Get(rec.LocalID); exists {
			out.Skipped++
			continue
		}
		if err := s.records.Restore(rec); err != nil {
			return out, errors.Wrap(errors.ErrInternal, "failed to restore record "+rec.LocalID, err)
		}
		out.Imported++
	}
	return out, nil
}
