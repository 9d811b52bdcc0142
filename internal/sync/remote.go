package sync

import (
	"context"

	"github.com/jcarville/intelsync/internal/models"
)

// Credential is an opaque value handed through to the remote service on
// each submission. The engine never inspects it.
type Credential interface{}

// Submitter is the remote submission service. Submit publishes one record
// and returns the remote receipt; FetchAll returns the currently published
// record set used for conflict detection.
type Submitter interface {
	Submit(ctx context.Context, record *models.OfflineRecord, credential Credential) (string, error)
	FetchAll(ctx context.Context) ([]models.RemoteRecord, error)
}
