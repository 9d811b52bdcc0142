package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jcarville/intelsync/internal/errors"
	"github.com/jcarville/intelsync/internal/models"
)

// defaultRemoteTimeout caps each remote call; the engine never blocks a run
// on a hung submission longer than this.
const defaultRemoteTimeout = 30 * time.Second

// HTTPSubmitter publishes records to a remote ledger over HTTP. Submissions
// POST to {base}/records; the published set is read from GET {base}/records.
// The credential is forwarded as a bearer token without interpretation.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSubmitter creates a submitter for the given base URL. client may be
// nil; a client with the default timeout is used then.
func NewHTTPSubmitter(baseURL string, client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &HTTPSubmitter{baseURL: baseURL, client: client}
}

// submissionPayload is the wire shape of one published record.
type submissionPayload struct {
	LocalID   string   `json:"local_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
}

type submissionResponse struct {
	Receipt string `json:"receipt"`
}

// Submit publishes one record and returns the remote receipt.
func (s *HTTPSubmitter) Submit(ctx context.Context, rec *models.OfflineRecord, credential Credential) (string, error) {
	body, err := json.Marshal(submissionPayload{
		LocalID:   rec.LocalID,
		Title:     rec.Title,
		Content:   rec.Content,
		Tags:      rec.Tags,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Timestamp: rec.Timestamp,
		Author:    rec.Author,
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrSyncSubmission, "failed to encode record", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/records", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.ErrSyncSubmission, "failed to build submission request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := credential.(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.ErrSyncSubmission, "submission request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Newf(errors.ErrSyncSubmission, "remote rejected submission with status %d", resp.StatusCode)
	}

	var out submissionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", errors.Wrap(errors.ErrSyncSubmission, "failed to decode submission response", err)
	}
	if out.Receipt == "" {
		return "", errors.New(errors.ErrSyncSubmission, "remote returned no receipt")
	}
	return out.Receipt, nil
}

// FetchAll returns the currently published record set.
func (s *HTTPSubmitter) FetchAll(ctx context.Context) ([]models.RemoteRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/records", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote returned status %d for fetch", resp.StatusCode)
	}

	var out []models.RemoteRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode remote record set: %w", err)
	}
	return out, nil
}
