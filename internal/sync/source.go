package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"poke-backend/internal/model"
)

// HTTPSource pulls snapshots from the server's reconciliation endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTPSource for the given server base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Pull implements Source.
func (s *HTTPSource) Pull(ctx context.Context, accountID int64) (*model.Snapshot, error) {
	url := fmt.Sprintf("%s/api/accounts/%d/snapshot", s.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to pull snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot pull returned status %d", resp.StatusCode)
	}

	var snapshot model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}
