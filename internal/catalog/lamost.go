package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/skysurvey-labs/spectra/internal/survey"
)

// LAMOST fetches spectrum records from the LAMOST data release API,
// which requires an API key.
type LAMOST struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLAMOST creates a LAMOST catalog client.
func NewLAMOST(baseURL, apiKey string) (*LAMOST, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("lamost base URL is required\nHint: Set ingest.lamost_base_url in spectra.yaml")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("lamost API key is required\nHint: Set ingest.lamost_api_key or the LAMOST_API_KEY legacy key")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid lamost base URL %q: %w", baseURL, err)
	}
	return &LAMOST{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}, nil
}

// Name returns the source identifier.
func (l *LAMOST) Name() string {
	return survey.SourceLAMOST
}

// Fetch returns up to limit records starting at offset.
func (l *LAMOST) Fetch(ctx context.Context, offset int64, limit int) ([]survey.CatalogRecord, error) {
	u, err := url.Parse(l.baseURL + "/spectra")
	if err != nil {
		return nil, fmt.Errorf("failed to build lamost request URL: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lamost request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from lamost: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("lamost rejected the API key (status %d)\nHint: Check ingest.lamost_api_key", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Source: l.Name(), Code: resp.StatusCode}
	}

	var records []survey.CatalogRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode lamost response: %w", err)
	}
	return records, nil
}

// Ensure LAMOST implements the Source interface
var _ Source = (*LAMOST)(nil)
