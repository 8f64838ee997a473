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

// SDSS fetches spectrum records from an SDSS SkyServer-style endpoint.
type SDSS struct {
	baseURL string
	client  *http.Client
}

// NewSDSS creates an SDSS catalog client.
func NewSDSS(baseURL string) (*SDSS, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sdss base URL is required\nHint: Set ingest.sdss_base_url in spectra.yaml")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid sdss base URL %q: %w", baseURL, err)
	}
	return &SDSS{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}, nil
}

// Name returns the source identifier.
func (s *SDSS) Name() string {
	return survey.SourceSDSS
}

// Fetch returns up to limit records starting at offset.
func (s *SDSS) Fetch(ctx context.Context, offset int64, limit int) ([]survey.CatalogRecord, error) {
	u, err := url.Parse(s.baseURL + "/spectra")
	if err != nil {
		return nil, fmt.Errorf("failed to build sdss request URL: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdss request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from sdss: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Source: s.Name(), Code: resp.StatusCode}
	}

	var records []survey.CatalogRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode sdss response: %w", err)
	}
	return records, nil
}

// Ensure SDSS implements the Source interface
var _ Source = (*SDSS)(nil)
