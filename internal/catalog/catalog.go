// Package catalog provides clients for the external survey catalogs that
// feed the ingestion stage.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/skysurvey-labs/spectra/internal/survey"
)

// userAgent identifies the pipeline to catalog servers.
const userAgent = "spectra-pipeline/1.0"

// Source is a paged catalog of spectrum records.
type Source interface {
	// Name returns the stable source identifier used for ingest cursors.
	Name() string

	// Fetch returns up to limit records starting at offset. An empty
	// result means the catalog is exhausted.
	Fetch(ctx context.Context, offset int64, limit int) ([]survey.CatalogRecord, error)
}

// newHTTPClient builds the shared client used by all catalog sources.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// StatusError is returned when a catalog responds with a non-2xx status.
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s catalog returned status %d", e.Source, e.Code)
}
