// Package warehouse provides the database driver interface and shared
// implementation for the spectra warehouse.
//
// Concrete drivers live in subdirectories and register themselves with the
// factory registry in their init() functions.
package warehouse

import (
	"context"

	"github.com/skysurvey-labs/spectra/internal/survey"
)

// TableName is the one table the pipeline owns.
const TableName = "spectra"

// Config holds driver-level connection settings.
type Config struct {
	Type string

	// File-based warehouses (DuckDB)
	Path string

	// Network warehouses
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// Additional driver-specific options (e.g. sslmode)
	Options map[string]string
}

// Column describes one column of a warehouse table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata describes a warehouse table.
type TableMetadata struct {
	Name     string
	Columns  []Column
	Indexes  []string
	RowCount int64
}

// Counts summarizes the spectra table for status reporting.
type Counts struct {
	Total     int64
	Pending   int64 // rows without fitted line centers
	Processed int64
}

// Driver defines the interface that all warehouse drivers must implement.
type Driver interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Bootstrap creates the target database and role if they do not
	// exist, connecting with admin credentials. It runs before Connect,
	// so the target is passed explicitly. Drivers without a server
	// (DuckDB) treat this as a no-op.
	Bootstrap(ctx context.Context, target, admin Config) error

	// EnsureSchema creates the spectra table and its indexes if missing.
	EnsureSchema(ctx context.Context) error

	// InsertSpectra bulk-inserts rows, skipping spec_ids that already
	// exist. Returns the number of rows actually inserted.
	InsertSpectra(ctx context.Context, rows []survey.Spectrum) (int64, error)

	// PendingFits returns up to limit rows whose line centers are NULL.
	PendingFits(ctx context.Context, limit int) ([]survey.Spectrum, error)

	// SaveFit writes fitted line centers and the SNR estimate for one row.
	SaveFit(ctx context.Context, specID int64, hAlpha, hBeta, snr float64) error

	// Measurements returns all rows that have been processed.
	Measurements(ctx context.Context) ([]survey.Spectrum, error)

	// CountSpectra summarizes the table for status reporting.
	CountSpectra(ctx context.Context) (*Counts, error)

	// TableMetadata retrieves column and index metadata for a table.
	TableMetadata(ctx context.Context, table string) (*TableMetadata, error)
}
