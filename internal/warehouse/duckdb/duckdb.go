// Package duckdb provides a DuckDB warehouse driver for local runs that do
// not need a PostgreSQL server.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// Driver implements the warehouse.Driver interface for DuckDB.
type Driver struct {
	warehouse.BaseDriver
}

// New creates a new DuckDB driver instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		BaseDriver: warehouse.BaseDriver{Logger: logger},
	}
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (d *Driver) Connect(ctx context.Context, cfg warehouse.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	d.Logger.Debug("opening duckdb database", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	d.DB = db
	d.Cfg = cfg
	return nil
}

// Bootstrap is a no-op: DuckDB has no server, role, or database to create.
func (d *Driver) Bootstrap(_ context.Context, _, _ warehouse.Config) error {
	return nil
}

// EnsureSchema applies the spectra DDL directly. goose has no DuckDB
// dialect, so the schema uses IF NOT EXISTS instead of versioning.
func (d *Driver) EnsureSchema(ctx context.Context) error {
	if d.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	if _, err := d.DB.ExecContext(ctx, warehouse.SchemaSQL()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TableMetadata retrieves column and index metadata for a table.
func (d *Driver) TableMetadata(ctx context.Context, table string) (*warehouse.TableMetadata, error) {
	columns, err := d.ColumnsCommon(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.QueryContext(ctx,
		`SELECT index_name FROM duckdb_indexes() WHERE table_name = $1 ORDER BY index_name`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		indexes = append(indexes, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}

	return &warehouse.TableMetadata{
		Name:     table,
		Columns:  columns,
		Indexes:  indexes,
		RowCount: d.RowCount(ctx, table),
	}, nil
}

// Ensure Driver implements the warehouse.Driver interface
var _ warehouse.Driver = (*Driver)(nil)
