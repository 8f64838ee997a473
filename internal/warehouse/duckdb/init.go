// This file registers the DuckDB driver with the warehouse registry.
// Import this package with a blank identifier to register the driver:
//
//	import _ "github.com/skysurvey-labs/spectra/internal/warehouse/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

func init() {
	warehouse.Register("duckdb", func(logger *slog.Logger) warehouse.Driver { return New(logger) })
}
