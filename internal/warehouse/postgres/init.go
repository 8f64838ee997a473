// This file registers the PostgreSQL driver with the warehouse registry.
// Import this package with a blank identifier to register the driver:
//
//	import _ "github.com/skysurvey-labs/spectra/internal/warehouse/postgres"
package postgres

import (
	"log/slog"

	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

func init() {
	warehouse.Register("postgres", func(logger *slog.Logger) warehouse.Driver { return New(logger) })
}
