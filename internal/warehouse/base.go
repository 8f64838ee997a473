package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/skysurvey-labs/spectra/internal/survey"
)

// spectrumColumns is the column list used by every row-returning query.
// "dec" is quoted because DuckDB treats it as a type keyword.
const spectrumColumns = `spec_id, ra, "dec", redshift, snr, environment, h_alpha_center, h_beta_center, created_at`

// BaseDriver provides common database/sql functionality for drivers.
// Embed this struct in concrete driver implementations to get standard
// Close, Ping, and spectra query implementations. The SQL uses $N
// placeholders, which both PostgreSQL and DuckDB accept.
type BaseDriver struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseDriver) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing warehouse connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Ping verifies the connection is alive.
func (b *BaseDriver) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	return b.DB.PingContext(ctx)
}

// IsConnected returns true if the connection is established.
func (b *BaseDriver) IsConnected() bool {
	return b.DB != nil
}

// InsertSpectra inserts rows one statement at a time inside a transaction,
// skipping spec_ids that already exist. Drivers with a faster bulk path
// (PostgreSQL COPY) override this.
func (b *BaseDriver) InsertSpectra(ctx context.Context, rows []survey.Spectrum) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("warehouse connection not established")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spectra (spec_id, ra, "dec", redshift, environment)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (spec_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r.SpecID, r.RA, r.Dec, r.Redshift, r.Environment)
		if err != nil {
			return 0, fmt.Errorf("failed to insert spectrum %d: %w", r.SpecID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit inserts: %w", err)
	}
	return inserted, nil
}

// PendingFits returns up to limit rows whose line centers are NULL.
func (b *BaseDriver) PendingFits(ctx context.Context, limit int) ([]survey.Spectrum, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	query := fmt.Sprintf(`SELECT %s FROM spectra
		WHERE h_alpha_center IS NULL OR h_beta_center IS NULL
		ORDER BY spec_id LIMIT $1`, spectrumColumns)

	rows, err := b.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending fits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSpectra(rows)
}

// SaveFit writes fitted line centers and the SNR estimate for one row.
func (b *BaseDriver) SaveFit(ctx context.Context, specID int64, hAlpha, hBeta, snr float64) error {
	if b.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}

	res, err := b.DB.ExecContext(ctx,
		`UPDATE spectra SET h_alpha_center = $1, h_beta_center = $2, snr = $3 WHERE spec_id = $4`,
		hAlpha, hBeta, snr, specID)
	if err != nil {
		return fmt.Errorf("failed to save fit for spectrum %d: %w", specID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("spectrum %d not found", specID)
	}
	return nil
}

// Measurements returns all rows that have been processed.
func (b *BaseDriver) Measurements(ctx context.Context) ([]survey.Spectrum, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	query := fmt.Sprintf(`SELECT %s FROM spectra
		WHERE h_alpha_center IS NOT NULL AND h_beta_center IS NOT NULL
		ORDER BY spec_id`, spectrumColumns)

	rows, err := b.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSpectra(rows)
}

// CountSpectra summarizes the table for status reporting.
func (b *BaseDriver) CountSpectra(ctx context.Context) (*Counts, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	var c Counts
	err := b.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE h_alpha_center IS NULL OR h_beta_center IS NULL)
		 FROM spectra`).Scan(&c.Total, &c.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count spectra: %w", err)
	}
	c.Processed = c.Total - c.Pending
	return &c, nil
}

// ColumnsCommon retrieves column metadata via information_schema, which
// both PostgreSQL and DuckDB expose.
func (b *BaseDriver) ColumnsCommon(ctx context.Context, table string) ([]Column, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	rows, err := b.DB.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return columns, nil
}

// RowCount returns the number of rows in a table. Errors are swallowed;
// metadata callers treat the count as best-effort.
func (b *BaseDriver) RowCount(ctx context.Context, table string) int64 {
	if b.DB == nil {
		return 0
	}
	var n int64
	//nolint:gosec // table names come from callers inside this module
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := b.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0
	}
	return n
}

// scanSpectra reads spectrum rows from a result set in spectrumColumns order.
func scanSpectra(rows *sql.Rows) ([]survey.Spectrum, error) {
	var out []survey.Spectrum
	for rows.Next() {
		var s survey.Spectrum
		var snr, hAlpha, hBeta sql.NullFloat64
		if err := rows.Scan(&s.SpecID, &s.RA, &s.Dec, &s.Redshift, &snr,
			&s.Environment, &hAlpha, &hBeta, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spectrum row: %w", err)
		}
		if snr.Valid {
			v := snr.Float64
			s.SNR = &v
		}
		if hAlpha.Valid {
			v := hAlpha.Float64
			s.HAlphaCenter = &v
		}
		if hBeta.Valid {
			v := hBeta.Float64
			s.HBetaCenter = &v
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spectrum rows: %w", err)
	}
	return out, nil
}
