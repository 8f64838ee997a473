// Package postgres provides the PostgreSQL warehouse driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// Driver implements the warehouse.Driver interface for PostgreSQL.
type Driver struct {
	warehouse.BaseDriver
}

// New creates a new PostgreSQL driver instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		BaseDriver: warehouse.BaseDriver{Logger: logger},
	}
}

// Connect establishes a connection to PostgreSQL.
func (d *Driver) Connect(ctx context.Context, cfg warehouse.Config) error {
	dsn := buildDSN(cfg)

	d.Logger.Debug("connecting to postgres",
		slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	d.DB = db
	d.Cfg = cfg
	return nil
}

// buildDSN constructs a PostgreSQL connection string.
func buildDSN(cfg warehouse.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.User)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}

	return dsn
}

// Bootstrap creates the pipeline role and database if they do not exist,
// connecting with admin credentials against the maintenance database.
// It runs before Connect, so the target config is passed explicitly.
func (d *Driver) Bootstrap(ctx context.Context, target, admin warehouse.Config) error {
	if target.Database == "" {
		return fmt.Errorf("target database not configured")
	}

	adminDB, err := sql.Open("pgx", buildDSN(admin))
	if err != nil {
		return fmt.Errorf("failed to open admin connection: %w", err)
	}
	defer func() { _ = adminDB.Close() }()

	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres as admin: %w", err)
	}

	var exists bool
	err = adminDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, target.User).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !exists {
		d.Logger.Info("creating role", slog.String("role", target.User))
		// Identifiers cannot be parameterized; they come from validated config.
		stmt := fmt.Sprintf(`CREATE ROLE %s LOGIN PASSWORD '%s'`,
			pgx.Identifier{target.User}.Sanitize(), escapeLiteral(target.Password))
		if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create role %s: %w", target.User, err)
		}
	}

	err = adminDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, target.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database: %w", err)
	}
	if !exists {
		d.Logger.Info("creating database", slog.String("database", target.Database))
		stmt := fmt.Sprintf(`CREATE DATABASE %s OWNER %s`,
			pgx.Identifier{target.Database}.Sanitize(),
			pgx.Identifier{target.User}.Sanitize())
		if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create database %s: %w", target.Database, err)
		}
	}

	return nil
}

// EnsureSchema runs the embedded goose migrations.
func (d *Driver) EnsureSchema(ctx context.Context) error {
	if d.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	_ = ctx
	return warehouse.MigrateWithDB(d.DB)
}

// InsertSpectra bulk-loads rows with COPY into a temp table, then moves them
// into spectra skipping spec_ids that already exist.
func (d *Driver) InsertSpectra(ctx context.Context, rows []survey.Spectrum) (int64, error) {
	if d.DB == nil {
		return 0, fmt.Errorf("warehouse connection not established")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := d.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	_, err = conn.ExecContext(ctx, `
		CREATE TEMP TABLE spectra_stage (
			spec_id BIGINT,
			ra DOUBLE PRECISION,
			dec DOUBLE PRECISION,
			redshift DOUBLE PRECISION,
			environment VARCHAR(20)
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create staging table: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(ctx, `DROP TABLE IF EXISTS spectra_stage`) }()

	// Use the raw pgx connection for COPY support
	err = conn.Raw(func(driverConn any) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()

		src := make([][]any, 0, len(rows))
		for _, r := range rows {
			src = append(src, []any{r.SpecID, r.RA, r.Dec, r.Redshift, r.Environment})
		}

		_, err := pgxConn.CopyFrom(ctx,
			pgx.Identifier{"spectra_stage"},
			[]string{"spec_id", "ra", "dec", "redshift", "environment"},
			pgx.CopyFromRows(src))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows: %w", err)
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO spectra (spec_id, ra, dec, redshift, environment)
		SELECT spec_id, ra, dec, redshift, environment FROM spectra_stage
		ON CONFLICT (spec_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to merge staged rows: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count inserted rows: %w", err)
	}
	return inserted, nil
}

// TableMetadata retrieves column and index metadata for a table.
func (d *Driver) TableMetadata(ctx context.Context, table string) (*warehouse.TableMetadata, error) {
	columns, err := d.ColumnsCommon(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.QueryContext(ctx,
		`SELECT indexname FROM pg_indexes WHERE tablename = $1 ORDER BY indexname`, table)
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

// escapeLiteral doubles single quotes for embedding in a SQL literal.
func escapeLiteral(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(out)
}

// Ensure Driver implements the warehouse.Driver interface
var _ warehouse.Driver = (*Driver)(nil)
