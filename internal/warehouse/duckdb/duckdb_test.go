package duckdb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

func newMockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d := New(nil)
	d.DB = db
	return d, mock
}

func TestDriverRegistered(t *testing.T) {
	d, err := warehouse.New(warehouse.Config{Type: "duckdb"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Driver{}, d)
}

func TestBootstrapIsNoOp(t *testing.T) {
	d := New(nil)
	assert.NoError(t, d.Bootstrap(context.Background(), warehouse.Config{}, warehouse.Config{}))
}

func TestEnsureSchemaAppliesDDL(t *testing.T) {
	d, mock := newMockDriver(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS spectra").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, d.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaNotConnected(t *testing.T) {
	d := New(nil)

	err := d.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")
}

func TestTableMetadata(t *testing.T) {
	d, mock := newMockDriver(t)

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("spectra").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("spec_id", "BIGINT", "NO", 1).
			AddRow("ra", "DOUBLE", "YES", 2).
			AddRow("environment", "VARCHAR", "YES", 3))
	mock.ExpectQuery("SELECT index_name FROM duckdb_indexes").
		WithArgs("spectra").
		WillReturnRows(sqlmock.NewRows([]string{"index_name"}).
			AddRow("idx_environment").
			AddRow("idx_redshift"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	meta, err := d.TableMetadata(context.Background(), "spectra")
	require.NoError(t, err)

	assert.Equal(t, "spectra", meta.Name)
	require.Len(t, meta.Columns, 3)
	assert.Equal(t, "spec_id", meta.Columns[0].Name)
	assert.False(t, meta.Columns[0].Nullable)
	assert.True(t, meta.Columns[1].Nullable)
	assert.Equal(t, []string{"idx_environment", "idx_redshift"}, meta.Indexes)
	assert.Equal(t, int64(42), meta.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableMetadataMissingTable(t *testing.T) {
	d, mock := newMockDriver(t)

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}))

	_, err := d.TableMetadata(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
