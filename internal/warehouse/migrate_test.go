package warehouse

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The spectra DDL is the one contract shared with every other consumer of
// the warehouse; these tests pin it down: nine columns, spec_id as primary
// key, and exactly two secondary indexes.

var columnRe = regexp.MustCompile(`(?m)^\s*"?(\w+)"?\s+(BIGINT|DOUBLE PRECISION|VARCHAR\(20\)|TIMESTAMP)`)

func tableColumns(t *testing.T, ddl string) []string {
	t.Helper()
	start := strings.Index(ddl, "(")
	end := strings.LastIndex(ddl, ");")
	require.Greater(t, end, start, "DDL should contain a CREATE TABLE body")

	var cols []string
	for _, m := range columnRe.FindAllStringSubmatch(ddl[start:end], -1) {
		cols = append(cols, m[1])
	}
	return cols
}

func TestMigrationDeclaresSpectraSchema(t *testing.T) {
	data, err := migrations.ReadFile("migrations/00001_create_spectra.sql")
	require.NoError(t, err)

	up, _, found := strings.Cut(string(data), "-- +goose Down")
	require.True(t, found, "migration should have a Down section")

	cols := tableColumns(t, up)
	assert.Equal(t, []string{
		"spec_id", "ra", "dec", "redshift", "snr",
		"environment", "h_alpha_center", "h_beta_center", "created_at",
	}, cols)

	assert.Contains(t, up, "spec_id BIGINT PRIMARY KEY")
	assert.Contains(t, up, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")

	indexes := regexp.MustCompile(`CREATE INDEX (\w+) ON spectra\((\w+)\)`).FindAllStringSubmatch(up, -1)
	require.Len(t, indexes, 2, "exactly two secondary indexes")
	assert.Equal(t, "idx_environment", indexes[0][1])
	assert.Equal(t, "environment", indexes[0][2])
	assert.Equal(t, "idx_redshift", indexes[1][1])
	assert.Equal(t, "redshift", indexes[1][2])
}

func TestSchemaSQLMirrorsMigration(t *testing.T) {
	ddl := SchemaSQL()

	cols := tableColumns(t, ddl)
	assert.Equal(t, []string{
		"spec_id", "ra", "dec", "redshift", "snr",
		"environment", "h_alpha_center", "h_beta_center", "created_at",
	}, cols)

	// Direct-apply DDL must be idempotent.
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS spectra")
	assert.Equal(t, 2, strings.Count(ddl, "CREATE INDEX IF NOT EXISTS"))
	assert.Contains(t, ddl, "idx_environment")
	assert.Contains(t, ddl, "idx_redshift")
}
