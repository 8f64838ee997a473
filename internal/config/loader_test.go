package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/skysurvey-labs/spectra/internal/warehouse/postgres" // register driver
)

const testYAML = `data_dir: data
warehouse:
  type: postgres
  host: yaml-host
  port: 5432
  database: spectra
  user: spectra
  password: yaml-pass
ingest:
  sdss_base_url: https://sdss.example/api
  sdss_batch_size: 100
process:
  workers: 2
  batch_size: 64
`

func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	t.Chdir(dir)
	ResetConfig()
	t.Cleanup(ResetConfig)
	return dir
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := setupProject(t, map[string]string{ConfigFileName: testYAML})

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, "yaml-host", cfg.Warehouse.Host)
	assert.Equal(t, "yaml-pass", cfg.Warehouse.Password)
	assert.Equal(t, 100, cfg.Ingest.SDSSBatchSize)
	assert.Equal(t, 2, cfg.Process.Workers)
}

func TestLoadConfigDefaults(t *testing.T) {
	setupProject(t, map[string]string{ConfigFileName: "warehouse:\n  type: postgres\n"})

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDBHost, cfg.Warehouse.Host)
	assert.Equal(t, DefaultDBPort, cfg.Warehouse.Port)
	assert.Equal(t, DefaultSDSSBatchSize, cfg.Ingest.SDSSBatchSize)
	assert.Equal(t, DefaultProcessBatchSize, cfg.Process.BatchSize)
	assert.Equal(t, []string{"sdss", "lamost"}, cfg.Ingest.Sources)
}

func TestLoadConfigEnvFileOverridesYAML(t *testing.T) {
	setupProject(t, map[string]string{
		ConfigFileName: testYAML,
		EnvFileName:    "DB_HOST=env-host\nSPARK_MASTER=local[6]\nSPARK_DRIVER_MEMORY=4g\n",
	})

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Warehouse.Host)
	assert.Equal(t, 6, cfg.Process.Workers, "SPARK_MASTER workers should override yaml")

	warnings := GetEnvFileWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "SPARK_DRIVER_MEMORY", warnings[0].Key)
	assert.NotEmpty(t, GetEnvFileUsed())
}

func TestLoadConfigEnvVarsOverrideFiles(t *testing.T) {
	setupProject(t, map[string]string{
		ConfigFileName: testYAML,
		EnvFileName:    "DB_HOST=env-host\n",
	})
	t.Setenv("SPECTRA_WAREHOUSE__HOST", "envvar-host")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "envvar-host", cfg.Warehouse.Host)
}

func TestLoadConfigFlagsWin(t *testing.T) {
	setupProject(t, map[string]string{ConfigFileName: testYAML})
	t.Setenv("SPECTRA_DATA_DIR", "env-data")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", "", "")
	flags.String("target", "", "")
	require.NoError(t, flags.Set("data-dir", "flag-data"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "flag-data", filepath.Base(cfg.DataDir))
}

func TestLoadConfigSparkMasterAllCPUs(t *testing.T) {
	setupProject(t, map[string]string{
		ConfigFileName: testYAML,
		EnvFileName:    "SPARK_MASTER=local[*]\n",
	})

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Greater(t, cfg.Process.Workers, 0, "local[*] should resolve to NumCPU")
}

func TestLoadConfigExpandsCredentialVars(t *testing.T) {
	setupProject(t, map[string]string{
		ConfigFileName: `warehouse:
  type: postgres
  password: ${SPECTRA_TEST_DB_PASS}
`,
	})
	t.Setenv("SPECTRA_TEST_DB_PASS", "expanded")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "expanded", cfg.Warehouse.Password)
}

func TestLoadConfigRejectsUnknownWarehouseType(t *testing.T) {
	setupProject(t, map[string]string{ConfigFileName: "warehouse:\n  type: oracle\n"})

	_, err := LoadConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestLoadConfigRejectsBadBatchSize(t *testing.T) {
	setupProject(t, map[string]string{
		ConfigFileName: "warehouse:\n  type: postgres\ningest:\n  sdss_batch_size: -1\n",
	})

	_, err := LoadConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sdss_batch_size")
}

func TestFindProjectRootUpward(t *testing.T) {
	root := setupProject(t, map[string]string{ConfigFileName: testYAML})
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.ProjectRoot)
}
