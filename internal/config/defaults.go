package config

// Config file names searched in the project root.
const (
	ConfigFileName    = "spectra.yaml"
	ConfigFileNameAlt = "spectra.yml"

	// EnvFileName is the legacy flat key-value configuration file.
	EnvFileName = "spectra.env"
)

// Default configuration values.
const (
	DefaultDataDir   = "data"
	DefaultStateFile = ".spectra/state.db"
	DefaultEnv       = "dev"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown

	DefaultWarehouseType = "postgres"
	DefaultDBHost        = "localhost"
	DefaultDBPort        = 5432
	DefaultDBName        = "spectra"
	DefaultDBUser        = "spectra"

	DefaultSDSSBatchSize    = 500
	DefaultProcessWorkers   = 4
	DefaultProcessBatchSize = 256
	DefaultAnalyzeMinGroup  = 8
)

// defaultConfigMap returns the default configuration as a flat koanf map.
func defaultConfigMap() map[string]interface{} {
	return map[string]interface{}{
		"data_dir":               DefaultDataDir,
		"state_path":             DefaultStateFile,
		"environment":            DefaultEnv,
		"verbose":                false,
		"output":                 DefaultOutput,
		"warehouse.type":         DefaultWarehouseType,
		"warehouse.host":         DefaultDBHost,
		"warehouse.port":         DefaultDBPort,
		"warehouse.database":     DefaultDBName,
		"warehouse.user":         DefaultDBUser,
		"ingest.sdss_batch_size": DefaultSDSSBatchSize,
		"ingest.sources":         []string{"sdss", "lamost"},
		"process.workers":        DefaultProcessWorkers,
		"process.batch_size":     DefaultProcessBatchSize,
		"analyze.min_group":      DefaultAnalyzeMinGroup,
	}
}
