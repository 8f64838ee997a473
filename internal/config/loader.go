package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in command context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for
// config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
	envFileUsed    string
	envWarnings    []EnvFileWarning
	currentConfig  *Config
)

// findConfigFile finds the config file to use.
// Priority: explicit path > spectra.yaml > spectra.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// configExistsIn checks if a spectra config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt, EnvFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a spectra config
// file. Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Search upward from CWD for a config file
//  3. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	if flags != nil {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" && flags.Changed("project-dir") {
			abs, err := filepath.Abs(projectDir)
			if err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not
// absolute. Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	envFileUsed = ""
	envWarnings = nil
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest):
// flags > SPECTRA_* env vars > spectra.env > spectra.yaml > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	envFileUsed = ""
	envWarnings = nil

	projectRoot := inferProjectRoot(flags)

	// If an explicit config file is provided and no project-dir flag was
	// given, use its directory as project root.
	if cfgFile != "" && projectRoot == inferProjectRoot(nil) {
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaultConfigMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load the YAML config file
	if cfgFile == "" {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load the legacy flat env file, if present
	envFile := filepath.Join(projectRoot, EnvFileName)
	if _, err := os.Stat(envFile); err == nil {
		flat, warnings, err := loadEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		if err := k.Load(confmap.Provider(flat, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		envFileUsed = envFile
		envWarnings = warnings
	}

	// 4. Load environment variables (SPECTRA_ prefix)
	// Transform: SPECTRA_DATA_DIR -> data_dir,
	// SPECTRA_WAREHOUSE__HOST -> warehouse.host (double underscore nests)
	if err := k.Load(env.Provider("SPECTRA_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SPECTRA_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state for brevity; the config key is state_path
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			// --target selects the warehouse type
			if key == "target" {
				return "warehouse.type", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 6. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 7. Resolve paths relative to the project root
	cfg.ProjectRoot = projectRoot
	cfg.DataDir = resolvePathRelativeTo(cfg.DataDir, projectRoot)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	if cfg.Warehouse != nil && cfg.Warehouse.Type == "duckdb" {
		if cfg.Warehouse.Path == "" {
			cfg.Warehouse.Path = filepath.Join(projectRoot, "spectra.duckdb")
		} else {
			cfg.Warehouse.Path = resolvePathRelativeTo(cfg.Warehouse.Path, projectRoot)
		}
	}

	// A SPARK_MASTER of local[*] maps to zero workers; resolve to NumCPU.
	if cfg.Process.Workers == 0 {
		cfg.Process.Workers = runtime.NumCPU()
	}

	// Expand ${VAR} references in credential fields
	expandWarehouseEnvVars(cfg.Warehouse)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetEnvFileUsed returns the path of the legacy env file loaded, if any.
func GetEnvFileUsed() string {
	return envFileUsed
}

// GetEnvFileWarnings returns warnings produced while loading spectra.env.
func GetEnvFileWarnings() []EnvFileWarning {
	return envWarnings
}

// GetCurrentConfig returns the currently loaded configuration.
// Available after LoadConfig has been called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandWarehouseEnvVars expands environment variables in sensitive fields.
func expandWarehouseEnvVars(w *WarehouseConfig) {
	if w == nil {
		return
	}
	w.Host = expandEnvVars(w.Host)
	w.Database = expandEnvVars(w.Database)
	w.User = expandEnvVars(w.User)
	w.Password = expandEnvVars(w.Password)
	w.AdminUser = expandEnvVars(w.AdminUser)
	w.AdminPassword = expandEnvVars(w.AdminPassword)
}
