// Package config provides configuration management for the spectra CLI.
// Configuration is layered: defaults, spectra.yaml, a legacy flat
// spectra.env file, SPECTRA_* environment variables, then CLI flags.
package config

import (
	"fmt"

	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// WarehouseConfig holds connection settings for the spectra warehouse.
type WarehouseConfig struct {
	Type string `koanf:"type"` // postgres, duckdb

	// File-based warehouses (DuckDB)
	Path string `koanf:"path"`

	// Network warehouses
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Admin credentials used only by `spectra setup` to create the
	// database and role when they do not exist yet.
	AdminUser     string `koanf:"admin_user"`
	AdminPassword string `koanf:"admin_password"`

	// Additional driver-specific options (e.g. sslmode)
	Options map[string]string `koanf:"options"`
}

// Validate checks if the warehouse configuration is valid.
// It uses the driver registry as the single source of truth for types.
func (w *WarehouseConfig) Validate() error {
	if w.Type == "" {
		return fmt.Errorf("warehouse type is required")
	}
	if !warehouse.IsRegistered(w.Type) {
		return &warehouse.UnknownDriverError{
			Type:      w.Type,
			Available: warehouse.ListDrivers(),
		}
	}
	return nil
}

// DriverConfig converts the warehouse section into the driver-level config.
func (w *WarehouseConfig) DriverConfig() warehouse.Config {
	return warehouse.Config{
		Type:     w.Type,
		Path:     w.Path,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		User:     w.User,
		Password: w.Password,
		Options:  w.Options,
	}
}

// AdminDriverConfig returns a driver config that connects with the admin
// credentials against the maintenance database.
func (w *WarehouseConfig) AdminDriverConfig() warehouse.Config {
	cfg := w.DriverConfig()
	cfg.User = w.AdminUser
	cfg.Password = w.AdminPassword
	cfg.Database = "postgres"
	return cfg
}

// IngestConfig holds catalog ingestion settings.
type IngestConfig struct {
	SDSSBaseURL   string   `koanf:"sdss_base_url"`
	LAMOSTBaseURL string   `koanf:"lamost_base_url"`
	LAMOSTAPIKey  string   `koanf:"lamost_api_key"`
	SDSSBatchSize int      `koanf:"sdss_batch_size"`
	Sources       []string `koanf:"sources"`
}

// ProcessConfig holds settings for the line-fitting stage.
type ProcessConfig struct {
	Workers   int `koanf:"workers"`
	BatchSize int `koanf:"batch_size"`
}

// AnalyzeConfig holds settings for the statistics stage.
type AnalyzeConfig struct {
	// MinGroup is the smallest environment group included in
	// significance tests. Smaller groups are still summarized.
	MinGroup int `koanf:"min_group"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string `koanf:"-"`
	DataDir      string `koanf:"data_dir"`
	StatePath    string `koanf:"state_path"`
	Environment  string `koanf:"environment"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	Warehouse *WarehouseConfig `koanf:"warehouse"`
	Ingest    IngestConfig     `koanf:"ingest"`
	Process   ProcessConfig    `koanf:"process"`
	Analyze   AnalyzeConfig    `koanf:"analyze"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Warehouse == nil {
		return fmt.Errorf("warehouse configuration is required")
	}
	if err := c.Warehouse.Validate(); err != nil {
		return err
	}
	if c.Ingest.SDSSBatchSize <= 0 {
		return fmt.Errorf("ingest.sdss_batch_size must be positive, got %d", c.Ingest.SDSSBatchSize)
	}
	if c.Process.Workers <= 0 {
		return fmt.Errorf("process.workers must be positive, got %d", c.Process.Workers)
	}
	if c.Process.BatchSize <= 0 {
		return fmt.Errorf("process.batch_size must be positive, got %d", c.Process.BatchSize)
	}
	return nil
}

// RawDir returns the directory holding raw catalog samples.
func (c *Config) RawDir() string {
	return c.DataDir + "/raw"
}

// ProcessedDir returns the directory holding normalized samples.
func (c *Config) ProcessedDir() string {
	return c.DataDir + "/processed"
}

// ResultsDir returns the directory holding analysis output.
func (c *Config) ResultsDir() string {
	return c.DataDir + "/results"
}
