// Package commands implements the spectra subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/config"
	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
	_ "github.com/skysurvey-labs/spectra/internal/warehouse/duckdb"   // register driver
	_ "github.com/skysurvey-labs/spectra/internal/warehouse/postgres" // register driver
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.Store
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an opened state store.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutState(cmd)

	store, err := openState(cc.Cfg)
	if err != nil {
		return nil, nil, err
	}
	cc.Store = store

	cleanup := func() {
		_ = store.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutState creates a CommandContext without opening
// the state store. Useful for commands that only read configuration.
func NewCommandContextWithoutState(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Warehouse connects a driver from the configured warehouse settings.
// The caller owns the connection and must Close it.
func (cc *CommandContext) Warehouse(ctx context.Context) (warehouse.Driver, error) {
	wh, err := warehouse.New(cc.Cfg.Warehouse.DriverConfig(), cc.Logger)
	if err != nil {
		return nil, err
	}
	if err := wh.Connect(ctx, cc.Cfg.Warehouse.DriverConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return wh, nil
}

// getConfig returns the current configuration, falling back to defaults
// when commands run without the root PersistentPreRunE (tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		DataDir:     config.DefaultDataDir,
		StatePath:   config.DefaultStateFile,
		Environment: config.DefaultEnv,
		Warehouse: &config.WarehouseConfig{
			Type:     config.DefaultWarehouseType,
			Host:     config.DefaultDBHost,
			Port:     config.DefaultDBPort,
			Database: config.DefaultDBName,
			User:     config.DefaultDBUser,
		},
		Ingest: config.IngestConfig{
			SDSSBatchSize: config.DefaultSDSSBatchSize,
			Sources:       []string{"sdss", "lamost"},
		},
		Process: config.ProcessConfig{
			Workers:   config.DefaultProcessWorkers,
			BatchSize: config.DefaultProcessBatchSize,
		},
		Analyze: config.AnalyzeConfig{MinGroup: config.DefaultAnalyzeMinGroup},
	}
}

// openState opens and migrates the local state store, creating its
// directory if needed.
func openState(cfg *config.Config) (*state.Store, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
