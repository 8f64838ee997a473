package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// SetupOptions holds options for the setup command.
type SetupOptions struct {
	Bootstrap bool
}

// NewSetupCommand creates the setup command.
func NewSetupCommand() *cobra.Command {
	opts := &SetupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the warehouse schema",
		Long: `Ensure the spectra table and its indexes exist in the warehouse.

With --bootstrap, the pipeline role and database are first created using
the configured admin credentials. DuckDB targets need no bootstrap; the
database file is created on first connect.`,
		Example: `  # Apply migrations to an existing database
  spectra setup

  # Create role and database first, then apply migrations
  spectra setup --bootstrap

  # Set up a local DuckDB file instead
  spectra setup --target duckdb`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Bootstrap, "bootstrap", false, "Create the role and database with admin credentials first")

	return cmd
}

func runSetup(cmd *cobra.Command, opts *SetupOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := cc.Store.CreateRun(state.StageSetup, cc.Cfg.Warehouse.Type)
	if err != nil {
		return err
	}

	if err := setupWarehouse(cmd, cc, opts); err != nil {
		_ = cc.Store.CompleteRun(run.ID, state.RunStatusFailed, 0, err.Error())
		return err
	}
	return cc.Store.CompleteRun(run.ID, state.RunStatusCompleted, 0, "")
}

func setupWarehouse(cmd *cobra.Command, cc *CommandContext, opts *SetupOptions) error {
	ctx := cmd.Context()
	whCfg := cc.Cfg.Warehouse
	r := cc.Renderer

	wh, err := warehouse.New(whCfg.DriverConfig(), cc.Logger)
	if err != nil {
		return err
	}

	if opts.Bootstrap {
		if whCfg.AdminUser == "" && whCfg.Type == "postgres" {
			return fmt.Errorf("bootstrap requires admin credentials\nHint: Set warehouse.admin_user in spectra.yaml or DB_ADMIN_USER in spectra.env")
		}
		if err := wh.Bootstrap(ctx, whCfg.DriverConfig(), whCfg.AdminDriverConfig()); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		r.StatusLine("role and database", "success", "")
	}

	if err := wh.Connect(ctx, whCfg.DriverConfig()); err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	if err := wh.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	meta, err := wh.TableMetadata(ctx, warehouse.TableName)
	if err != nil {
		return fmt.Errorf("schema verification failed: %w", err)
	}

	r.StatusLine(fmt.Sprintf("table %s", meta.Name), "success",
		fmt.Sprintf("%d columns, %d indexes", len(meta.Columns), len(meta.Indexes)))
	r.Println("")
	r.Success(fmt.Sprintf("Warehouse ready (%s)", whCfg.Type))
	return nil
}
