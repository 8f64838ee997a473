package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/ingest"
	"github.com/skysurvey-labs/spectra/internal/process"
)

// ProcessOptions holds options for the process command.
type ProcessOptions struct {
	Workers int
}

// NewProcessCommand creates the process command.
func NewProcessCommand() *cobra.Command {
	opts := &ProcessOptions{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Fit line centers for pending spectra",
		Long: `Scan warehouse rows whose fitted line centers are NULL, load their
raw samples, fit the H-alpha and H-beta centers with a worker pool, and
write the results back.

Spectra that cannot be fitted (missing samples, no significant peak,
window outside coverage) are skipped and reported; they stay pending.
Continuum-normalized copies of fitted spectra go to data/processed.`,
		Example: `  # Process all pending spectra
  spectra process

  # Override the worker count
  spectra process --workers 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Worker pool size (default: process.workers from config)")

	return cmd
}

func runProcess(cmd *cobra.Command, opts *ProcessOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	wh, err := cc.Warehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	raw, err := ingest.NewRawStore(cc.Cfg.RawDir())
	if err != nil {
		return err
	}
	processed, err := ingest.NewRawStore(cc.Cfg.ProcessedDir())
	if err != nil {
		return err
	}

	workers := cc.Cfg.Process.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	runner := process.NewRunner(cc.Store, wh, raw, processed, process.Options{
		Workers:   workers,
		BatchSize: cc.Cfg.Process.BatchSize,
	}, cc.Logger)

	result, runErr := runner.Run(ctx, cc.Cfg.Warehouse.Type)
	if result != nil {
		if err := renderProcessResult(cc.Renderer, result, runErr); err != nil {
			return err
		}
	}
	return runErr
}

func renderProcessResult(r *output.Renderer, result *process.Result, runErr error) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}

	r.Printf("Fitted:  %d\n", result.Fitted)
	r.Printf("Skipped: %d\n", result.Skipped)
	r.Printf("Batches: %d\n", result.Batches)

	if len(result.Errors) > 0 {
		r.Println("")
		r.Header(2, "Skipped spectra")
		for _, f := range result.Errors {
			r.StatusLine(fmt.Sprintf("spec_id %d", f.SpecID), "warn", f.Error)
		}
		if int64(len(result.Errors)) < result.Skipped {
			r.Println(r.Styles().Muted.Render(
				fmt.Sprintf("  ... and %d more", result.Skipped-int64(len(result.Errors)))))
		}
	}

	r.Println("")
	if runErr == nil {
		r.Success(fmt.Sprintf("Processing %s completed: %d spectra fitted", result.RunID, result.Fitted))
	}
	return nil
}
