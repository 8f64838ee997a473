package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/catalog"
	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/config"
	"github.com/skysurvey-labs/spectra/internal/ingest"
	"github.com/skysurvey-labs/spectra/internal/survey"
)

// IngestOptions holds options for the ingest command.
type IngestOptions struct {
	Sources    string
	MaxRecords int64
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch catalog records into the warehouse",
		Long: `Fetch spectrum records in batches from the configured catalogs,
store their raw samples under data/raw, and bulk-insert rows into the
spectra table.

Each source keeps a cursor in the local state store, so an interrupted
ingest resumes where it stopped. Records whose spec_id already exists
are skipped, not treated as errors.`,
		Example: `  # Ingest from all configured sources
  spectra ingest

  # Ingest from SDSS only
  spectra ingest --source sdss

  # Cap the records fetched per source
  spectra ingest --max-records 1000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Sources, "source", "s", "", "Comma-separated sources to ingest (default: all configured)")
	cmd.Flags().Int64Var(&opts.MaxRecords, "max-records", 0, "Stop after this many records per source (0 = until exhausted)")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	sources, err := buildSources(cc.Cfg, opts.Sources)
	if err != nil {
		return err
	}

	wh, err := cc.Warehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	raw, err := ingest.NewRawStore(cc.Cfg.RawDir())
	if err != nil {
		return err
	}

	runner := ingest.NewRunner(cc.Store, wh, raw, ingest.Options{
		BatchSize:  cc.Cfg.Ingest.SDSSBatchSize,
		MaxRecords: opts.MaxRecords,
	}, cc.Logger)

	result, runErr := runner.Run(ctx, cc.Cfg.Warehouse.Type, sources)
	if result != nil {
		if err := renderIngestResult(cc.Renderer, result, runErr); err != nil {
			return err
		}
	}
	return runErr
}

// buildSources constructs catalog clients for the requested source names.
func buildSources(cfg *config.Config, override string) ([]catalog.Source, error) {
	names := cfg.Ingest.Sources
	if override != "" {
		names = strings.Split(override, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no ingest sources configured\nHint: Set ingest.sources in spectra.yaml")
	}

	sources := make([]catalog.Source, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case survey.SourceSDSS:
			src, err := catalog.NewSDSS(cfg.Ingest.SDSSBaseURL)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case survey.SourceLAMOST:
			src, err := catalog.NewLAMOST(cfg.Ingest.LAMOSTBaseURL, cfg.Ingest.LAMOSTAPIKey)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		default:
			return nil, fmt.Errorf("unknown ingest source %q (known: sdss, lamost)", name)
		}
	}
	return sources, nil
}

func renderIngestResult(r *output.Renderer, result *ingest.Result, runErr error) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Out())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Fetched", "Inserted", "Batches"})
	for _, s := range result.Sources {
		t.AppendRow(table.Row{s.Source, s.Fetched, s.Inserted, s.Batches})
	}
	t.AppendFooter(table.Row{"total", result.Fetched(), result.Inserted(), ""})

	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}

	r.Println("")
	if runErr == nil {
		r.Success(fmt.Sprintf("Ingest %s completed: %d rows inserted", result.RunID, result.Inserted()))
	}
	return nil
}
