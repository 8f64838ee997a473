// Package ingest implements the catalog ingestion stage: fetch spectrum
// records in batches, persist raw samples to disk, bulk-insert rows into
// the warehouse, and advance per-source cursors so interrupted runs resume.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/skysurvey-labs/spectra/internal/catalog"
	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// rawWriteConcurrency bounds parallel raw-file writes within a batch.
const rawWriteConcurrency = 4

// Options configures an ingest run.
type Options struct {
	BatchSize  int
	MaxRecords int64 // stop after this many records per source; 0 = unlimited
}

// SourceResult summarizes ingestion from one catalog source.
type SourceResult struct {
	Source   string `json:"source"`
	Fetched  int64  `json:"fetched"`
	Inserted int64  `json:"inserted"`
	Batches  int    `json:"batches"`
}

// Result summarizes a whole ingest run.
type Result struct {
	RunID   string         `json:"run_id"`
	Sources []SourceResult `json:"sources"`
}

// Fetched returns the total records fetched across sources.
func (r *Result) Fetched() int64 {
	var n int64
	for _, s := range r.Sources {
		n += s.Fetched
	}
	return n
}

// Inserted returns the total rows inserted across sources.
func (r *Result) Inserted() int64 {
	var n int64
	for _, s := range r.Sources {
		n += s.Inserted
	}
	return n
}

// Runner drives the ingestion stage.
type Runner struct {
	store  *state.Store
	wh     warehouse.Driver
	raw    *RawStore
	logger *slog.Logger
	opts   Options
}

// NewRunner creates an ingest runner.
// If logger is nil, a discard logger is used.
func NewRunner(store *state.Store, wh warehouse.Driver, raw *RawStore, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		store:  store,
		wh:     wh,
		raw:    raw,
		logger: logger,
		opts:   opts,
	}
}

// Run ingests from all given sources, recording a pipeline run in the
// state store. The run fails as a whole if any source fails; completed
// batches stay committed and their cursors stay advanced.
func (r *Runner) Run(ctx context.Context, target string, sources []catalog.Source) (*Result, error) {
	run, err := r.store.CreateRun(state.StageIngest, target)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	r.logger.Info("starting ingest", "run_id", run.ID, "sources", len(sources))

	result := &Result{RunID: run.ID}
	for _, src := range sources {
		sr, err := r.runSource(ctx, src)
		if sr != nil {
			result.Sources = append(result.Sources, *sr)
		}
		if err != nil {
			_ = r.store.CompleteRun(run.ID, state.RunStatusFailed, result.Inserted(), err.Error())
			r.logger.Error("ingest failed", "run_id", run.ID, "source", src.Name(), "error", err.Error())
			return result, err
		}
	}

	if err := r.store.CompleteRun(run.ID, state.RunStatusCompleted, result.Inserted(), ""); err != nil {
		return result, err
	}
	r.logger.Info("ingest completed", "run_id", run.ID, "inserted", result.Inserted())
	return result, nil
}

// runSource ingests batches from one catalog until it is exhausted or the
// per-source record cap is reached.
func (r *Runner) runSource(ctx context.Context, src catalog.Source) (*SourceResult, error) {
	sr := &SourceResult{Source: src.Name()}

	cursor, err := r.store.GetCursor(src.Name())
	if err != nil {
		return sr, err
	}
	r.logger.Debug("resuming source", "source", src.Name(), "cursor", cursor)

	for {
		if err := ctx.Err(); err != nil {
			return sr, err
		}
		if r.opts.MaxRecords > 0 && sr.Fetched >= r.opts.MaxRecords {
			break
		}

		limit := r.opts.BatchSize
		if r.opts.MaxRecords > 0 {
			if remaining := r.opts.MaxRecords - sr.Fetched; remaining < int64(limit) {
				limit = int(remaining)
			}
		}

		records, err := src.Fetch(ctx, cursor, limit)
		if err != nil {
			return sr, fmt.Errorf("fetch from %s at offset %d: %w", src.Name(), cursor, err)
		}
		if len(records) == 0 {
			break
		}

		inserted, err := r.ingestBatch(ctx, records)
		if err != nil {
			return sr, fmt.Errorf("ingest batch from %s at offset %d: %w", src.Name(), cursor, err)
		}

		cursor += int64(len(records))
		if err := r.store.SetCursor(src.Name(), cursor); err != nil {
			return sr, err
		}

		sr.Fetched += int64(len(records))
		sr.Inserted += inserted
		sr.Batches++
		r.logger.Debug("batch ingested",
			"source", src.Name(), "batch", sr.Batches, "records", len(records), "inserted", inserted)

		if len(records) < limit {
			// Short page means the catalog is exhausted.
			break
		}
	}

	return sr, nil
}

// ingestBatch writes raw sample files, then bulk-inserts the rows.
// Files are written before the insert so a row never exists without its
// samples; duplicate rows skipped by the insert simply overwrite their
// files with identical content.
func (r *Runner) ingestBatch(ctx context.Context, records []survey.CatalogRecord) (int64, error) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rawWriteConcurrency)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			return r.raw.Write(rec.SpecID, rec.Wavelength, rec.Flux)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	rows := make([]survey.Spectrum, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].Row())
	}
	return r.wh.InsertSpectra(ctx, rows)
}
