// Package process implements the line-fitting stage: scan warehouse rows
// whose fitted centers are NULL, fit both Balmer lines from the stored raw
// samples with a bounded worker pool, and write the results back.
//
// This replaces the Spark job of the original pipeline with in-process
// workers; process.workers plays the role the executor count used to.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skysurvey-labs/spectra/internal/ingest"
	"github.com/skysurvey-labs/spectra/internal/linefit"
	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// maxReportedFailures caps the per-spectrum failures kept in the result.
const maxReportedFailures = 20

// Options configures a processing run.
type Options struct {
	Workers   int
	BatchSize int
}

// Failure records one spectrum that could not be fitted.
type Failure struct {
	SpecID int64  `json:"spec_id"`
	Error  string `json:"error"`
}

// Result summarizes a processing run.
type Result struct {
	RunID   string    `json:"run_id"`
	Fitted  int64     `json:"fitted"`
	Skipped int64     `json:"skipped"`
	Batches int       `json:"batches"`
	Errors  []Failure `json:"errors,omitempty"`
}

// Runner drives the processing stage.
type Runner struct {
	store     *state.Store
	wh        warehouse.Driver
	raw       *ingest.RawStore
	processed *ingest.RawStore
	logger    *slog.Logger
	opts      Options

	mu        sync.Mutex
	fitted    int64
	skipped   int64
	failures  []Failure
	attempted map[int64]bool
}

// NewRunner creates a processing runner. raw holds the ingested samples;
// processed receives continuum-normalized copies of successfully fitted
// spectra. If logger is nil, a discard logger is used.
func NewRunner(store *state.Store, wh warehouse.Driver, raw, processed *ingest.RawStore, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		store:     store,
		wh:        wh,
		raw:       raw,
		processed: processed,
		logger:    logger,
		opts:      opts,
		attempted: make(map[int64]bool),
	}
}

// Run processes all pending rows, recording a pipeline run in the state
// store. Individual spectra that cannot be fitted are skipped and reported;
// the run fails only on warehouse or state errors, or when a batch produces
// not a single fit.
func (r *Runner) Run(ctx context.Context, target string) (*Result, error) {
	run, err := r.store.CreateRun(state.StageProcess, target)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	r.logger.Info("starting processing", "run_id", run.ID, "workers", r.opts.Workers)

	result := &Result{RunID: run.ID}
	runErr := r.processAll(ctx, result)

	r.mu.Lock()
	result.Fitted = r.fitted
	result.Skipped = r.skipped
	result.Errors = r.failures
	r.mu.Unlock()

	if runErr != nil {
		_ = r.store.CompleteRun(run.ID, state.RunStatusFailed, result.Fitted, runErr.Error())
		r.logger.Error("processing failed", "run_id", run.ID, "error", runErr.Error())
		return result, runErr
	}

	if err := r.store.CompleteRun(run.ID, state.RunStatusCompleted, result.Fitted, ""); err != nil {
		return result, err
	}
	r.logger.Info("processing completed",
		"run_id", run.ID, "fitted", result.Fitted, "skipped", result.Skipped)
	return result, nil
}

func (r *Runner) processAll(ctx context.Context, result *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := r.wh.PendingFits(ctx, r.opts.BatchSize)
		if err != nil {
			return err
		}

		// Rows that failed to fit stay pending in the warehouse; drop
		// anything already attempted this run so the scan terminates.
		fresh := batch[:0]
		for _, s := range batch {
			if !r.attempted[s.SpecID] {
				fresh = append(fresh, s)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		for _, s := range fresh {
			r.attempted[s.SpecID] = true
		}

		fittedBefore := r.count()
		if err := r.processBatch(ctx, fresh); err != nil {
			return err
		}
		result.Batches++

		if r.count() == fittedBefore {
			return fmt.Errorf("batch of %d spectra produced no fits; see skipped errors", len(fresh))
		}
	}
}

func (r *Runner) count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fitted
}

func (r *Runner) processBatch(ctx context.Context, batch []survey.Spectrum) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range batch {
		s := batch[i]
		g.Go(func() error {
			return r.processOne(ctx, &s)
		})
	}
	return g.Wait()
}

// processOne fits a single spectrum. Fit failures are recorded and
// swallowed; only warehouse errors propagate.
func (r *Runner) processOne(ctx context.Context, s *survey.Spectrum) error {
	wavelength, flux, err := r.raw.Read(s.SpecID)
	if err != nil {
		r.skip(s.SpecID, err)
		return nil
	}

	fit, err := linefit.FitSpectrum(wavelength, flux, s.Redshift)
	if err != nil {
		r.skip(s.SpecID, err)
		return nil
	}

	if err := r.wh.SaveFit(ctx, s.SpecID, fit.HAlpha.Center, fit.HBeta.Center, fit.SNR); err != nil {
		return err
	}

	// Normalized copy is best-effort output, not part of the record of
	// truth; a write failure is logged but does not undo the fit.
	if err := r.writeNormalized(s.SpecID, wavelength, flux, fit.Continuum); err != nil {
		r.logger.Warn("failed to write normalized spectrum", "spec_id", s.SpecID, "error", err.Error())
	}

	r.mu.Lock()
	r.fitted++
	r.mu.Unlock()

	r.logger.Debug("fitted spectrum",
		"spec_id", s.SpecID,
		"h_alpha", fit.HAlpha.Center,
		"h_beta", fit.HBeta.Center,
		"snr", fit.SNR)
	return nil
}

func (r *Runner) skip(specID int64, err error) {
	r.logger.Warn("skipping spectrum", "spec_id", specID, "error", err.Error())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
	if len(r.failures) < maxReportedFailures {
		r.failures = append(r.failures, Failure{SpecID: specID, Error: err.Error()})
	}
}

func (r *Runner) writeNormalized(specID int64, wavelength, flux []float64, continuum float64) error {
	if continuum == 0 {
		continuum = 1
	}
	normalized := make([]float64, len(flux))
	for i, f := range flux {
		normalized[i] = f / continuum
	}
	return r.processed.Write(specID, wavelength, normalized)
}
