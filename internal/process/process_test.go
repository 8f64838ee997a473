package process

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysurvey-labs/spectra/internal/ingest"
	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/testutil"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// fitWarehouse serves pending rows and records saved fits in memory.
type fitWarehouse struct {
	warehouse.Driver
	rows map[int64]*survey.Spectrum
}

func newFitWarehouse(rows ...survey.Spectrum) *fitWarehouse {
	fw := &fitWarehouse{rows: make(map[int64]*survey.Spectrum)}
	for i := range rows {
		r := rows[i]
		fw.rows[r.SpecID] = &r
	}
	return fw
}

func (f *fitWarehouse) PendingFits(_ context.Context, limit int) ([]survey.Spectrum, error) {
	var pending []survey.Spectrum
	for id := int64(0); len(pending) < limit && id < 1000; id++ {
		if s, ok := f.rows[id]; ok && !s.Processed() {
			pending = append(pending, *s)
		}
	}
	return pending, nil
}

func (f *fitWarehouse) SaveFit(_ context.Context, specID int64, hAlpha, hBeta, snr float64) error {
	s, ok := f.rows[specID]
	if !ok {
		return fmt.Errorf("spectrum %d not found", specID)
	}
	s.HAlphaCenter = &hAlpha
	s.HBetaCenter = &hBeta
	s.SNR = &snr
	return nil
}

func (f *fitWarehouse) fitted() int {
	var n int
	for _, s := range f.rows {
		if s.Processed() {
			n++
		}
	}
	return n
}

// writeSynthetic stores a flat continuum with Gaussian emission lines at
// the observed-frame Balmer centers for the given redshift.
func writeSynthetic(t *testing.T, raw *ingest.RawStore, specID int64, redshift float64) {
	t.Helper()
	centers := []float64{
		survey.ObservedCenter(survey.HAlphaRest, redshift),
		survey.ObservedCenter(survey.HBetaRest, redshift),
	}
	var wavelength, flux []float64
	for wl := 4500.0; wl <= 7500.0; wl += 2.0 {
		f := 10.0
		for _, c := range centers {
			d := wl - c
			f += 50 * math.Exp(-d*d/(2*25))
		}
		wavelength = append(wavelength, wl)
		flux = append(flux, f)
	}
	require.NoError(t, raw.Write(specID, wavelength, flux))
}

// writeFlat stores a featureless spectrum that no fit can succeed on.
func writeFlat(t *testing.T, raw *ingest.RawStore, specID int64) {
	t.Helper()
	var wavelength, flux []float64
	for wl := 4500.0; wl <= 7500.0; wl += 2.0 {
		wavelength = append(wavelength, wl)
		flux = append(flux, 10)
	}
	require.NoError(t, raw.Write(specID, wavelength, flux))
}

func newTestRunner(t *testing.T, wh *fitWarehouse, opts Options) (*Runner, *state.Store, *ingest.RawStore, *ingest.RawStore) {
	t.Helper()
	store := state.NewStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	raw, err := ingest.NewRawStore(filepath.Join(dir, "raw"))
	require.NoError(t, err)
	processed, err := ingest.NewRawStore(filepath.Join(dir, "processed"))
	require.NoError(t, err)

	return NewRunner(store, wh, raw, processed, opts, testutil.NewTestLogger(t)), store, raw, processed
}

func pendingRow(specID int64, redshift float64) survey.Spectrum {
	return survey.Spectrum{SpecID: specID, RA: 150, Dec: 2, Redshift: redshift, Environment: "field"}
}

func TestRunFitsPendingSpectra(t *testing.T) {
	wh := newFitWarehouse(
		pendingRow(1, 0),
		pendingRow(2, 0.01),
		pendingRow(3, 0.05),
	)
	runner, store, raw, processed := newTestRunner(t, wh, Options{Workers: 2, BatchSize: 2})
	for _, s := range wh.rows {
		writeSynthetic(t, raw, s.SpecID, s.Redshift)
	}

	result, err := runner.Run(context.Background(), "postgres")
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Fitted)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 3, wh.fitted())

	want := survey.ObservedCenter(survey.HAlphaRest, 0.01)
	assert.InDelta(t, want, *wh.rows[2].HAlphaCenter, 1.0)
	assert.True(t, processed.Exists(1), "normalized copy written")

	runs, err := store.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.StageProcess, runs[0].Stage)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, int64(3), runs[0].Records)
}

func TestRunSkipsUnfittableSpectra(t *testing.T) {
	wh := newFitWarehouse(
		pendingRow(1, 0),
		pendingRow(2, 0), // flat, no peak
		pendingRow(3, 0), // raw samples missing
	)
	runner, _, raw, _ := newTestRunner(t, wh, Options{Workers: 2, BatchSize: 10})
	writeSynthetic(t, raw, 1, 0)
	writeFlat(t, raw, 2)

	result, err := runner.Run(context.Background(), "postgres")
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Fitted)
	assert.Equal(t, int64(2), result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, wh.fitted())
	assert.Nil(t, wh.rows[2].HAlphaCenter)
}

func TestRunFailsWhenBatchProducesNoFits(t *testing.T) {
	wh := newFitWarehouse(pendingRow(1, 0), pendingRow(2, 0))
	runner, store, raw, _ := newTestRunner(t, wh, Options{Workers: 1, BatchSize: 10})
	writeFlat(t, raw, 1)
	writeFlat(t, raw, 2)

	_, err := runner.Run(context.Background(), "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no fits")

	runs, rErr := store.RecentRuns(1)
	require.NoError(t, rErr)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunStatusFailed, runs[0].Status)
}

func TestRunNothingPending(t *testing.T) {
	wh := newFitWarehouse()
	runner, _, _, _ := newTestRunner(t, wh, Options{Workers: 2, BatchSize: 10})

	result, err := runner.Run(context.Background(), "postgres")
	require.NoError(t, err)

	assert.Zero(t, result.Fitted)
	assert.Zero(t, result.Batches)
}

func TestRunDoesNotRescanFailedRows(t *testing.T) {
	// One fittable and one flat row in the same batch: the flat row stays
	// pending in the warehouse but must not be attempted twice.
	wh := newFitWarehouse(pendingRow(1, 0), pendingRow(2, 0))
	runner, _, raw, _ := newTestRunner(t, wh, Options{Workers: 1, BatchSize: 10})
	writeSynthetic(t, raw, 1, 0)
	writeFlat(t, raw, 2)

	result, err := runner.Run(context.Background(), "postgres")
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Fitted)
	assert.Equal(t, int64(1), result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(2), result.Errors[0].SpecID)
}
