package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// RawStore persists raw wavelength/flux samples as two-column CSV files,
// one file per spectrum, named <spec_id>.csv.
type RawStore struct {
	dir string
}

// NewRawStore creates the store, ensuring the directory exists.
func NewRawStore(dir string) (*RawStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create raw data directory: %w", err)
	}
	return &RawStore{dir: dir}, nil
}

// Path returns the file path for a spectrum.
func (rs *RawStore) Path(specID int64) string {
	return filepath.Join(rs.dir, fmt.Sprintf("%d.csv", specID))
}

// Write stores the samples for one spectrum, replacing any existing file.
func (rs *RawStore) Write(specID int64, wavelength, flux []float64) error {
	if len(wavelength) != len(flux) {
		return fmt.Errorf("spectrum %d: wavelength and flux lengths differ (%d vs %d)",
			specID, len(wavelength), len(flux))
	}

	tmp := rs.Path(specID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := writeSamples(f, wavelength, flux); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, rs.Path(specID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", rs.Path(specID), err)
	}
	return nil
}

func writeSamples(f *os.File, wavelength, flux []float64) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"wavelength_angstrom", "flux"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range wavelength {
		rec := []string{
			strconv.FormatFloat(wavelength[i], 'g', -1, 64),
			strconv.FormatFloat(flux[i], 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush samples: %w", err)
	}
	return nil
}

// Read loads the samples for one spectrum.
func (rs *RawStore) Read(specID int64) (wavelength, flux []float64, err error) {
	path := rs.Path(specID)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s: no samples", path)
	}

	// Skip the header row
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, nil, fmt.Errorf("%s: row %d: expected 2 fields, got %d", path, i+2, len(rec))
		}
		wl, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: row %d: bad wavelength: %w", path, i+2, err)
		}
		fl, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: row %d: bad flux: %w", path, i+2, err)
		}
		wavelength = append(wavelength, wl)
		flux = append(flux, fl)
	}
	return wavelength, flux, nil
}

// Exists reports whether samples are stored for a spectrum.
func (rs *RawStore) Exists(specID int64) bool {
	_, err := os.Stat(rs.Path(specID))
	return err == nil
}
