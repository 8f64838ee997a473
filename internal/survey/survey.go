// Package survey defines the shared domain types for the spectra pipeline:
// spectrum records as persisted in the warehouse, catalog records as fetched
// from external surveys, and the rest-frame line constants used by the
// processing stage.
package survey

import "time"

// Rest-frame centers of the fitted Balmer lines, in angstroms.
const (
	HAlphaRest = 6562.80
	HBetaRest  = 4861.35
)

// SpeedOfLightKMS is the speed of light in km/s, used to convert line
// center offsets into velocity offsets.
const SpeedOfLightKMS = 299792.458

// Known catalog source names.
const (
	SourceSDSS   = "sdss"
	SourceLAMOST = "lamost"
)

// Spectrum mirrors one row of the spectra table. The fitted line centers
// and SNR are pointers because they are NULL until the processing stage
// has run for the row.
type Spectrum struct {
	SpecID       int64
	RA           float64
	Dec          float64
	Redshift     float64
	SNR          *float64
	Environment  string
	HAlphaCenter *float64
	HBetaCenter  *float64
	CreatedAt    time.Time
}

// Processed reports whether both line centers have been fitted.
func (s *Spectrum) Processed() bool {
	return s.HAlphaCenter != nil && s.HBetaCenter != nil
}

// CatalogRecord is a spectrum as delivered by an external catalog:
// the row metadata plus the sampled spectrum itself.
type CatalogRecord struct {
	SpecID      int64     `json:"spec_id"`
	RA          float64   `json:"ra"`
	Dec         float64   `json:"dec"`
	Redshift    float64   `json:"redshift"`
	Environment string    `json:"environment"`
	Wavelength  []float64 `json:"wavelength"`
	Flux        []float64 `json:"flux"`
}

// Row converts a catalog record to its warehouse representation.
// Fit fields start out NULL.
func (r *CatalogRecord) Row() Spectrum {
	return Spectrum{
		SpecID:      r.SpecID,
		RA:          r.RA,
		Dec:         r.Dec,
		Redshift:    r.Redshift,
		Environment: r.Environment,
	}
}

// ObservedCenter returns the expected observed-frame center of a rest-frame
// line at the record's redshift.
func ObservedCenter(restCenter, redshift float64) float64 {
	return restCenter * (1 + redshift)
}

// VelocityOffsetKMS converts the difference between a fitted and an expected
// line center into a velocity offset in km/s.
func VelocityOffsetKMS(fitted, expected float64) float64 {
	return (fitted - expected) / expected * SpeedOfLightKMS
}
