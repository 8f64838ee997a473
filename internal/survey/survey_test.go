package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservedCenter(t *testing.T) {
	assert.InDelta(t, HAlphaRest, ObservedCenter(HAlphaRest, 0), 1e-9)
	assert.InDelta(t, HAlphaRest*1.05, ObservedCenter(HAlphaRest, 0.05), 1e-9)
}

func TestVelocityOffsetKMS(t *testing.T) {
	// No offset means no velocity.
	assert.InDelta(t, 0, VelocityOffsetKMS(HBetaRest, HBetaRest), 1e-9)

	// A 1 angstrom blueshift at H-alpha is about -45.7 km/s.
	v := VelocityOffsetKMS(HAlphaRest-1, HAlphaRest)
	assert.InDelta(t, -45.7, v, 0.1)
}

func TestSpectrumProcessed(t *testing.T) {
	var s Spectrum
	assert.False(t, s.Processed())

	v := 6563.1
	s.HAlphaCenter = &v
	assert.False(t, s.Processed())

	s.HBetaCenter = &v
	assert.True(t, s.Processed())
}

func TestCatalogRecordRow(t *testing.T) {
	rec := CatalogRecord{
		SpecID:      42,
		RA:          150.1,
		Dec:         -2.5,
		Redshift:    0.03,
		Environment: "cluster",
		Wavelength:  []float64{4000, 4002},
		Flux:        []float64{1, 2},
	}

	row := rec.Row()
	assert.Equal(t, int64(42), row.SpecID)
	assert.Equal(t, "cluster", row.Environment)
	assert.Nil(t, row.SNR)
	assert.Nil(t, row.HAlphaCenter)
	assert.Nil(t, row.HBetaCenter)
}
