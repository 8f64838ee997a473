// Package linefit fits emission line centers in sampled spectra.
//
// The fit is deliberately simple: a median continuum estimate over the
// off-line region, then a flux-weighted centroid of the continuum-subtracted
// signal inside a redshift-shifted window around each rest-frame line.
// That is enough to recover Balmer line centers to a fraction of the sample
// spacing for survey-quality spectra.
package linefit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/skysurvey-labs/spectra/internal/survey"
)

// WindowHalfWidth is the observed-frame half width, in angstroms, of the
// search window around each expected line center.
const WindowHalfWidth = 30.0

// minDetectionSigma is the peak significance required to accept a line.
const minDetectionSigma = 3.0

// minSamples is the fewest samples a spectrum may have.
const minSamples = 16

var (
	// ErrNoPeak means no significant emission peak was found in a window.
	ErrNoPeak = errors.New("no significant peak in line window")

	// ErrOutOfRange means a line window falls outside the wavelength
	// coverage of the spectrum.
	ErrOutOfRange = errors.New("line window outside wavelength coverage")
)

// Line is one fitted emission line.
type Line struct {
	Center    float64 // observed-frame center, angstroms
	Amplitude float64 // peak flux above continuum
	Sigma     float64 // RMS width of the line, angstroms
}

// Result holds the fit for one spectrum.
type Result struct {
	HAlpha    Line
	HBeta     Line
	Continuum float64
	SNR       float64
}

// FitSpectrum fits H-alpha and H-beta centers in a sampled spectrum.
// Wavelengths must be strictly increasing.
func FitSpectrum(wavelength, flux []float64, redshift float64) (*Result, error) {
	if len(wavelength) != len(flux) {
		return nil, fmt.Errorf("wavelength and flux lengths differ (%d vs %d)", len(wavelength), len(flux))
	}
	if len(wavelength) < minSamples {
		return nil, fmt.Errorf("too few samples: %d", len(wavelength))
	}
	for i := 1; i < len(wavelength); i++ {
		if wavelength[i] <= wavelength[i-1] {
			return nil, fmt.Errorf("wavelengths not strictly increasing at sample %d", i)
		}
	}

	alphaExpected := survey.ObservedCenter(survey.HAlphaRest, redshift)
	betaExpected := survey.ObservedCenter(survey.HBetaRest, redshift)

	continuum, noise := continuumEstimate(wavelength, flux, alphaExpected, betaExpected)

	alpha, err := fitLine(wavelength, flux, alphaExpected, continuum, noise)
	if err != nil {
		return nil, fmt.Errorf("h_alpha: %w", err)
	}
	beta, err := fitLine(wavelength, flux, betaExpected, continuum, noise)
	if err != nil {
		return nil, fmt.Errorf("h_beta: %w", err)
	}

	snr := 0.0
	if noise > 0 {
		snr = continuum / noise
	}

	return &Result{
		HAlpha:    *alpha,
		HBeta:     *beta,
		Continuum: continuum,
		SNR:       snr,
	}, nil
}

// continuumEstimate returns the median flux and noise sigma over samples
// outside both line windows. If the off-line region is too small, the whole
// spectrum is used instead.
func continuumEstimate(wavelength, flux []float64, centers ...float64) (continuum, noise float64) {
	offline := make([]float64, 0, len(flux))
	for i, wl := range wavelength {
		inWindow := false
		for _, c := range centers {
			if math.Abs(wl-c) <= WindowHalfWidth {
				inWindow = true
				break
			}
		}
		if !inWindow {
			offline = append(offline, flux[i])
		}
	}
	if len(offline) < minSamples/2 {
		offline = append(offline[:0], flux...)
	}

	sorted := make([]float64, len(offline))
	copy(sorted, offline)
	sort.Float64s(sorted)

	continuum = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	noise = stat.StdDev(offline, nil)
	return continuum, noise
}

// fitLine fits one line as a flux-weighted centroid of the continuum-
// subtracted signal inside the window around the expected center.
func fitLine(wavelength, flux []float64, expected, continuum, noise float64) (*Line, error) {
	lo := sort.SearchFloat64s(wavelength, expected-WindowHalfWidth)
	hi := sort.SearchFloat64s(wavelength, expected+WindowHalfWidth)
	if lo >= hi {
		return nil, fmt.Errorf("%w: expected center %.1f, coverage %.1f-%.1f",
			ErrOutOfRange, expected, wavelength[0], wavelength[len(wavelength)-1])
	}

	peak := 0.0
	for i := lo; i < hi; i++ {
		if s := flux[i] - continuum; s > peak {
			peak = s
		}
	}
	if noise > 0 && peak < minDetectionSigma*noise {
		return nil, fmt.Errorf("%w: peak %.3g below %.0f-sigma threshold %.3g",
			ErrNoPeak, peak, minDetectionSigma, minDetectionSigma*noise)
	}
	if peak <= 0 {
		return nil, ErrNoPeak
	}

	// Flux-weighted centroid and RMS width over the window, with negative
	// residuals clipped to zero so absorption troughs cannot drag the
	// centroid.
	var sumW, sumWX float64
	for i := lo; i < hi; i++ {
		w := flux[i] - continuum
		if w < 0 {
			w = 0
		}
		sumW += w
		sumWX += w * wavelength[i]
	}
	if sumW == 0 {
		return nil, ErrNoPeak
	}
	center := sumWX / sumW

	var sumWV float64
	for i := lo; i < hi; i++ {
		w := flux[i] - continuum
		if w < 0 {
			w = 0
		}
		d := wavelength[i] - center
		sumWV += w * d * d
	}
	sigma := math.Sqrt(sumWV / sumW)

	return &Line{
		Center:    center,
		Amplitude: peak,
		Sigma:     sigma,
	}, nil
}
