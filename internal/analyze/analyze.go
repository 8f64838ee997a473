// Package analyze implements the statistics stage: summarize processed
// spectra per environment label, correlate the measured quantities, and
// test whether the H-alpha velocity offset differs between the two largest
// environment groups.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// Options configures an analysis run.
type Options struct {
	// MinGroup is the smallest environment group included in the t-test.
	MinGroup int
}

// GroupStats summarizes one environment group.
type GroupStats struct {
	Environment     string  `json:"environment"`
	Count           int     `json:"count"`
	MeanRedshift    float64 `json:"mean_redshift"`
	StdDevRedshift  float64 `json:"stddev_redshift"`
	MeanSNR         float64 `json:"mean_snr"`
	MeanHAlphaKMS   float64 `json:"mean_h_alpha_offset_kms"`
	MeanHBetaKMS    float64 `json:"mean_h_beta_offset_kms"`
	StdDevHAlphaKMS float64 `json:"stddev_h_alpha_offset_kms"`
}

// Correlation is one Pearson correlation between two measured quantities.
type Correlation struct {
	X string  `json:"x"`
	Y string  `json:"y"`
	R float64 `json:"r"`
	N int     `json:"n"`
}

// TTest is a Welch two-sample t-test on H-alpha velocity offsets.
type TTest struct {
	GroupA    string  `json:"group_a"`
	GroupB    string  `json:"group_b"`
	NA        int     `json:"n_a"`
	NB        int     `json:"n_b"`
	MeanA     float64 `json:"mean_a_kms"`
	MeanB     float64 `json:"mean_b_kms"`
	Statistic float64 `json:"t"`
	DF        float64 `json:"df"`
	PValue    float64 `json:"p_value"`
}

// Report is the output of an analysis run.
type Report struct {
	RunID        string        `json:"run_id"`
	Spectra      int           `json:"spectra"`
	Groups       []GroupStats  `json:"groups"`
	Correlations []Correlation `json:"correlations"`
	OffsetTest   *TTest        `json:"h_alpha_offset_test,omitempty"`
}

// measurement holds the derived per-spectrum quantities.
type measurement struct {
	environment string
	redshift    float64
	snr         float64
	hAlphaKMS   float64
	hBetaKMS    float64
}

// Run analyzes all processed spectra, recording a pipeline run in the
// state store.
func Run(ctx context.Context, store *state.Store, wh warehouse.Driver, target string, opts Options, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	run, err := store.CreateRun(state.StageAnalyze, target)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	logger.Info("starting analysis", "run_id", run.ID)

	report, err := buildReport(ctx, wh, opts)
	if err != nil {
		_ = store.CompleteRun(run.ID, state.RunStatusFailed, 0, err.Error())
		logger.Error("analysis failed", "run_id", run.ID, "error", err.Error())
		return nil, err
	}
	report.RunID = run.ID

	if err := store.CompleteRun(run.ID, state.RunStatusCompleted, int64(report.Spectra), ""); err != nil {
		return report, err
	}
	logger.Info("analysis completed",
		"run_id", run.ID, "spectra", report.Spectra, "groups", len(report.Groups))
	return report, nil
}

func buildReport(ctx context.Context, wh warehouse.Driver, opts Options) (*Report, error) {
	spectra, err := wh.Measurements(ctx)
	if err != nil {
		return nil, err
	}
	if len(spectra) == 0 {
		return nil, fmt.Errorf("no processed spectra to analyze\nHint: Run 'spectra process' first")
	}

	ms := make([]measurement, 0, len(spectra))
	for i := range spectra {
		s := &spectra[i]
		if !s.Processed() || s.SNR == nil {
			continue
		}
		ms = append(ms, measurement{
			environment: s.Environment,
			redshift:    s.Redshift,
			snr:         *s.SNR,
			hAlphaKMS: survey.VelocityOffsetKMS(*s.HAlphaCenter,
				survey.ObservedCenter(survey.HAlphaRest, s.Redshift)),
			hBetaKMS: survey.VelocityOffsetKMS(*s.HBetaCenter,
				survey.ObservedCenter(survey.HBetaRest, s.Redshift)),
		})
	}

	report := &Report{
		Spectra:      len(ms),
		Groups:       groupStats(ms),
		Correlations: correlations(ms),
	}
	report.OffsetTest = offsetTest(ms, report.Groups, opts.MinGroup)
	return report, nil
}

// groupStats summarizes each environment group, largest first.
func groupStats(ms []measurement) []GroupStats {
	byEnv := make(map[string][]measurement)
	for _, m := range ms {
		byEnv[m.environment] = append(byEnv[m.environment], m)
	}

	groups := make([]GroupStats, 0, len(byEnv))
	for env, members := range byEnv {
		redshift := column(members, func(m measurement) float64 { return m.redshift })
		snr := column(members, func(m measurement) float64 { return m.snr })
		hAlpha := column(members, func(m measurement) float64 { return m.hAlphaKMS })
		hBeta := column(members, func(m measurement) float64 { return m.hBetaKMS })

		groups = append(groups, GroupStats{
			Environment:     env,
			Count:           len(members),
			MeanRedshift:    stat.Mean(redshift, nil),
			StdDevRedshift:  sampleStdDev(redshift),
			MeanSNR:         stat.Mean(snr, nil),
			MeanHAlphaKMS:   stat.Mean(hAlpha, nil),
			MeanHBetaKMS:    stat.Mean(hBeta, nil),
			StdDevHAlphaKMS: sampleStdDev(hAlpha),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Environment < groups[j].Environment
	})
	return groups
}

// correlations computes Pearson r for every pair of measured quantities.
func correlations(ms []measurement) []Correlation {
	quantities := []struct {
		name string
		get  func(measurement) float64
	}{
		{"redshift", func(m measurement) float64 { return m.redshift }},
		{"snr", func(m measurement) float64 { return m.snr }},
		{"h_alpha_offset_kms", func(m measurement) float64 { return m.hAlphaKMS }},
		{"h_beta_offset_kms", func(m measurement) float64 { return m.hBetaKMS }},
	}

	var out []Correlation
	for i := 0; i < len(quantities); i++ {
		for j := i + 1; j < len(quantities); j++ {
			x := column(ms, quantities[i].get)
			y := column(ms, quantities[j].get)
			r := stat.Correlation(x, y, nil)
			if math.IsNaN(r) {
				// Zero variance in one quantity; the pair is reported
				// with r = 0 rather than dropped.
				r = 0
			}
			out = append(out, Correlation{
				X: quantities[i].name,
				Y: quantities[j].name,
				R: r,
				N: len(ms),
			})
		}
	}
	return out
}

// offsetTest runs a Welch two-sample t-test on H-alpha velocity offsets
// between the two most-populated environment groups. Returns nil when
// fewer than two groups reach minGroup members.
func offsetTest(ms []measurement, groups []GroupStats, minGroup int) *TTest {
	var eligible []string
	for _, g := range groups {
		if g.Count >= minGroup {
			eligible = append(eligible, g.Environment)
		}
		if len(eligible) == 2 {
			break
		}
	}
	if len(eligible) < 2 {
		return nil
	}

	a := offsets(ms, eligible[0])
	b := offsets(ms, eligible[1])

	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	se := math.Sqrt(varA/na + varB/nb)
	if se == 0 {
		return nil
	}
	t := (meanA - meanB) / se

	// Welch-Satterthwaite degrees of freedom
	num := math.Pow(varA/na+varB/nb, 2)
	den := math.Pow(varA/na, 2)/(na-1) + math.Pow(varB/nb, 2)/(nb-1)
	df := num / den

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(math.Abs(t)))

	return &TTest{
		GroupA:    eligible[0],
		GroupB:    eligible[1],
		NA:        len(a),
		NB:        len(b),
		MeanA:     meanA,
		MeanB:     meanB,
		Statistic: t,
		DF:        df,
		PValue:    p,
	}
}

func offsets(ms []measurement, env string) []float64 {
	var out []float64
	for _, m := range ms {
		if m.environment == env {
			out = append(out, m.hAlphaKMS)
		}
	}
	return out
}

func column(ms []measurement, get func(measurement) float64) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = get(m)
	}
	return out
}

// sampleStdDev returns the sample standard deviation, or 0 for a single
// observation where gonum returns NaN.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
