package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/analyze"
	"github.com/skysurvey-labs/spectra/internal/cli/output"
)

// AnalyzeOptions holds options for the analyze command.
type AnalyzeOptions struct {
	MinGroup int
	NoSave   bool
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute statistics over processed spectra",
		Long: `Summarize processed spectra per environment label, compute Pearson
correlations between the measured quantities, and run a Welch t-test on
the H-alpha velocity offset between the two largest environment groups.

The full report is also written as JSON to data/results.`,
		Example: `  # Analyze all processed spectra
  spectra analyze

  # Require at least 20 members per group for the t-test
  spectra analyze --min-group 20

  # Print the report without writing data/results
  spectra analyze --no-save`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.MinGroup, "min-group", 0, "Smallest environment group included in the t-test (default: analyze.min_group)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "Do not write the JSON report to data/results")

	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *AnalyzeOptions) error {
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

	minGroup := cc.Cfg.Analyze.MinGroup
	if opts.MinGroup > 0 {
		minGroup = opts.MinGroup
	}

	report, err := analyze.Run(ctx, cc.Store, wh, cc.Cfg.Warehouse.Type,
		analyze.Options{MinGroup: minGroup}, cc.Logger)
	if err != nil {
		return err
	}

	if !opts.NoSave {
		path, err := saveReport(cc.Cfg.ResultsDir(), report)
		if err != nil {
			return err
		}
		cc.Logger.Info("report written", "path", path)
	}

	return renderReport(cc.Renderer, report)
}

// saveReport writes the report as JSON to the results directory.
func saveReport(dir string, report *analyze.Report) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	path := filepath.Join(dir, report.RunID+".json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func renderReport(r *output.Renderer, report *analyze.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}
	markdown := r.EffectiveMode() == output.ModeMarkdown

	r.Header(1, fmt.Sprintf("Analysis report (%d spectra)", report.Spectra))
	r.Println("")

	r.Header(2, "Environment groups")
	gt := table.NewWriter()
	gt.SetOutputMirror(r.Out())
	gt.SetStyle(table.StyleLight)
	gt.AppendHeader(table.Row{"Environment", "N", "Mean z", "StdDev z", "Mean SNR", "Ha offset km/s", "Hb offset km/s"})
	for _, g := range report.Groups {
		gt.AppendRow(table.Row{
			g.Environment, g.Count,
			fmt.Sprintf("%.4f", g.MeanRedshift),
			fmt.Sprintf("%.4f", g.StdDevRedshift),
			fmt.Sprintf("%.1f", g.MeanSNR),
			fmt.Sprintf("%.1f", g.MeanHAlphaKMS),
			fmt.Sprintf("%.1f", g.MeanHBetaKMS),
		})
	}
	renderTable(gt, markdown)
	r.Println("")

	r.Header(2, "Correlations")
	ct := table.NewWriter()
	ct.SetOutputMirror(r.Out())
	ct.SetStyle(table.StyleLight)
	ct.AppendHeader(table.Row{"X", "Y", "Pearson r", "N"})
	for _, c := range report.Correlations {
		ct.AppendRow(table.Row{c.X, c.Y, fmt.Sprintf("%.3f", c.R), c.N})
	}
	renderTable(ct, markdown)
	r.Println("")

	if tt := report.OffsetTest; tt != nil {
		r.Header(2, "H-alpha offset t-test")
		r.Printf("%s (n=%d, mean %.1f km/s) vs %s (n=%d, mean %.1f km/s)\n",
			tt.GroupA, tt.NA, tt.MeanA, tt.GroupB, tt.NB, tt.MeanB)
		r.Printf("t = %.3f, df = %.1f, p = %.4f\n", tt.Statistic, tt.DF, tt.PValue)
	} else {
		r.Println("H-alpha offset t-test skipped: fewer than two groups reach the minimum size")
	}

	return nil
}

func renderTable(t table.Writer, markdown bool) {
	if markdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}
