package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/state"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit     int
	Warehouse bool
}

// statusOutput is the JSON output for the status command.
type statusOutput struct {
	Runs   []runInfo         `json:"runs"`
	Counts *warehouse.Counts `json:"spectra,omitempty"`
}

// runInfo is one pipeline run in the status output.
type runInfo struct {
	ID        string `json:"id"`
	Stage     string `json:"stage"`
	Target    string `json:"target"`
	Status    string `json:"status"`
	Records   int64  `json:"records"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline runs",
		Long: `List recent pipeline runs from the local state store. With
--warehouse, also count total, pending, and processed spectra in the
warehouse.`,
		Example: `  # Show the last 10 runs
  spectra status

  # Include warehouse row counts
  spectra status --warehouse`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().BoolVar(&opts.Warehouse, "warehouse", false, "Also count spectra in the warehouse")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := cc.Store.RecentRuns(opts.Limit)
	if err != nil {
		return err
	}

	out := &statusOutput{Runs: make([]runInfo, 0, len(runs))}
	for _, run := range runs {
		info := runInfo{
			ID:        run.ID,
			Stage:     run.Stage,
			Target:    run.Target,
			Status:    string(run.Status),
			Records:   run.Records,
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Error:     run.Error,
		}
		if run.CompletedAt != nil {
			info.Duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		out.Runs = append(out.Runs, info)
	}

	if opts.Warehouse {
		wh, err := cc.Warehouse(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		counts, err := wh.CountSpectra(cmd.Context())
		if err != nil {
			return err
		}
		out.Counts = counts
	}

	return renderStatus(cc.Renderer, out)
}

func renderStatus(r *output.Renderer, out *statusOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	if len(out.Runs) == 0 {
		r.Println("No pipeline runs recorded yet")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(r.Out())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Started", "Stage", "Target", "Status", "Records", "Duration"})
		for _, run := range out.Runs {
			status := run.Status
			if run.Status == string(state.RunStatusFailed) && run.Error != "" {
				status = fmt.Sprintf("%s: %s", run.Status, truncate(run.Error, 40))
			}
			t.AppendRow(table.Row{
				run.StartedAt, run.Stage, run.Target, status, run.Records, run.Duration,
			})
		}
		if r.EffectiveMode() == output.ModeMarkdown {
			t.RenderMarkdown()
		} else {
			t.Render()
		}
	}

	if out.Counts != nil {
		r.Println("")
		r.Printf("Spectra: %d total, %d pending, %d processed\n",
			out.Counts.Total, out.Counts.Pending, out.Counts.Processed)
	}
	return nil
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
