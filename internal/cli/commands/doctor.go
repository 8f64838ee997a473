package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/config"
	"github.com/skysurvey-labs/spectra/internal/survey"
	"github.com/skysurvey-labs/spectra/internal/warehouse"
)

// Columns the spectra table must carry, in schema order.
var expectedColumns = []string{
	"spec_id", "ra", "dec", "redshift", "snr",
	"environment", "h_alpha_center", "h_beta_center", "created_at",
}

// Secondary indexes the spectra table must carry.
var expectedIndexes = []string{"idx_environment", "idx_redshift"}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks  []HealthCheck `json:"checks"`
	Passed  int           `json:"passed"`
	Warned  int           `json:"warned"`
	Failed  int           `json:"failed"`
	Healthy bool          `json:"healthy"`
}

// HealthCheck is a single doctor check result.
type HealthCheck struct {
	Group  string `json:"group"`
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "warn", "fail"
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run pipeline health checks",
		Long: `Check that the pipeline is ready to run: configuration, data
directories, the local state store, warehouse connectivity, the spectra
schema, and catalog settings.

The command exits non-zero if any check fails, with a hint on how to
fix it.`,
		Example: `  # Run all health checks
  spectra doctor

  # Machine-readable output
  spectra doctor -o json`,
		RunE: runDoctor,
	}
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContextWithoutState(cmd)
	ctx := cmd.Context()

	out := &DoctorOutput{}
	out.Checks = append(out.Checks, configChecks(cc.Cfg)...)
	out.Checks = append(out.Checks, dataDirChecks(cc.Cfg)...)
	out.Checks = append(out.Checks, stateCheck(cc.Cfg))
	out.Checks = append(out.Checks, warehouseChecks(ctx, cc)...)
	out.Checks = append(out.Checks, catalogChecks(cc.Cfg)...)

	for _, c := range out.Checks {
		switch c.Status {
		case "pass":
			out.Passed++
		case "warn":
			out.Warned++
		default:
			out.Failed++
		}
	}
	out.Healthy = out.Failed == 0

	if err := renderDoctor(cc.Renderer, out); err != nil {
		return err
	}
	if !out.Healthy {
		return fmt.Errorf("%d of %d checks failed", out.Failed, len(out.Checks))
	}
	return nil
}

func configChecks(cfg *config.Config) []HealthCheck {
	var checks []HealthCheck

	if path := config.GetConfigFileUsed(); path != "" {
		checks = append(checks, HealthCheck{
			Group: "config", Name: "config file", Status: "pass", Detail: path,
		})
	} else {
		checks = append(checks, HealthCheck{
			Group: "config", Name: "config file", Status: "warn",
			Detail: "no spectra.yaml found, using defaults",
			Hint:   "Run 'spectra init' to scaffold a project",
		})
	}

	if err := cfg.Validate(); err != nil {
		checks = append(checks, HealthCheck{
			Group: "config", Name: "settings", Status: "fail", Detail: err.Error(),
		})
	} else {
		checks = append(checks, HealthCheck{
			Group: "config", Name: "settings", Status: "pass",
			Detail: fmt.Sprintf("warehouse type %s", cfg.Warehouse.Type),
		})
	}

	for _, w := range config.GetEnvFileWarnings() {
		checks = append(checks, HealthCheck{
			Group: "config", Name: w.Key, Status: "warn", Detail: w.Reason,
		})
	}
	return checks
}

func dataDirChecks(cfg *config.Config) []HealthCheck {
	dirs := map[string]string{
		"raw data":       cfg.RawDir(),
		"processed data": cfg.ProcessedDir(),
		"results":        cfg.ResultsDir(),
	}
	checks := make([]HealthCheck, 0, len(dirs))
	for _, name := range []string{"raw data", "processed data", "results"} {
		dir := dirs[name]
		if dirExists(dir) {
			checks = append(checks, HealthCheck{
				Group: "data", Name: name, Status: "pass", Detail: dir,
			})
		} else {
			checks = append(checks, HealthCheck{
				Group: "data", Name: name, Status: "warn",
				Detail: dir + " missing",
				Hint:   "Run 'spectra init', or the stage that owns it will create it",
			})
		}
	}
	return checks
}

func stateCheck(cfg *config.Config) HealthCheck {
	store, err := openState(cfg)
	if err != nil {
		return HealthCheck{
			Group: "state", Name: "state store", Status: "fail", Detail: err.Error(),
		}
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(1)
	if err != nil {
		return HealthCheck{
			Group: "state", Name: "state store", Status: "fail", Detail: err.Error(),
		}
	}
	detail := cfg.StatePath
	if len(runs) > 0 {
		detail = fmt.Sprintf("%s, last run %s (%s)", cfg.StatePath, runs[0].Stage, runs[0].Status)
	}
	return HealthCheck{Group: "state", Name: "state store", Status: "pass", Detail: detail}
}

func warehouseChecks(ctx context.Context, cc *CommandContext) []HealthCheck {
	wh, err := cc.Warehouse(ctx)
	if err != nil {
		return []HealthCheck{{
			Group: "warehouse", Name: "connection", Status: "fail", Detail: err.Error(),
			Hint: "Check warehouse settings in spectra.yaml, or run 'spectra setup --bootstrap'",
		}}
	}
	defer func() { _ = wh.Close() }()

	checks := []HealthCheck{{
		Group: "warehouse", Name: "connection", Status: "pass",
		Detail: cc.Cfg.Warehouse.Type,
	}}
	checks = append(checks, schemaCheck(ctx, wh))
	return checks
}

// schemaCheck verifies the spectra table carries the nine declared columns,
// the spec_id primary key, and both secondary indexes.
func schemaCheck(ctx context.Context, wh warehouse.Driver) HealthCheck {
	meta, err := wh.TableMetadata(ctx, warehouse.TableName)
	if err != nil {
		return HealthCheck{
			Group: "warehouse", Name: "schema", Status: "fail", Detail: err.Error(),
			Hint: "Run 'spectra setup' to create the spectra table",
		}
	}

	have := make(map[string]bool, len(meta.Columns))
	for _, c := range meta.Columns {
		have[strings.ToLower(c.Name)] = true
	}
	var missing []string
	for _, want := range expectedColumns {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return HealthCheck{
			Group: "warehouse", Name: "schema", Status: "fail",
			Detail: "missing columns: " + strings.Join(missing, ", "),
			Hint:   "Run 'spectra setup' to migrate the spectra table",
		}
	}

	haveIdx := make(map[string]bool, len(meta.Indexes))
	for _, idx := range meta.Indexes {
		haveIdx[strings.ToLower(idx)] = true
	}
	for _, want := range expectedIndexes {
		if !haveIdx[want] {
			return HealthCheck{
				Group: "warehouse", Name: "schema", Status: "fail",
				Detail: "missing index " + want,
				Hint:   "Run 'spectra setup' to migrate the spectra table",
			}
		}
	}

	return HealthCheck{
		Group: "warehouse", Name: "schema", Status: "pass",
		Detail: fmt.Sprintf("%d columns, indexes %s", len(meta.Columns), strings.Join(expectedIndexes, ", ")),
	}
}

func catalogChecks(cfg *config.Config) []HealthCheck {
	var checks []HealthCheck
	for _, src := range cfg.Ingest.Sources {
		switch strings.ToLower(src) {
		case survey.SourceSDSS:
			if cfg.Ingest.SDSSBaseURL == "" {
				checks = append(checks, HealthCheck{
					Group: "catalog", Name: "sdss", Status: "fail",
					Detail: "base URL not set", Hint: "Set ingest.sdss_base_url in spectra.yaml",
				})
			} else {
				checks = append(checks, HealthCheck{
					Group: "catalog", Name: "sdss", Status: "pass", Detail: cfg.Ingest.SDSSBaseURL,
				})
			}
		case survey.SourceLAMOST:
			switch {
			case cfg.Ingest.LAMOSTBaseURL == "":
				checks = append(checks, HealthCheck{
					Group: "catalog", Name: "lamost", Status: "fail",
					Detail: "base URL not set", Hint: "Set ingest.lamost_base_url in spectra.yaml",
				})
			case cfg.Ingest.LAMOSTAPIKey == "":
				checks = append(checks, HealthCheck{
					Group: "catalog", Name: "lamost", Status: "fail",
					Detail: "API key not set",
					Hint:   "Set ingest.lamost_api_key or the LAMOST_API_KEY legacy key",
				})
			default:
				checks = append(checks, HealthCheck{
					Group: "catalog", Name: "lamost", Status: "pass", Detail: cfg.Ingest.LAMOSTBaseURL,
				})
			}
		}
	}
	return checks
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Pipeline health")
	r.Println("")

	titleCaser := cases.Title(language.English)
	currentGroup := ""
	for _, c := range out.Checks {
		if c.Group != currentGroup {
			currentGroup = c.Group
			r.Header(2, titleCaser.String(currentGroup))
		}
		status := "success"
		switch c.Status {
		case "warn":
			status = "warn"
		case "fail":
			status = "failed"
		}
		r.StatusLine(c.Name, status, c.Detail)
		if c.Hint != "" && c.Status != "pass" {
			r.Println(r.Styles().Muted.Render("      Hint: " + c.Hint))
		}
	}

	r.Println("")
	summary := fmt.Sprintf("%d passed, %d warnings, %d failed", out.Passed, out.Warned, out.Failed)
	if out.Healthy {
		r.Success(summary)
	} else {
		r.Error(summary)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
