package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
	"github.com/skysurvey-labs/spectra/internal/config"
)

// scaffoldConfig mirrors spectra.yaml for the generated project file.
// Field order here is the order written to disk.
type scaffoldConfig struct {
	DataDir     string `yaml:"data_dir"`
	StatePath   string `yaml:"state_path"`
	Environment string `yaml:"environment"`
	Warehouse   struct {
		Type          string `yaml:"type"`
		Host          string `yaml:"host"`
		Port          int    `yaml:"port"`
		Database      string `yaml:"database"`
		User          string `yaml:"user"`
		Password      string `yaml:"password"`
		AdminUser     string `yaml:"admin_user"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"warehouse"`
	Ingest struct {
		SDSSBaseURL   string   `yaml:"sdss_base_url"`
		LAMOSTBaseURL string   `yaml:"lamost_base_url"`
		LAMOSTAPIKey  string   `yaml:"lamost_api_key"`
		SDSSBatchSize int      `yaml:"sdss_batch_size"`
		Sources       []string `yaml:"sources"`
	} `yaml:"ingest"`
	Process struct {
		Workers   int `yaml:"workers"`
		BatchSize int `yaml:"batch_size"`
	} `yaml:"process"`
	Analyze struct {
		MinGroup int `yaml:"min_group"`
	} `yaml:"analyze"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var target string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new spectra project",
		Long: `Initialize a new spectra project with data directories and configuration.

This creates:
  - data/raw/ for ingested spectral samples
  - data/processed/ for continuum-normalized spectra
  - data/results/ for analysis output
  - .spectra/ for the local state store
  - spectra.yaml configuration file with a generated database password`,
		Example: `  # Initialize in current directory
  spectra init

  # Initialize in a new directory
  spectra init my-survey

  # Initialize against a local DuckDB file instead of Postgres
  spectra init --target duckdb

  # Force overwrite existing config
  spectra init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			return runInit(r, dir, target, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&target, "target", "postgres", "Warehouse type for the generated config (postgres, duckdb)")

	return cmd
}

func runInit(r *output.Renderer, dir, target string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	dirs := []string{
		filepath.Join(dir, "data", "raw"),
		filepath.Join(dir, "data", "processed"),
		filepath.Join(dir, "data", "results"),
		filepath.Join(dir, ".spectra"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0750); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	password, err := generatePassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	data, err := yaml.Marshal(scaffoldYAML(target, password))
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	for _, d := range dirs {
		r.StatusLine(d+string(os.PathSeparator), "success", "")
	}
	r.StatusLine(configPath, "success", "generated database password")

	r.Println("")
	r.Success("spectra project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Review warehouse settings in spectra.yaml")
	r.Println("  2. Run 'spectra setup' to create the warehouse schema")
	r.Println("  3. Run 'spectra ingest' to fetch catalog records")
	r.Println("  4. Run 'spectra process' and 'spectra analyze'")

	return nil
}

// scaffoldYAML builds the generated spectra.yaml contents.
func scaffoldYAML(target, password string) *scaffoldConfig {
	sc := &scaffoldConfig{
		DataDir:     config.DefaultDataDir,
		StatePath:   config.DefaultStateFile,
		Environment: config.DefaultEnv,
	}
	sc.Warehouse.Type = target
	sc.Warehouse.Host = config.DefaultDBHost
	sc.Warehouse.Port = config.DefaultDBPort
	sc.Warehouse.Database = config.DefaultDBName
	sc.Warehouse.User = config.DefaultDBUser
	sc.Warehouse.Password = password
	sc.Warehouse.AdminUser = "postgres"
	sc.Ingest.SDSSBaseURL = "https://skyserver.sdss.org/api"
	sc.Ingest.LAMOSTBaseURL = "https://www.lamost.org/api"
	sc.Ingest.SDSSBatchSize = config.DefaultSDSSBatchSize
	sc.Ingest.Sources = []string{"sdss", "lamost"}
	sc.Process.Workers = config.DefaultProcessWorkers
	sc.Process.BatchSize = config.DefaultProcessBatchSize
	sc.Analyze.MinGroup = config.DefaultAnalyzeMinGroup
	return sc
}

// generatePassword returns a random hex password for the warehouse role.
func generatePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
