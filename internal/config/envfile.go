package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Legacy flat configuration keys recognized in spectra.env. The file format
// predates the YAML config; each key maps onto a nested config path.
var legacyKeyMap = map[string]string{
	"DB_HOST":           "warehouse.host",
	"DB_PORT":           "warehouse.port",
	"DB_NAME":           "warehouse.database",
	"DB_USER":           "warehouse.user",
	"DB_PASSWORD":       "warehouse.password",
	"DB_ADMIN_USER":     "warehouse.admin_user",
	"DB_ADMIN_PASSWORD": "warehouse.admin_password",
	"SDSS_BATCH_SIZE":   "ingest.sdss_batch_size",
	"LAMOST_API_KEY":    "ingest.lamost_api_key",
}

var sparkMasterRe = regexp.MustCompile(`^local\[(\d+|\*)\]$`)

// EnvFileWarning describes a legacy key that was accepted but not applied.
type EnvFileWarning struct {
	Key    string
	Reason string
}

func (w EnvFileWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Key, w.Reason)
}

// loadEnvFile parses a legacy spectra.env file into a flat koanf map.
// Unknown keys are rejected so that typos do not silently disappear;
// the Spark sizing keys from the old pipeline are accepted but only
// SPARK_MASTER carries information (its worker count).
func loadEnvFile(path string) (map[string]interface{}, []EnvFileWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open env file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	out := make(map[string]interface{})
	var warnings []EnvFileWarning

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, nil, fmt.Errorf("%s:%d: expected KEY=VALUE, got %q", path, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch key {
		case "SPARK_MASTER":
			workers, err := parseSparkMaster(value)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			out["process.workers"] = workers
		case "SPARK_DRIVER_MEMORY", "SPARK_EXECUTOR_MEMORY":
			warnings = append(warnings, EnvFileWarning{
				Key:    key,
				Reason: "processing runs in-process; JVM memory sizing no longer applies",
			})
		default:
			target, known := legacyKeyMap[key]
			if !known {
				return nil, nil, fmt.Errorf("%s:%d: unrecognized key %q", path, lineNo, key)
			}
			out[target] = coerceEnvValue(target, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	return out, warnings, nil
}

// parseSparkMaster extracts a worker count from a legacy Spark master URL.
// Only local masters are meaningful now; local[*] means one worker per CPU,
// which the process stage resolves at run time, so it maps to zero here and
// is replaced with NumCPU by the loader.
func parseSparkMaster(value string) (int, error) {
	if value == "local" {
		return 1, nil
	}
	m := sparkMasterRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("unsupported SPARK_MASTER %q: only local and local[N] are recognized", value)
	}
	if m[1] == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid worker count in SPARK_MASTER %q", value)
	}
	return n, nil
}

// coerceEnvValue converts numeric legacy values so they unmarshal into
// typed config fields.
func coerceEnvValue(target, value string) interface{} {
	switch target {
	case "warehouse.port", "ingest.sdss_batch_size":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}
