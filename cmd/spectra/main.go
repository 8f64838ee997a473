// Package main provides the spectra CLI.
package main

import (
	"os"

	"github.com/skysurvey-labs/spectra/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
