package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysurvey-labs/spectra/internal/cli/output"
)

func TestRootCmdVersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "spectra "+Version)
	assert.Contains(t, out.String(), "Astronomical Spectra Survey Pipeline")
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{
		"version", "init", "setup", "ingest",
		"process", "analyze", "status", "doctor", "completion",
	}
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func TestRootCmdPersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{
		"config", "target", "project-dir", "data-dir",
		"state", "environment", "verbose", "output",
	} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag --%s", name)
	}
}

func TestGetRendererFallback(t *testing.T) {
	r := GetRenderer(context.Background())
	require.NotNil(t, r, "missing renderer falls back to a default")

	ctx := context.WithValue(context.Background(), rendererKey{}, output.NewRendererWithTTY(
		&bytes.Buffer{}, &bytes.Buffer{}, false, output.ModeJSON))
	assert.Equal(t, output.ModeJSON, GetRenderer(ctx).EffectiveMode())
}

func TestHelpDoesNotRequireConfig(t *testing.T) {
	// Help must work outside a project directory; PersistentPreRunE skips
	// config loading for it.
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Usage:")
}
