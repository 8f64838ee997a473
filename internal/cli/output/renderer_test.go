package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufRenderer(isTTY bool, mode OutputMode) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"text", ModeText},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"auto", ModeAuto},
		{"", ModeAuto},
		{"TEXT", ModeText},
		{"bogus", ModeAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mode(tt.in), "Mode(%q)", tt.in)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		isTTY bool
		mode  OutputMode
		want  OutputMode
	}{
		{"auto on tty", true, ModeAuto, ModeText},
		{"auto piped", false, ModeAuto, ModeMarkdown},
		{"explicit text piped", false, ModeText, ModeText},
		{"explicit markdown on tty", true, ModeMarkdown, ModeMarkdown},
		{"explicit json", false, ModeJSON, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newBufRenderer(tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestJSONOutput(t *testing.T) {
	r, out, _ := newBufRenderer(false, ModeJSON)

	require.NoError(t, r.JSON(map[string]int{"fitted": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 3, got["fitted"])
	assert.Contains(t, out.String(), "\n  ", "output is indented")
}

func TestMarkdownOutputHasNoANSI(t *testing.T) {
	r, out, errOut := newBufRenderer(false, ModeMarkdown)

	r.Header(1, "Pipeline Status")
	r.Header(2, "Warehouse")
	r.StatusLine("spectra table", "success", "9 columns")
	r.Warning("state store missing")

	assert.Contains(t, out.String(), "# Pipeline Status")
	assert.Contains(t, out.String(), "## Warehouse")
	assert.Contains(t, out.String(), "- [success] spectra table (9 columns)")
	assert.Contains(t, errOut.String(), "Warning: state store missing")
	assert.NotContains(t, out.String(), "\x1b[", "no escape codes off-TTY")
	assert.NotContains(t, errOut.String(), "\x1b[")
}

func TestTextStatusLines(t *testing.T) {
	t.Setenv("NO_COLOR", "1") // pin glyphs to their plain form

	r, out, _ := newBufRenderer(true, ModeText)
	r.StatusLine("config", "success", "")
	r.StatusLine("raw data dir", "warn", "missing")
	r.StatusLine("warehouse", "failed", "connection refused")

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "  ok config", lines[0])
	assert.Equal(t, "  ! raw data dir (missing)", lines[1])
	assert.Equal(t, "  x warehouse (connection refused)", lines[2])
}

func TestErrorAndSuccessRouting(t *testing.T) {
	r, out, errOut := newBufRenderer(false, ModeText)

	r.Success("setup complete")
	r.Error("no such target")

	assert.Contains(t, out.String(), "setup complete")
	assert.Contains(t, errOut.String(), "Error: no such target")
	assert.NotContains(t, out.String(), "no such target", "errors stay off stdout")
}
