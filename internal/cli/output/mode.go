// Package output renders command results as styled text, markdown, or JSON.
//
// Mode auto picks text on a TTY and markdown when piped, so command output
// stays readable in a terminal and parseable in scripts without any flags.
package output

import "strings"

// OutputMode selects how command results are rendered.
type OutputMode string

const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode parses a mode string, falling back to auto for anything unknown.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText
	case "markdown", "md":
		return ModeMarkdown
	case "json":
		return ModeJSON
	default:
		return ModeAuto
	}
}
