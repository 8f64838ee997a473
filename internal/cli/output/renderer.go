package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting TTY state from the writer.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, detectTTY(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Tests use this to pin down the effective mode.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	styled := isTTY && mode != ModeMarkdown && mode != ModeJSON && !termenv.EnvNoColor()
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: newStyles(styled),
	}
}

// detectTTY reports whether the writer is an interactive terminal.
func detectTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves the auto mode: text on a TTY, markdown otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to an interactive terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Styles returns the style set for text-mode rendering.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Out returns the output writer, for direct table rendering.
func (r *Renderer) Out() io.Writer {
	return r.out
}

// Println writes a line to the output writer.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to the output writer.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// JSON writes v to the output writer as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Header writes a section header in the effective mode.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, text))
		return
	}
	style := r.styles.Header2
	if level <= 1 {
		style = r.styles.Header1
	}
	r.Println(style.Render(text))
}

// Success writes a success message to the output writer.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(msg))
}

// Warning writes a warning to the error writer.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("Warning: "+msg))
}

// Error writes an error message to the error writer.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("Error: "+msg))
}

// StatusLine writes one "item: status" line, glyph-prefixed in text mode.
// Status is one of "success", "warn", "failed"; note is optional detail.
func (r *Renderer) StatusLine(name, status, note string) {
	glyph := r.styles.StatusSuccess.String()
	switch status {
	case "warn":
		glyph = r.styles.StatusWarning.String()
	case "failed", "error":
		glyph = r.styles.StatusFailed.String()
	}

	line := fmt.Sprintf("  %s %s", glyph, name)
	if r.EffectiveMode() == ModeMarkdown {
		line = fmt.Sprintf("- [%s] %s", status, name)
	}
	if note != "" {
		line += " " + r.styles.Muted.Render("("+note+")")
	}
	r.Println(line)
}
