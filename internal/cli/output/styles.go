package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used for text-mode rendering.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	// Status glyphs with their colors baked in.
	StatusSuccess lipgloss.Style
	StatusWarning lipgloss.Style
	StatusFailed  lipgloss.Style
}

// newStyles builds the style set. With styled=false every style is a
// pass-through so piped output carries no escape codes.
func newStyles(styled bool) *Styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1:       plain,
			Header2:       plain,
			Bold:          plain,
			Muted:         plain,
			Success:       plain,
			Warning:       plain,
			Error:         plain,
			StatusSuccess: plain.SetString("ok"),
			StatusWarning: plain.SetString("!"),
			StatusFailed:  plain.SetString("x"),
		}
	}
	return &Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:       lipgloss.NewStyle().Bold(true),
		Bold:          lipgloss.NewStyle().Bold(true),
		Muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).SetString("ok"),
		StatusWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).SetString("!"),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).SetString("x"),
	}
}

// FormatHeader renders a markdown header of the given level.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	prefix := ""
	for i := 0; i < level; i++ {
		prefix += "#"
	}
	return fmt.Sprintf("%s %s", prefix, text)
}

// FormatKeyValue renders a markdown key-value bullet.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s**: %s", key, value)
}
