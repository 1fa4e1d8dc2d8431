package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/iborker/iborker/internal/lockstore"
)

var (
	// Colors meet WCAG AA contrast on dark terminals
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#F87171") // Red
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray
)

// palette styles command output. Its zero value renders plain text.
type palette struct {
	color bool

	header lipgloss.Style
	held   lipgloss.Style
	stale  lipgloss.Style
	broken lipgloss.Style
	muted  lipgloss.Style
}

// newPalette colors output only when w is a terminal.
func newPalette(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return palette{}
	}
	return palette{
		color:  true,
		header: lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		held:   lipgloss.NewStyle().Foreground(secondaryColor),
		stale:  lipgloss.NewStyle().Foreground(warningColor),
		broken: lipgloss.NewStyle().Foreground(errorColor),
		muted:  lipgloss.NewStyle().Foreground(mutedColor),
	}
}

func (p palette) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// cell pads text to width before styling, so escape codes do not
// disturb column alignment.
func (p palette) cell(s lipgloss.Style, width int, text string) string {
	return p.render(s, fmt.Sprintf("%-*s", width, text))
}

func (p palette) statusStyle(st lockstore.Status) lipgloss.Style {
	switch st {
	case lockstore.StatusHeld:
		return p.held
	case lockstore.StatusStale:
		return p.stale
	default:
		return p.broken
	}
}
