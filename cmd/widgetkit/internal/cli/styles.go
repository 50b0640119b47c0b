package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/bundler"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
)

// Color palette shared by all CLI output, tuned for dark terminals.
const (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorError     = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for primary headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary text.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle is for unit names and commands.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)
)

// stateStyle colors a unit freshness state.
func stateStyle(state incremental.UnitState) lipgloss.Style {
	switch state {
	case incremental.StateFresh:
		return SuccessStyle
	case incremental.StateStale:
		return WarningStyle
	default:
		return CmdStyle
	}
}

// printError writes err as one styled line, followed by the bundler
// diagnostics when err is a compile failure.
func printError(w io.Writer, err error) {
	_, _ = fmt.Fprintln(w, ErrorStyle.Render("✗ error:")+" "+headline(err))

	var berr *bundler.Error
	if errors.As(err, &berr) && len(berr.Messages) > 1 {
		for _, msg := range berr.Messages {
			_, _ = fmt.Fprintln(w, "  "+SubtitleStyle.Render(msg.String()))
		}
	}
}

// headline returns the first line of an error message; multi-line bundler
// output is listed separately by printError.
func headline(err error) string {
	var cerr *orchestrator.CompileError
	if errors.As(err, &cerr) {
		var berr *bundler.Error
		if errors.As(err, &berr) && len(berr.Messages) > 1 {
			return fmt.Sprintf("build failed for %s: %d errors", cerr.Unit, len(berr.Messages))
		}
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
