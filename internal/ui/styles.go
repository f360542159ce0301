// Package ui renders tasks for the terminal: status glyphs, the kanban
// board, task details, a live-updating board and the interactive task form.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/taskboard/taskboard/internal/model"
)

func init() {
	// NO_COLOR, CLICOLOR_FORCE and non-tty output are honored here.
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#2f7d32", Dark: "#9ece6a"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#e0af68"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#f7768e"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1e5bd8", Dark: "#7aa2f7"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#565f89"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#3b4261"}

	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail)
	accentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderBold(s string) string   { return boldStyle.Render(s) }

// RenderPriority colors a priority label.
func RenderPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return RenderFail(string(p))
	case model.PriorityMedium:
		return RenderWarn(string(p))
	default:
		return RenderMuted(string(p))
	}
}

// StatusIcon returns the glyph for a status.
func StatusIcon(s model.Status) string {
	switch s {
	case model.StatusDone:
		return RenderPass("✓")
	case model.StatusInProgress:
		return RenderAccent("◐")
	default:
		return RenderMuted("○")
	}
}

// TerminalWidth returns the width of stdout, or 100 when it isn't a terminal.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}
