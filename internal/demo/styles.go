// Package demo provides the building blocks for small terminal demos of nROS
// nodes: a bubbletea application shell with a title bar, a client area drawn
// by the concrete demo, and a one-line status area.
package demo

import "github.com/charmbracelet/lipgloss"

// Status line colors, mirroring the error/success/default trio the original
// framework painted its message line with.
var (
	colorError   = lipgloss.Color("#e53935") // Red
	colorSuccess = lipgloss.Color("#8BC34A") // Green
	colorInfo    = lipgloss.Color("#2196F3") // Blue
	colorBorder  = lipgloss.Color("#5f6a7d")
	colorTitle   = lipgloss.Color("#f2f2f2")
)

// Styles holds the lipgloss styles of the demo shell.
type Styles struct {
	Title   lipgloss.Style
	Frame   lipgloss.Style
	Desc    lipgloss.Style
	Usage   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
	Help    lipgloss.Style
}

// DefaultStyles returns the demo shell styling.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTitle),
		Frame:   lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorBorder).Padding(0, 1),
		Desc:    lipgloss.NewStyle().Foreground(colorInfo),
		Usage:   lipgloss.NewStyle().Faint(true),
		Error:   lipgloss.NewStyle().Foreground(colorError),
		Success: lipgloss.NewStyle().Foreground(colorSuccess),
		Info:    lipgloss.NewStyle().Foreground(colorInfo),
		Help:    lipgloss.NewStyle().Faint(true),
	}
}
