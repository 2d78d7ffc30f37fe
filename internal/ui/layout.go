package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskfeed/internal/theme"
)

// Layout splits the terminal into a header, a content area and a status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top bar with a title on the left and the engine
// state on the right.
func (l Layout) RenderHeader(title, state string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(state)
	return fill(theme.HeaderStyle, l.Width, left, right)
}

// RenderStatusBar renders the bottom bar.
func (l Layout) RenderStatusBar(hints string) string {
	return fill(theme.StatusBarStyle, l.Width, theme.StatusBarStyle.Render(hints))
}

// RenderWithFrame joins header, content and status bar vertically.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// fill pads the gap between the first part and the remaining parts with the
// background of style so the bar spans width.
func fill(style lipgloss.Style, width int, parts ...string) string {
	used := 0
	for _, p := range parts {
		used += lipgloss.Width(p)
	}
	gap := width - used
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	joined := []string{parts[0], filler}
	joined = append(joined, parts[1:]...)
	return lipgloss.JoinHorizontal(lipgloss.Top, joined...)
}
