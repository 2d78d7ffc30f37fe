package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskfeed/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

// HeaderStyle is used for section headers in CLI output.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is the bottom bar of the watch view.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// ListItemStyle is applied to non-selected rows of the task list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the focused row of the task list.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// DimmedStyle renders finished tasks.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Strikethrough(true)

// AlertStyle wraps a local alert.
var AlertStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorMagenta)

// AlertTitleStyle is the first line of an alert.
var AlertTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorMagenta)

// MutedStyle is used for secondary details such as timestamps and ids.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// OverdueStyle highlights deadlines that have passed.
var OverdueStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// StatusStyle returns a color-coded style for a task status.
func StatusStyle(status model.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case model.StatusTodo:
		return base.Foreground(ColorBlue)
	case model.StatusInProgress:
		return base.Foreground(ColorYellow)
	case model.StatusHold, model.StatusWaiting:
		return base.Foreground(ColorMagenta)
	case model.StatusDone:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// PriorityStyle returns a color-coded style for a task priority.
func PriorityStyle(priority model.Priority) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch priority {
	case model.PriorityHigh:
		return base.Foreground(ColorRed)
	case model.PriorityLow:
		return base.Foreground(ColorGray)
	default:
		return base.Foreground(ColorYellow)
	}
}

// SourceLabelStyle returns a color-coded style for a task's source.
func SourceLabelStyle(src model.Source) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch src {
	case model.SourceTeam:
		return base.Foreground(ColorOrange)
	case model.SourcePersonal, model.SourcePersonalLegacyAlias:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}

// NotificationStyle returns a color-coded style for a notification type.
func NotificationStyle(kind model.NotificationType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case model.NotificationDeadlineReminder:
		return base.Foreground(ColorRed)
	case model.NotificationAssignment:
		return base.Foreground(ColorOrange)
	case model.NotificationTeamInvite, model.NotificationManualInvite:
		return base.Foreground(ColorGreen)
	case model.NotificationComment:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}
