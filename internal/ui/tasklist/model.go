package tasklist

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskfeed/internal/feed"
	"github.com/nhle/taskfeed/internal/theme"
)

// Model is the task list view of the watch screen.
type Model struct {
	list   list.Model
	width  int
	height int
}

// New creates a new task list model. now is used to render deadlines;
// nil means time.Now.
func New(width, height int, now func() time.Time) Model {
	if now == nil {
		now = time.Now
	}
	l := list.New([]list.Item{}, ItemDelegate{now: now}, width, height)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{list: l, width: width, height: height}
}

// Update handles messages for the task list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(feed.TasksMsg); ok {
		items := make([]list.Item, len(msg.Tasks))
		for i, task := range msg.Tasks {
			items[i] = TaskItem{Task: task}
		}
		return m, m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Len returns the number of tasks shown.
func (m Model) Len() int {
	return len(m.list.Items())
}

// View renders the task list view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No tasks yet.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
