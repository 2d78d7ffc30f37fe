package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskfeed/internal/alert"
	"github.com/nhle/taskfeed/internal/engine"
	"github.com/nhle/taskfeed/internal/feed"
	"github.com/nhle/taskfeed/internal/keys"
	"github.com/nhle/taskfeed/internal/theme"
	"github.com/nhle/taskfeed/internal/ui"
	"github.com/nhle/taskfeed/internal/ui/tasklist"
)

// maxAlerts is how many recent alerts stay on screen.
const maxAlerts = 3

// statusInterval is how often the header refreshes the engine state.
const statusInterval = time.Second

type statusTickMsg time.Time

// Options configures the watch view.
type Options struct {
	UserID string
	Feed   *feed.Feed
	Alerts *AlertQueue

	// Statuses reports the engine components for the header.
	Statuses func() []engine.Status

	// Resync forces every live query to re-deliver. Optional.
	Resync func()

	// Now renders deadlines; nil means time.Now.
	Now func() time.Time
}

// Model is the root Bubble Tea model of the watch view: the live task
// feed, the most recent alerts and the engine state.
type Model struct {
	opts     Options
	layout   ui.Layout
	keys     *keys.KeyMap
	help     help.Model
	taskList tasklist.Model
	alerts   []AlertMsg
	statuses []engine.Status
	ready    bool
}

// New creates the watch view.
func New(opts Options) Model {
	if opts.Statuses == nil {
		opts.Statuses = func() []engine.Status { return nil }
	}
	return Model{
		opts:     opts,
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		taskList: tasklist.New(80, 24, opts.Now),
		statuses: opts.Statuses(),
	}
}

// Init starts listening for merged task lists, alerts and status ticks.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		feed.WaitForTasks(m.opts.Feed),
		m.opts.Alerts.Wait(),
		tickStatus(),
	)
}

func tickStatus() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		return m, nil

	case feed.TasksMsg:
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, tea.Batch(cmd, feed.WaitForTasks(m.opts.Feed))

	case AlertMsg:
		m.alerts = append([]AlertMsg{msg}, m.alerts...)
		if len(m.alerts) > maxAlerts {
			m.alerts = m.alerts[:maxAlerts]
		}
		m.resize()
		return m, m.opts.Alerts.Wait()

	case statusTickMsg:
		m.statuses = m.opts.Statuses()
		return m, tickStatus()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			if m.opts.Resync != nil {
				m.opts.Resync()
			}
			return m, nil
		case key.Matches(msg, m.keys.Dismiss):
			m.alerts = nil
			m.resize()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

// resize gives the task list whatever height the alert panel leaves.
func (m *Model) resize() {
	if !m.ready {
		return
	}
	height := m.layout.ContentHeight()
	if len(m.alerts) > 0 {
		height -= lipgloss.Height(m.renderAlerts())
	}
	if height < 0 {
		height = 0
	}
	m.help.Width = m.layout.ContentWidth()
	m.taskList.SetSize(m.layout.ContentWidth(), height)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := fmt.Sprintf("taskfeed · %s · %d tasks", m.opts.UserID, m.taskList.Len())
	header := m.layout.RenderHeader(title, Summarize(m.statuses))

	content := m.taskList.View()
	if len(m.alerts) > 0 {
		content = lipgloss.JoinVertical(lipgloss.Left, m.renderAlerts(), content)
	}

	statusBar := m.layout.RenderStatusBar(m.help.View(m.keys))
	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) renderAlerts() string {
	boxes := make([]string, 0, len(m.alerts))
	for _, a := range m.alerts {
		boxes = append(boxes, alert.Render(theme.AlertStyle, a.Title, a.Body))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}

// Summarize condenses component states into the header label: "live" when
// everything runs, otherwise the components that are stopped or failing.
func Summarize(statuses []engine.Status) string {
	if len(statuses) == 0 {
		return "stopped"
	}

	var failing, stopped []string
	for _, s := range statuses {
		switch s.State {
		case engine.StateError:
			failing = append(failing, s.Component)
		case engine.StateStopped:
			stopped = append(stopped, s.Component)
		}
	}

	switch {
	case len(failing) > 0:
		return "degraded: " + strings.Join(failing, ", ")
	case len(stopped) == len(statuses):
		return "stopped"
	case len(stopped) > 0:
		return "stopped: " + strings.Join(stopped, ", ")
	default:
		return "live"
	}
}
