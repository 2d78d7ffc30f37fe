package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/theme"
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for filtering.
func (i TaskItem) FilterValue() string { return i.Task.Title }

// Title returns the task title for the list.
func (i TaskItem) Title() string { return i.Task.Title }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	return strings.Join([]string{
		sourceLabel(i.Task),
		i.Task.Status.String(),
		strings.Join(i.Task.Categories, ", "),
	}, " | ")
}

// ItemDelegate implements list.ItemDelegate for task rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(TaskItem)
	if !ok {
		return
	}

	line := RenderTask(ti.Task, d.now())
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// RenderTask formats one task as a single styled line.
func RenderTask(t model.Task, now time.Time) string {
	src := theme.SourceLabelStyle(t.Source).Render(sourceLabel(t))
	status := theme.StatusStyle(t.Status).Render(t.Status.String())
	pri := theme.PriorityStyle(t.Priority).Render(t.Priority.String())

	title := t.Title
	if t.Status == model.StatusDone {
		title = theme.DimmedStyle.Render(title)
	}

	line := fmt.Sprintf("%s %s %s %s", src, status, pri, title)
	if cats := strings.Join(t.Categories, ", "); cats != "" {
		line += " " + theme.MutedStyle.Render(cats)
	}
	if due := DueLabel(t, now); due != "" {
		if t.IsOverdue(now) {
			line += " " + theme.OverdueStyle.Render(due)
		} else {
			line += " " + theme.MutedStyle.Render(due)
		}
	}
	return line
}

// sourceLabel names the origin of a task: its team name, or "ME".
func sourceLabel(t model.Task) string {
	if t.IsTeamTask() {
		if t.TeamName != "" {
			return t.TeamName
		}
		return t.TeamID
	}
	return "ME"
}

// DueLabel describes the deadline of t relative to now. It is empty when
// the task has no deadline.
func DueLabel(t model.Task, now time.Time) string {
	if t.Deadline == nil {
		return ""
	}
	if t.IsOverdue(now) {
		return "OVERDUE"
	}

	d := t.Deadline.Sub(now)
	switch {
	case d < 0:
		return "due " + t.Deadline.Format("Jan 02")
	case d < time.Hour:
		return fmt.Sprintf("due in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("due in %dh", int(d.Hours()))
	default:
		return "due " + t.Deadline.Format("Jan 02")
	}
}
