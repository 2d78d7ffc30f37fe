package feed

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskfeed/internal/model"
)

// TasksMsg is a tea.Msg carrying a freshly merged task list.
type TasksMsg struct {
	Tasks []model.Task
}

// WaitForTasks returns a tea.Cmd that blocks until f publishes a new merge.
// Call it again after handling each TasksMsg to keep listening. It yields
// nil once the feed is closed.
func WaitForTasks(f *Feed) tea.Cmd {
	return func() tea.Msg {
		tasks, ok := <-f.Updates()
		if !ok {
			return nil
		}
		return TasksMsg{Tasks: tasks}
	}
}
