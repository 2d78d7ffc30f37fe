package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/alert"
)

// AlertMsg is a local alert delivered to the watch view.
type AlertMsg struct {
	Title string
	Body  string
	At    time.Time
}

// AlertQueue is an alert.Sink that hands alerts to the Bubble Tea program.
// Show never blocks; alerts that do not fit in the buffer are dropped.
type AlertQueue struct {
	ch  chan AlertMsg
	log *logrus.Entry
}

var _ alert.Sink = (*AlertQueue)(nil)

// NewAlertQueue creates a queue holding up to buffer pending alerts.
func NewAlertQueue(buffer int, log *logrus.Entry) *AlertQueue {
	if buffer <= 0 {
		buffer = alert.DefaultBuffer
	}
	if log == nil {
		log = logrus.WithField("component", "alert")
	}
	return &AlertQueue{ch: make(chan AlertMsg, buffer), log: log}
}

// Show queues an alert.
func (q *AlertQueue) Show(title, body string) {
	select {
	case q.ch <- AlertMsg{Title: title, Body: body, At: time.Now()}:
	default:
		q.log.WithField("title", title).Warn("alert queue full, dropping alert")
	}
}

// Wait returns a tea.Cmd that blocks until the next alert is queued.
func (q *AlertQueue) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-q.ch
	}
}
