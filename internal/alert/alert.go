// Package alert displays local notifications.
package alert

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/theme"
)

// Sink shows a local alert. Show must not block the caller.
type Sink interface {
	Show(title, body string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(title, body string)

// Show calls f.
func (f SinkFunc) Show(title, body string) {
	f(title, body)
}

// Discard is a Sink that drops every alert.
var Discard Sink = SinkFunc(func(string, string) {})

// DefaultBuffer is the queue length used when NewTerminalSink is given a
// non-positive buffer.
const DefaultBuffer = 32

type message struct {
	title string
	body  string
}

// TerminalSink renders alerts as boxes on a writer. Alerts are queued and
// written by a single worker; when the queue is full the alert is dropped.
type TerminalSink struct {
	out   io.Writer
	log   *logrus.Entry
	queue chan message
	style lipgloss.Style
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewTerminalSink starts a sink writing to out.
func NewTerminalSink(out io.Writer, buffer int, log *logrus.Entry) *TerminalSink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logrus.WithField("component", "alert")
	}
	s := &TerminalSink{
		out:   out,
		log:   log,
		queue: make(chan message, buffer),
		style: theme.AlertStyle,
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Show queues an alert.
func (s *TerminalSink) Show(title, body string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- message{title: title, body: body}:
	default:
		s.log.WithField("title", title).Warn("alert queue full, dropping alert")
	}
}

// Close writes any queued alerts and stops the worker.
func (s *TerminalSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

func (s *TerminalSink) run() {
	defer close(s.done)
	for m := range s.queue {
		if _, err := fmt.Fprintln(s.out, Render(s.style, m.title, m.body)); err != nil {
			s.log.WithError(err).Warn("writing alert")
		}
	}
}

// Render formats one alert.
func Render(style lipgloss.Style, title, body string) string {
	content := theme.AlertTitleStyle.Render(title)
	if body != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, content, body)
	}
	return style.Render(content)
}
