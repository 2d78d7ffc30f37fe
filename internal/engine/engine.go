// Package engine wires the task feed and the notification watchers of one
// signed-in user together.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/alert"
	"github.com/nhle/taskfeed/internal/feed"
	"github.com/nhle/taskfeed/internal/normalize"
	"github.com/nhle/taskfeed/internal/notify"
	"github.com/nhle/taskfeed/internal/store"
)

// ComponentState represents the state of one engine component.
type ComponentState int

const (
	StateStopped ComponentState = iota
	StateRunning
	StateError
)

func (s ComponentState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "stopped"
	}
}

// FeedComponent is the component name of the task feed in Statuses.
const FeedComponent = "feed"

// Status holds the state of a single component.
type Status struct {
	Component string
	State     ComponentState
	LastCycle time.Time
	Error     error
}

// Options configures an Engine.
type Options struct {
	// Clock is shared by the watchers; it should match the store's clock.
	Clock func() time.Time

	// DeadlineWindow is how far ahead deadline reminders look.
	DeadlineWindow time.Duration

	Log *logrus.Entry
}

// Engine owns the feed and the watchers for the current user.
type Engine struct {
	log      *logrus.Entry
	agg      *feed.Aggregator
	watchers []*notify.Watcher

	mu      sync.Mutex
	feed    *feed.Feed
	userID  string
	feedErr error
}

// New builds an engine over s. Alerts go to sink.
func New(s store.Store, sink alert.Sink, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logrus.WithField("component", "engine")
	}

	teams := normalize.NewTeamNames(s)
	deps := notify.Deps{
		Store:          s,
		Sink:           sink,
		Clock:          opts.Clock,
		DeadlineWindow: opts.DeadlineWindow,
		Log:            log.WithField("component", "notify"),
	}

	return &Engine{
		log:      log,
		agg:      feed.NewAggregator(s, teams, log.WithField("component", "feed")),
		watchers: notify.NewWatchers(deps),
	}
}

// Start opens the feed and starts every watcher for userID, stopping a
// previous session first. The feed is required; a watcher that fails to
// start is logged and reported by Statuses while the rest keep running.
func (e *Engine) Start(ctx context.Context, userID string) (*feed.Feed, error) {
	e.Stop()

	f, err := e.agg.Observe(ctx, userID)
	if err != nil {
		e.mu.Lock()
		e.feedErr = err
		e.mu.Unlock()
		return nil, fmt.Errorf("starting engine: %w", err)
	}

	e.mu.Lock()
	e.feed = f
	e.userID = userID
	e.feedErr = nil
	e.mu.Unlock()

	for _, w := range e.watchers {
		if err := w.Start(ctx, userID); err != nil {
			e.log.WithError(err).WithField("watcher", string(w.Kind())).
				Warn("watcher failed to start")
		}
	}

	e.log.WithField("user", userID).Info("engine started")
	return f, nil
}

// Stop closes the feed and stops every watcher.
func (e *Engine) Stop() {
	e.mu.Lock()
	f := e.feed
	user := e.userID
	e.feed = nil
	e.userID = ""
	e.mu.Unlock()

	if f == nil {
		return
	}
	f.Close()
	for _, w := range e.watchers {
		w.Stop()
	}
	e.log.WithField("user", user).Info("engine stopped")
}

// Statuses returns the state of the feed followed by each watcher.
func (e *Engine) Statuses() []Status {
	e.mu.Lock()
	fs := Status{Component: FeedComponent, State: StateStopped, Error: e.feedErr}
	if e.feed != nil {
		fs.State = StateRunning
	} else if e.feedErr != nil {
		fs.State = StateError
	}
	e.mu.Unlock()

	statuses := make([]Status, 0, len(e.watchers)+1)
	statuses = append(statuses, fs)
	for _, w := range e.watchers {
		ws := w.Status()
		s := Status{
			Component: string(ws.Kind),
			State:     StateStopped,
			LastCycle: ws.LastCycle,
			Error:     ws.LastError,
		}
		switch {
		case ws.LastError != nil:
			s.State = StateError
		case ws.State == notify.StateListening:
			s.State = StateRunning
		}
		statuses = append(statuses, s)
	}
	return statuses
}
