// Package notify turns changes in the document store into durable,
// exactly-once user notifications and local alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/alert"
	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// Kind names a watcher. It prefixes ledger keys and notification ids.
type Kind string

const (
	KindAssignment   Kind = "assignment"
	KindTeamInvite   Kind = "team_invite"
	KindDeadline     Kind = "deadline"
	KindComment      Kind = "comment"
	KindManualInvite Kind = "manual_invite"
)

// State is the lifecycle state of a Watcher.
type State int

const (
	StateStopped State = iota
	StateListening
)

func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "stopped"
}

// DefaultDeadlineWindow is how far ahead the deadline watcher looks.
const DefaultDeadlineWindow = 24 * time.Hour

// Deps are the collaborators shared by all watchers.
type Deps struct {
	Store store.Store
	Sink  alert.Sink

	// Clock defaults to time.Now. It should match the store's clock.
	Clock func() time.Time

	// DeadlineWindow defaults to DefaultDeadlineWindow.
	DeadlineWindow time.Duration

	Log *logrus.Entry
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = alert.Discard
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.DeadlineWindow <= 0 {
		d.DeadlineWindow = DefaultDeadlineWindow
	}
	if d.Log == nil {
		d.Log = logrus.WithField("component", "notify")
	}
	return d
}

// handleFunc processes one snapshot for the cycle's user.
type handleFunc func(ctx context.Context, c *cycle, snap store.Snapshot) error

// Watcher owns one live query and decides, per delivered snapshot, which
// notifications are due.
type Watcher struct {
	kind   Kind
	deps   Deps
	query  func(userID string) store.Query
	handle handleFunc
	ledger *Ledger

	mu        sync.Mutex
	state     State
	gen       uint64
	userID    string
	reg       store.Registration
	cancel    context.CancelFunc
	lastErr   error
	lastCycle time.Time
}

func newWatcher(kind Kind, deps Deps, query func(string) store.Query, handle handleFunc) *Watcher {
	return &Watcher{
		kind:   kind,
		deps:   deps.withDefaults(),
		query:  query,
		handle: handle,
		ledger: NewLedger(),
	}
}

// Kind returns the watcher kind.
func (w *Watcher) Kind() Kind {
	return w.kind
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status is a point-in-time view of a watcher.
type Status struct {
	Kind      Kind
	State     State
	UserID    string
	LastCycle time.Time
	LastError error
}

// Status reports the state and the outcome of the last cycle.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Kind:      w.kind,
		State:     w.state,
		UserID:    w.userID,
		LastCycle: w.lastCycle,
		LastError: w.lastErr,
	}
}

// Start subscribes on behalf of userID. A listening watcher is stopped
// first, so Start doubles as a clean restart.
func (w *Watcher) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("starting %s watcher: empty user id", w.kind)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateListening {
		w.stopLocked()
	}

	w.gen++
	gen := w.gen
	wctx, cancel := context.WithCancel(ctx)
	w.state = StateListening
	w.userID = userID
	w.cancel = cancel
	w.lastErr = nil
	w.lastCycle = time.Time{}

	log := w.deps.Log.WithFields(logrus.Fields{
		"watcher": string(w.kind),
		"user":    userID,
	})
	c := &cycle{w: w, gen: gen, user: userID, log: log}

	reg, err := w.deps.Store.Watch(wctx, w.query(userID), func(snap store.Snapshot, err error) {
		w.deliver(wctx, c, snap, err)
	})
	if err != nil {
		cancel()
		w.state = StateStopped
		w.userID = ""
		w.lastErr = err
		return fmt.Errorf("starting %s watcher: %w", w.kind, err)
	}
	w.reg = reg

	log.Info("watcher listening")
	return nil
}

// Stop tears down the subscription, cancels in-flight writes and clears
// the ledger. Callbacks already running become no-ops.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped {
		return
	}
	w.stopLocked()
	w.deps.Log.WithField("watcher", string(w.kind)).Info("watcher stopped")
}

func (w *Watcher) stopLocked() {
	w.gen++
	if w.cancel != nil {
		w.cancel()
	}
	if w.reg != nil {
		w.reg.Stop()
	}
	w.reg = nil
	w.cancel = nil
	w.userID = ""
	w.state = StateStopped
	w.ledger.Reset()
}

func (w *Watcher) active(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateListening && w.gen == gen
}

func (w *Watcher) deliver(ctx context.Context, c *cycle, snap store.Snapshot, err error) {
	if !c.active() {
		return
	}
	if err != nil {
		c.log.WithError(err).Warn("subscription error, waiting for next snapshot")
		w.record(c.gen, err)
		return
	}

	err = w.handle(ctx, c, snap)
	if err != nil && ctx.Err() == nil {
		c.log.WithError(err).Error("notification cycle failed")
	}
	w.record(c.gen, err)
}

func (w *Watcher) record(gen uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return
	}
	w.lastErr = err
	w.lastCycle = w.deps.Clock()
}

// cycle is the view a handler gets of its watcher for one generation.
type cycle struct {
	w    *Watcher
	gen  uint64
	user string
	log  *logrus.Entry
}

func (c *cycle) active() bool {
	return c.w.active(c.gen)
}

func (c *cycle) now() time.Time {
	return c.w.deps.Clock()
}

func (c *cycle) store() store.Store {
	return c.w.deps.Store
}

func (c *cycle) seen(key string) bool {
	return c.w.ledger.Seen(key)
}

// mark records key unless the watcher was stopped or restarted meanwhile.
func (c *cycle) mark(key string) {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	if c.w.state == StateListening && c.w.gen == c.gen {
		c.w.ledger.Mark(key)
	}
}

func (c *cycle) alert(title, body string) {
	if c.active() {
		c.w.deps.Sink.Show(title, body)
	}
}

// create writes event with create-if-absent semantics and reports whether
// this call created it.
func (c *cycle) create(ctx context.Context, event model.NotificationEvent) (bool, error) {
	ref := store.Doc(model.CollectionNotifications, event.ID)
	err := c.store().Create(ctx, ref, event.Fields())
	if errors.Is(err, store.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("writing notification %s: %w", event.ID, err)
	}
	return true, nil
}

// notify runs the write sequence for one (record, subject) pair: the
// notification record, then the persisted marker, then the ledger, then
// the local alert. Any write failure leaves the ledger untouched so the
// next snapshot retries; both writes are idempotent. The alert fires when
// this call created the record or added the marker, so a retry after a
// failed marker write still alerts once.
func (c *cycle) notify(
	ctx context.Context,
	key string,
	event model.NotificationEvent,
	marker func(ctx context.Context) (bool, error),
) error {
	if !c.active() {
		return nil
	}

	created, err := c.create(ctx, event)
	if err != nil {
		return err
	}
	added, err := marker(ctx)
	if err != nil {
		return fmt.Errorf("writing marker for %s: %w", key, err)
	}
	c.mark(key)

	if !created && !added {
		c.log.WithField("key", key).Debug("already notified")
		return nil
	}
	c.log.WithFields(logrus.Fields{
		"key":          key,
		"notification": event.ID,
	}).Info("notification created")
	c.alert(event.Title, event.Description)
	return nil
}

// unionMarker returns a marker write that adds subject to the array field
// of ref. It reports false when subject was already there.
func unionMarker(s store.Store, ref store.Ref, field, subject string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		return s.Apply(ctx, ref, store.ArrayUnion(field, subject))
	}
}

// NewWatchers builds the assignment, team-invite, deadline, comment and
// manual-invite watchers, in that order.
func NewWatchers(deps Deps) []*Watcher {
	return []*Watcher{
		NewAssignmentWatcher(deps),
		NewTeamInviteWatcher(deps),
		NewDeadlineWatcher(deps),
		NewCommentWatcher(deps),
		NewManualInviteWatcher(deps),
	}
}
