// Package feed merges the live task queries of one user into a single
// de-duplicated, sorted task list.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/normalize"
	"github.com/nhle/taskfeed/internal/store"
)

// slot indexes the last-known-good list of one subscription.
type slot int

const (
	slotOwner slot = iota
	slotLegacyOwner
	slotTeam
	numSlots
)

func (s slot) String() string {
	switch s {
	case slotOwner:
		return "owner"
	case slotLegacyOwner:
		return "legacy_owner"
	default:
		return "team"
	}
}

// Aggregator opens per-user feeds.
type Aggregator struct {
	store store.Store
	teams *normalize.TeamNames
	log   *logrus.Entry
}

// NewAggregator creates an Aggregator reading from s. Team names are
// resolved through teams.
func NewAggregator(s store.Store, teams *normalize.TeamNames, log *logrus.Entry) *Aggregator {
	if log == nil {
		log = logrus.WithField("component", "feed")
	}
	return &Aggregator{store: s, teams: teams, log: log}
}

// Feed is a live, merged view of a user's tasks.
type Feed struct {
	log     *logrus.Entry
	updates chan []model.Task
	cancel  context.CancelFunc

	mu      sync.Mutex
	slots   [numSlots][]model.Task
	current []model.Task
	regs    []store.Registration
	closed  bool
}

// Observe opens the three task subscriptions of userID: personal tasks by
// owner, personal tasks by the legacy owner alias, and team tasks the user
// is assigned to. An empty list is published immediately; every snapshot
// of any subscription publishes a fresh merge.
func (a *Aggregator) Observe(ctx context.Context, userID string) (*Feed, error) {
	if userID == "" {
		return nil, fmt.Errorf("observing tasks: empty user id")
	}

	fctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		log:     a.log.WithField("user", userID),
		updates: make(chan []model.Task, 1),
		cancel:  cancel,
	}
	f.mu.Lock()
	f.publishLocked()
	f.mu.Unlock()

	personal := func(s slot, src model.Source) store.SnapshotFunc {
		return func(snap store.Snapshot, err error) {
			if err != nil {
				f.fail(s, err)
				return
			}
			tasks := make([]model.Task, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				tasks = append(tasks, normalize.Normalize(doc, src, ""))
			}
			f.replace(s, tasks)
		}
	}

	team := func(snap store.Snapshot, err error) {
		if err != nil {
			f.fail(slotTeam, err)
			return
		}
		// Team-name lookups may block; they run on this subscription's
		// goroutine so the personal slots keep publishing meanwhile.
		tasks := make([]model.Task, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			task, err := a.teams.NormalizeTeamTask(fctx, doc)
			if err != nil {
				f.log.WithError(err).WithField("task", doc.ID()).
					Debug("skipping team task this cycle")
				continue
			}
			tasks = append(tasks, task)
		}
		f.replace(slotTeam, tasks)
	}

	qs := queries(userID)
	watches := []struct {
		query store.Query
		fn    store.SnapshotFunc
	}{
		{qs[slotOwner], personal(slotOwner, model.SourcePersonal)},
		{qs[slotLegacyOwner], personal(slotLegacyOwner, model.SourcePersonalLegacyAlias)},
		{qs[slotTeam], team},
	}

	for _, w := range watches {
		reg, err := a.store.Watch(fctx, w.query, w.fn)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("watching %s: %w", w.query, err)
		}
		f.mu.Lock()
		f.regs = append(f.regs, reg)
		f.mu.Unlock()
	}

	return f, nil
}

// Load evaluates the three task queries of userID once and returns their
// merge. Team tasks whose team cannot be resolved are left out.
func (a *Aggregator) Load(ctx context.Context, userID string) ([]model.Task, error) {
	qs := queries(userID)
	sources := [numSlots]model.Source{model.SourcePersonal, model.SourcePersonalLegacyAlias, model.SourceTeam}

	var lists [numSlots][]model.Task
	for s := slotOwner; s < numSlots; s++ {
		docs, err := a.store.Query(ctx, qs[s])
		if err != nil {
			return nil, fmt.Errorf("loading %s tasks: %w", s, err)
		}
		for _, doc := range docs {
			if s != slotTeam {
				lists[s] = append(lists[s], normalize.Normalize(doc, sources[s], ""))
				continue
			}
			task, err := a.teams.NormalizeTeamTask(ctx, doc)
			if err != nil {
				a.log.WithError(err).WithField("task", doc.ID()).Debug("skipping team task")
				continue
			}
			lists[s] = append(lists[s], task)
		}
	}
	return Merge(lists[:]...), nil
}

// queries returns the live queries of userID, indexed by slot.
func queries(userID string) [numSlots]store.Query {
	return [numSlots]store.Query{
		slotOwner: store.Collection(model.CollectionTasks).
			Where(model.FieldOwnerID, store.OpEqual, userID),
		slotLegacyOwner: store.Collection(model.CollectionTasks).
			Where(model.FieldLegacyOwnerID, store.OpEqual, userID),
		slotTeam: store.Collection(model.CollectionTeamTasks).
			Where(model.FieldAssignees, store.OpArrayContains, userID),
	}
}

// Updates delivers merged lists. The channel holds at most one pending
// list: a slow reader only ever sees the newest merge. It is closed by
// Close.
func (f *Feed) Updates() <-chan []model.Task {
	return f.updates
}

// Current returns the most recently published merge.
func (f *Feed) Current() []model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.current...)
}

// Close stops all subscriptions and closes Updates. Snapshots that arrive
// afterwards are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	regs := f.regs
	f.regs = nil
	close(f.updates)
	f.mu.Unlock()

	f.cancel()
	for _, reg := range regs {
		reg.Stop()
	}
}

// replace swaps one slot wholesale and publishes the new merge.
func (f *Feed) replace(s slot, tasks []model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.slots[s] = tasks
	f.publishLocked()
}

// fail empties a slot after a subscription error; the other slots keep
// feeding the merge until the subscription recovers.
func (f *Feed) fail(s slot, err error) {
	f.log.WithError(err).WithField("subscription", s.String()).
		Warn("task subscription failed")
	f.replace(s, nil)
}

func (f *Feed) publishLocked() {
	f.current = Merge(f.slots[:]...)

	select {
	case <-f.updates:
	default:
	}
	// Only publishLocked sends, under f.mu, so the drained slot is free.
	f.updates <- f.current
}

// Merge concatenates lists in order, keeps the first task seen for each
// id, and sorts newest first. Ties on CreatedAt are broken by the later
// deadline, with tasks that have no deadline first.
func Merge(lists ...[]model.Task) []model.Task {
	seen := make(map[string]bool)
	merged := []model.Task{}
	for _, list := range lists {
		for _, t := range list {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			merged = append(merged, t)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return before(merged[i], merged[j])
	})
	return merged
}

func before(x, y model.Task) bool {
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	switch {
	case x.Deadline == nil:
		return y.Deadline != nil
	case y.Deadline == nil:
		return false
	default:
		return x.Deadline.After(*y.Deadline)
	}
}
