package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// hub tracks the live queries of one SQLiteStore. Writers only flag
// registrations as dirty; each registration evaluates its own query on its
// own goroutine, so a slow consumer never blocks a writer and a burst of
// writes collapses into one delivery.
type hub struct {
	store *SQLiteStore

	mu   sync.Mutex
	next uint64
	regs map[uint64]*registration
}

func newHub(s *SQLiteStore) *hub {
	return &hub{
		store: s,
		regs:  make(map[uint64]*registration),
	}
}

func (h *hub) register(ctx context.Context, q Query, fn SnapshotFunc) *registration {
	rctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.next++
	r := &registration{
		id:     h.next,
		hub:    h,
		query:  q,
		fn:     fn,
		ctx:    rctx,
		cancel: cancel,
		dirty:  make(chan struct{}, 1),
		resync: make(chan struct{}, 1),
		log: h.store.log.WithFields(logrus.Fields{
			"query": q.String(),
		}),
	}
	h.regs[r.id] = r
	h.mu.Unlock()

	r.signal(r.dirty)
	go r.run()
	return r
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.regs, id)
	h.mu.Unlock()
}

func (h *hub) markDirty(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regs {
		if r.query.Collection == collection {
			r.signal(r.dirty)
		}
	}
}

func (h *hub) resyncAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regs {
		r.signal(r.resync)
	}
}

func (h *hub) stopAll() {
	h.mu.Lock()
	regs := make([]*registration, 0, len(h.regs))
	for _, r := range h.regs {
		regs = append(regs, r)
	}
	h.mu.Unlock()

	for _, r := range regs {
		r.Stop()
	}
}

// registration is one live query.
type registration struct {
	id     uint64
	hub    *hub
	query  Query
	fn     SnapshotFunc
	log    *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	resync chan struct{}

	// Owned by the run goroutine.
	last   map[string]Document
	primed bool
}

// Stop ends delivery.
func (r *registration) Stop() {
	r.cancel()
}

func (r *registration) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
		// Already pending; the next evaluation sees this write too.
	}
}

func (r *registration) run() {
	defer r.hub.remove(r.id)

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.dirty:
			r.evaluate(false)
		case <-r.resync:
			r.evaluate(true)
		}
	}
}

// evaluate runs the query and delivers a snapshot when the result set
// changed, on the first evaluation, or when forced.
func (r *registration) evaluate(force bool) {
	docs, err := r.hub.store.Query(r.ctx, r.query)
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		r.log.WithError(err).Warn("live query failed")
		// Consumers drop their state on error, so the next good result
		// must be delivered even if it matches the last one.
		r.primed = false
		r.fn(Snapshot{}, err)
		return
	}

	changes := diffDocuments(r.last, docs)
	if r.primed && len(changes) == 0 && !force {
		return
	}

	r.primed = true
	r.last = make(map[string]Document, len(docs))
	for _, d := range docs {
		r.last[d.ID()] = d
	}

	if r.ctx.Err() != nil {
		return
	}
	r.fn(Snapshot{
		Docs:     docs,
		Changes:  changes,
		ReadTime: r.hub.store.clock(),
	}, nil)
}

// diffDocuments compares a previous result set with the current one.
// Added and modified changes follow the order of docs; removals follow,
// sorted by id.
func diffDocuments(prev map[string]Document, docs []Document) []Change {
	var changes []Change
	seen := make(map[string]bool, len(docs))

	for _, d := range docs {
		seen[d.ID()] = true
		old, ok := prev[d.ID()]
		switch {
		case !ok:
			changes = append(changes, Change{Type: ChangeAdded, Doc: d})
		case old.Version != d.Version:
			changes = append(changes, Change{Type: ChangeModified, Doc: d})
		}
	}

	var removed []string
	for id := range prev {
		if !seen[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		changes = append(changes, Change{Type: ChangeRemoved, Doc: prev[id]})
	}

	return changes
}
