package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
	"github.com/nhle/taskfeed/tests/testutil"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type shown struct {
	title string
	body  string
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []shown
}

func (s *recordingSink) Show(title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, shown{title: title, body: body})
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *recordingSink) all() []shown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shown(nil), s.alerts...)
}

// manualStore hands snapshot delivery to the test: Watch only captures
// the callback. Writes can be made to fail.
type manualStore struct {
	store.Store

	mu         sync.Mutex
	fn         store.SnapshotFunc
	query      store.Query
	stops      int
	failWatch  error
	failUpdate error
	failCreate error

	// failMarkers rejects creates in comment_notifications only.
	failMarkers error
}

type manualRegistration struct{ s *manualStore }

func (r manualRegistration) Stop() {
	r.s.mu.Lock()
	r.s.stops++
	r.s.mu.Unlock()
}

func (s *manualStore) Watch(_ context.Context, q store.Query, fn store.SnapshotFunc) (store.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWatch != nil {
		return nil, s.failWatch
	}
	s.fn = fn
	s.query = q
	return manualRegistration{s: s}, nil
}

func (s *manualStore) Update(ctx context.Context, ref store.Ref, updates ...store.FieldUpdate) error {
	s.mu.Lock()
	err := s.failUpdate
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Update(ctx, ref, updates...)
}

func (s *manualStore) Apply(ctx context.Context, ref store.Ref, updates ...store.FieldUpdate) (bool, error) {
	s.mu.Lock()
	err := s.failUpdate
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.Store.Apply(ctx, ref, updates...)
}

func (s *manualStore) Create(ctx context.Context, ref store.Ref, data map[string]any) error {
	s.mu.Lock()
	err := s.failCreate
	if ref.Collection == model.CollectionCommentNotifications && s.failMarkers != nil {
		err = s.failMarkers
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Create(ctx, ref, data)
}

func (s *manualStore) setFailures(update, create error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate = update
	s.failCreate = create
}

type fixture struct {
	t     *testing.T
	db    *store.SQLiteStore
	ms    *manualStore
	sink  *recordingSink
	clock *testutil.Clock
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(base)
	db := testutil.NewTestStore(t, store.WithClock(clock.Now))
	ms := &manualStore{Store: db}
	sink := &recordingSink{}
	return &fixture{
		t:     t,
		db:    db,
		ms:    ms,
		sink:  sink,
		clock: clock,
		deps:  Deps{Store: ms, Sink: sink, Clock: clock.Now},
	}
}

func (f *fixture) seed(collection, id string, data map[string]any) {
	f.t.Helper()
	testutil.Seed(f.t, f.db, store.Doc(collection, id), data)
}

func (f *fixture) start(w *Watcher, user string) {
	f.t.Helper()
	require.NoError(f.t, w.Start(context.Background(), user))
	f.t.Cleanup(w.Stop)
}

// current evaluates the watcher's captured query and reports every match
// as added, like the first delivery of a fresh subscription.
func (f *fixture) current() store.Snapshot {
	f.t.Helper()
	f.ms.mu.Lock()
	q := f.ms.query
	f.ms.mu.Unlock()

	docs, err := f.db.Query(context.Background(), q)
	require.NoError(f.t, err)
	snap := store.Snapshot{Docs: docs, ReadTime: f.clock.Now()}
	for _, d := range docs {
		snap.Changes = append(snap.Changes, store.Change{Type: store.ChangeAdded, Doc: d})
	}
	return snap
}

func (f *fixture) deliver(snap store.Snapshot) {
	f.t.Helper()
	f.ms.mu.Lock()
	fn := f.ms.fn
	f.ms.mu.Unlock()
	require.NotNil(f.t, fn, "watcher not started")
	fn(snap, nil)
}

func (f *fixture) get(collection, id string) store.Document {
	f.t.Helper()
	doc, err := f.db.Get(context.Background(), store.Doc(collection, id))
	require.NoError(f.t, err)
	return doc
}

func (f *fixture) notifications() []store.Document {
	f.t.Helper()
	docs, err := f.db.Query(context.Background(), store.Collection(model.CollectionNotifications))
	require.NoError(f.t, err)
	return docs
}

func added(docs ...store.Document) store.Snapshot {
	snap := store.Snapshot{Docs: docs}
	for _, d := range docs {
		snap.Changes = append(snap.Changes, store.Change{Type: store.ChangeAdded, Doc: d})
	}
	return snap
}
