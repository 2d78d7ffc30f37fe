package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
	"github.com/nhle/taskfeed/tests/testutil"
)

type titles struct {
	mu  sync.Mutex
	all []string
}

func (s *titles) Show(title, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, title)
}

func (s *titles) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.all...)
}

func seed(t *testing.T, s store.Store, now time.Time) {
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P1"), map[string]any{
		"title": "Personal", "ownerId": "U", "createdAt": now.Add(-time.Hour),
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeams, "Alpha"), map[string]any{
		"name": "Alpha", "members": []string{"U", "V"}, "createdBy": "V",
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T1"), map[string]any{
		"title":     "Ship it",
		"teamId":    "Alpha",
		"assignees": []string{"U"},
		"createdBy": "V",
		"createdAt": now.Add(-2 * time.Hour),
		"deadline":  now.Add(50 * time.Minute),
	})
}

func byComponent(statuses []Status) map[string]Status {
	out := make(map[string]Status, len(statuses))
	for _, s := range statuses {
		out[s.Component] = s
	}
	return out
}

func TestEngine_StartFeedsTasksAndNotifies(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	seed(t, s, clock.Now())
	sink := &titles{}
	e := New(s, sink, Options{Clock: clock.Now})

	f, err := e.Start(context.Background(), "U")
	require.NoError(t, err)
	defer e.Stop()

	require.Eventually(t, func() bool {
		return len(f.Current()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "P1", f.Current()[0].ID)
	assert.Equal(t, "team:Alpha:T1", f.Current()[1].ID)

	require.Eventually(t, func() bool {
		return len(sink.list()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{
		"New task assignment", "Team invitation", "Deadline approaching",
	}, sink.list())

	for name, st := range byComponent(e.Statuses()) {
		assert.Equal(t, StateRunning, st.State, name)
	}
}

func TestEngine_RestartDoesNotRenotify(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	seed(t, s, clock.Now())
	sink := &titles{}
	e := New(s, sink, Options{Clock: clock.Now})

	_, err := e.Start(context.Background(), "U")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(sink.list()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	_, err = e.Start(context.Background(), "U")
	require.NoError(t, err)
	defer e.Stop()

	require.Eventually(t, func() bool {
		for _, st := range e.Statuses()[1:] {
			if st.LastCycle.IsZero() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, sink.list(), 3)
	notes, err := s.Query(context.Background(), store.Collection(model.CollectionNotifications))
	require.NoError(t, err)
	assert.Len(t, notes, 3)
}

// brokenComments fails every watch on the comments collection.
type brokenComments struct {
	store.Store
}

func (b brokenComments) Watch(ctx context.Context, q store.Query, fn store.SnapshotFunc) (store.Registration, error) {
	if q.Collection == model.CollectionComments {
		return nil, errors.New("permission denied")
	}
	return b.Store.Watch(ctx, q, fn)
}

func TestEngine_WatcherStartFailureIsIsolated(t *testing.T) {
	s := testutil.NewTestStore(t)
	e := New(brokenComments{Store: s}, nil, Options{})

	f, err := e.Start(context.Background(), "U")
	require.NoError(t, err)
	require.NotNil(t, f)
	defer e.Stop()

	statuses := byComponent(e.Statuses())
	assert.Equal(t, StateError, statuses["comment"].State)
	assert.Error(t, statuses["comment"].Error)
	assert.Equal(t, StateRunning, statuses[FeedComponent].State)
	assert.Equal(t, StateRunning, statuses["assignment"].State)
}

func TestEngine_StopStopsEverything(t *testing.T) {
	s := testutil.NewTestStore(t)
	e := New(s, nil, Options{})

	f, err := e.Start(context.Background(), "U")
	require.NoError(t, err)

	e.Stop()
	e.Stop()

	_, open := <-f.Updates()
	for open {
		_, open = <-f.Updates()
	}
	for _, st := range e.Statuses() {
		assert.Equal(t, StateStopped, st.State, st.Component)
	}
}

func TestEngine_StartRequiresUser(t *testing.T) {
	e := New(testutil.NewTestStore(t), nil, Options{})

	_, err := e.Start(context.Background(), "")

	require.Error(t, err)
	assert.Equal(t, StateError, byComponent(e.Statuses())[FeedComponent].State)
}
