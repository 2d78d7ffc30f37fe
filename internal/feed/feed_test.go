package feed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/normalize"
	"github.com/nhle/taskfeed/internal/store"
	"github.com/nhle/taskfeed/tests/testutil"
)

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func at(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

func ptr(t time.Time) *time.Time { return &t }

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func waitFor(t *testing.T, f *Feed, cond func([]model.Task) bool) []model.Task {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case tasks, ok := <-f.Updates():
			require.True(t, ok, "feed closed")
			if cond(tasks) {
				return tasks
			}
		case <-timeout:
			t.Fatalf("timed out; current feed is %v", ids(f.Current()))
			return nil
		}
	}
}

func hasIDs(want ...string) func([]model.Task) bool {
	return func(tasks []model.Task) bool {
		got := ids(tasks)
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func TestMerge_DedupFirstWins(t *testing.T) {
	a := []model.Task{{ID: "x", Title: "from A", CreatedAt: at(1)}}
	b := []model.Task{{ID: "x", Title: "from B", CreatedAt: at(1)}, {ID: "y", CreatedAt: at(2)}}

	merged := Merge(a, b, nil)

	require.Len(t, merged, 2)
	assert.Equal(t, []string{"y", "x"}, ids(merged))
	assert.Equal(t, "from A", merged[1].Title)
}

func TestMerge_Ordering(t *testing.T) {
	tasks := []model.Task{
		{ID: "old", CreatedAt: at(0)},
		{ID: "tie-early-deadline", CreatedAt: at(5), Deadline: ptr(at(10))},
		{ID: "tie-no-deadline", CreatedAt: at(5)},
		{ID: "tie-late-deadline", CreatedAt: at(5), Deadline: ptr(at(20))},
		{ID: "new", CreatedAt: at(9)},
	}

	merged := Merge(tasks)

	assert.Equal(t, []string{
		"new", "tie-no-deadline", "tie-late-deadline", "tie-early-deadline", "old",
	}, ids(merged))
}

func TestMerge_EmptyIsNotNil(t *testing.T) {
	assert.NotNil(t, Merge())
	assert.Empty(t, Merge(nil, nil))
}

func seedScenario(t *testing.T, s store.Store) {
	t.Helper()
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P1"), map[string]any{
		"title": "Personal one", "ownerId": "U", "createdAt": at(3),
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P2"), map[string]any{
		"title": "Legacy one", "userId": "U", "createdAt": at(2),
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeams, "Alpha"), map[string]any{
		"name": "Alpha", "members": []string{"U", "V"},
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T1"), map[string]any{
		"title": "Team one", "teamId": "Alpha", "assignees": []string{"U"}, "createdAt": at(1),
	})
}

func TestObserve_MergesAllThreeSubscriptions(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()

	tasks := waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))

	assert.Equal(t, model.SourcePersonal, tasks[0].Source)
	assert.Equal(t, model.SourcePersonalLegacyAlias, tasks[1].Source)
	assert.Equal(t, model.TeamOwnerID, tasks[2].OwnerID)
	assert.Equal(t, []string{"Alpha"}, tasks[2].Categories)
	assert.Equal(t, ids(tasks), ids(f.Current()))
}

func TestObserve_PublishesLiveChanges(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()
	waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))

	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P3"), map[string]any{
		"title": "Newest", "ownerId": "U", "createdAt": at(8),
	})
	waitFor(t, f, hasIDs("P3", "P1", "P2", "team:Alpha:T1"))

	require.NoError(t, s.Update(context.Background(),
		store.Doc(model.CollectionTeamTasks, "T1"), store.ArrayRemove("assignees", "U")))
	waitFor(t, f, hasIDs("P3", "P1", "P2"))
}

func TestObserve_SkipsTeamTaskWhoseTeamIsMissing(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T2"), map[string]any{
		"title": "Orphan", "teamId": "ghost", "assignees": []string{"U"}, "createdAt": at(4),
	})
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()

	waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))

	testutil.Seed(t, s, store.Doc(model.CollectionTeams, "ghost"), map[string]any{"name": "Ghost"})
	require.NoError(t, s.Update(context.Background(),
		store.Doc(model.CollectionTeamTasks, "T2"), store.Set("title", "Adopted")))
	waitFor(t, f, hasIDs("team:ghost:T2", "P1", "P2", "team:Alpha:T1"))
}

// faultyStore hands out a controllable subscription for the legacy owner
// query and delegates everything else.
type faultyStore struct {
	store.Store

	mu     sync.Mutex
	legacy store.SnapshotFunc
}

type nopRegistration struct{}

func (nopRegistration) Stop() {}

func (s *faultyStore) Watch(ctx context.Context, q store.Query, fn store.SnapshotFunc) (store.Registration, error) {
	if len(q.Filters) > 0 && q.Filters[0].Field == model.FieldLegacyOwnerID {
		s.mu.Lock()
		s.legacy = fn
		s.mu.Unlock()
		return nopRegistration{}, nil
	}
	return s.Store.Watch(ctx, q, fn)
}

func (s *faultyStore) deliver(snap store.Snapshot, err error) {
	s.mu.Lock()
	fn := s.legacy
	s.mu.Unlock()
	fn(snap, err)
}

func TestObserve_DegradesWhenOneSubscriptionFails(t *testing.T) {
	backing := testutil.NewTestStore(t)
	seedScenario(t, backing)
	fs := &faultyStore{Store: backing}
	agg := NewAggregator(fs, normalize.NewTeamNames(backing), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()
	waitFor(t, f, hasIDs("P1", "team:Alpha:T1"))

	p2, err := backing.Get(context.Background(), store.Doc(model.CollectionTasks, "P2"))
	require.NoError(t, err)
	fs.deliver(store.Snapshot{Docs: []store.Document{p2}}, nil)
	waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))

	fs.deliver(store.Snapshot{}, errors.New("permission denied"))
	waitFor(t, f, hasIDs("P1", "team:Alpha:T1"))

	// The healthy subscriptions keep publishing.
	testutil.Seed(t, backing, store.Doc(model.CollectionTasks, "P3"), map[string]any{
		"ownerId": "U", "createdAt": at(9),
	})
	waitFor(t, f, hasIDs("P3", "P1", "team:Alpha:T1"))
}

func TestObserve_RecoversAfterTransientStoreError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedScenario(t, s)

	admin, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)
	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()
	waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))

	_, err = admin.Exec("ALTER TABLE documents RENAME TO documents_offline")
	require.NoError(t, err)
	s.Resync()
	waitFor(t, f, func(tasks []model.Task) bool { return len(tasks) == 0 })

	_, err = admin.Exec("ALTER TABLE documents_offline RENAME TO documents")
	require.NoError(t, err)

	// Unrelated writes re-run the queries; their results match what was
	// delivered before the outage and must still be published.
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P9"), map[string]any{"ownerId": "V"})
	waitFor(t, f, hasIDs("P1", "P2"))
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T9"), map[string]any{
		"teamId": "Alpha", "assignees": []string{"V"},
	})
	waitFor(t, f, hasIDs("P1", "P2", "team:Alpha:T1"))
}

// gatedTeams holds every team lookup until release is closed.
type gatedTeams struct {
	normalize.Getter
	release chan struct{}
}

func (g *gatedTeams) Get(ctx context.Context, ref store.Ref) (store.Document, error) {
	if ref.Collection == model.CollectionTeams {
		select {
		case <-g.release:
		case <-ctx.Done():
			return store.Document{}, ctx.Err()
		}
	}
	return g.Getter.Get(ctx, ref)
}

func TestObserve_SlowTeamLookupDoesNotHoldPersonalTasks(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	gate := &gatedTeams{Getter: s, release: make(chan struct{})}
	agg := NewAggregator(s, normalize.NewTeamNames(gate), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()

	waitFor(t, f, hasIDs("P1", "P2"))
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P3"), map[string]any{
		"ownerId": "U", "createdAt": at(9),
	})
	waitFor(t, f, hasIDs("P3", "P1", "P2"))

	close(gate.release)
	tasks := waitFor(t, f, hasIDs("P3", "P1", "P2", "team:Alpha:T1"))
	assert.Equal(t, "Alpha", tasks[3].TeamName)
}

func TestObserve_IncludesTeamTaskWithoutTeamID(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T9"), map[string]any{
		"title": "Unfiled", "assignees": []string{"U"}, "createdAt": at(5),
	})
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()

	waitFor(t, f, hasIDs("team::T9", "P1", "P2", "team:Alpha:T1"))
}

func TestFeed_CloseStopsDelivery(t *testing.T) {
	s := testutil.NewTestStore(t)
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)

	f.Close()
	f.Close()

	for range f.Updates() {
	}
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P1"), map[string]any{"ownerId": "U"})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.Current())
	assert.Nil(t, WaitForTasks(f)())
}

func TestWaitForTasks(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	f, err := agg.Observe(context.Background(), "U")
	require.NoError(t, err)
	defer f.Close()

	require.Eventually(t, func() bool {
		msg, ok := WaitForTasks(f)().(TasksMsg)
		return ok && len(msg.Tasks) == 3
	}, 2*time.Second, time.Millisecond)
}

func TestObserve_RejectsEmptyUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	_, err := NewAggregator(s, normalize.NewTeamNames(s), nil).Observe(context.Background(), "")
	assert.Error(t, err)
}

func TestLoad_MergesOnce(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T2"), map[string]any{
		"title": "Orphan", "teamId": "Gone", "assignees": []string{"U"}, "createdAt": at(4),
	})
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	tasks, err := agg.Load(context.Background(), "U")

	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "team:Alpha:T1"}, ids(tasks))
}

func TestLoad_IncludesTeamTaskWithoutTeamID(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T9"), map[string]any{
		"title": "Unfiled", "assignees": []string{"U"}, "createdAt": at(5),
	})
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	tasks, err := agg.Load(context.Background(), "U")

	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "team::T9", tasks[0].ID)
	assert.Equal(t, model.SourceTeam, tasks[0].Source)
}

func TestLoad_EmptyUserHasNoTasks(t *testing.T) {
	s := testutil.NewTestStore(t)
	seedScenario(t, s)
	agg := NewAggregator(s, normalize.NewTeamNames(s), nil)

	tasks, err := agg.Load(context.Background(), "V")

	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}
