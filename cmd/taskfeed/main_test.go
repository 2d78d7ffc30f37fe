package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskfeed/internal/credential"
	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
	"github.com/nhle/taskfeed/tests/testutil"
)

func TestRedisOptions(t *testing.T) {
	noKeyring := func() (string, error) {
		t.Fatal("keyring consulted")
		return "", nil
	}

	t.Run("host and port", func(t *testing.T) {
		opts, err := redisOptions(model.RedisConfig{Addr: "cache:6379", DB: 2, Password: "pw"}, noKeyring)
		require.NoError(t, err)
		assert.Equal(t, "cache:6379", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "pw", opts.Password)
	})

	t.Run("url", func(t *testing.T) {
		opts, err := redisOptions(model.RedisConfig{Addr: "redis://:secret@cache:6380/3"}, noKeyring)
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 3, opts.DB)
		assert.Equal(t, "secret", opts.Password)
	})

	t.Run("keyring password wins", func(t *testing.T) {
		opts, err := redisOptions(model.RedisConfig{
			Addr: "cache:6379", Password: "file", PasswordFromKeyring: true,
		}, func() (string, error) { return "ring", nil })
		require.NoError(t, err)
		assert.Equal(t, "ring", opts.Password)
	})

	t.Run("missing keyring entry is ignored", func(t *testing.T) {
		opts, err := redisOptions(model.RedisConfig{
			Addr: "cache:6379", Password: "file", PasswordFromKeyring: true,
		}, func() (string, error) { return "", credential.ErrNotFound })
		require.NoError(t, err)
		assert.Equal(t, "file", opts.Password)
	})

	t.Run("keyring failure", func(t *testing.T) {
		_, err := redisOptions(model.RedisConfig{Addr: "cache:6379", PasswordFromKeyring: true},
			func() (string, error) { return "", errors.New("locked") })
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(model.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	logger.WithField("component", "store").Warn("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "store", entry["component"])

	assert.Equal(t, logrus.DebugLevel, newLogger(model.LogConfig{Level: "warn"}, true, &buf).GetLevel())
	assert.Equal(t, logrus.InfoLevel, newLogger(model.LogConfig{Level: "bogus"}, false, &buf).GetLevel())
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	for id, n := range map[string]model.NotificationEvent{
		"n1": {TargetUserID: "U", Title: "Older", Type: model.NotificationComment, CreatedAt: base},
		"n2": {TargetUserID: "U", Title: "Newer", Type: model.NotificationAssignment, CreatedAt: base.Add(time.Hour)},
		"n3": {TargetUserID: "U", Title: "Read", Type: model.NotificationTeamInvite, IsRead: true, CreatedAt: base},
		"n4": {TargetUserID: "V", Title: "Other user", Type: model.NotificationComment, CreatedAt: base},
	} {
		testutil.Seed(t, s, store.Doc(model.CollectionNotifications, id), n.Fields())
	}

	docs, err := listNotifications(ctx, s, "U", false)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "n2", docs[0].ID())
	assert.Equal(t, "n1", docs[1].ID())

	var out bytes.Buffer
	printNotifications(&out, docs)
	assert.Contains(t, out.String(), "2 notifications")
	assert.Contains(t, out.String(), "Newer")

	require.NoError(t, markNotificationsRead(ctx, s, docs))

	unread, err := listNotifications(ctx, s, "U", false)
	require.NoError(t, err)
	assert.Empty(t, unread)

	everything, err := listNotifications(ctx, s, "U", true)
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestTasksCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "feed.db")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"store:\n  path: "+dbPath+"\n  resync_interval_sec: 0\nlog:\n  level: error\n",
	), 0o600))

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P1"), map[string]any{
		"title": "Mine", "ownerId": "U", "createdAt": base,
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTasks, "P2"), map[string]any{
		"title": "Legacy", "userId": "U", "createdAt": base.Add(time.Hour),
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeams, "Alpha"), map[string]any{
		"name": "Alpha", "members": []string{"U"},
	})
	testutil.Seed(t, s, store.Doc(model.CollectionTeamTasks, "T1"), map[string]any{
		"title": "Shared", "teamId": "Alpha", "assignees": []string{"U"}, "createdAt": base.Add(-time.Hour),
	})
	require.NoError(t, s.Close())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", configPath, "tasks", "--user", "U", "--json"})
	require.NoError(t, root.Execute())

	var tasks []model.Task
	require.NoError(t, json.Unmarshal(out.Bytes(), &tasks))
	require.Len(t, tasks, 3)
	assert.Equal(t, "P2", tasks[0].ID)
	assert.Equal(t, "P1", tasks[1].ID)
	assert.Equal(t, "team:Alpha:T1", tasks[2].ID)
	assert.Equal(t, "Alpha", tasks[2].TeamName)
}

func TestTasksCommand_RequiresUser(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"tasks"})

	assert.Error(t, root.Execute())
}
