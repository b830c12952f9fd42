package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watch-sync-service/internal/config"
	"watch-sync-service/internal/database"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

func newTestSQLStore(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "sync.db"),
	})
	require.NoError(t, err)
	s := store.NewSQLStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestManager(t *testing.T, remote *fakeTracker) (*Manager, *store.SQLStore) {
	t.Helper()
	s := newTestSQLStore(t)
	syncer := NewSyncer(s, remote, nil, Options{})
	return NewManager(config.SyncConfig{StaleAfter: "30m"}, syncer, s), s
}

func TestManagerSyncRecordsStateAndHistory(t *testing.T) {
	ctx := context.Background()
	remote := &fakeTracker{items: []tracker.Item{movieItem(27205, "Inception", tracker.StatusCompleted)}}
	m, s := newTestManager(t, remote)

	result, err := m.Sync(ctx, "u", "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	rec, err := s.GetRecord(ctx, "u_movie_27205")
	require.NoError(t, err)
	assert.Equal(t, "Inception", rec.Title)

	state, err := m.Status(ctx, "u")
	require.NoError(t, err)
	assert.False(t, state.IsSyncing)
	require.NotNil(t, state.LastSyncAt)
	require.NotNil(t, state.LastResult)
	assert.Equal(t, 1, state.LastResult.Imported)

	history, err := m.History(ctx, "u", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.HistoryCompleted, history[0].Status)
	assert.Equal(t, 1, history[0].Imported)
	assert.NotNil(t, history[0].CompletedAt)
	assert.NotEmpty(t, history[0].ID)
}

func TestManagerRejectsConcurrentSyncForSameUser(t *testing.T) {
	ctx := context.Background()
	remote := &fakeTracker{release: make(chan struct{})}
	m, _ := newTestManager(t, remote)

	done := make(chan error, 1)
	go func() {
		_, err := m.Sync(ctx, "u", "tok")
		done <- err
	}()
	require.Eventually(t, func() bool { return m.IsRunning("u") }, time.Second, 5*time.Millisecond)

	_, err := m.Sync(ctx, "u", "tok")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(remote.release)
	require.NoError(t, <-done)
	assert.False(t, m.IsRunning("u"))

	_, err = m.Sync(ctx, "u", "tok")
	assert.NoError(t, err, "the guard is released after the pass")
}

func TestManagerHonoursPersistedSyncingFlag(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, &fakeTracker{})

	syncing := true
	require.NoError(t, s.MergeSyncState(ctx, "u", store.SyncStateUpdate{IsSyncing: &syncing}))

	_, err := m.Sync(ctx, "u", "tok")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	// Once the flag is older than stale_after it is treated as a crashed run.
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = m.Sync(ctx, "u", "tok")
	assert.NoError(t, err)

	state, err := m.Status(ctx, "u")
	require.NoError(t, err)
	assert.False(t, state.IsSyncing)
}

func TestManagerFailedSnapshotIsRecorded(t *testing.T) {
	ctx := context.Background()
	remote := &fakeTracker{}
	s := newTestSQLStore(t)
	records := newFakeRecords()
	records.listErr = assert.AnError
	m := NewManager(config.SyncConfig{}, NewSyncer(records, remote, nil, Options{}), s)

	result, err := m.Sync(ctx, "u", "tok")
	require.NoError(t, err, "a failed pass is reported in the result")
	require.Len(t, result.Errors, 1)

	history, err := m.History(ctx, "u", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.HistoryFailed, history[0].Status)
	assert.Contains(t, history[0].ErrorMessage, "Sync failed")
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, store.HistoryCompleted, runStatus(Result{Imported: 2}))
	assert.Equal(t, store.HistoryCompleted, runStatus(Result{}))
	assert.Equal(t, store.HistoryPartial, runStatus(Result{Merged: 1, Errors: []string{"x"}}))
	assert.Equal(t, store.HistoryFailed, runStatus(Result{Errors: []string{"x"}}))
}

func TestManagerSyncLinked(t *testing.T) {
	ctx := context.Background()
	remote := &fakeTracker{}
	m, _ := newTestManager(t, remote)

	_, err := m.SyncLinked(ctx, "u")
	assert.ErrorIs(t, err, ErrNotLinked)

	assert.Error(t, m.Link(ctx, "u", "  "))
	require.NoError(t, m.Link(ctx, "u", "stored-token"))

	_, err = m.SyncLinked(ctx, "u")
	require.NoError(t, err)
	require.NotEmpty(t, remote.tokens)
	assert.Equal(t, "stored-token", remote.tokens[0])

	users, err := m.LinkedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u"}, users)

	require.NoError(t, m.Unlink(ctx, "u"))
	_, err = m.SyncLinked(ctx, "u")
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestSchedulerSyncsEveryLinkedUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeTracker{})
	require.NoError(t, m.Link(ctx, "alice", "a"))
	require.NoError(t, m.Link(ctx, "bob", "b"))

	sched := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "@every 1h"}, m)
	sched.triggerSync()

	for _, user := range []string{"alice", "bob"} {
		history, err := m.History(ctx, user, 10, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1, user)
	}
}

func TestSchedulerStartRejectsBadInterval(t *testing.T) {
	m, _ := newTestManager(t, &fakeTracker{})

	sched := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "every so often"}, m)
	assert.Error(t, sched.Start())

	disabled := NewScheduler(config.SchedulerConfig{Enabled: false, Interval: "every so often"}, m)
	assert.NoError(t, disabled.Start())
	disabled.Stop()
}
