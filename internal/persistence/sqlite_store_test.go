package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/vn-script-translator/internal/jobs"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "vnst.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStore_QueueRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	empty, err := store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.SaveQueue(ctx, []string{"c.rpy", "a.rpy", "b.rpy"}))
	got, err := store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.rpy", "a.rpy", "b.rpy"}, got)

	require.NoError(t, store.SaveQueue(ctx, []string{"b.rpy"}))
	got, err = store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.rpy"}, got)
}

func TestSQLiteStore_ResultsNewestFirst(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := &jobs.FileResult{
		ID:              "r1",
		RunID:           "run-1",
		Path:            "game/a.rpy",
		Status:          jobs.StatusSuccess,
		Encoding:        "utf-8",
		TotalLines:      10,
		TranslatedLines: 4,
		UnchangedLines:  6,
		StartedAt:       base,
		FinishedAt:      base.Add(time.Second),
	}
	second := &jobs.FileResult{
		ID:         "r2",
		RunID:      "run-2",
		Path:       "game/b.rpy",
		Status:     jobs.StatusFailed,
		Error:      "[FileWrite] failed to write script",
		Lossy:      true,
		StartedAt:  base.Add(2 * time.Second),
		FinishedAt: base.Add(3 * time.Second),
	}
	require.NoError(t, store.RecordResult(ctx, first))
	require.NoError(t, store.RecordResult(ctx, second))

	all, err := store.ListResults(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r2", all[0].ID)
	assert.Equal(t, jobs.StatusFailed, all[0].Status)
	assert.True(t, all[0].Lossy)
	assert.Equal(t, "r1", all[1].ID)
	assert.Equal(t, 4, all[1].TranslatedLines)
	assert.True(t, first.FinishedAt.Equal(all[1].FinishedAt))

	byRun, err := store.ListResults(ctx, "run-1", 10)
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, "game/a.rpy", byRun[0].Path)

	limited, err := store.ListResults(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_ReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveQueue(ctx, []string{"a.rpy"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rpy"}, got)

	var versions int
	require.NoError(t, reopened.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestSQLiteStore_WorksAsQueueStore(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	var _ jobs.Store = store

	q := jobs.NewQueue(jobs.WithStore(store), jobs.WithTickInterval(time.Millisecond))
	q.Enqueue("a.rpy", "b.rpy")

	restored := jobs.NewQueue(jobs.WithStore(store))
	assert.Equal(t, []string{"a.rpy", "b.rpy"}, restored.Snapshot().Pending)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
