package jsonfile_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytgrab/internal/domain"
	"ytgrab/internal/repository"
	"ytgrab/internal/repository/jsonfile"
)

func newStore(t *testing.T) (*jsonfile.Store, string) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "tasks.json")
	store, err := jsonfile.New(path, log)
	require.NoError(t, err)
	return store, path
}

func newTask(id string) *domain.Task {
	now := time.Now()
	return &domain.Task{
		ID:        id,
		URL:       "https://example.com/v/" + id,
		Format:    domain.FormatVideo,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTask("a")))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListPreservesCreationOrder(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Create(ctx, newTask(id)))
	}

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "first", tasks[0].ID)
	assert.Equal(t, "second", tasks[1].ID)
	assert.Equal(t, "third", tasks[2].ID)
}

func TestUpdateMergesFields(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTask("a")))
	before, err := store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, "a", domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusDownloading),
		Progress: domain.Float64Ptr(42.5),
		Speed:    domain.StringPtr("2.00 KB/s"),
	}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDownloading, got.Status)
	assert.Equal(t, 42.5, got.Progress)
	assert.Equal(t, "2.00 KB/s", got.Speed)
	// untouched fields survive the merge
	assert.Equal(t, before.URL, got.URL)
	assert.False(t, got.UpdatedAt.Before(before.UpdatedAt))
}

func TestUpdateUnknownIDIsNoop(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTask("a")))
	require.NoError(t, store.Update(ctx, "missing", domain.TaskUpdate{
		Progress: domain.Float64Ptr(50),
	}))

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 0.0, tasks[0].Progress)
}

func TestClear(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTask("a")))
	require.NoError(t, store.Create(ctx, newTask("b")))
	require.NoError(t, store.Clear(ctx))

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	store, path := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTask("a")))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// the store recovers: new writes start a fresh collection
	require.NoError(t, store.Create(ctx, newTask("b")))
	tasks, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID)
}

func TestConcurrentUpdatesDoNotLoseRecords(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, store.Create(ctx, newTask(id)))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id string, p float64) {
				defer wg.Done()
				_ = store.Update(ctx, id, domain.TaskUpdate{Progress: domain.Float64Ptr(p)})
			}(id, float64(i))
		}
	}
	wg.Wait()

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, len(ids))
}
