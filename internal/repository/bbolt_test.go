package repository_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/repository"
	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
)

func newRepo(t *testing.T) *repository.BboltRepository {
	t.Helper()

	repo, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func newTask(name string) *task.Task {
	return task.New(music.Song{ID: name, Name: name, Singer: "Artist", Source: "kw"}, "128k", "kw", "/music")
}

func TestNewBboltRepository_OpenError(t *testing.T) {
	dir := t.TempDir()
	_, err := repository.NewBboltRepository(dir)
	if err == nil {
		t.Errorf("Expected error when opening DB on directory path, got nil")
	}
}

func TestInsertNilTask(t *testing.T) {
	repo := newRepo(t)

	err := repo.Insert(nil)
	if err == nil || err.Error() != "cannot save nil task" {
		t.Errorf("Expected error 'cannot save nil task', got %v", err)
	}
}

func TestInsertGetDelete(t *testing.T) {
	repo := newRepo(t)

	tk := newTask("42")
	tk.Song.Raw = map[string]any{"songmid": "42", "interval": "03:30"}
	require.NoError(t, repo.Insert(tk))
	assert.ErrorIs(t, repo.Insert(tk), repository.ErrTaskExists)

	got, err := repo.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, "42", got.Song.ID)
	assert.Equal(t, "03:30", got.Song.Raw["interval"])
	assert.Equal(t, status.Pending, got.Status)
	assert.Equal(t, tk.Filepath, got.Filepath)

	_, err = repo.Get(uuid.New())
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)

	assert.Error(t, repo.Delete(uuid.Nil))
	assert.ErrorIs(t, repo.Delete(uuid.New()), repository.ErrTaskNotFound)
	require.NoError(t, repo.Delete(tk.ID))

	_, err = repo.Get(tk.ID)
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)
}

func TestUpdateStatusAndProgress(t *testing.T) {
	repo := newRepo(t)

	tk := newTask("1")
	require.NoError(t, repo.Insert(tk))

	require.NoError(t, repo.UpdateStatus(tk.ID, status.Downloading, task.StatusFields{}))
	require.NoError(t, repo.UpdateProgress(tk.ID, 50, 500, 1000))

	got, err := repo.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Downloading, got.Status)
	assert.Equal(t, 50.0, got.Progress)
	assert.EqualValues(t, 500, got.Downloaded)
	assert.EqualValues(t, 1000, got.TotalSize)

	retries := 2
	require.NoError(t, repo.UpdateStatus(tk.ID, status.Retrying, task.StatusFields{ErrorMessage: "reset", RetryCount: &retries}))

	got, err = repo.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "reset", got.ErrorMessage)

	require.NoError(t, repo.UpdateStatus(tk.ID, status.Completed, task.StatusFields{FileSize: 1000}))

	got, err = repo.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.EqualValues(t, 1000, got.Downloaded)
	assert.Empty(t, got.ErrorMessage)
	assert.False(t, got.CompletedAt.IsZero())

	assert.Error(t, repo.UpdateStatus(tk.ID, status.Status("bogus"), task.StatusFields{}))
	assert.ErrorIs(t, repo.UpdateProgress(uuid.New(), 1, 1, 1), repository.ErrTaskNotFound)
}

func TestListFiltersAndOrders(t *testing.T) {
	repo := newRepo(t)

	base := time.Now()
	var ids []uuid.UUID
	for i, name := range []string{"a", "b", "c"} {
		tk := newTask(name)
		tk.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Insert(tk))
		ids = append(ids, tk.ID)
	}

	require.NoError(t, repo.UpdateStatus(ids[1], status.Paused, task.StatusFields{}))

	all, err := repo.List(nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[2].ID)

	limited, err := repo.List(nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	pending, err := repo.List([]status.Status{status.Pending}, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	paused, err := repo.List([]status.Status{status.Paused, status.Failed}, 0)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, ids[1], paused[0].ID)
}

func TestPluginRecords(t *testing.T) {
	repo := newRepo(t)

	require.Error(t, repo.SavePlugin(&repository.PluginRecord{}))

	require.NoError(t, repo.SavePlugin(&repository.PluginRecord{ID: "p1", Name: "One", Script: "a", Enabled: true}))
	require.NoError(t, repo.SavePlugin(&repository.PluginRecord{ID: "p2", Name: "Two", Script: "b", Enabled: true}))

	list, err := repo.Plugins()
	require.NoError(t, err)
	require.Len(t, list, 2)
	first := list[0].CreatedAt

	require.NoError(t, repo.SavePlugin(&repository.PluginRecord{ID: "p1", Name: "One v2", Script: "a2", Enabled: true}))
	require.NoError(t, repo.SetPluginEnabled("p2", false))

	list, err = repo.Plugins()
	require.NoError(t, err)

	byID := map[string]*repository.PluginRecord{}
	for _, p := range list {
		byID[p.ID] = p
	}

	assert.Equal(t, "a2", byID["p1"].Script)
	assert.True(t, byID["p1"].CreatedAt.Equal(first), "replacing a plugin keeps its creation time")
	assert.False(t, byID["p2"].Enabled)

	assert.True(t, errors.Is(repo.SetPluginEnabled("nope", true), repository.ErrPluginNotFound))
	require.NoError(t, repo.DeletePlugin("p1"))
	assert.ErrorIs(t, repo.DeletePlugin("p1"), repository.ErrPluginNotFound)

	list, err = repo.Plugins()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCloseBehavior(t *testing.T) {
	repo, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	if err := repo.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if err := repo.Insert(newTask("x")); err == nil {
		t.Errorf("Expected error inserting after close, got nil")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	repo, err := repository.NewBboltRepository(path)
	require.NoError(t, err)

	tk := newTask("persist")
	require.NoError(t, repo.Insert(tk))
	require.NoError(t, repo.Close())

	repo, err = repository.NewBboltRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist", got.Song.Name)
}
