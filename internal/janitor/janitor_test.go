package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkrumins/file-processing-service/internal/task"
)

func tempUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1_report.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o600))
	return path
}

func addTask(t *testing.T, store task.Store, id string, status task.Status, fileLocation string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &task.Task{
		ID:               id,
		OriginalFilename: "report.csv",
		FileLocation:     fileLocation,
		Status:           task.StatusPending,
	}))
	if status == task.StatusPending {
		return
	}
	_, err := store.Update(ctx, id, func(tsk *task.Task) {
		tsk.Status = status
		if status == task.StatusComplete {
			tsk.Progress = 100
			tsk.ArtifactPath = fileLocation
		}
		if status == task.StatusError {
			tsk.ErrorMessage = "boom"
		}
	})
	require.NoError(t, err)
}

func TestSweepEvictsOnlyOldTerminalTasks(t *testing.T) {
	store := task.NewMemoryStore()
	completedFile := tempUpload(t)
	erroredFile := tempUpload(t)
	inFlightFile := tempUpload(t)

	addTask(t, store, "completed", task.StatusComplete, completedFile)
	addTask(t, store, "errored", task.StatusError, erroredFile)
	addTask(t, store, "in-flight", task.StatusPending, inFlightFile)

	// everything updated before this point is already older than a zero max age
	time.Sleep(5 * time.Millisecond)
	j := New(store, 0)

	evicted := j.Sweep(context.Background())
	assert.Equal(t, 2, evicted)

	ctx := context.Background()
	_, err := store.Get(ctx, "completed")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
	_, err = store.Get(ctx, "errored")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)

	kept, err := store.Get(ctx, "in-flight")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, kept.Status)

	assert.NoFileExists(t, completedFile)
	assert.NoFileExists(t, erroredFile)
	assert.FileExists(t, inFlightFile)
}

func TestSweepKeepsRecentTerminalTasks(t *testing.T) {
	store := task.NewMemoryStore()
	addTask(t, store, "fresh", task.StatusComplete, tempUpload(t))

	j := New(store, time.Hour)
	assert.Equal(t, 0, j.Sweep(context.Background()))

	_, err := store.Get(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	j := New(task.NewMemoryStore(), time.Hour)
	assert.Error(t, j.Start("not a cron spec"))
}

func TestStartRunsSweepOnSchedule(t *testing.T) {
	store := task.NewMemoryStore()
	addTask(t, store, "old", task.StatusComplete, tempUpload(t))
	time.Sleep(5 * time.Millisecond)

	j := New(store, 0)
	require.NoError(t, j.Start("@every 100ms"))
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(context.Background(), "old"); err != nil {
			return // evicted
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scheduled sweep never evicted the task")
}
