package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/fentz26/taskboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffTasks(t *testing.T) {
	taken := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := taken.Add(time.Minute)
	earlier := taken.Add(-time.Minute)

	prev := OfTasks([]models.Task{
		{TaskName: "a", TaskInstance: "1"},
		{TaskName: "a", TaskInstance: "2", ConsecutiveFailures: 1},
		{TaskName: "a", TaskInstance: "3", Picked: true},
		{TaskName: "a", TaskInstance: "4", LastSuccess: &earlier},
	}, taken)

	current := []models.Task{
		{TaskName: "a", TaskInstance: "1", ConsecutiveFailures: 1}, // newly failed
		{TaskName: "a", TaskInstance: "2", ConsecutiveFailures: 2}, // still failed
		{TaskName: "a", TaskInstance: "3", Picked: true},           // still running
		{TaskName: "a", TaskInstance: "4", LastSuccess: &later},    // succeeded since
		{TaskName: "b", TaskInstance: "1", Picked: true},           // new and running
		{TaskName: "b", TaskInstance: "2", LastSuccess: &earlier},  // new, old success
	}

	got := DiffTasks(prev, current)
	assert.Equal(t, models.PollResponse{
		NewFailures:  1,
		NewSucceeded: 1,
		NewRunning:   1,
		NewTasks:     2,
	}, got)
}

func TestDiffTasks_Unchanged(t *testing.T) {
	tasks := []models.Task{{TaskName: "a", TaskInstance: "1", ConsecutiveFailures: 1}}
	assert.Equal(t, models.PollResponse{}, DiffTasks(OfTasks(tasks, time.Now()), tasks))
}

func TestDiffTasks_SlashInIdentity(t *testing.T) {
	prev := OfTasks([]models.Task{{TaskName: "a/b", TaskInstance: "c"}}, time.Now())
	require.Len(t, prev.Tasks, 1)

	got := DiffTasks(prev, []models.Task{
		{TaskName: "a/b", TaskInstance: "c"},
		{TaskName: "a", TaskInstance: "b/c", ConsecutiveFailures: 1},
	})
	assert.Equal(t, models.PollResponse{NewTasks: 1, NewFailures: 1}, got)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k1", OfLogs(7, time.Now())))
	require.NoError(t, c.Put(ctx, "k2", OfLogs(8, time.Now())))
	require.NoError(t, c.Put(ctx, "k3", OfLogs(9, time.Now())))

	_, ok, _ = c.Get(ctx, "k1")
	assert.False(t, ok, "oldest entry should be evicted")

	s, ok, _ := c.Get(ctx, "k3")
	require.True(t, ok)
	assert.Equal(t, int64(9), s.MaxLogID)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 20*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Put(ctx, "k", OfLogs(1, time.Now())))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestKey(t *testing.T) {
	q := models.QueryParams{TaskName: "job-A"}
	assert.NotEqual(t, Key(KindTasks, q), Key(KindLogs, q))
	assert.Equal(t, Key(KindTasks, q), Key(KindTasks, q.Normalize()))
}
