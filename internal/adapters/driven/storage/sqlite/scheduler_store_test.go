package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

func TestSchedulerStore_SaveAndGetTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now()
	task := &domain.ScheduledTask{
		ID:          domain.TaskIDPredictionRefresh,
		Name:        "Prediction Refresh",
		Interval:    10 * time.Minute,
		LastRun:     now.Add(-5 * time.Minute),
		NextRun:     now.Add(5 * time.Minute),
		LastSuccess: now.Add(-5 * time.Minute),
		Enabled:     true,
	}
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	retrieved, err := schedulerStore.GetTask(ctx, domain.TaskIDPredictionRefresh)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, task.Name, retrieved.Name)
	assert.Equal(t, task.Interval, retrieved.Interval)
	assert.True(t, retrieved.Enabled)
	assert.True(t, task.LastRun.Equal(retrieved.LastRun))
	assert.True(t, task.NextRun.Equal(retrieved.NextRun))
	assert.True(t, task.LastSuccess.Equal(retrieved.LastSuccess))
}

func TestSchedulerStore_GetTask_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	task, err := store.SchedulerStore().GetTask(context.Background(), "non-existent")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSchedulerStore_SaveTask_Update(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	task := &domain.ScheduledTask{
		ID:       domain.TaskIDDatasetSync,
		Name:     "Dataset Sync",
		Interval: time.Hour,
		Enabled:  true,
	}
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	task.Interval = 2 * time.Hour
	task.LastError = "listing dataset: 503"
	task.Enabled = false
	require.NoError(t, schedulerStore.SaveTask(ctx, task))

	retrieved, err := schedulerStore.GetTask(ctx, domain.TaskIDDatasetSync)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, retrieved.Interval)
	assert.Equal(t, "listing dataset: 503", retrieved.LastError)
	assert.False(t, retrieved.Enabled)
	assert.True(t, retrieved.LastRun.IsZero())
	assert.True(t, retrieved.NextRun.IsZero())
}

func TestSchedulerStore_SaveTask_Invalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	assert.ErrorIs(t, schedulerStore.SaveTask(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, schedulerStore.SaveTask(ctx, &domain.ScheduledTask{}), domain.ErrInvalidInput)
}

func TestSchedulerStore_ListTasks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	tasks, err := schedulerStore.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	for _, id := range []string{"task-b", "task-a", "task-c"} {
		require.NoError(t, schedulerStore.SaveTask(ctx, &domain.ScheduledTask{ID: id, Name: id, Interval: time.Hour}))
	}

	tasks, err = schedulerStore.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-a", tasks[0].ID)
	assert.Equal(t, "task-c", tasks[2].ID)
}

func TestSchedulerStore_TaskHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	assert.ErrorIs(t, schedulerStore.RecordResult(ctx, nil), domain.ErrInvalidInput)

	now := time.Now()
	for i := 0; i < 5; i++ {
		result := &domain.TaskResult{
			TaskID:         domain.TaskIDPredictionRefresh,
			StartedAt:      now.Add(time.Duration(i) * time.Minute),
			EndedAt:        now.Add(time.Duration(i)*time.Minute + time.Second),
			Success:        i%2 == 0,
			ItemsProcessed: i + 1,
		}
		if !result.Success {
			result.Error = "generation in progress"
		}
		require.NoError(t, schedulerStore.RecordResult(ctx, result))
	}

	t.Run("most recent first", func(t *testing.T) {
		history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDPredictionRefresh, 0)
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, 5, history[0].ItemsProcessed)
		assert.True(t, history[0].Success)
		assert.Equal(t, "generation in progress", history[1].Error)
		assert.True(t, now.Equal(history[4].StartedAt))
	})

	t.Run("limit", func(t *testing.T) {
		history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDPredictionRefresh, 3)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("other task", func(t *testing.T) {
		history, err := schedulerStore.GetTaskHistory(ctx, domain.TaskIDDatasetSync, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestSchedulerStore_PruneHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	schedulerStore := store.SchedulerStore()

	now := time.Now()
	for _, taskID := range []string{domain.TaskIDPredictionRefresh, domain.TaskIDDatasetSync} {
		for i := 0; i < 10; i++ {
			require.NoError(t, schedulerStore.RecordResult(ctx, &domain.TaskResult{
				TaskID:         taskID,
				StartedAt:      now.Add(time.Duration(i) * time.Minute),
				EndedAt:        now.Add(time.Duration(i) * time.Minute),
				Success:        true,
				ItemsProcessed: i + 1,
			}))
		}
	}

	require.NoError(t, schedulerStore.PruneHistory(ctx, 3))

	for _, taskID := range []string{domain.TaskIDPredictionRefresh, domain.TaskIDDatasetSync} {
		history, err := schedulerStore.GetTaskHistory(ctx, taskID, 100)
		require.NoError(t, err)
		require.Len(t, history, 3, taskID)
		assert.Equal(t, 10, history[0].ItemsProcessed)
		assert.Equal(t, 8, history[2].ItemsProcessed)
	}
}

func TestFormatNullableTime(t *testing.T) {
	assert.Nil(t, formatNullableTime(time.Time{}))

	local := time.Date(2026, 3, 1, 12, 30, 0, 500, time.FixedZone("X", 3600))
	formatted := formatNullableTime(local)
	assert.Equal(t, "2026-03-01T11:30:00.000000500Z", formatted)
	assert.True(t, local.Equal(parseTime(formatted.(string))))
}

func TestParseNullableTime(t *testing.T) {
	assert.True(t, parseNullableTime(sql.NullString{}).IsZero())
	assert.True(t, parseNullableTime(sql.NullString{String: "not a time", Valid: true}).IsZero())
	assert.False(t, parseNullableTime(sql.NullString{String: "2026-03-01T11:30:00Z", Valid: true}).IsZero())
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "hello", nullString("hello"))
}
