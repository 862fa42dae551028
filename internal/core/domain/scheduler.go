package domain

import "time"

// ScheduledTask is a recurring background task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration

	LastRun     time.Time
	NextRun     time.Time
	LastError   string
	LastSuccess time.Time

	Enabled bool
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts the keys or datasets the task handled.
	ItemsProcessed int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TaskConfigs holds per-task configuration keyed by task ID.
	TaskConfigs map[string]TaskConfig
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration of a task, or a disabled zero
// config when the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// Task IDs for built-in tasks.
const (
	// TaskIDPredictionRefresh re-runs the recommenders of every cached key so
	// suggestions pick up newly confirmed annotations.
	TaskIDPredictionRefresh = "prediction-refresh"

	// TaskIDDatasetSync pushes local corpora to the datasets of external recommenders.
	TaskIDDatasetSync = "dataset-sync"
)

// DefaultSchedulerConfig returns the defaults used when nothing is configured.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDPredictionRefresh: {
				Enabled:  true,
				Interval: 10 * time.Minute,
			},
			TaskIDDatasetSync: {
				Enabled:  true,
				Interval: time.Hour,
			},
		},
	}
}
