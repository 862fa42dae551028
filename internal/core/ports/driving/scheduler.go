package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// Scheduler runs periodic maintenance tasks in the background.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until Stop is called or the context is cancelled.
	Start(ctx context.Context) error

	// Stop shuts the loop down and waits for running tasks.
	Stop()

	// Tasks lists the persisted tasks.
	Tasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// History returns the most recent results of a task.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
