package driven

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// TrainingRunStore persists the history of background generation runs.
type TrainingRunStore interface {
	// SaveRun stores or updates a run.
	SaveRun(ctx context.Context, run *domain.TrainingRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*domain.TrainingRun, error)

	// ListRuns returns the most recent runs for a key, newest first.
	ListRuns(ctx context.Context, key domain.PredictionKey, limit int) ([]domain.TrainingRun, error)
}
