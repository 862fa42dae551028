package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// RecommendationService runs recommenders in the background and publishes
// their output as new generations.
type RecommendationService interface {
	// Trigger starts a background run for a key and returns the generation it
	// will produce. Fails with domain.ErrGenerationInProgress if one is running.
	Trigger(ctx context.Context, key domain.PredictionKey) (uint64, error)

	// Retrain drops the key's recommender contexts and triggers a run.
	Retrain(ctx context.Context, key domain.PredictionKey) (uint64, error)

	// Wait blocks until the running generation for a key finished.
	Wait(ctx context.Context, key domain.PredictionKey) error

	// Status returns the run status for a key.
	Status(ctx context.Context, key domain.PredictionKey) (*RunStatus, error)

	// CancelSession cancels runs and drops cached predictions for a session owner.
	CancelSession(sessionOwner string)

	// InvalidateProject cancels runs and drops cached predictions for a project.
	InvalidateProject(projectID string)

	// Shutdown cancels all runs and waits for them to finish.
	Shutdown()
}

// RunStatus represents the state of background runs for a key.
type RunStatus struct {
	Key domain.PredictionKey

	// Running indicates a generation is being computed.
	Running bool

	// ActiveGeneration is the generation currently rendered.
	ActiveGeneration uint64

	// LastRun is the most recent finished run, if known.
	LastRun *domain.TrainingRun
}
