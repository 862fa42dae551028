package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// SettingsService exposes the typed application configuration.
type SettingsService interface {
	// Get returns the settings with defaults applied for unset keys.
	Get() (*domain.AppSettings, error)

	// GetSchedulerConfig returns the maintenance scheduler configuration.
	GetSchedulerConfig() domain.SchedulerConfig

	// Set stores a single configuration value.
	Set(key string, value any) error

	// RegisterRecommenders saves the configured recommenders into store and
	// returns how many were saved.
	RegisterRecommenders(ctx context.Context, store driven.RecommenderStore) (int, error)
}
