// Package httpapi exposes the suggestion engine as a JSON HTTP API.
//
// All project routes identify the prediction cache entry with the "user"
// query parameter and an optional "owner" (defaulting to the user).
package httpapi

import (
	"errors"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// ErrMissingSuggestionService is returned when the suggestion service is not provided.
var ErrMissingSuggestionService = errors.New("httpapi: suggestion service is required")

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Suggestions    driving.SuggestionService
	Recommendation driving.RecommendationService
	Sync           driving.DatasetSyncService
	Evaluation     driving.EvaluationService
	Corpus         driving.CorpusService
	Scheduler      driving.Scheduler

	// Splitter configures evaluation runs; zero fields take the defaults.
	Splitter domain.SplitterConfig
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Suggestions == nil {
		return ErrMissingSuggestionService
	}
	return nil
}

func (p *Ports) splitter() domain.SplitterConfig {
	cfg := p.Splitter
	defaults := domain.DefaultSplitterConfig()
	if cfg.TrainRatio == 0 {
		cfg.TrainRatio = defaults.TrainRatio
	}
	if cfg.Step == 0 && cfg.StepFraction == 0 {
		cfg.StepFraction = defaults.StepFraction
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = defaults.MinSamples
	}
	return cfg
}
