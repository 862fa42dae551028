package mcp

import (
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Suggestions lists suggestions and handles actions on them.
	Suggestions driving.SuggestionService

	// Recommendation starts background prediction runs.
	Recommendation driving.RecommendationService

	// Corpus exposes the documents of a project.
	Corpus driving.CorpusService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Suggestions == nil {
		return ErrMissingSuggestionService
	}
	// Recommendation and Corpus are optional
	return nil
}
