// Package engines maps recommender tool ids to recommendation engines.
package engines

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/suggest/internal/adapters/driven/recommender/stringmatch"
	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.EngineFactory = (*Factory)(nil)

// Constructor creates the engine of a recommender.
type Constructor func(rec domain.Recommender) (driven.RecommendationEngine, error)

// Factory creates engines from registered constructors.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates a factory with the built-in local engines registered.
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]Constructor)}
	f.Register(stringmatch.Tool, func(rec domain.Recommender) (driven.RecommendationEngine, error) {
		return stringmatch.New(rec), nil
	})
	return f
}

// Register adds or replaces the constructor for a tool.
func (f *Factory) Register(tool string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[tool] = ctor
}

// Engine creates the engine for a recommender.
func (f *Factory) Engine(rec domain.Recommender) (driven.RecommendationEngine, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[rec.Tool]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tool %q", domain.ErrEngineUnavailable, rec.Tool)
	}
	return ctor(rec)
}

// Tools lists the registered tool ids, sorted.
func (f *Factory) Tools() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tools := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}
