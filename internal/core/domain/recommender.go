package domain

import (
	"sync"
	"time"
)

// DefaultMaxRecommendations is the number of suggestions per group kept visible
// when a recommender does not configure its own limit.
const DefaultMaxRecommendations = 3

// Recommender is the immutable configuration of a predictive component.
// It is created by project configuration and read-only to the engine.
type Recommender struct {
	// ID is the unique identifier for the recommender.
	ID string

	// ProjectID identifies the owning project.
	ProjectID string

	// Name is the human-readable name shown next to suggestions.
	Name string

	// LayerID is the annotation layer suggestions are produced for.
	LayerID string

	// Feature is the feature on LayerID whose value is predicted.
	Feature string

	// Tool identifies the engine implementation (e.g. "string-matcher", "external").
	Tool string

	// Traits is an opaque, tool-specific configuration blob.
	Traits string

	// Enabled indicates whether the recommender takes part in prediction runs.
	Enabled bool

	// Threshold hides suggestions scoring below it. Zero disables the check.
	Threshold float64

	// AttachLayerID is the span layer relation endpoints are resolved on.
	// Only used by relation-producing recommenders.
	AttachLayerID string

	// MaxRecommendations caps the visible suggestions per group.
	MaxRecommendations int
}

// VisibleLimit returns MaxRecommendations or the default when unset.
func (r *Recommender) VisibleLimit() int {
	if r.MaxRecommendations > 0 {
		return r.MaxRecommendations
	}
	return DefaultMaxRecommendations
}

// ContextKey is a typed key into a RecommenderContext.
type ContextKey[T any] struct {
	name string
}

// NewContextKey creates a typed context key.
func NewContextKey[T any](name string) ContextKey[T] {
	return ContextKey[T]{name: name}
}

// Name returns the key name.
func (k ContextKey[T]) Name() string {
	return k.name
}

// RecommenderContext is the mutable per-(recommender, user) state bag created
// at training time and consulted at prediction time.
type RecommenderContext struct {
	RecommenderID string
	User          string
	CreatedAt     time.Time

	// CorpusVersion identifies the corpus the context was trained on.
	CorpusVersion string

	mu     sync.RWMutex
	values map[string]any
	closed bool
}

// NewRecommenderContext creates an empty, open context.
func NewRecommenderContext(recommenderID, user string) *RecommenderContext {
	return &RecommenderContext{
		RecommenderID: recommenderID,
		User:          user,
		CreatedAt:     time.Now(),
		values:        make(map[string]any),
	}
}

// ContextGet reads a typed value from the context.
func ContextGet[T any](c *RecommenderContext, key ContextKey[T]) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	v, ok := c.values[key.name]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ContextPut stores a typed value. Writes after Close are ignored.
func ContextPut[T any](c *RecommenderContext, key ContextKey[T], value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.values[key.name] = value
}

// Close marks training as complete. A closed context is ready for prediction
// and no longer accepts writes.
func (c *RecommenderContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// ReadyForPrediction reports whether training completed.
func (c *RecommenderContext) ReadyForPrediction() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
