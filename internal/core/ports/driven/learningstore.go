package driven

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// LearningRecordStore persists user decisions on suggestions.
type LearningRecordStore interface {
	// Record appends a learning record.
	Record(ctx context.Context, record domain.LearningRecord) error

	// List returns a user's records for a document, oldest first.
	List(ctx context.Context, user, projectID, doc string) ([]domain.LearningRecord, error)
}

// RecommenderStore provides the configured recommenders.
type RecommenderStore interface {
	// Save stores or updates a recommender.
	Save(ctx context.Context, rec domain.Recommender) error

	// Get retrieves a recommender by ID.
	Get(ctx context.Context, id string) (*domain.Recommender, error)

	// List returns the recommenders of a project.
	List(ctx context.Context, projectID string) ([]domain.Recommender, error)
}

// ContextStore keeps RecommenderContexts between training and prediction.
type ContextStore interface {
	// Get returns the context for a recommender and user.
	Get(recommenderID, user string) (*domain.RecommenderContext, bool)

	// Put stores a context, replacing any previous one.
	Put(rctx *domain.RecommenderContext)

	// Drop discards the context of a recommender and user.
	Drop(recommenderID, user string)

	// DropUser discards all contexts of a user.
	DropUser(user string)
}
