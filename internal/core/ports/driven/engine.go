package driven

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// RecommendationEngine trains on a user's confirmed annotations and predicts
// suggestions for documents. Calls may block for a long time and are always
// made off the request path.
type RecommendationEngine interface {
	// Train fits the engine on a corpus. State is kept in rctx.
	Train(ctx context.Context, rctx *domain.RecommenderContext, corpus []domain.AnnotatedDocument) error

	// Predict produces predictions for one document.
	Predict(ctx context.Context, rctx *domain.RecommenderContext, doc domain.AnnotatedDocument) ([]domain.Prediction, error)
}

// SampleLearner is implemented by engines that can be evaluated on samples.
type SampleLearner interface {
	// FitSamples trains on gold samples.
	FitSamples(ctx context.Context, rctx *domain.RecommenderContext, samples []domain.Sample) error

	// PredictSample returns the predicted label for a sample; ok is false when
	// the engine makes no prediction.
	PredictSample(ctx context.Context, rctx *domain.RecommenderContext, sample domain.Sample) (label string, ok bool, err error)
}

// EngineFactory creates engines for recommenders.
type EngineFactory interface {
	// Engine returns the engine for a recommender's tool.
	// Unknown tools fail with domain.ErrEngineUnavailable.
	Engine(rec domain.Recommender) (RecommendationEngine, error)

	// Tools lists the supported tool identifiers.
	Tools() []string
}
