package driving

import (
	"context"
	"iter"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// EvaluationService estimates how suggestion quality grows with more gold data.
type EvaluationService interface {
	// Evaluate returns a lazy, finite, non-restartable sequence of learning
	// curve points. When there is not enough data the sequence yields a single
	// result with Skipped set.
	Evaluate(
		ctx context.Context,
		rec domain.Recommender,
		corpus []domain.AnnotatedDocument,
		cfg domain.SplitterConfig,
	) iter.Seq2[domain.EvaluationResult, error]
}
