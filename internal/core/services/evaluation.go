package services

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync/atomic"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// Ensure EvaluationService implements the interface.
var _ driving.EvaluationService = (*EvaluationService)(nil)

// evaluationUser owns the throwaway recommender contexts of an evaluation run.
const evaluationUser = "evaluation"

// EvaluationService traces learning curves by training a recommender's engine
// on growing prefixes of the gold samples.
type EvaluationService struct {
	engines driven.EngineFactory
}

// NewEvaluationService creates a new evaluation service.
func NewEvaluationService(engines driven.EngineFactory) *EvaluationService {
	return &EvaluationService{engines: engines}
}

// Evaluate returns one result per splitter step. The sequence can be ranged
// over once; later ranges yield nothing. When the corpus is too small the
// sequence yields a single skipped result and no error.
func (s *EvaluationService) Evaluate(
	ctx context.Context,
	rec domain.Recommender,
	corpus []domain.AnnotatedDocument,
	cfg domain.SplitterConfig,
) iter.Seq2[domain.EvaluationResult, error] {
	var consumed atomic.Bool

	return func(yield func(domain.EvaluationResult, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		learner, err := s.learner(rec)
		if err != nil {
			yield(domain.EvaluationResult{}, err)
			return
		}

		samples := ExtractSamples(rec, corpus)
		splitter := NewIncrementalSplitter(samples, cfg)
		if !splitter.HasNext() {
			logger.Info("Evaluation of %s skipped: %s", rec.ID, splitter.SkipReason())
			yield(domain.EvaluationResult{
				TestSize:   splitter.TestSize(),
				Skipped:    true,
				SkipReason: splitter.SkipReason(),
			}, nil)
			return
		}

		logger.Section(fmt.Sprintf("Evaluating %s", rec.Name))
		for step := 1; ; step++ {
			train, test, ok := splitter.Next()
			if !ok {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(domain.EvaluationResult{}, err)
				return
			}

			result, err := s.evaluateStep(ctx, learner, rec, train, test)
			if err != nil {
				yield(domain.EvaluationResult{}, fmt.Errorf("evaluate step %d: %w", step, err))
				return
			}
			result.Step = step
			logger.Debug("Step %d: train=%d test=%d accuracy=%.3f",
				step, result.TrainSize, result.TestSize, result.Metrics[domain.MetricAccuracy])

			if !yield(result, nil) {
				return
			}
		}
	}
}

func (s *EvaluationService) learner(rec domain.Recommender) (driven.SampleLearner, error) {
	if s.engines == nil {
		return nil, domain.ErrNotImplemented
	}
	engine, err := s.engines.Engine(rec)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	learner, ok := engine.(driven.SampleLearner)
	if !ok {
		return nil, fmt.Errorf("%w: tool %s", domain.ErrEvaluationUnsupported, rec.Tool)
	}
	return learner, nil
}

func (s *EvaluationService) evaluateStep(
	ctx context.Context,
	learner driven.SampleLearner,
	rec domain.Recommender,
	train, test []domain.Sample,
) (domain.EvaluationResult, error) {
	// Each step trains from scratch so steps stay independent.
	rctx := domain.NewRecommenderContext(rec.ID, evaluationUser)
	if err := learner.FitSamples(ctx, rctx, train); err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("fit: %w", err)
	}
	rctx.Close()

	confusion := domain.ConfusionMatrix{}
	for _, sample := range test {
		label, ok, err := learner.PredictSample(ctx, rctx, sample)
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("predict: %w", err)
		}
		if !ok {
			label = domain.NoLabel
		}
		confusion.Add(sample.Label, label)
	}

	return domain.EvaluationResult{
		TrainSize: len(train),
		TestSize:  len(test),
		Confusion: confusion,
		Metrics:   ComputeMetrics(confusion),
	}, nil
}

// ExtractSamples turns the labelled spans of a recommender's layer into gold
// samples, ordered by document and offset.
func ExtractSamples(rec domain.Recommender, corpus []domain.AnnotatedDocument) []domain.Sample {
	var samples []domain.Sample
	for _, doc := range corpus {
		var docSamples []domain.Sample
		for _, a := range doc.Annotations {
			if a.LayerID != rec.LayerID || a.Source != "" {
				continue
			}
			label, ok := a.Feature(rec.Feature)
			if !ok {
				continue
			}
			docSamples = append(docSamples, domain.Sample{
				Document: doc.Document.Name,
				Span:     a.Span,
				Text:     coveredText(doc.Document.Text, a.Span),
				Label:    label,
			})
		}
		sort.SliceStable(docSamples, func(i, j int) bool {
			return docSamples[i].Span.Begin < docSamples[j].Span.Begin
		})
		samples = append(samples, docSamples...)
	}
	return samples
}

// ComputeMetrics derives accuracy and macro-averaged precision, recall and F1
// from a confusion matrix. Missing predictions count against recall only.
func ComputeMetrics(m domain.ConfusionMatrix) map[string]float64 {
	metrics := map[string]float64{
		domain.MetricAccuracy:  0,
		domain.MetricPrecision: 0,
		domain.MetricRecall:    0,
		domain.MetricF1:        0,
	}

	total := m.Total()
	if total == 0 {
		return metrics
	}

	correct := 0
	predicted := make(map[string]int)
	gold := make(map[string]int)
	for g, row := range m {
		for p, n := range row {
			if g == p {
				correct += n
			}
			predicted[p] += n
			gold[g] += n
		}
	}
	metrics[domain.MetricAccuracy] = float64(correct) / float64(total)

	labels := m.Labels()
	if len(labels) == 0 {
		return metrics
	}

	var sumP, sumR, sumF float64
	for _, l := range labels {
		tp := float64(m.Count(l, l))
		var p, r, f float64
		if predicted[l] > 0 {
			p = tp / float64(predicted[l])
		}
		if gold[l] > 0 {
			r = tp / float64(gold[l])
		}
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		sumP += p
		sumR += r
		sumF += f
	}

	n := float64(len(labels))
	metrics[domain.MetricPrecision] = sumP / n
	metrics[domain.MetricRecall] = sumR / n
	metrics[domain.MetricF1] = sumF / n
	return metrics
}
