package services

import (
	"fmt"
	"math"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// IncrementalSplitter produces successively larger training prefixes against
// a fixed held-out test set. It is a forward-only cursor; a new evaluation run
// must construct a new splitter.
type IncrementalSplitter struct {
	samples    []domain.Sample
	trainTotal int
	step       int
	minSamples int
	last       int
	skipReason string
}

// NewIncrementalSplitter prepares a splitter over samples in their given order.
// The last N - floor(N*TrainRatio) samples form the test set.
func NewIncrementalSplitter(samples []domain.Sample, cfg domain.SplitterConfig) *IncrementalSplitter {
	n := len(samples)
	s := &IncrementalSplitter{
		samples:    samples,
		trainTotal: int(math.Floor(float64(n) * cfg.TrainRatio)),
		minSamples: cfg.MinSamples,
	}

	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		s.skipReason = fmt.Sprintf("train ratio %.2f must be between 0 and 1", cfg.TrainRatio)
		return s
	}
	if float64(n)*cfg.TrainRatio < float64(cfg.MinSamples) {
		s.skipReason = fmt.Sprintf("%s: %d samples, at least %d needed for training",
			domain.ErrEvaluationSkipped, n, cfg.MinSamples)
		return s
	}

	s.step = cfg.Step
	if s.step <= 0 {
		s.step = int(math.Floor(float64(s.trainTotal) * cfg.StepFraction))
	}
	if s.step <= 0 {
		s.skipReason = fmt.Sprintf("%s: step size rounds to zero for %d training samples",
			domain.ErrEvaluationSkipped, s.trainTotal)
		return s
	}
	if s.trainTotal <= 0 {
		s.skipReason = domain.ErrEvaluationSkipped.Error()
	}
	return s
}

// HasNext reports whether another step is available.
func (s *IncrementalSplitter) HasNext() bool {
	return s.skipReason == "" && s.last < s.trainTotal
}

// Next returns the training prefix and the test set of the next step.
// It returns ok false once the splitter is exhausted.
func (s *IncrementalSplitter) Next() (train, test []domain.Sample, ok bool) {
	if !s.HasNext() {
		return nil, nil, false
	}

	var size int
	if s.last == 0 {
		size = s.first()
	} else {
		size = s.last + s.step
	}
	if size > s.trainTotal {
		size = s.trainTotal
	}
	s.last = size

	return s.samples[:size], s.samples[s.trainTotal:], true
}

// first is the size of the first training prefix: the minimum viable sample
// count, or one step when no minimum is configured.
func (s *IncrementalSplitter) first() int {
	if s.minSamples > 0 {
		return min(s.minSamples, s.trainTotal)
	}
	return min(s.step, s.trainTotal)
}

// SkipReason explains why the splitter has no steps; empty when it has.
func (s *IncrementalSplitter) SkipReason() string {
	return s.skipReason
}

// TrainTotal is floor(N * TrainRatio).
func (s *IncrementalSplitter) TrainTotal() int {
	return s.trainTotal
}

// TestSize is the constant size of the held-out set.
func (s *IncrementalSplitter) TestSize() int {
	return len(s.samples) - s.trainTotal
}
