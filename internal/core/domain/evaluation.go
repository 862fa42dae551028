package domain

import "sort"

// Sample is one gold annotation used for evaluation.
type Sample struct {
	Document string
	Span     Offset
	Text     string
	Label    string
}

// NoLabel is the predicted label recorded when an engine makes no prediction.
const NoLabel = "<none>"

// ConfusionMatrix counts (gold, predicted) label pairs.
type ConfusionMatrix map[string]map[string]int

// Add counts one pair.
func (m ConfusionMatrix) Add(gold, predicted string) {
	row, ok := m[gold]
	if !ok {
		row = make(map[string]int)
		m[gold] = row
	}
	row[predicted]++
}

// Count returns the number of (gold, predicted) pairs.
func (m ConfusionMatrix) Count(gold, predicted string) int {
	return m[gold][predicted]
}

// Total returns the number of counted pairs.
func (m ConfusionMatrix) Total() int {
	total := 0
	for _, row := range m {
		for _, n := range row {
			total += n
		}
	}
	return total
}

// Labels returns all gold and predicted labels except NoLabel, sorted.
func (m ConfusionMatrix) Labels() []string {
	seen := make(map[string]bool)
	for gold, row := range m {
		seen[gold] = true
		for pred := range row {
			seen[pred] = true
		}
	}
	delete(seen, NoLabel)
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Metric names reported in EvaluationResult.Metrics.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

// EvaluationResult is one point on a learning curve.
type EvaluationResult struct {
	// Step is the 1-based position of the point on the curve.
	Step int

	TrainSize int
	TestSize  int

	Confusion ConfusionMatrix
	Metrics   map[string]float64

	// Skipped is set when there was not enough data to evaluate.
	// SkipReason explains why; it is informational.
	Skipped    bool
	SkipReason string
}

// SplitterConfig parameterises the incremental train/test splitter.
type SplitterConfig struct {
	// TrainRatio is the fraction of samples used for training, e.g. 0.8.
	TrainRatio float64

	// Step is the number of training samples added per step. When zero,
	// StepFraction of the training set is used instead.
	Step int

	// StepFraction derives Step from the training set size when Step is zero.
	StepFraction float64

	// MinSamples is the minimum viable training set size.
	MinSamples int
}

// DefaultSplitterConfig returns the defaults used when nothing is configured.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		TrainRatio:   0.8,
		StepFraction: 0.1,
		MinSamples:   10,
	}
}
