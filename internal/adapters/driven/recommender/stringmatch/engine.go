// Package stringmatch provides a local recommender that learns which labels
// users give to covered texts and suggests them wherever the text occurs again.
package stringmatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Tool is the recommender tool id of this engine.
const Tool = "string-matcher"

// Verify interface compliance.
var (
	_ driven.RecommendationEngine = (*Engine)(nil)
	_ driven.SampleLearner        = (*Engine)(nil)
)

var modelKey = domain.NewContextKey[*model]("stringmatch.model")

// Engine is a string-matching recommender for one span layer and feature.
type Engine struct {
	rec domain.Recommender
}

// New creates an engine for a recommender.
func New(rec domain.Recommender) *Engine {
	return &Engine{rec: rec}
}

// Train counts the labels of every covered text in the corpus.
func (e *Engine) Train(ctx context.Context, rctx *domain.RecommenderContext, corpus []domain.AnnotatedDocument) error {
	m := newModel()
	for _, doc := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, a := range doc.Annotations {
			if a.LayerID != e.rec.LayerID || a.Source != "" {
				continue
			}
			label, ok := a.Feature(e.rec.Feature)
			if !ok {
				continue
			}
			m.learn(covered(doc.Document.Text, a.Span), label)
		}
	}
	domain.ContextPut(rctx, modelKey, m)
	return nil
}

// Predict suggests known labels at every whole-word occurrence of a known text.
func (e *Engine) Predict(
	ctx context.Context,
	rctx *domain.RecommenderContext,
	doc domain.AnnotatedDocument,
) ([]domain.Prediction, error) {
	m, ok := domain.ContextGet(rctx, modelKey)
	if !ok || m.empty() {
		return nil, nil
	}

	unlabeled := make(map[domain.Offset]string)
	for _, a := range doc.Annotations {
		if a.LayerID != e.rec.LayerID || a.Source != "" {
			continue
		}
		if _, labelled := a.Feature(e.rec.Feature); !labelled {
			unlabeled[a.Span] = a.Ref
		}
	}

	text := doc.Document.Text
	window := domain.Offset{Begin: 0, End: len(text)}
	var preds []domain.Prediction
	for _, needle := range m.texts() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels := m.labels(needle)
		for _, span := range occurrences(text, needle) {
			for _, l := range labels {
				preds = append(preds, domain.Prediction{
					Kind:               domain.KindSpan,
					Document:           doc.Document.Name,
					Label:              l.label,
					Score:              l.score,
					Span:               span,
					Window:             window,
					ExistingAnnotation: unlabeled[span],
				})
			}
		}
	}
	return preds, nil
}

// FitSamples trains on gold samples.
func (e *Engine) FitSamples(ctx context.Context, rctx *domain.RecommenderContext, samples []domain.Sample) error {
	m := newModel()
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.learn(s.Text, s.Label)
	}
	domain.ContextPut(rctx, modelKey, m)
	return nil
}

// PredictSample returns the most frequent label of the sample's text.
func (e *Engine) PredictSample(
	_ context.Context,
	rctx *domain.RecommenderContext,
	sample domain.Sample,
) (string, bool, error) {
	m, ok := domain.ContextGet(rctx, modelKey)
	if !ok {
		return "", false, nil
	}
	labels := m.labels(sample.Text)
	if len(labels) == 0 {
		return "", false, nil
	}
	return labels[0].label, true, nil
}

type scoredLabel struct {
	label string
	score float64
}

// model maps covered texts to label counts.
type model struct {
	mu     sync.RWMutex
	counts map[string]map[string]int
}

func newModel() *model {
	return &model{counts: make(map[string]map[string]int)}
}

func (m *model) learn(text, label string) {
	text = strings.TrimSpace(text)
	if text == "" || label == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.counts[text]
	if !ok {
		row = make(map[string]int)
		m.counts[text] = row
	}
	row[label]++
}

func (m *model) empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.counts) == 0
}

// texts returns the known texts, longest first.
func (m *model) texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.counts))
	for t := range m.counts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// labels returns the labels of a text scored by relative frequency, best first.
func (m *model) labels(text string) []scoredLabel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row := m.counts[strings.TrimSpace(text)]
	total := 0
	for _, n := range row {
		total += n
	}
	out := make([]scoredLabel, 0, len(row))
	for l, n := range row {
		out = append(out, scoredLabel{label: l, score: float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].label < out[j].label
	})
	return out
}

// occurrences finds non-overlapping whole-word matches of needle in text.
func occurrences(text, needle string) []domain.Offset {
	var out []domain.Offset
	for from := 0; from <= len(text)-len(needle); {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			break
		}
		begin := from + i
		end := begin + len(needle)
		if boundary(text, begin, end) {
			out = append(out, domain.Offset{Begin: begin, End: end})
			from = end
			continue
		}
		from = begin + 1
	}
	return out
}

func boundary(text string, begin, end int) bool {
	if begin > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:begin])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func covered(text string, span domain.Offset) string {
	if span.Begin < 0 || span.End > len(text) || span.Begin > span.End {
		return ""
	}
	return text[span.Begin:span.End]
}
