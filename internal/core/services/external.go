package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/logger"
)

// ToolExternal is the tool id of recommenders backed by a remote service.
const ToolExternal = "external"

// datasetKey remembers the dataset an external recommender trained on.
var datasetKey = domain.NewContextKey[string]("external.dataset")

// ExternalTraits is the traits blob of an external recommender.
type ExternalTraits struct {
	// Classifier is the remote classifier name.
	Classifier string `json:"classifier"`

	// Model is the model name the classifier trains and predicts with.
	Model string `json:"model"`

	// Trainable disables the train call for pre-trained classifiers when false.
	Trainable *bool `json:"trainable,omitempty"`
}

// ParseExternalTraits decodes the traits of an external recommender.
func ParseExternalTraits(blob string) (ExternalTraits, error) {
	var traits ExternalTraits
	if strings.TrimSpace(blob) == "" {
		return traits, fmt.Errorf("%w: external recommender requires traits", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal([]byte(blob), &traits); err != nil {
		return traits, fmt.Errorf("%w: parse traits: %v", domain.ErrInvalidInput, err)
	}
	if traits.Classifier == "" {
		return traits, fmt.Errorf("%w: traits must name a classifier", domain.ErrInvalidInput)
	}
	if traits.Model == "" {
		traits.Model = traits.Classifier
	}
	return traits, nil
}

// IsTrainable reports whether the classifier should be trained before predicting.
func (t ExternalTraits) IsTrainable() bool {
	return t.Trainable == nil || *t.Trainable
}

// Ensure ExternalRecommender implements the interface.
var _ driven.RecommendationEngine = (*ExternalRecommender)(nil)

// ExternalRecommender delegates training and prediction to a remote service.
// Training first synchronises the user's dataset, then starts remote training.
type ExternalRecommender struct {
	rec          domain.Recommender
	traits       ExternalTraits
	client       driven.RemoteRecommenderClient
	synchronizer *DatasetSynchronizer
}

// NewExternalRecommender creates the engine for an external recommender.
func NewExternalRecommender(
	rec domain.Recommender,
	client driven.RemoteRecommenderClient,
	synchronizer *DatasetSynchronizer,
) (*ExternalRecommender, error) {
	if client == nil || synchronizer == nil {
		return nil, fmt.Errorf("%w: no remote recommender service configured", domain.ErrEngineUnavailable)
	}
	traits, err := ParseExternalTraits(rec.Traits)
	if err != nil {
		return nil, err
	}
	return &ExternalRecommender{
		rec:          rec,
		traits:       traits,
		client:       client,
		synchronizer: synchronizer,
	}, nil
}

// Train synchronises the dataset and starts remote training.
func (e *ExternalRecommender) Train(
	ctx context.Context,
	rctx *domain.RecommenderContext,
	corpus []domain.AnnotatedDocument,
) error {
	report, err := e.synchronizer.Synchronize(ctx, e.rec, rctx.User, corpus)
	if err != nil {
		return fmt.Errorf("synchronise dataset: %w", err)
	}
	domain.ContextPut(rctx, datasetKey, report.Dataset)

	if !e.traits.IsTrainable() {
		return nil
	}
	if err := e.client.Train(ctx, e.traits.Classifier, e.traits.Model, report.Dataset); err != nil {
		return fmt.Errorf("train %s on %s: %w", e.traits.Classifier, report.Dataset, err)
	}
	logger.Info("Training %s on dataset %s (%d documents uploaded)",
		e.traits.Classifier, report.Dataset, report.Uploaded)
	return nil
}

// Predict sends a document to the classifier and converts its annotations.
func (e *ExternalRecommender) Predict(
	ctx context.Context,
	_ *domain.RecommenderContext,
	doc domain.AnnotatedDocument,
) ([]domain.Prediction, error) {
	payload := ToRemoteDocument(e.rec, &doc)
	result, err := e.client.Predict(ctx, e.traits.Classifier, e.traits.Model, payload)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", doc.Document.Name, err)
	}

	known := make(map[domain.Offset]string)
	for _, a := range payload.Annotations {
		known[domain.Offset{Begin: a.Begin, End: a.End}] = a.Label
	}
	knownRelations := make(map[[2]domain.Offset]string)
	for _, r := range payload.Relations {
		knownRelations[[2]domain.Offset{r.Source, r.Target}] = r.Label
	}

	unlabeled := make(map[domain.Offset]string)
	for _, a := range doc.Annotations {
		if _, labelled := a.Feature(e.rec.Feature); a.LayerID == e.rec.LayerID && a.Source == "" && !labelled {
			unlabeled[a.Span] = a.Ref
		}
	}

	window := domain.Offset{Begin: 0, End: len(doc.Document.Text)}
	var preds []domain.Prediction
	for _, a := range result.Annotations {
		span := domain.Offset{Begin: a.Begin, End: a.End}
		if a.Label == "" || !validSpan(span, window) {
			continue
		}
		// The service echoes the annotations it was sent.
		if label, ok := known[span]; ok && label == a.Label {
			continue
		}
		preds = append(preds, domain.Prediction{
			Kind:        domain.KindSpan,
			Document:    doc.Document.Name,
			Label:       a.Label,
			Score:       a.Score,
			Explanation: a.Explanation,
			Span:        span,
			Window:      window,

			ExistingAnnotation: unlabeled[span],
		})
	}
	for _, r := range result.Relations {
		if r.Label == "" || !validSpan(r.Source, window) || !validSpan(r.Target, window) {
			continue
		}
		if label, ok := knownRelations[[2]domain.Offset{r.Source, r.Target}]; ok && label == r.Label {
			continue
		}
		preds = append(preds, domain.Prediction{
			Kind:        domain.KindRelation,
			Document:    doc.Document.Name,
			Label:       r.Label,
			Score:       r.Score,
			Explanation: r.Explanation,
			Source:      r.Source,
			Target:      r.Target,
			Window:      window,
		})
	}
	return preds, nil
}

func validSpan(span, window domain.Offset) bool {
	return span.Begin >= window.Begin && span.End <= window.End && span.Begin < span.End
}
