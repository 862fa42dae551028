package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/logger"
)

// loadCorpus reads the documents of a recommender's project together with a
// user's confirmed annotations on the layers the recommender reads.
// Documents deleted while loading are skipped; a removed layer fails the load.
func loadCorpus(
	ctx context.Context,
	store driven.AnnotationStore,
	rec domain.Recommender,
	user string,
) ([]domain.AnnotatedDocument, error) {
	docs, err := store.ListDocuments(ctx, rec.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	layers := []string{rec.LayerID}
	if rec.AttachLayerID != "" && rec.AttachLayerID != rec.LayerID {
		layers = append(layers, rec.AttachLayerID)
	}

	corpus := make([]domain.AnnotatedDocument, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		annotated, err := loadDocument(ctx, store, rec.ProjectID, doc, user, layers)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			logger.Debug("Skipping document %s: deleted while loading", doc.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, annotated)
	}
	return corpus, nil
}

func loadDocument(
	ctx context.Context,
	store driven.AnnotationStore,
	projectID string,
	doc domain.Document,
	user string,
	layers []string,
) (domain.AnnotatedDocument, error) {
	text, err := store.ReadDocumentText(ctx, projectID, doc.Name)
	if err != nil {
		return domain.AnnotatedDocument{}, fmt.Errorf("read document %s: %w", doc.Name, err)
	}
	doc.Text = text

	changed, err := store.AnnotationsChangedAt(ctx, projectID, doc.Name, user)
	if err != nil {
		return domain.AnnotatedDocument{}, fmt.Errorf("read annotation version of %s: %w", doc.Name, err)
	}
	doc.AnnotatedAt = changed

	var annotations []domain.Annotation
	for _, layer := range layers {
		anns, err := store.ListConfirmedAnnotations(ctx, projectID, doc.Name, user, layer)
		if err != nil {
			return domain.AnnotatedDocument{}, fmt.Errorf("list annotations of %s on %s: %w", doc.Name, layer, err)
		}
		annotations = append(annotations, anns...)
	}
	return domain.AnnotatedDocument{Document: doc, Annotations: annotations}, nil
}

// coveredText returns the text of a span, or "" when the span is out of range.
func coveredText(text string, span domain.Offset) string {
	if span.Begin < 0 || span.End > len(text) || span.Begin > span.End {
		return ""
	}
	return text[span.Begin:span.End]
}

// spansByRef indexes the span annotations of a document by storage ref.
func spansByRef(annotations []domain.Annotation) map[string]domain.Offset {
	spans := make(map[string]domain.Offset, len(annotations))
	for _, a := range annotations {
		if a.Source == "" {
			spans[a.Ref] = a.Span
		}
	}
	return spans
}
