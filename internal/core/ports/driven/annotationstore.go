package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// AnnotationStore is the storage collaborator holding the authoritative
// document text and confirmed annotations. The engine never caches committed
// state from it beyond one request.
//
// Implementations report a deleted document with domain.ErrDocumentNotFound
// and a removed layer with domain.ErrLayerNotFound.
type AnnotationStore interface {
	// ListDocuments returns the documents of a project without their text.
	ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error)

	// ReadDocumentText returns the text of a document.
	ReadDocumentText(ctx context.Context, projectID, doc string) (string, error)

	// ListConfirmedAnnotations returns a user's annotations on a layer of a document.
	ListConfirmedAnnotations(ctx context.Context, projectID, doc, user, layerID string) ([]domain.Annotation, error)

	// AnnotationsChangedAt returns when a user's annotations on a document
	// last changed, or the zero time when they never did. Every annotation
	// write moves it strictly forward.
	AnnotationsChangedAt(ctx context.Context, projectID, doc, user string) (time.Time, error)

	// CreateAnnotation creates an empty span annotation and returns its ref.
	CreateAnnotation(ctx context.Context, projectID, doc, user, layerID string, span domain.Offset) (string, error)

	// CreateRelation creates an empty relation between two annotations and returns its ref.
	CreateRelation(ctx context.Context, projectID, doc, user, layerID, sourceRef, targetRef string) (string, error)

	// UpdateFeature sets a feature value on an annotation.
	UpdateFeature(ctx context.Context, ref, feature, value string) error

	// DeleteAnnotation removes an annotation.
	DeleteAnnotation(ctx context.Context, ref string) error
}

// CorpusStore maintains the documents and layers of a project.
// Used by corpus import and watching; not part of the suggestion path.
type CorpusStore interface {
	// SaveDocument stores or updates a document including its text.
	SaveDocument(ctx context.Context, doc domain.Document) error

	// DeleteDocument removes a document and its annotations.
	DeleteDocument(ctx context.Context, projectID, name string) error

	// EnsureLayer declares a layer in a project.
	EnsureLayer(ctx context.Context, projectID, layerID string) error

	// RemoveLayer removes a layer and all annotations on it.
	RemoveLayer(ctx context.Context, projectID, layerID string) error
}
