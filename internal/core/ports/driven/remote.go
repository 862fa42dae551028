package driven

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// RemoteRecommenderClient talks to an external recommender service.
// Failures are reported as *domain.ExternalRecommenderAPIError; structurally
// invalid listings as *domain.SyncProtocolError.
type RemoteRecommenderClient interface {
	// CreateDataset creates a dataset; succeeds if it already exists.
	CreateDataset(ctx context.Context, dataset string) error

	// ListDocuments returns the remote document versions of a dataset.
	ListDocuments(ctx context.Context, dataset string) (domain.RemoteDatasetState, error)

	// PutDocument uploads a document.
	PutDocument(ctx context.Context, dataset string, doc domain.RemoteDocument) error

	// DeleteDocument removes a document from a dataset.
	DeleteDocument(ctx context.Context, dataset, name string) error

	// Train starts training a classifier model on a dataset.
	Train(ctx context.Context, classifier, model, dataset string) error

	// Predict returns the document annotated by the classifier.
	Predict(ctx context.Context, classifier, model string, doc domain.RemoteDocument) (domain.RemoteDocument, error)

	// ListClassifiers discovers the classifiers the service offers.
	ListClassifiers(ctx context.Context) ([]domain.ClassifierInfo, error)

	// GetClassifier returns health/info for one classifier.
	GetClassifier(ctx context.Context, name string) (domain.ClassifierInfo, error)
}
