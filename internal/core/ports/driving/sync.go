package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// DatasetSyncService keeps remote recommender datasets in line with the local corpus.
type DatasetSyncService interface {
	// SyncRecommender synchronises the dataset of an external recommender for a user.
	SyncRecommender(ctx context.Context, recommenderID, user string) (domain.SyncReport, error)

	// Classifiers lists the classifiers offered by a remote recommender service.
	Classifiers(ctx context.Context, recommenderID string) ([]domain.ClassifierInfo, error)
}
