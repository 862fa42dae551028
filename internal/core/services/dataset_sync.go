package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// PlanSync compares the local corpus with a remote listing.
//
// A local document is sent when it is missing remotely, its version is
// unknown, or it is newer than the remote copy. Remote documents with no local
// counterpart are deleted. Both lists are sorted by name.
func PlanSync(local []domain.Document, remote domain.RemoteDatasetState) domain.SyncPlan {
	var plan domain.SyncPlan
	present := make(map[string]bool, len(local))

	for i := range local {
		doc := &local[i]
		present[doc.Name] = true

		remoteVersion, ok := remote.Versions[doc.Name]
		localVersion := doc.Version()
		if !ok || localVersion == domain.UnknownVersion || localVersion > remoteVersion {
			plan.ToSend = append(plan.ToSend, doc.Name)
		}
	}

	for name := range remote.Versions {
		if !present[name] {
			plan.ToDelete = append(plan.ToDelete, name)
		}
	}

	sort.Strings(plan.ToSend)
	sort.Strings(plan.ToDelete)
	return plan
}

// DatasetName derives the remote dataset of a recommender for a user.
func DatasetName(rec domain.Recommender, user string) string {
	return strings.Join([]string{rec.ProjectID, rec.ID, user}, "_")
}

// DatasetSynchronizer reconciles a remote dataset with a local corpus.
type DatasetSynchronizer struct {
	client driven.RemoteRecommenderClient

	mu     sync.Mutex
	active map[string]bool
}

// NewDatasetSynchronizer creates a synchronizer for a remote service.
func NewDatasetSynchronizer(client driven.RemoteRecommenderClient) *DatasetSynchronizer {
	return &DatasetSynchronizer{
		client: client,
		active: make(map[string]bool),
	}
}

// Synchronize brings the recommender's dataset for user in line with corpus.
//
// Deletions run before uploads, one document at a time. A failure on one
// document is logged and recorded in the report; the pass continues. Listing
// failures, including a structurally invalid listing, abort the pass before
// any remote mutation.
func (s *DatasetSynchronizer) Synchronize(
	ctx context.Context,
	rec domain.Recommender,
	user string,
	corpus []domain.AnnotatedDocument,
) (domain.SyncReport, error) {
	dataset := DatasetName(rec, user)
	report := domain.SyncReport{Dataset: dataset}

	if s.client == nil {
		return report, domain.ErrNotImplemented
	}
	if !s.begin(dataset) {
		return report, fmt.Errorf("%w: dataset %s is being synchronised", domain.ErrGenerationInProgress, dataset)
	}
	defer s.end(dataset)

	if err := s.client.CreateDataset(ctx, dataset); err != nil {
		return report, fmt.Errorf("create dataset: %w", err)
	}

	remote, err := s.client.ListDocuments(ctx, dataset)
	if err != nil {
		return report, fmt.Errorf("list remote documents: %w", err)
	}

	local := make([]domain.Document, 0, len(corpus))
	byName := make(map[string]*domain.AnnotatedDocument, len(corpus))
	for i := range corpus {
		local = append(local, corpus[i].Document)
		byName[corpus[i].Document.Name] = &corpus[i]
	}

	plan := PlanSync(local, remote)
	report.Unchanged = len(local) - len(plan.ToSend)
	logger.Debug("Dataset %s: %d to delete, %d to send, %d unchanged",
		dataset, len(plan.ToDelete), len(plan.ToSend), report.Unchanged)

	for _, name := range plan.ToDelete {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.client.DeleteDocument(ctx, dataset, name); err != nil {
			logger.Warnw("Failed to delete remote document", "dataset", dataset, "document", name, "error", err)
			report.Failed = append(report.Failed, name)
			continue
		}
		report.Deleted++
	}

	for _, name := range plan.ToSend {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		payload := ToRemoteDocument(rec, byName[name])
		if err := s.client.PutDocument(ctx, dataset, payload); err != nil {
			logger.Warnw("Failed to upload document", "dataset", dataset, "document", name, "error", err)
			report.Failed = append(report.Failed, name)
			continue
		}
		report.Uploaded++
	}

	logger.Info("Synchronised dataset %s: %d uploaded, %d deleted, %d failed",
		dataset, report.Uploaded, report.Deleted, len(report.Failed))
	return report, nil
}

func (s *DatasetSynchronizer) begin(dataset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[dataset] {
		return false
	}
	s.active[dataset] = true
	return true
}

func (s *DatasetSynchronizer) end(dataset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, dataset)
}

// ToRemoteDocument converts a document and the recommender's annotations on it
// into the payload uploaded to the remote service. Relation endpoints are
// resolved among the span annotations of the same document.
func ToRemoteDocument(rec domain.Recommender, doc *domain.AnnotatedDocument) domain.RemoteDocument {
	payload := domain.RemoteDocument{
		Name:    doc.Document.Name,
		Version: doc.Document.Version(),
		Text:    doc.Document.Text,
	}

	spans := spansByRef(doc.Annotations)
	for _, a := range doc.Annotations {
		if a.LayerID != rec.LayerID {
			continue
		}
		label, _ := a.Feature(rec.Feature)
		if a.Source == "" {
			payload.Annotations = append(payload.Annotations, domain.RemoteAnnotation{
				Begin: a.Span.Begin,
				End:   a.Span.End,
				Label: label,
				Score: domain.NoScore,
			})
			continue
		}
		source, okSource := spans[a.Source]
		target, okTarget := spans[a.Target]
		if !okSource || !okTarget {
			continue
		}
		payload.Relations = append(payload.Relations, domain.RemoteRelation{
			Source: source,
			Target: target,
			Label:  label,
			Score:  domain.NoScore,
		})
	}
	return payload
}

// Ensure DatasetSyncService implements the interface.
var _ driving.DatasetSyncService = (*DatasetSyncService)(nil)

// DatasetSyncService synchronises recommender datasets on demand.
type DatasetSyncService struct {
	recommenders driven.RecommenderStore
	store        driven.AnnotationStore
	client       driven.RemoteRecommenderClient
	synchronizer *DatasetSynchronizer
}

// NewDatasetSyncService creates a new dataset sync service.
func NewDatasetSyncService(
	recommenders driven.RecommenderStore,
	store driven.AnnotationStore,
	client driven.RemoteRecommenderClient,
	synchronizer *DatasetSynchronizer,
) *DatasetSyncService {
	return &DatasetSyncService{
		recommenders: recommenders,
		store:        store,
		client:       client,
		synchronizer: synchronizer,
	}
}

// SyncRecommender loads the user's corpus for a recommender and synchronises it.
func (s *DatasetSyncService) SyncRecommender(
	ctx context.Context,
	recommenderID, user string,
) (domain.SyncReport, error) {
	if s.recommenders == nil || s.store == nil || s.synchronizer == nil {
		return domain.SyncReport{}, domain.ErrNotImplemented
	}

	rec, err := s.recommenders.Get(ctx, recommenderID)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("get recommender: %w", err)
	}
	if rec.Tool != ToolExternal {
		return domain.SyncReport{}, fmt.Errorf("%w: recommender %s does not use a remote dataset", domain.ErrInvalidInput, rec.ID)
	}

	corpus, err := loadCorpus(ctx, s.store, *rec, user)
	if err != nil {
		return domain.SyncReport{}, err
	}
	return s.synchronizer.Synchronize(ctx, *rec, user, corpus)
}

// Classifiers lists the classifiers offered by the remote service. When a
// recommender is given its configured classifier is checked for health.
func (s *DatasetSyncService) Classifiers(ctx context.Context, recommenderID string) ([]domain.ClassifierInfo, error) {
	if s.client == nil {
		return nil, domain.ErrNotImplemented
	}

	if recommenderID == "" {
		infos, err := s.client.ListClassifiers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list classifiers: %w", err)
		}
		return infos, nil
	}

	if s.recommenders == nil {
		return nil, domain.ErrNotImplemented
	}
	rec, err := s.recommenders.Get(ctx, recommenderID)
	if err != nil {
		return nil, fmt.Errorf("get recommender: %w", err)
	}
	traits, err := ParseExternalTraits(rec.Traits)
	if err != nil {
		return nil, err
	}
	info, err := s.client.GetClassifier(ctx, traits.Classifier)
	if err != nil {
		if domain.APIStatus(err) == http.StatusNotFound {
			return nil, errors.Join(domain.ErrNotFound, err)
		}
		return nil, fmt.Errorf("get classifier %s: %w", traits.Classifier, err)
	}
	return []domain.ClassifierInfo{info}, nil
}
