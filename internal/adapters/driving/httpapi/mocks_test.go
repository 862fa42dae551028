package httpapi

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// mockSuggestionService is a mock implementation of driving.SuggestionService.
type mockSuggestionService struct {
	predictions *domain.Predictions
	result      *driving.ActionResult
	details     []driving.SuggestionDetail
	found       bool
	switched    bool
	err         error

	lastKey    domain.PredictionKey
	lastAction domain.Action
	lastVID    string
	lastReason string
}

func (m *mockSuggestionService) HandleAction(
	_ context.Context,
	key domain.PredictionKey,
	action domain.Action,
	vid, reason string,
) (*driving.ActionResult, error) {
	m.lastKey, m.lastAction, m.lastVID, m.lastReason = key, action, vid, reason
	return m.result, m.err
}

func (m *mockSuggestionService) Accept(ctx context.Context, key domain.PredictionKey, vid string) (*driving.ActionResult, error) {
	return m.HandleAction(ctx, key, domain.ActionAccept, vid, "")
}

func (m *mockSuggestionService) Reject(
	ctx context.Context,
	key domain.PredictionKey,
	vid, reason string,
) (*driving.ActionResult, error) {
	return m.HandleAction(ctx, key, domain.ActionReject, vid, reason)
}

func (m *mockSuggestionService) ScrollTo(ctx context.Context, key domain.PredictionKey, vid string) (*driving.ActionResult, error) {
	return m.HandleAction(ctx, key, domain.ActionScroll, vid, "")
}

func (m *mockSuggestionService) GetPredictions(key domain.PredictionKey) *domain.Predictions {
	m.lastKey = key
	if m.predictions == nil {
		return domain.EmptyPredictions(key)
	}
	return m.predictions
}

func (m *mockSuggestionService) SwitchPredictions(_ domain.PredictionKey) bool {
	return m.switched
}

func (m *mockSuggestionService) GetFeatureValue(_ domain.PredictionKey, _ string) (string, bool) {
	if !m.found {
		return "", false
	}
	return "PER", true
}

func (m *mockSuggestionService) LookupDetails(_ domain.PredictionKey, _ string) ([]driving.SuggestionDetail, bool) {
	return m.details, m.found
}

// mockRecommendationService is a mock implementation of driving.RecommendationService.
type mockRecommendationService struct {
	generation uint64
	status     *driving.RunStatus
	triggerErr error
	waitErr    error

	triggered int
	retrained int
	waited    int
}

func (m *mockRecommendationService) Trigger(_ context.Context, _ domain.PredictionKey) (uint64, error) {
	m.triggered++
	return m.generation, m.triggerErr
}

func (m *mockRecommendationService) Retrain(_ context.Context, _ domain.PredictionKey) (uint64, error) {
	m.retrained++
	return m.generation, m.triggerErr
}

func (m *mockRecommendationService) Wait(_ context.Context, _ domain.PredictionKey) error {
	m.waited++
	return m.waitErr
}

func (m *mockRecommendationService) Status(_ context.Context, key domain.PredictionKey) (*driving.RunStatus, error) {
	if m.status == nil {
		return &driving.RunStatus{Key: key}, nil
	}
	return m.status, nil
}

func (m *mockRecommendationService) CancelSession(_ string) {}

func (m *mockRecommendationService) InvalidateProject(_ string) {}

func (m *mockRecommendationService) Shutdown() {}

// mockSyncService is a mock implementation of driving.DatasetSyncService.
type mockSyncService struct {
	report      domain.SyncReport
	classifiers []domain.ClassifierInfo
	err         error

	lastRecommender string
	lastUser        string
}

func (m *mockSyncService) SyncRecommender(_ context.Context, recommenderID, user string) (domain.SyncReport, error) {
	m.lastRecommender, m.lastUser = recommenderID, user
	return m.report, m.err
}

func (m *mockSyncService) Classifiers(_ context.Context, recommenderID string) ([]domain.ClassifierInfo, error) {
	m.lastRecommender = recommenderID
	return m.classifiers, m.err
}

// mockEvaluationService is a mock implementation of driving.EvaluationService.
type mockEvaluationService struct {
	results []domain.EvaluationResult
	err     error

	lastConfig domain.SplitterConfig
}

func (m *mockEvaluationService) Evaluate(
	_ context.Context,
	_ domain.Recommender,
	_ []domain.AnnotatedDocument,
	cfg domain.SplitterConfig,
) iter.Seq2[domain.EvaluationResult, error] {
	m.lastConfig = cfg
	return func(yield func(domain.EvaluationResult, error) bool) {
		for _, r := range m.results {
			if !yield(r, nil) {
				return
			}
		}
		if m.err != nil {
			yield(domain.EvaluationResult{}, m.err)
		}
	}
}

// mockCorpusService is a mock implementation of driving.CorpusService.
type mockCorpusService struct {
	documents   []domain.Document
	texts       map[string]string
	recommender *domain.Recommender
	err         error
}

func (m *mockCorpusService) ImportDir(
	_ context.Context,
	_ driving.ImportOptions,
	_ string,
) (*driving.ImportReport, error) {
	return &driving.ImportReport{}, m.err
}

func (m *mockCorpusService) ImportFile(_ context.Context, _ driving.ImportOptions, _, _ string) (bool, error) {
	return false, m.err
}

func (m *mockCorpusService) RemoveFile(_ context.Context, _, _, _ string) error {
	return m.err
}

func (m *mockCorpusService) Documents(_ context.Context, _ string) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockCorpusService) DocumentText(_ context.Context, _, name string) (string, error) {
	text, ok := m.texts[name]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	return text, nil
}

func (m *mockCorpusService) LoadCorpus(
	_ context.Context,
	recommenderID, _ string,
) (*domain.Recommender, []domain.AnnotatedDocument, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if m.recommender == nil || m.recommender.ID != recommenderID {
		return nil, nil, domain.ErrNotFound
	}
	return m.recommender, nil, nil
}

// mockScheduler is a mock implementation of driving.Scheduler.
type mockScheduler struct {
	tasks   []domain.ScheduledTask
	history []domain.TaskResult
	err     error

	lastLimit int
}

func (m *mockScheduler) Start(_ context.Context) error { return nil }

func (m *mockScheduler) Stop() {}

func (m *mockScheduler) Tasks(_ context.Context) ([]domain.ScheduledTask, error) {
	return m.tasks, m.err
}

func (m *mockScheduler) History(_ context.Context, _ string, limit int) ([]domain.TaskResult, error) {
	m.lastLimit = limit
	return m.history, m.err
}

var testKey = domain.PredictionKey{SessionOwner: "alice", DataOwner: "alice", ProjectID: "p1"}

// testPredictions builds generation 3 with a visible span on doc1, a span on
// doc1 hidden by the threshold and an unscored relation on doc2.
func testPredictions(t *testing.T) *domain.Predictions {
	t.Helper()
	ner := &domain.Recommender{ID: "ner", Name: "NER", LayerID: "ner", Feature: "value", Threshold: 0.5}
	rel := &domain.Recommender{ID: "rel", Name: "Relations", LayerID: "rel", Feature: "label"}
	b := domain.NewPredictionsBuilder(testKey)
	require.NoError(t, b.Add(ner, domain.Prediction{
		Kind: domain.KindSpan, Document: "doc1", Label: "PER", Score: 0.9,
		Span: domain.Offset{Begin: 0, End: 5},
	}))
	require.NoError(t, b.Add(ner, domain.Prediction{
		Kind: domain.KindSpan, Document: "doc1", Label: "LOC", Score: 0.2,
		Span: domain.Offset{Begin: 10, End: 14},
	}))
	require.NoError(t, b.Add(rel, domain.Prediction{
		Kind: domain.KindRelation, Document: "doc2", Label: "knows", Score: domain.NoScore,
		Source: domain.Offset{Begin: 0, End: 3}, Target: domain.Offset{Begin: 5, End: 8},
	}))
	return b.Build(3, nil)
}
