package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// mockSuggestionService is a mock implementation of driving.SuggestionService.
type mockSuggestionService struct {
	predictions *domain.Predictions
	result      *driving.ActionResult
	switched    bool
	err         error

	lastKey    domain.PredictionKey
	lastVID    string
	lastReason string
}

func (m *mockSuggestionService) HandleAction(
	ctx context.Context,
	key domain.PredictionKey,
	action domain.Action,
	vid, reason string,
) (*driving.ActionResult, error) {
	switch action {
	case domain.ActionAccept:
		return m.Accept(ctx, key, vid)
	case domain.ActionReject:
		return m.Reject(ctx, key, vid, reason)
	default:
		return m.ScrollTo(ctx, key, vid)
	}
}

func (m *mockSuggestionService) Accept(_ context.Context, key domain.PredictionKey, vid string) (*driving.ActionResult, error) {
	m.lastKey, m.lastVID = key, vid
	return m.result, m.err
}

func (m *mockSuggestionService) Reject(
	_ context.Context,
	key domain.PredictionKey,
	vid, reason string,
) (*driving.ActionResult, error) {
	m.lastKey, m.lastVID, m.lastReason = key, vid, reason
	return m.result, m.err
}

func (m *mockSuggestionService) ScrollTo(_ context.Context, key domain.PredictionKey, vid string) (*driving.ActionResult, error) {
	m.lastKey, m.lastVID = key, vid
	return m.result, m.err
}

func (m *mockSuggestionService) GetPredictions(key domain.PredictionKey) *domain.Predictions {
	m.lastKey = key
	if m.predictions == nil {
		return domain.EmptyPredictions(key)
	}
	return m.predictions
}

func (m *mockSuggestionService) SwitchPredictions(key domain.PredictionKey) bool {
	m.lastKey = key
	return m.switched
}

func (m *mockSuggestionService) GetFeatureValue(_ domain.PredictionKey, _ string) (string, bool) {
	return "", false
}

func (m *mockSuggestionService) LookupDetails(_ domain.PredictionKey, _ string) ([]driving.SuggestionDetail, bool) {
	return nil, false
}

// mockRecommendationService is a mock implementation of driving.RecommendationService.
type mockRecommendationService struct {
	generation uint64
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
	return &driving.RunStatus{Key: key}, nil
}

func (m *mockRecommendationService) CancelSession(_ string) {}

func (m *mockRecommendationService) InvalidateProject(_ string) {}

func (m *mockRecommendationService) Shutdown() {}

// mockCorpusService is a mock implementation of driving.CorpusService.
type mockCorpusService struct {
	documents []domain.Document
	texts     map[string]string
	err       error
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
	if m.err != nil {
		return "", m.err
	}
	text, ok := m.texts[name]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	return text, nil
}

func (m *mockCorpusService) LoadCorpus(
	_ context.Context,
	_, _ string,
) (*domain.Recommender, []domain.AnnotatedDocument, error) {
	return nil, nil, m.err
}

var testKey = domain.PredictionKey{SessionOwner: "alice", DataOwner: "alice", ProjectID: "p1"}

// testPredictions builds generation 3 with a visible span on doc1, a span on
// doc1 hidden by the threshold and an unscored relation on doc2.
func testPredictions(t *testing.T) *domain.Predictions {
	t.Helper()
	rec := &domain.Recommender{ID: "ner", Name: "NER", LayerID: "ner", Feature: "value", Threshold: 0.5}
	b := domain.NewPredictionsBuilder(testKey)
	require.NoError(t, b.Add(rec, domain.Prediction{
		Kind: domain.KindSpan, Document: "doc1", Label: "PER", Score: 0.9,
		Span: domain.Offset{Begin: 0, End: 5},
	}))
	require.NoError(t, b.Add(rec, domain.Prediction{
		Kind: domain.KindSpan, Document: "doc1", Label: "LOC", Score: 0.2,
		Span: domain.Offset{Begin: 10, End: 14},
	}))
	require.NoError(t, b.Add(rec, domain.Prediction{
		Kind: domain.KindRelation, Document: "doc2", Label: "knows", Score: domain.NoScore,
		Source: domain.Offset{Begin: 0, End: 3}, Target: domain.Offset{Begin: 5, End: 8},
	}))
	return b.Build(3, nil)
}
