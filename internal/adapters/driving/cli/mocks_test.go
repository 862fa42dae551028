package cli

import (
	"bytes"
	"context"
	"iter"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// runCommand executes the root command with args and returns its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCommandWithInput(t, "", args...)
}

func runCommandWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue) //nolint:errcheck
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// withServices installs s for the duration of the test.
func withServices(t *testing.T, s *Services) {
	t.Helper()
	SetServices(s)
	t.Cleanup(func() { SetServices(nil) })
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

// mockSuggestionService is a mock implementation of driving.SuggestionService.
type mockSuggestionService struct {
	predictions *domain.Predictions
	result      *driving.ActionResult
	details     []driving.SuggestionDetail
	switched    bool
	err         error

	accepted   []string
	rejected   []string
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

func (m *mockSuggestionService) Accept(_ context.Context, _ domain.PredictionKey, vid string) (*driving.ActionResult, error) {
	m.accepted = append(m.accepted, vid)
	return m.result, m.err
}

func (m *mockSuggestionService) Reject(
	_ context.Context,
	_ domain.PredictionKey,
	vid, reason string,
) (*driving.ActionResult, error) {
	m.rejected = append(m.rejected, vid)
	m.lastReason = reason
	return m.result, m.err
}

func (m *mockSuggestionService) ScrollTo(_ context.Context, _ domain.PredictionKey, _ string) (*driving.ActionResult, error) {
	return m.result, m.err
}

func (m *mockSuggestionService) GetPredictions(key domain.PredictionKey) *domain.Predictions {
	if m.predictions == nil {
		return domain.EmptyPredictions(key)
	}
	return m.predictions
}

func (m *mockSuggestionService) SwitchPredictions(_ domain.PredictionKey) bool {
	switched := m.switched
	m.switched = false
	return switched
}

func (m *mockSuggestionService) GetFeatureValue(_ domain.PredictionKey, _ string) (string, bool) {
	return "", false
}

func (m *mockSuggestionService) LookupDetails(_ domain.PredictionKey, _ string) ([]driving.SuggestionDetail, bool) {
	return m.details, m.details != nil
}

// mockRecommendationService is a mock implementation of driving.RecommendationService.
type mockRecommendationService struct {
	triggerErr error
	waitErr    error
	lastRun    *domain.TrainingRun

	lastKey   domain.PredictionKey
	triggered int
	retrained int
	waited    int
	shutdown  bool
}

func (m *mockRecommendationService) Trigger(_ context.Context, key domain.PredictionKey) (uint64, error) {
	m.lastKey = key
	m.triggered++
	return 1, m.triggerErr
}

func (m *mockRecommendationService) Retrain(_ context.Context, key domain.PredictionKey) (uint64, error) {
	m.lastKey = key
	m.retrained++
	return 1, m.triggerErr
}

func (m *mockRecommendationService) Wait(_ context.Context, _ domain.PredictionKey) error {
	m.waited++
	return m.waitErr
}

func (m *mockRecommendationService) Status(_ context.Context, key domain.PredictionKey) (*driving.RunStatus, error) {
	return &driving.RunStatus{Key: key, LastRun: m.lastRun}, nil
}

func (m *mockRecommendationService) CancelSession(_ string) {}

func (m *mockRecommendationService) InvalidateProject(_ string) {}

func (m *mockRecommendationService) Shutdown() { m.shutdown = true }

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
	report    *driving.ImportReport
	documents []domain.Document
	texts     map[string]string
	rec       *domain.Recommender
	err       error

	lastOptions driving.ImportOptions
	lastDir     string
	lastUser    string
}

func (m *mockCorpusService) ImportDir(
	_ context.Context,
	opts driving.ImportOptions,
	dir string,
) (*driving.ImportReport, error) {
	m.lastOptions, m.lastDir = opts, dir
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
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
	recommenderID, user string,
) (*domain.Recommender, []domain.AnnotatedDocument, error) {
	m.lastUser = user
	if m.err != nil {
		return nil, nil, m.err
	}
	rec := m.rec
	if rec == nil {
		rec = &domain.Recommender{ID: recommenderID}
	}
	return rec, nil, nil
}

// mockScheduler is a mock implementation of driving.Scheduler.
type mockScheduler struct {
	tasks   []domain.ScheduledTask
	history []domain.TaskResult
	err     error

	lastTask  string
	lastLimit int
}

func (m *mockScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() {}

func (m *mockScheduler) Tasks(_ context.Context) ([]domain.ScheduledTask, error) {
	return m.tasks, m.err
}

func (m *mockScheduler) History(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.lastTask, m.lastLimit = taskID, limit
	return m.history, m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings *domain.AppSettings
	err      error
	setErr   error

	values map[string]any
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		s := domain.DefaultAppSettings()
		return &s, nil
	}
	return m.settings, nil
}

func (m *mockSettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	return domain.DefaultSchedulerConfig()
}

func (m *mockSettingsService) Set(key string, value any) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) RegisterRecommenders(_ context.Context, _ driven.RecommenderStore) (int, error) {
	return 0, nil
}
