package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// --- Shared mock implementations for service tests ---

// mockEngine implements driven.RecommendationEngine and driven.SampleLearner.
type mockEngine struct {
	mu         sync.Mutex
	trainCalls int
	trainErr   error
	predict    func(doc domain.AnnotatedDocument) ([]domain.Prediction, error)

	// block, when set, makes Predict wait for it to close or ctx to end.
	block chan struct{}

	fitted []int
}

func (m *mockEngine) Train(_ context.Context, _ *domain.RecommenderContext, _ []domain.AnnotatedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainCalls++
	return m.trainErr
}

func (m *mockEngine) Predict(
	ctx context.Context,
	_ *domain.RecommenderContext,
	doc domain.AnnotatedDocument,
) ([]domain.Prediction, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.predict == nil {
		return nil, nil
	}
	return m.predict(doc)
}

func (m *mockEngine) FitSamples(_ context.Context, rctx *domain.RecommenderContext, samples []domain.Sample) error {
	m.mu.Lock()
	m.fitted = append(m.fitted, len(samples))
	m.mu.Unlock()

	labels := make(map[string]string)
	for _, s := range samples {
		labels[s.Text] = s.Label
	}
	domain.ContextPut(rctx, mockModelKey, labels)
	return nil
}

func (m *mockEngine) PredictSample(
	_ context.Context,
	rctx *domain.RecommenderContext,
	sample domain.Sample,
) (string, bool, error) {
	labels, _ := domain.ContextGet(rctx, mockModelKey)
	label, ok := labels[sample.Text]
	return label, ok, nil
}

func (m *mockEngine) trains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainCalls
}

var mockModelKey = domain.NewContextKey[map[string]string]("mock.model")

// mockPredictOnly hides the SampleLearner methods of an engine.
type mockPredictOnly struct {
	driven.RecommendationEngine
}

// mockEngineFactory implements driven.EngineFactory.
type mockEngineFactory struct {
	engines map[string]driven.RecommendationEngine
}

func (f *mockEngineFactory) Engine(rec domain.Recommender) (driven.RecommendationEngine, error) {
	engine, ok := f.engines[rec.ID]
	if !ok {
		return nil, domain.ErrEngineUnavailable
	}
	return engine, nil
}

func (f *mockEngineFactory) Tools() []string {
	return []string{"mock"}
}

// mockContextStore implements driven.ContextStore.
type mockContextStore struct {
	mu       sync.Mutex
	contexts map[[2]string]*domain.RecommenderContext
}

func newMockContextStore() *mockContextStore {
	return &mockContextStore{contexts: make(map[[2]string]*domain.RecommenderContext)}
}

func (s *mockContextStore) Get(recommenderID, user string) (*domain.RecommenderContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rctx, ok := s.contexts[[2]string{recommenderID, user}]
	return rctx, ok
}

func (s *mockContextStore) Put(rctx *domain.RecommenderContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[[2]string{rctx.RecommenderID, rctx.User}] = rctx
}

func (s *mockContextStore) Drop(recommenderID, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, [2]string{recommenderID, user})
}

func (s *mockContextStore) DropUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.contexts {
		if k[1] == user {
			delete(s.contexts, k)
		}
	}
}

// mockRemoteClient implements driven.RemoteRecommenderClient over an
// in-memory dataset map.
type mockRemoteClient struct {
	mu          sync.Mutex
	datasets    map[string]map[string]domain.RemoteDocument
	calls       []string
	listErr     error
	putErr      map[string]error
	deleteErr   map[string]error
	trainCalls  []string
	predictResp func(doc domain.RemoteDocument) (domain.RemoteDocument, error)
	classifiers []domain.ClassifierInfo
	getErr      error
}

func newMockRemoteClient() *mockRemoteClient {
	return &mockRemoteClient{
		datasets:  make(map[string]map[string]domain.RemoteDocument),
		putErr:    make(map[string]error),
		deleteErr: make(map[string]error),
	}
}

func (c *mockRemoteClient) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *mockRemoteClient) CreateDataset(_ context.Context, dataset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("create " + dataset)
	if c.datasets[dataset] == nil {
		c.datasets[dataset] = make(map[string]domain.RemoteDocument)
	}
	return nil
}

func (c *mockRemoteClient) ListDocuments(_ context.Context, dataset string) (domain.RemoteDatasetState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("list " + dataset)
	if c.listErr != nil {
		return domain.RemoteDatasetState{}, c.listErr
	}
	state := domain.RemoteDatasetState{Dataset: dataset, Versions: make(map[string]int64)}
	for name, doc := range c.datasets[dataset] {
		state.Versions[name] = doc.Version
	}
	return state, nil
}

func (c *mockRemoteClient) PutDocument(_ context.Context, dataset string, doc domain.RemoteDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("put " + doc.Name)
	if err := c.putErr[doc.Name]; err != nil {
		return err
	}
	c.datasets[dataset][doc.Name] = doc
	return nil
}

func (c *mockRemoteClient) DeleteDocument(_ context.Context, dataset, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("delete " + name)
	if err := c.deleteErr[name]; err != nil {
		return err
	}
	delete(c.datasets[dataset], name)
	return nil
}

func (c *mockRemoteClient) Train(_ context.Context, classifier, model, dataset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trainCalls = append(c.trainCalls, classifier+"/"+model+"@"+dataset)
	return nil
}

func (c *mockRemoteClient) Predict(
	_ context.Context,
	_, _ string,
	doc domain.RemoteDocument,
) (domain.RemoteDocument, error) {
	if c.predictResp == nil {
		return doc, nil
	}
	return c.predictResp(doc)
}

func (c *mockRemoteClient) ListClassifiers(_ context.Context) ([]domain.ClassifierInfo, error) {
	return c.classifiers, nil
}

func (c *mockRemoteClient) GetClassifier(_ context.Context, name string) (domain.ClassifierInfo, error) {
	if c.getErr != nil {
		return domain.ClassifierInfo{}, c.getErr
	}
	for _, info := range c.classifiers {
		if info.Name == name {
			return info, nil
		}
	}
	return domain.ClassifierInfo{}, &domain.ExternalRecommenderAPIError{Op: "get classifier", StatusCode: 404}
}

func (c *mockRemoteClient) mutations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if strings.HasPrefix(call, "put ") || strings.HasPrefix(call, "delete ") {
			out = append(out, call)
		}
	}
	return out
}

func (c *mockRemoteClient) remoteNames(dataset string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.datasets[dataset]))
	for name := range c.datasets[dataset] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errMockFailure = errors.New("mock failure")

// --- Fixtures ---

const testText = "Alice met Bob in Paris. Alice likes Paris."

var testKey = domain.PredictionKey{SessionOwner: "alice", DataOwner: "alice", ProjectID: "p1"}

func testRecommender() domain.Recommender {
	return domain.Recommender{
		ID:        "ner",
		ProjectID: "p1",
		Name:      "NER",
		LayerID:   "ner",
		Feature:   "value",
		Tool:      "mock",
		Enabled:   true,
	}
}

// newTestStores seeds a document with layers "ner" and "rel".
func newTestStores(t *testing.T) (*memory.AnnotationStore, *memory.RecommenderStore) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewAnnotationStore()
	require.NoError(t, store.SaveDocument(ctx, domain.Document{
		Name:      "a.txt",
		ProjectID: "p1",
		Text:      testText,
		UpdatedAt: time.UnixMilli(1000),
	}))
	require.NoError(t, store.EnsureLayer(ctx, "p1", "ner"))
	require.NoError(t, store.EnsureLayer(ctx, "p1", "rel"))

	recs := memory.NewRecommenderStore()
	require.NoError(t, recs.Save(ctx, testRecommender()))
	return store, recs
}

// spanPrediction builds a span prediction on a.txt.
func spanPrediction(begin, end int, label string, score float64) domain.Prediction {
	return domain.Prediction{
		Kind:     domain.KindSpan,
		Document: "a.txt",
		Label:    label,
		Score:    score,
		Span:     domain.Offset{Begin: begin, End: end},
	}
}

// commitPredictions publishes a generation built from predictions.
func commitPredictions(t *testing.T, cache *PredictionCache, key domain.PredictionKey, rec domain.Recommender, preds ...domain.Prediction) *domain.Predictions {
	t.Helper()
	handle, err := cache.BeginGeneration(key)
	require.NoError(t, err)
	builder := domain.NewPredictionsBuilder(key)
	for _, p := range preds {
		require.NoError(t, builder.Add(&rec, p))
	}
	generation := builder.Build(handle.Generation, nil)
	require.NoError(t, cache.CommitGeneration(handle, generation))
	return generation
}
