package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// Ensure RecommendationService implements the interface.
var _ driving.RecommendationService = (*RecommendationService)(nil)

// DefaultPredictionWorkers bounds parallel per-document prediction.
const DefaultPredictionWorkers = 4

// ErrServiceClosed is returned when a run is triggered after Shutdown.
var ErrServiceClosed = errors.New("recommendation service is shut down")

// RecommendationService runs the enabled recommenders of a project as
// cancellable background tasks and publishes each run as a new generation.
type RecommendationService struct {
	cache        *PredictionCache
	store        driven.AnnotationStore
	recommenders driven.RecommenderStore
	engines      driven.EngineFactory
	contexts     driven.ContextStore
	learning     driven.LearningRecordStore
	runs         driven.TrainingRunStore
	workers      int

	mu       sync.Mutex
	closed   bool
	tasks    map[domain.PredictionKey]*runTask
	lastRuns map[domain.PredictionKey]domain.TrainingRun
	wg       sync.WaitGroup
}

type runTask struct {
	handle  *GenerationHandle
	retrain bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RecommendationOption configures a RecommendationService.
type RecommendationOption func(*RecommendationService)

// WithLearningRecords hides suggestions the user rejected before.
func WithLearningRecords(store driven.LearningRecordStore) RecommendationOption {
	return func(s *RecommendationService) { s.learning = store }
}

// WithRunHistory persists a TrainingRun for every background run.
func WithRunHistory(store driven.TrainingRunStore) RecommendationOption {
	return func(s *RecommendationService) { s.runs = store }
}

// WithWorkers sets the number of documents predicted in parallel.
func WithWorkers(n int) RecommendationOption {
	return func(s *RecommendationService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewRecommendationService creates a new recommendation service.
func NewRecommendationService(
	cache *PredictionCache,
	store driven.AnnotationStore,
	recommenders driven.RecommenderStore,
	engines driven.EngineFactory,
	contexts driven.ContextStore,
	opts ...RecommendationOption,
) *RecommendationService {
	s := &RecommendationService{
		cache:        cache,
		store:        store,
		recommenders: recommenders,
		engines:      engines,
		contexts:     contexts,
		workers:      DefaultPredictionWorkers,
		tasks:        make(map[domain.PredictionKey]*runTask),
		lastRuns:     make(map[domain.PredictionKey]domain.TrainingRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts a background run for key and returns the generation it will
// produce. Only one run per key may be in flight.
func (s *RecommendationService) Trigger(ctx context.Context, key domain.PredictionKey) (uint64, error) {
	return s.start(ctx, key, false)
}

// Retrain starts a run that trains every recommender afresh instead of
// reusing its trained context. Cached contexts are left alone when the run
// cannot start.
func (s *RecommendationService) Retrain(ctx context.Context, key domain.PredictionKey) (uint64, error) {
	return s.start(ctx, key, true)
}

func (s *RecommendationService) start(ctx context.Context, key domain.PredictionKey, retrain bool) (uint64, error) {
	if s.store == nil || s.recommenders == nil || s.engines == nil || s.contexts == nil {
		return 0, domain.ErrNotImplemented
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrServiceClosed
	}

	handle, err := s.cache.BeginGeneration(key)
	if err != nil {
		return 0, err
	}

	// The run outlives the triggering request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &runTask{handle: handle, retrain: retrain, cancel: cancel, done: make(chan struct{})}
	s.tasks[key] = task

	s.wg.Add(1)
	go s.run(runCtx, task)

	logger.Debug("Started generation %d for %s", handle.Generation, key)
	return handle.Generation, nil
}

// Wait blocks until the run in flight for key, if any, has finished.
func (s *RecommendationService) Wait(ctx context.Context, key domain.PredictionKey) error {
	s.mu.Lock()
	task, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the run status of a key.
func (s *RecommendationService) Status(ctx context.Context, key domain.PredictionKey) (*driving.RunStatus, error) {
	status := &driving.RunStatus{
		Key:              key,
		ActiveGeneration: s.cache.GetActive(key).Generation,
	}

	s.mu.Lock()
	_, status.Running = s.tasks[key]
	if last, ok := s.lastRuns[key]; ok {
		run := last
		status.LastRun = &run
	}
	s.mu.Unlock()

	if status.LastRun == nil && s.runs != nil {
		runs, err := s.runs.ListRuns(ctx, key, 1)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if len(runs) > 0 {
			status.LastRun = &runs[0]
		}
	}
	return status, nil
}

// CancelSession cancels the runs of a session owner and drops their predictions.
func (s *RecommendationService) CancelSession(sessionOwner string) {
	s.cancelWhere(func(k domain.PredictionKey) bool { return k.SessionOwner == sessionOwner })
	dropped := s.cache.InvalidateSession(sessionOwner)
	logger.Debug("Closed session %s (%d prediction sets dropped)", sessionOwner, len(dropped))
}

// InvalidateProject cancels the runs of a project and drops its predictions,
// e.g. after documents or layers changed.
func (s *RecommendationService) InvalidateProject(projectID string) {
	s.cancelWhere(func(k domain.PredictionKey) bool { return k.ProjectID == projectID })
	dropped := s.cache.InvalidateProject(projectID)
	logger.Debug("Invalidated project %s (%d prediction sets dropped)", projectID, len(dropped))
}

// Shutdown cancels all runs and waits for them to finish.
func (s *RecommendationService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for _, task := range s.tasks {
		task.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *RecommendationService) cancelWhere(match func(domain.PredictionKey) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, task := range s.tasks {
		if match(key) {
			task.cancel()
		}
	}
}

// run computes one generation and commits it.
func (s *RecommendationService) run(ctx context.Context, task *runTask) {
	defer s.wg.Done()
	defer close(task.done)
	defer task.cancel()

	handle := task.handle
	record := domain.TrainingRun{
		ID:         uuid.NewString(),
		Key:        handle.Key,
		Generation: handle.Generation,
		StartedAt:  time.Now(),
	}

	preds, errs := s.generate(ctx, task, &record)
	for _, err := range errs {
		record.Errors = append(record.Errors, err.Error())
	}

	switch {
	case ctx.Err() != nil:
		s.cache.Abort(handle)
		logger.Debug("Generation %d for %s cancelled", handle.Generation, handle.Key)
	case preds == nil:
		s.cache.Abort(handle)
	default:
		if err := s.cache.CommitGeneration(handle, preds); err != nil {
			record.Errors = append(record.Errors, err.Error())
		} else {
			record.Committed = true
		}
	}
	record.EndedAt = time.Now()

	s.mu.Lock()
	if s.tasks[handle.Key] == task {
		delete(s.tasks, handle.Key)
	}
	s.lastRuns[handle.Key] = record
	s.mu.Unlock()

	if s.runs != nil {
		// The run context may be cancelled; history is still worth keeping.
		if err := s.runs.SaveRun(context.WithoutCancel(ctx), &record); err != nil {
			logger.Warn("Failed to save run %s: %v", record.ID, err)
		}
	}

	logger.Info("Generation %d for %s: %d suggestions, committed=%t, %d errors",
		handle.Generation, handle.Key, record.Suggestions, record.Committed, len(record.Errors))
}

// generate trains and runs every enabled recommender of the key's project.
// A failing recommender is recorded and skipped. A nil result means nothing
// should be committed.
func (s *RecommendationService) generate(
	ctx context.Context,
	task *runTask,
	record *domain.TrainingRun,
) (*domain.Predictions, []error) {
	handle := task.handle
	key := handle.Key
	recs, err := s.recommenders.List(ctx, key.ProjectID)
	if err != nil {
		return nil, []error{fmt.Errorf("list recommenders: %w", err)}
	}

	var errs []error
	builder := domain.NewPredictionsBuilder(key)
	filter := newVisibilityFilter()

	for _, rec := range recs {
		if !rec.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, append(errs, err)
		}
		if err := s.runRecommender(ctx, key, rec, task.retrain, builder, filter); err != nil {
			logger.Warnw("Recommender failed", "recommender", rec.ID, "key", key.String(), "error", err)
			errs = append(errs, fmt.Errorf("recommender %s: %w", rec.ID, err))
		}
	}

	if err := s.loadRejections(ctx, key, builder, filter); err != nil {
		logger.Warn("Failed to load learning records for %s: %v", key, err)
		errs = append(errs, err)
	}

	preds := builder.Build(handle.Generation, filter.hide)
	record.Suggestions = preds.Size()
	return preds, errs
}

func (s *RecommendationService) runRecommender(
	ctx context.Context,
	key domain.PredictionKey,
	rec domain.Recommender,
	retrain bool,
	builder *domain.PredictionsBuilder,
	filter *visibilityFilter,
) error {
	engine, err := s.engines.Engine(rec)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	corpus, err := loadCorpus(ctx, s.store, rec, key.DataOwner)
	if err != nil {
		return err
	}
	filter.addConfirmed(rec, corpus)

	// A context trained on an older corpus misses new gold data.
	version := domain.CorpusVersion(corpus)
	rctx, ok := s.contexts.Get(rec.ID, key.DataOwner)
	if retrain || !ok || !rctx.ReadyForPrediction() || rctx.CorpusVersion != version {
		if ok && !retrain && rctx.CorpusVersion != version {
			logger.Debug("Corpus of %s changed for %s, retraining", rec.ID, key.DataOwner)
		}
		rctx = domain.NewRecommenderContext(rec.ID, key.DataOwner)
		rctx.CorpusVersion = version
		if err := engine.Train(ctx, rctx, corpus); err != nil {
			return fmt.Errorf("train: %w", err)
		}
		rctx.Close()
		s.contexts.Put(rctx)
	}

	results := make([][]domain.Prediction, len(corpus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range corpus {
		g.Go(func() error {
			preds, err := engine.Predict(gctx, rctx, corpus[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warnw("Prediction failed", "recommender", rec.ID,
					"document", corpus[i].Document.Name, "error", err)
				return nil
			}
			results[i] = preds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, preds := range results {
		for _, p := range preds {
			if err := builder.Add(&rec, p); err != nil {
				return fmt.Errorf("add prediction: %w", err)
			}
		}
	}
	return nil
}

func (s *RecommendationService) loadRejections(
	ctx context.Context,
	key domain.PredictionKey,
	builder *domain.PredictionsBuilder,
	filter *visibilityFilter,
) error {
	if s.learning == nil || builder.Len() == 0 {
		return nil
	}
	for _, doc := range filter.documents() {
		records, err := s.learning.List(ctx, key.DataOwner, key.ProjectID, doc)
		if err != nil {
			return fmt.Errorf("list learning records: %w", err)
		}
		for _, r := range records {
			if r.Action == domain.ActionReject {
				filter.addRejected(r)
			}
		}
	}
	return nil
}

// visibilityFilter hides suggestions that are already annotated or were
// rejected before.
type visibilityFilter struct {
	confirmed map[confirmedKey]bool
	rejected  map[string][]domain.LearningRecord
	docs      map[string]bool
}

type confirmedKey struct {
	position domain.Position
	label    string
}

func newVisibilityFilter() *visibilityFilter {
	return &visibilityFilter{
		confirmed: make(map[confirmedKey]bool),
		rejected:  make(map[string][]domain.LearningRecord),
		docs:      make(map[string]bool),
	}
}

func (f *visibilityFilter) addConfirmed(rec domain.Recommender, corpus []domain.AnnotatedDocument) {
	for _, doc := range corpus {
		f.docs[doc.Document.Name] = true
		spans := spansByRef(doc.Annotations)
		for _, a := range doc.Annotations {
			if a.LayerID != rec.LayerID {
				continue
			}
			label, _ := a.Feature(rec.Feature)
			pos := domain.Position{
				Kind:     domain.KindSpan,
				Document: doc.Document.Name,
				LayerID:  rec.LayerID,
				Feature:  rec.Feature,
				First:    a.Span,
			}
			if a.Source != "" {
				source, okSource := spans[a.Source]
				target, okTarget := spans[a.Target]
				if !okSource || !okTarget {
					continue
				}
				pos.Kind, pos.First, pos.Second = domain.KindRelation, source, target
			}
			f.confirmed[confirmedKey{position: pos, label: label}] = true
		}
	}
}

func (f *visibilityFilter) addRejected(r domain.LearningRecord) {
	f.rejected[r.Document] = append(f.rejected[r.Document], r)
}

func (f *visibilityFilter) documents() []string {
	docs := make([]string, 0, len(f.docs))
	for d := range f.docs {
		docs = append(docs, d)
	}
	return docs
}

func (f *visibilityFilter) hide(s *domain.Suggestion) domain.HideReason {
	var reasons domain.HideReason
	if f.confirmed[confirmedKey{position: s.Position(), label: s.Label}] {
		reasons |= domain.HiddenOverlap
	}
	for i := range f.rejected[s.Document] {
		if f.rejected[s.Document][i].Matches(s) {
			reasons |= domain.HiddenRejected
			break
		}
	}
	return reasons
}
