package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// schedulerHistory is the number of results kept per task.
const schedulerHistory = 100

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs the periodic maintenance tasks of the engine: refreshing
// the predictions of every cached key and pushing corpora to the datasets of
// external recommenders. It has no external control API.
type Scheduler struct {
	config         domain.SchedulerConfig
	store          driven.SchedulerStore
	cache          *PredictionCache
	recommenders   driven.RecommenderStore
	recommendation driving.RecommendationService
	datasets       driving.DatasetSyncService
	tick           time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. The recommendation and dataset services
// are optional; a task whose service is missing does nothing.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	cache *PredictionCache,
	recommenders driven.RecommenderStore,
	recommendation driving.RecommendationService,
	datasets driving.DatasetSyncService,
) *Scheduler {
	return &Scheduler{
		config:         config,
		store:          store,
		cache:          cache,
		recommenders:   recommenders,
		recommendation: recommendation,
		datasets:       datasets,
		tick:           time.Minute,
	}
}

// Start begins the scheduler loop. It blocks until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled || s.store == nil {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}
	return s.run(ctx, stopCh)
}

// Stop shuts the loop down and waits for running tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Tasks lists the persisted tasks.
func (s *Scheduler) Tasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	if s.store == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.store.ListTasks(ctx)
}

// History returns the most recent results of a task, newest first.
func (s *Scheduler) History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if s.store == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.store.GetTaskHistory(ctx, taskID, limit)
}

func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct {
		id   string
		name string
	}{
		{domain.TaskIDPredictionRefresh, "Prediction Refresh"},
		{domain.TaskIDDatasetSync, "Dataset Sync"},
	}
	var errs []error
	for _, t := range tasks {
		cfg := s.config.GetTaskConfig(t.id)
		if err := s.ensureTask(ctx, t.id, t.name, cfg); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.id, err))
		}
	}
	return errors.Join(errs...)
}

// ensureTask creates or updates a task from its configuration.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		if !cfg.Enabled {
			return nil
		}
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else if task.Interval != cfg.Interval {
		task.Interval = cfg.Interval
		task.NextRun = time.Now().Add(cfg.Interval)
	}
	task.Enabled = cfg.Enabled && cfg.Interval > 0

	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every enabled task whose next run has passed.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.runTask(ctx, tasks[i])
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDPredictionRefresh:
			result.ItemsProcessed, err = s.refreshPredictions(ctx)
		case domain.TaskIDDatasetSync:
			result.ItemsProcessed, err = s.syncDatasets(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, &task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(ctx, schedulerHistory); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// refreshPredictions triggers a run for every cached key. Keys with a run in
// flight are skipped.
func (s *Scheduler) refreshPredictions(ctx context.Context) (int, error) {
	if s.recommendation == nil || s.cache == nil {
		return 0, nil
	}

	var errs []error
	triggered := 0
	for _, key := range s.cache.Keys() {
		_, err := s.recommendation.Trigger(ctx, key)
		switch {
		case err == nil:
			triggered++
		case errors.Is(err, domain.ErrGenerationInProgress):
			logger.Debug("scheduler: %s already running", key)
		default:
			errs = append(errs, fmt.Errorf("trigger %s: %w", key, err))
		}
	}
	return triggered, errors.Join(errs...)
}

// syncDatasets synchronises the external recommenders of every project and
// data owner with cached predictions.
func (s *Scheduler) syncDatasets(ctx context.Context) (int, error) {
	if s.datasets == nil || s.recommenders == nil || s.cache == nil {
		return 0, nil
	}

	type target struct{ projectID, user string }
	seen := make(map[target]bool)
	var errs []error
	synced := 0

	for _, key := range s.cache.Keys() {
		t := target{key.ProjectID, key.DataOwner}
		if seen[t] {
			continue
		}
		seen[t] = true

		recs, err := s.recommenders.List(ctx, t.projectID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list recommenders of %s: %w", t.projectID, err))
			continue
		}
		for _, rec := range recs {
			if !rec.Enabled || rec.Tool != ToolExternal {
				continue
			}
			if _, err := s.datasets.SyncRecommender(ctx, rec.ID, t.user); err != nil {
				errs = append(errs, fmt.Errorf("sync %s for %s: %w", rec.ID, t.user, err))
				continue
			}
			synced++
		}
	}
	return synced, errors.Join(errs...)
}
