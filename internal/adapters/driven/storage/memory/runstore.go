package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure TrainingRunStore implements the interface.
var _ driven.TrainingRunStore = (*TrainingRunStore)(nil)

// TrainingRunStore is an in-memory implementation of driven.TrainingRunStore.
type TrainingRunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.TrainingRun
}

// NewTrainingRunStore creates a new in-memory training run store.
func NewTrainingRunStore() *TrainingRunStore {
	return &TrainingRunStore{
		runs: make(map[string]domain.TrainingRun),
	}
}

// SaveRun stores or updates a run.
func (s *TrainingRunStore) SaveRun(_ context.Context, run *domain.TrainingRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *run
	stored.Errors = slices.Clone(run.Errors)
	s.runs[run.ID] = stored
	return nil
}

// GetRun retrieves a run by ID.
func (s *TrainingRunStore) GetRun(_ context.Context, id string) (*domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// ListRuns returns the most recent runs for a key, newest first.
func (s *TrainingRunStore) ListRuns(_ context.Context, key domain.PredictionKey, limit int) ([]domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.TrainingRun, 0)
	for _, run := range s.runs {
		if run.Key == key {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].Generation > result[j].Generation
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
