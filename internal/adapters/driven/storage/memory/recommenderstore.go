package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure RecommenderStore implements the interface.
var _ driven.RecommenderStore = (*RecommenderStore)(nil)

// RecommenderStore is an in-memory implementation of driven.RecommenderStore.
type RecommenderStore struct {
	mu           sync.RWMutex
	recommenders map[string]domain.Recommender
}

// NewRecommenderStore creates a new in-memory recommender store.
func NewRecommenderStore() *RecommenderStore {
	return &RecommenderStore{
		recommenders: make(map[string]domain.Recommender),
	}
}

// Save stores or updates a recommender.
func (s *RecommenderStore) Save(_ context.Context, rec domain.Recommender) error {
	if rec.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommenders[rec.ID] = rec
	return nil
}

// Get retrieves a recommender by ID.
func (s *RecommenderStore) Get(_ context.Context, id string) (*domain.Recommender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recommenders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// List returns the recommenders of a project, sorted by ID.
func (s *RecommenderStore) List(_ context.Context, projectID string) ([]domain.Recommender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Recommender, 0)
	for _, rec := range s.recommenders {
		if rec.ProjectID == projectID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
