package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure LearningRecordStore implements the interface.
var _ driven.LearningRecordStore = (*LearningRecordStore)(nil)

// LearningRecordStore is an in-memory implementation of driven.LearningRecordStore.
type LearningRecordStore struct {
	mu      sync.RWMutex
	records []domain.LearningRecord
}

// NewLearningRecordStore creates a new in-memory learning record store.
func NewLearningRecordStore() *LearningRecordStore {
	return &LearningRecordStore{}
}

// Record appends a learning record.
func (s *LearningRecordStore) Record(_ context.Context, record domain.LearningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// List returns a user's records for a document, oldest first.
func (s *LearningRecordStore) List(_ context.Context, user, projectID, doc string) ([]domain.LearningRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.LearningRecord, 0)
	for _, r := range s.records {
		if r.User == user && r.ProjectID == projectID && r.Document == doc {
			result = append(result, r)
		}
	}
	return result, nil
}
