package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

func TestRecommenderStore(t *testing.T) {
	store := NewRecommenderStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Recommender{ID: "b", ProjectID: "p1", Name: "B"}))
	require.NoError(t, store.Save(ctx, domain.Recommender{ID: "a", ProjectID: "p1", Name: "A"}))
	require.NoError(t, store.Save(ctx, domain.Recommender{ID: "c", ProjectID: "p2", Name: "C"}))
	assert.ErrorIs(t, store.Save(ctx, domain.Recommender{}), domain.ErrInvalidInput)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Name)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	recs, err := store.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
}

func TestLearningRecordStore(t *testing.T) {
	store := NewLearningRecordStore()
	ctx := context.Background()

	first := domain.LearningRecord{User: "alice", ProjectID: "p1", Document: "a.txt", Label: "PER", Action: domain.ActionReject}
	second := domain.LearningRecord{User: "alice", ProjectID: "p1", Document: "a.txt", Label: "LOC", Action: domain.ActionAccept}
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))
	require.NoError(t, store.Record(ctx, domain.LearningRecord{User: "bob", ProjectID: "p1", Document: "a.txt"}))

	records, err := store.List(ctx, "alice", "p1", "a.txt")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "PER", records[0].Label)
	assert.Equal(t, "LOC", records[1].Label)

	records, err = store.List(ctx, "alice", "p1", "b.txt")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTrainingRunStore(t *testing.T) {
	store := NewTrainingRunStore()
	ctx := context.Background()
	key := domain.PredictionKey{SessionOwner: "alice", DataOwner: "alice", ProjectID: "p1"}
	base := time.Now()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.SaveRun(ctx, &domain.TrainingRun{
			ID:         string(rune('a' + i)),
			Key:        key,
			Generation: uint64(i),
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			Errors:     []string{"boom"},
		}))
	}
	assert.ErrorIs(t, store.SaveRun(ctx, &domain.TrainingRun{}), domain.ErrInvalidInput)

	runs, err := store.ListRuns(ctx, key, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, uint64(3), runs[0].Generation)
	assert.Equal(t, uint64(2), runs[1].Generation)

	run, err := store.GetRun(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), run.Generation)
	assert.Equal(t, []string{"boom"}, run.Errors)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
