package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// ==================== Evaluate ====================

func learningCurve() []domain.EvaluationResult {
	metrics := func(v float64) map[string]float64 {
		return map[string]float64{
			domain.MetricAccuracy: v, domain.MetricPrecision: v,
			domain.MetricRecall: v, domain.MetricF1: v,
		}
	}
	return []domain.EvaluationResult{
		{Step: 1, TrainSize: 4, TestSize: 2, Metrics: metrics(0.5)},
		{Step: 2, TrainSize: 8, TestSize: 2, Metrics: metrics(0.75)},
	}
}

func TestEvaluateCmd(t *testing.T) {
	corpus := &mockCorpusService{}
	eval := &mockEvaluationService{results: learningCurve()}
	withServices(t, &Services{Corpus: corpus, Evaluation: eval})

	out, err := runCommand(t, "evaluate", "ner", "-u", "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", corpus.lastUser)
	assert.Equal(t, domain.DefaultSplitterConfig(), eval.lastConfig)
	assert.Contains(t, out, "Learning curve for ner")
	assert.Contains(t, out, "0.500")
	assert.Contains(t, out, "0.750")
}

func TestEvaluateCmd_Config(t *testing.T) {
	settings := domain.DefaultAppSettings()
	settings.Evaluation.TrainRatio = 0.6

	eval := &mockEvaluationService{results: learningCurve()}
	withServices(t, &Services{
		Settings:   &mockSettingsService{settings: &settings},
		Corpus:     &mockCorpusService{},
		Evaluation: eval,
	})

	_, err := runCommand(t, "evaluate", "ner", "-u", "alice", "--step", "5", "--min-samples", "3")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, eval.lastConfig.TrainRatio, 1e-9)
	assert.Equal(t, 5, eval.lastConfig.Step)
	assert.Equal(t, 3, eval.lastConfig.MinSamples)

	_, err = runCommand(t, "evaluate", "ner", "-u", "alice", "--train-ratio", "0.9")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, eval.lastConfig.TrainRatio, 1e-9)
	assert.Equal(t, settings.Evaluation.Step, eval.lastConfig.Step)
}

func TestEvaluateCmd_Skipped(t *testing.T) {
	withServices(t, &Services{
		Corpus: &mockCorpusService{},
		Evaluation: &mockEvaluationService{results: []domain.EvaluationResult{
			{Skipped: true, SkipReason: "not enough samples"},
		}},
	})

	out, err := runCommand(t, "evaluate", "ner", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped ner: not enough samples")
}

func TestEvaluateCmd_JSON(t *testing.T) {
	withServices(t, &Services{
		Corpus:     &mockCorpusService{},
		Evaluation: &mockEvaluationService{results: learningCurve()},
	})

	out, err := runCommand(t, "evaluate", "ner", "-u", "alice", "--json")
	require.NoError(t, err)

	var results []domain.EvaluationResult
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &results))
	assert.Equal(t, learningCurve(), results)
}

func TestEvaluateCmd_Errors(t *testing.T) {
	tests := []struct {
		name     string
		services *Services
		wantErr  string
	}{
		{
			name:     "no corpus service",
			services: &Services{Evaluation: &mockEvaluationService{}},
			wantErr:  "corpus service not configured",
		},
		{
			name:     "no evaluation service",
			services: &Services{Corpus: &mockCorpusService{}},
			wantErr:  "evaluation service not configured",
		},
		{
			name:     "unknown recommender",
			services: &Services{Corpus: &mockCorpusService{err: domain.ErrNotFound}, Evaluation: &mockEvaluationService{}},
			wantErr:  "loading corpus",
		},
		{
			name: "engine fails mid curve",
			services: &Services{
				Corpus:     &mockCorpusService{},
				Evaluation: &mockEvaluationService{results: learningCurve(), err: domain.ErrEngineUnavailable},
			},
			wantErr: "evaluation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withServices(t, tt.services)
			_, err := runCommand(t, "evaluate", "ner", "-u", "alice")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ==================== Sync ====================

func TestSyncCmd(t *testing.T) {
	sync := &mockSyncService{report: domain.SyncReport{
		Dataset: "p1_ner_alice", Uploaded: 2, Deleted: 1, Unchanged: 3,
	}}
	withServices(t, &Services{Sync: sync})

	out, err := runCommand(t, "sync", "ner", "-u", "curator", "--owner", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ner", sync.lastRecommender)
	assert.Equal(t, "alice", sync.lastUser)
	assert.Contains(t, out, "Dataset p1_ner_alice: 2 uploaded, 1 deleted, 3 unchanged")
	assert.Contains(t, out, "synchronised successfully")
}

func TestSyncCmd_Failures(t *testing.T) {
	withServices(t, &Services{Sync: &mockSyncService{report: domain.SyncReport{
		Dataset: "p1_ner_alice", Uploaded: 1, Failed: []string{"doc2"},
	}}})

	out, err := runCommand(t, "sync", "ner", "-u", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed for 1 documents")
	assert.Contains(t, out, "failed: doc2")
}

func TestSyncCmd_Errors(t *testing.T) {
	withServices(t, &Services{})
	_, err := runCommand(t, "sync", "ner", "-u", "alice")
	assert.EqualError(t, err, "sync service not configured")

	withServices(t, &Services{Sync: &mockSyncService{err: domain.ErrEngineUnavailable}})
	_, err = runCommand(t, "sync", "ner", "-u", "alice")
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)

	_, err = runCommand(t, "sync", "-u", "alice")
	assert.Error(t, err)
}

func TestClassifiersCmd(t *testing.T) {
	sync := &mockSyncService{classifiers: []domain.ClassifierInfo{
		{Name: "spacy_ner", Status: "ready", Model: "en_core_web_sm", Trainable: true},
		{Name: "regex", Status: "ready"},
	}}
	withServices(t, &Services{Sync: sync})

	out, err := runCommand(t, "classifiers", "ner")
	require.NoError(t, err)
	assert.Equal(t, "ner", sync.lastRecommender)
	assert.Contains(t, out, "spacy_ner")
	assert.Contains(t, out, "en_core_web_sm trainable")
	assert.Contains(t, out, "regex")

	withServices(t, &Services{Sync: &mockSyncService{}})
	out, err = runCommand(t, "classifiers", "ner")
	require.NoError(t, err)
	assert.Contains(t, out, "No classifiers found.")
}

// ==================== Corpus ====================

func TestImportCmd(t *testing.T) {
	corpus := &mockCorpusService{report: &driving.ImportReport{
		Imported: 3, Unchanged: 1, Removed: 2, Annotations: 7,
	}}
	withServices(t, &Services{Corpus: corpus})

	out, err := runCommand(t, "import", "/data/docs", "-u", "alice", "-p", "p1", "--prune")
	require.NoError(t, err)
	assert.Equal(t, "/data/docs", corpus.lastDir)
	assert.Equal(t, driving.ImportOptions{ProjectID: "p1", User: "alice", Prune: true}, corpus.lastOptions)
	assert.Contains(t, out, "Imported 3 documents (1 unchanged, 2 removed, 7 annotations)")
}

func TestImportCmd_OwnerAndForce(t *testing.T) {
	corpus := &mockCorpusService{report: &driving.ImportReport{}}
	withServices(t, &Services{Corpus: corpus})

	_, err := runCommand(t, "import", "docs", "-u", "curator", "--owner", "alice", "-p", "p1", "--force")
	require.NoError(t, err)
	assert.Equal(t, "alice", corpus.lastOptions.User)
	assert.True(t, corpus.lastOptions.Force)
	assert.False(t, corpus.lastOptions.Prune)
}

func TestImportCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		corpus  *mockCorpusService
		args    []string
		wantErr string
	}{
		{
			name:    "missing project",
			corpus:  &mockCorpusService{},
			args:    []string{"import", "docs"},
			wantErr: "--project is required",
		},
		{
			name:    "import fails",
			corpus:  &mockCorpusService{err: errors.New("permission denied")},
			args:    []string{"import", "docs", "-p", "p1"},
			wantErr: "import failed: permission denied",
		},
		{
			name:    "failed files",
			corpus:  &mockCorpusService{report: &driving.ImportReport{Imported: 1, Failed: []string{"bad.txt"}}},
			args:    []string{"import", "docs", "-p", "p1"},
			wantErr: "import failed for 1 files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withServices(t, &Services{Corpus: tt.corpus})
			_, err := runCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	withServices(t, &Services{})
	_, err := runCommand(t, "import", "docs", "-p", "p1")
	assert.EqualError(t, err, "corpus service not configured")
}

func TestDocumentsCmd(t *testing.T) {
	withServices(t, &Services{Corpus: &mockCorpusService{
		documents: []domain.Document{
			{Name: "a/one.txt", UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
			{Name: "two.txt"},
		},
		texts: map[string]string{"two.txt": "Second document."},
	}})

	out, err := runCommand(t, "documents", "-p", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "a/one.txt")
	assert.Contains(t, out, "two.txt")
	assert.Contains(t, out, "2026-03-01")

	out, err = runCommand(t, "documents", "show", "two.txt", "-p", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Second document.\n", out)

	_, err = runCommand(t, "documents", "show", "missing.txt", "-p", "p1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = runCommand(t, "documents")
	assert.EqualError(t, err, "--project is required")
}

func TestDocumentsCmd_Empty(t *testing.T) {
	withServices(t, &Services{Corpus: &mockCorpusService{}})

	out, err := runCommand(t, "documents", "-p", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")
}

// ==================== Tasks ====================

func TestTasksCmd(t *testing.T) {
	now := time.Now()
	withServices(t, &Services{Scheduler: &mockScheduler{tasks: []domain.ScheduledTask{
		{
			ID: domain.TaskIDDatasetSync, Interval: time.Hour, Enabled: true,
			LastRun: now, NextRun: now.Add(time.Hour), LastError: "listing dataset: 503",
		},
		{ID: domain.TaskIDPredictionRefresh, Interval: 10 * time.Minute},
	}}})

	out, err := runCommand(t, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "dataset-sync")
	assert.Contains(t, out, "every 1h0m0s")
	assert.Contains(t, out, "last error: listing dataset: 503")
	assert.Contains(t, out, "prediction-refresh")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "last run: never")
}

func TestTasksHistoryCmd(t *testing.T) {
	start := time.Now()
	sched := &mockScheduler{history: []domain.TaskResult{
		{TaskID: domain.TaskIDDatasetSync, StartedAt: start, EndedAt: start.Add(2 * time.Second), Success: true, ItemsProcessed: 4},
		{TaskID: domain.TaskIDDatasetSync, StartedAt: start, EndedAt: start, Error: "remote unavailable"},
	}}
	withServices(t, &Services{Scheduler: sched})

	out, err := runCommand(t, "tasks", "history", domain.TaskIDDatasetSync, "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskIDDatasetSync, sched.lastTask)
	assert.Equal(t, 5, sched.lastLimit)
	assert.Contains(t, out, "4 items")
	assert.Contains(t, out, "2s")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "remote unavailable")
}

func TestTasksCmd_Errors(t *testing.T) {
	withServices(t, &Services{})
	_, err := runCommand(t, "tasks")
	assert.EqualError(t, err, "scheduler not configured")
	_, err = runCommand(t, "tasks", "history", "x")
	assert.EqualError(t, err, "scheduler not configured")

	withServices(t, &Services{Scheduler: &mockScheduler{}})
	out, err := runCommand(t, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks have run yet.")

	withServices(t, &Services{Scheduler: &mockScheduler{err: domain.ErrNotImplemented}})
	_, err = runCommand(t, "tasks")
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "never", formatTime(time.Time{}))
	assert.NotEqual(t, "never", formatTime(time.Now()))
}
