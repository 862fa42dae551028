package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure the record stores implement their interfaces.
var (
	_ driven.RecommenderStore    = (*recommenderStore)(nil)
	_ driven.LearningRecordStore = (*learningRecordStore)(nil)
	_ driven.TrainingRunStore    = (*trainingRunStore)(nil)
)

// ==================== Recommenders ====================

// recommenderStore implements driven.RecommenderStore.
type recommenderStore struct {
	store *Store
}

const recommenderColumns = `id, project_id, name, layer_id, feature, tool, traits,
	enabled, threshold, attach_layer_id, max_recommendations`

// Save stores or updates a recommender.
func (s *recommenderStore) Save(ctx context.Context, rec domain.Recommender) error {
	if rec.ID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO recommenders (`+recommenderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			layer_id = excluded.layer_id,
			feature = excluded.feature,
			tool = excluded.tool,
			traits = excluded.traits,
			enabled = excluded.enabled,
			threshold = excluded.threshold,
			attach_layer_id = excluded.attach_layer_id,
			max_recommendations = excluded.max_recommendations
	`, rec.ID, rec.ProjectID, rec.Name, rec.LayerID, rec.Feature, rec.Tool, rec.Traits,
		boolToInt(rec.Enabled), rec.Threshold, rec.AttachLayerID, rec.MaxRecommendations)
	if err != nil {
		return fmt.Errorf("saving recommender: %w", err)
	}
	return nil
}

// Get retrieves a recommender by ID.
func (s *recommenderStore) Get(ctx context.Context, id string) (*domain.Recommender, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+recommenderColumns+" FROM recommenders WHERE id = ?", id)
	rec, err := scanRecommender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recommender: %w", err)
	}
	return rec, nil
}

// List returns the recommenders of a project, sorted by ID.
func (s *recommenderStore) List(ctx context.Context, projectID string) ([]domain.Recommender, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+recommenderColumns+" FROM recommenders WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, fmt.Errorf("querying recommenders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Recommender, 0)
	for rows.Next() {
		rec, err := scanRecommender(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recommender: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recommenders: %w", err)
	}
	return result, nil
}

func scanRecommender(row scanner) (*domain.Recommender, error) {
	var rec domain.Recommender
	var enabled int
	if err := row.Scan(&rec.ID, &rec.ProjectID, &rec.Name, &rec.LayerID, &rec.Feature,
		&rec.Tool, &rec.Traits, &enabled, &rec.Threshold, &rec.AttachLayerID,
		&rec.MaxRecommendations); err != nil {
		return nil, err
	}
	rec.Enabled = enabled == 1
	return &rec, nil
}

// ==================== Learning records ====================

// learningRecordStore implements driven.LearningRecordStore.
type learningRecordStore struct {
	store *Store
}

// Record appends a learning record.
func (s *learningRecordStore) Record(ctx context.Context, r domain.LearningRecord) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO learning_records (user_id, project_id, document, layer_id, feature, kind,
			span_begin, span_end, target_begin, target_end, label, action, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.User, r.ProjectID, r.Document, r.LayerID, r.Feature, int(r.Kind),
		r.Span.Begin, r.Span.End, r.Target.Begin, r.Target.End,
		r.Label, string(r.Action), nullString(r.Reason), r.OccurredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording learning record: %w", err)
	}
	return nil
}

// List returns a user's records for a document, oldest first.
func (s *learningRecordStore) List(ctx context.Context, user, projectID, doc string) ([]domain.LearningRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT layer_id, feature, kind, span_begin, span_end, target_begin, target_end,
			label, action, reason, occurred_at
		FROM learning_records
		WHERE user_id = ? AND project_id = ? AND document = ?
		ORDER BY id
	`, user, projectID, doc)
	if err != nil {
		return nil, fmt.Errorf("querying learning records: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LearningRecord, 0)
	for rows.Next() {
		r := domain.LearningRecord{User: user, ProjectID: projectID, Document: doc}
		var kind int
		var action string
		var reason sql.NullString
		var occurredAt int64
		if err := rows.Scan(&r.LayerID, &r.Feature, &kind, &r.Span.Begin, &r.Span.End,
			&r.Target.Begin, &r.Target.End, &r.Label, &action, &reason, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning learning record: %w", err)
		}
		r.Kind = domain.SuggestionKind(kind)
		r.Action = domain.Action(action)
		r.Reason = reason.String
		r.OccurredAt = time.Unix(0, occurredAt)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learning records: %w", err)
	}
	return result, nil
}

// ==================== Training runs ====================

// trainingRunStore implements driven.TrainingRunStore.
type trainingRunStore struct {
	store *Store
}

const runColumns = `id, session_owner, data_owner, project_id, generation,
	started_at, ended_at, suggestions, committed, errors`

// SaveRun stores or updates a run.
func (s *trainingRunStore) SaveRun(ctx context.Context, run *domain.TrainingRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}

	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshalling run errors: %w", err)
	}

	var endedAt any
	if !run.EndedAt.IsZero() {
		endedAt = run.EndedAt.UnixNano()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO training_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			suggestions = excluded.suggestions,
			committed = excluded.committed,
			errors = excluded.errors
	`, run.ID, run.Key.SessionOwner, run.Key.DataOwner, run.Key.ProjectID, int64(run.Generation),
		run.StartedAt.UnixNano(), endedAt, run.Suggestions, boolToInt(run.Committed), string(encoded))
	if err != nil {
		return fmt.Errorf("saving training run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *trainingRunStore) GetRun(ctx context.Context, id string) (*domain.TrainingRun, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM training_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs for a key, newest first.
// A limit of zero or less returns every run.
func (s *trainingRunStore) ListRuns(ctx context.Context, key domain.PredictionKey, limit int) ([]domain.TrainingRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM training_runs
		WHERE session_owner = ? AND data_owner = ? AND project_id = ?
		ORDER BY started_at DESC, generation DESC
		LIMIT ?
	`, key.SessionOwner, key.DataOwner, key.ProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying training runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TrainingRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating training runs: %w", err)
	}
	return result, nil
}

func scanRun(row scanner) (*domain.TrainingRun, error) {
	var run domain.TrainingRun
	var generation, startedAt int64
	var endedAt sql.NullInt64
	var committed int
	var errs string
	if err := row.Scan(&run.ID, &run.Key.SessionOwner, &run.Key.DataOwner, &run.Key.ProjectID,
		&generation, &startedAt, &endedAt, &run.Suggestions, &committed, &errs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning training run: %w", err)
	}
	run.Generation = uint64(generation)
	run.StartedAt = time.Unix(0, startedAt)
	if endedAt.Valid {
		run.EndedAt = time.Unix(0, endedAt.Int64)
	}
	run.Committed = committed == 1
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("unmarshaling run errors: %w", err)
	}
	if len(run.Errors) == 0 {
		run.Errors = nil
	}
	return &run, nil
}
