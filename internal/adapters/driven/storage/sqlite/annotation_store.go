package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
)

// Ensure AnnotationStore implements the interfaces.
var (
	_ driven.AnnotationStore = (*AnnotationStore)(nil)
	_ driven.CorpusStore     = (*AnnotationStore)(nil)
)

// AnnotationStore implements driven.AnnotationStore and driven.CorpusStore.
type AnnotationStore struct {
	store *Store
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ==================== Corpus ====================

// SaveDocument stores or updates a document including its text.
func (s *AnnotationStore) SaveDocument(ctx context.Context, doc domain.Document) error {
	if doc.ProjectID == "" || doc.Name == "" {
		return domain.ErrInvalidInput
	}

	var updatedAt any
	if !doc.UpdatedAt.IsZero() {
		updatedAt = doc.UpdatedAt.UnixMilli()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (project_id, name, text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at
	`, doc.ProjectID, doc.Name, doc.Text, updatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and its annotations.
func (s *AnnotationStore) DeleteDocument(ctx context.Context, projectID, name string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM documents WHERE project_id = ? AND name = ?", projectID, name)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// EnsureLayer declares a layer in a project.
func (s *AnnotationStore) EnsureLayer(ctx context.Context, projectID, layerID string) error {
	if projectID == "" || layerID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO layers (project_id, layer_id) VALUES (?, ?)", projectID, layerID)
	if err != nil {
		return fmt.Errorf("saving layer: %w", err)
	}
	return nil
}

// RemoveLayer removes a layer and all annotations on it.
func (s *AnnotationStore) RemoveLayer(ctx context.Context, projectID, layerID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM layers WHERE project_id = ? AND layer_id = ?", projectID, layerID)
	if err != nil {
		return fmt.Errorf("removing layer: %w", err)
	}
	return nil
}

// ==================== Reads ====================

// ListDocuments returns the documents of a project without text, sorted by name.
func (s *AnnotationStore) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT name, updated_at FROM documents WHERE project_id = ? ORDER BY name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc := domain.Document{ProjectID: projectID}
		var updatedAt sql.NullInt64
		if err := rows.Scan(&doc.Name, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if updatedAt.Valid {
			doc.UpdatedAt = time.UnixMilli(updatedAt.Int64)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ReadDocumentText returns the text of a document.
func (s *AnnotationStore) ReadDocumentText(ctx context.Context, projectID, doc string) (string, error) {
	return readText(ctx, s.store.db, projectID, doc)
}

// ListConfirmedAnnotations returns a user's annotations on a layer of a
// document, ordered by offset.
func (s *AnnotationStore) ListConfirmedAnnotations(
	ctx context.Context,
	projectID, doc, user, layerID string,
) ([]domain.Annotation, error) {
	if err := checkTarget(ctx, s.store.db, projectID, doc, layerID); err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT ref, span_begin, span_end, source_ref, target_ref, features
		FROM annotations
		WHERE project_id = ? AND document = ? AND user_id = ? AND layer_id = ?
		ORDER BY span_begin, span_end, ref
	`, projectID, doc, user, layerID)
	if err != nil {
		return nil, fmt.Errorf("querying annotations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Annotation, 0)
	for rows.Next() {
		a := domain.Annotation{Document: doc, LayerID: layerID}
		var source, target sql.NullString
		var features string
		if err := rows.Scan(&a.Ref, &a.Span.Begin, &a.Span.End, &source, &target, &features); err != nil {
			return nil, fmt.Errorf("scanning annotation: %w", err)
		}
		a.Source, a.Target = source.String, target.String
		if err := json.Unmarshal([]byte(features), &a.Features); err != nil {
			return nil, fmt.Errorf("unmarshaling features of %s: %w", a.Ref, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating annotations: %w", err)
	}
	return result, nil
}

// AnnotationsChangedAt returns when a user's annotations on a document last changed.
func (s *AnnotationStore) AnnotationsChangedAt(ctx context.Context, projectID, doc, user string) (time.Time, error) {
	var changedAt int64
	err := s.store.db.QueryRowContext(ctx, `
		SELECT changed_at FROM annotation_changes
		WHERE project_id = ? AND document = ? AND user_id = ?
	`, projectID, doc, user).Scan(&changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading annotation change: %w", err)
	}
	return time.UnixMilli(changedAt), nil
}

// ==================== Writes ====================

// CreateAnnotation creates an empty span annotation.
func (s *AnnotationStore) CreateAnnotation(
	ctx context.Context,
	projectID, doc, user, layerID string,
	span domain.Offset,
) (string, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := checkTarget(ctx, tx, projectID, doc, layerID); err != nil {
		return "", err
	}
	text, err := readText(ctx, tx, projectID, doc)
	if err != nil {
		return "", err
	}
	if span.Begin < 0 || span.End > len(text) || span.Begin > span.End {
		return "", fmt.Errorf("%w: span %s outside document %s", domain.ErrInvalidInput, span, doc)
	}

	ref := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotations (ref, project_id, document, user_id, layer_id, span_begin, span_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ref, projectID, doc, user, layerID, span.Begin, span.End)
	if err != nil {
		return "", fmt.Errorf("inserting annotation: %w", err)
	}
	if err := touchAnnotations(ctx, tx, projectID, doc, user); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing annotation: %w", err)
	}
	return ref, nil
}

// CreateRelation creates an empty relation between two annotations.
func (s *AnnotationStore) CreateRelation(
	ctx context.Context,
	projectID, doc, user, layerID, sourceRef, targetRef string,
) (string, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := checkTarget(ctx, tx, projectID, doc, layerID); err != nil {
		return "", err
	}

	var found int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM annotations WHERE ref IN (?, ?)", sourceRef, targetRef,
	).Scan(&found); err != nil {
		return "", fmt.Errorf("checking anchors: %w", err)
	}
	want := 2
	if sourceRef == targetRef {
		want = 1
	}
	if found != want {
		return "", domain.ErrAnchorNotFound
	}

	var begin, end int
	if err := tx.QueryRowContext(ctx,
		"SELECT span_begin, span_end FROM annotations WHERE ref = ?", targetRef,
	).Scan(&begin, &end); err != nil {
		return "", fmt.Errorf("reading target anchor: %w", err)
	}

	ref := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotations
			(ref, project_id, document, user_id, layer_id, span_begin, span_end, source_ref, target_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ref, projectID, doc, user, layerID, begin, end, sourceRef, targetRef)
	if err != nil {
		return "", fmt.Errorf("inserting relation: %w", err)
	}
	if err := touchAnnotations(ctx, tx, projectID, doc, user); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing relation: %w", err)
	}
	return ref, nil
}

// UpdateFeature sets a feature value on an annotation.
func (s *AnnotationStore) UpdateFeature(ctx context.Context, ref, feature, value string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var projectID, doc, user, layerID, raw string
	err = tx.QueryRowContext(ctx,
		"SELECT project_id, document, user_id, layer_id, features FROM annotations WHERE ref = ?", ref,
	).Scan(&projectID, &doc, &user, &layerID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading annotation: %w", err)
	}
	if err := checkTarget(ctx, tx, projectID, doc, layerID); err != nil {
		return err
	}

	features := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return fmt.Errorf("unmarshaling features: %w", err)
	}
	features[feature] = value
	encoded, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshalling features: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE annotations SET features = ? WHERE ref = ?", string(encoded), ref,
	); err != nil {
		return fmt.Errorf("updating features: %w", err)
	}
	if err := touchAnnotations(ctx, tx, projectID, doc, user); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAnnotation removes an annotation. Removing a missing ref is a no-op.
func (s *AnnotationStore) DeleteAnnotation(ctx context.Context, ref string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var projectID, doc, user string
	err = tx.QueryRowContext(ctx,
		"SELECT project_id, document, user_id FROM annotations WHERE ref = ?", ref,
	).Scan(&projectID, &doc, &user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading annotation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM annotations WHERE ref = ?", ref); err != nil {
		return fmt.Errorf("deleting annotation: %w", err)
	}
	if err := touchAnnotations(ctx, tx, projectID, doc, user); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Helper Functions ====================

// touchAnnotations moves the annotation change time of a user on a document
// forward to now, or by one millisecond when now is not later.
func touchAnnotations(ctx context.Context, e execer, projectID, doc, user string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO annotation_changes (project_id, document, user_id, changed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, document, user_id) DO UPDATE SET
			changed_at = MAX(excluded.changed_at, annotation_changes.changed_at + 1)
	`, projectID, doc, user, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("recording annotation change: %w", err)
	}
	return nil
}

func readText(ctx context.Context, q queryer, projectID, doc string) (string, error) {
	var text string
	err := q.QueryRowContext(ctx,
		"SELECT text FROM documents WHERE project_id = ? AND name = ?", projectID, doc,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrDocumentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return text, nil
}

// checkTarget verifies a document and layer exist.
func checkTarget(ctx context.Context, q queryer, projectID, doc, layerID string) error {
	var docs, layers int
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE project_id = ? AND name = ?),
			(SELECT COUNT(*) FROM layers WHERE project_id = ? AND layer_id = ?)
	`, projectID, doc, projectID, layerID).Scan(&docs, &layers)
	if err != nil {
		return fmt.Errorf("checking document and layer: %w", err)
	}
	if docs == 0 {
		return domain.ErrDocumentNotFound
	}
	if layers == 0 {
		return domain.ErrLayerNotFound
	}
	return nil
}
