package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
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

type storedAnnotation struct {
	projectID  string
	user       string
	annotation domain.Annotation
}

type documentKey struct {
	projectID string
	name      string
}

type changeKey struct {
	documentKey
	user string
}

// AnnotationStore is an in-memory implementation of driven.AnnotationStore
// and driven.CorpusStore.
type AnnotationStore struct {
	mu          sync.RWMutex
	documents   map[documentKey]domain.Document
	layers      map[string]map[string]bool
	annotations map[string]storedAnnotation
	changes     map[changeKey]time.Time
}

// NewAnnotationStore creates a new in-memory annotation store.
func NewAnnotationStore() *AnnotationStore {
	return &AnnotationStore{
		documents:   make(map[documentKey]domain.Document),
		layers:      make(map[string]map[string]bool),
		annotations: make(map[string]storedAnnotation),
		changes:     make(map[changeKey]time.Time),
	}
}

// SaveDocument stores or updates a document.
func (s *AnnotationStore) SaveDocument(_ context.Context, doc domain.Document) error {
	if doc.ProjectID == "" || doc.Name == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[documentKey{doc.ProjectID, doc.Name}] = doc
	return nil
}

// DeleteDocument removes a document and its annotations.
func (s *AnnotationStore) DeleteDocument(_ context.Context, projectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, documentKey{projectID, name})
	for key := range s.changes {
		if key.documentKey == (documentKey{projectID, name}) {
			delete(s.changes, key)
		}
	}
	for ref, a := range s.annotations {
		if a.projectID == projectID && a.annotation.Document == name {
			delete(s.annotations, ref)
		}
	}
	return nil
}

// EnsureLayer declares a layer in a project.
func (s *AnnotationStore) EnsureLayer(_ context.Context, projectID, layerID string) error {
	if projectID == "" || layerID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layers[projectID] == nil {
		s.layers[projectID] = make(map[string]bool)
	}
	s.layers[projectID][layerID] = true
	return nil
}

// RemoveLayer removes a layer and its annotations.
func (s *AnnotationStore) RemoveLayer(_ context.Context, projectID, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers[projectID], layerID)
	for ref, a := range s.annotations {
		if a.projectID == projectID && a.annotation.LayerID == layerID {
			delete(s.annotations, ref)
		}
	}
	return nil
}

// ListDocuments returns the documents of a project without text, sorted by name.
func (s *AnnotationStore) ListDocuments(_ context.Context, projectID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0)
	for key, doc := range s.documents {
		if key.projectID == projectID {
			doc.Text = ""
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ReadDocumentText returns the text of a document.
func (s *AnnotationStore) ReadDocumentText(_ context.Context, projectID, doc string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[documentKey{projectID, doc}]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	return d.Text, nil
}

// ListConfirmedAnnotations returns a user's annotations on a layer of a
// document, ordered by offset.
func (s *AnnotationStore) ListConfirmedAnnotations(
	_ context.Context,
	projectID, doc, user, layerID string,
) ([]domain.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(projectID, doc, layerID); err != nil {
		return nil, err
	}

	result := make([]domain.Annotation, 0)
	for _, a := range s.annotations {
		if a.projectID == projectID && a.user == user &&
			a.annotation.Document == doc && a.annotation.LayerID == layerID {
			result = append(result, copyAnnotation(a.annotation))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Span != result[j].Span {
			if result[i].Span.Begin != result[j].Span.Begin {
				return result[i].Span.Begin < result[j].Span.Begin
			}
			return result[i].Span.End < result[j].Span.End
		}
		return result[i].Ref < result[j].Ref
	})
	return result, nil
}

// AnnotationsChangedAt returns when a user's annotations on a document last changed.
func (s *AnnotationStore) AnnotationsChangedAt(_ context.Context, projectID, doc, user string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes[changeKey{documentKey{projectID, doc}, user}], nil
}

// CreateAnnotation creates an empty span annotation.
func (s *AnnotationStore) CreateAnnotation(
	_ context.Context,
	projectID, doc, user, layerID string,
	span domain.Offset,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(projectID, doc, layerID); err != nil {
		return "", err
	}
	text := s.documents[documentKey{projectID, doc}].Text
	if span.Begin < 0 || span.End > len(text) || span.Begin > span.End {
		return "", fmt.Errorf("%w: span %s outside document %s", domain.ErrInvalidInput, span, doc)
	}

	ref := uuid.NewString()
	s.annotations[ref] = storedAnnotation{
		projectID: projectID,
		user:      user,
		annotation: domain.Annotation{
			Ref:      ref,
			Document: doc,
			LayerID:  layerID,
			Span:     span,
			Features: map[string]string{},
		},
	}
	s.touchLocked(projectID, doc, user)
	return ref, nil
}

// CreateRelation creates an empty relation between two annotations.
func (s *AnnotationStore) CreateRelation(
	_ context.Context,
	projectID, doc, user, layerID, sourceRef, targetRef string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(projectID, doc, layerID); err != nil {
		return "", err
	}
	source, okSource := s.annotations[sourceRef]
	target, okTarget := s.annotations[targetRef]
	if !okSource || !okTarget {
		return "", domain.ErrAnchorNotFound
	}

	ref := uuid.NewString()
	s.annotations[ref] = storedAnnotation{
		projectID: projectID,
		user:      user,
		annotation: domain.Annotation{
			Ref:      ref,
			Document: doc,
			LayerID:  layerID,
			Span:     target.annotation.Span,
			Features: map[string]string{},
			Source:   source.annotation.Ref,
			Target:   target.annotation.Ref,
		},
	}
	s.touchLocked(projectID, doc, user)
	return ref, nil
}

// UpdateFeature sets a feature value on an annotation.
func (s *AnnotationStore) UpdateFeature(_ context.Context, ref, feature, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[ref]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.checkLocked(a.projectID, a.annotation.Document, a.annotation.LayerID); err != nil {
		return err
	}
	features := maps.Clone(a.annotation.Features)
	if features == nil {
		features = make(map[string]string)
	}
	features[feature] = value
	a.annotation.Features = features
	s.annotations[ref] = a
	s.touchLocked(a.projectID, a.annotation.Document, a.user)
	return nil
}

// DeleteAnnotation removes an annotation.
func (s *AnnotationStore) DeleteAnnotation(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[ref]
	if !ok {
		return nil
	}
	delete(s.annotations, ref)
	s.touchLocked(a.projectID, a.annotation.Document, a.user)
	return nil
}

// touchLocked moves a user's annotation change time forward (caller must hold lock).
func (s *AnnotationStore) touchLocked(projectID, doc, user string) {
	key := changeKey{documentKey{projectID, doc}, user}
	now := time.Now().Truncate(time.Millisecond)
	if prev := s.changes[key]; !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	s.changes[key] = now
}

// checkLocked verifies a document and layer exist (caller must hold lock).
func (s *AnnotationStore) checkLocked(projectID, doc, layerID string) error {
	if _, ok := s.documents[documentKey{projectID, doc}]; !ok {
		return domain.ErrDocumentNotFound
	}
	if !s.layers[projectID][layerID] {
		return domain.ErrLayerNotFound
	}
	return nil
}

func copyAnnotation(a domain.Annotation) domain.Annotation {
	a.Features = maps.Clone(a.Features)
	return a
}
