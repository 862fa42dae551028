package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// Ensure SuggestionService implements the interface.
var _ driving.SuggestionService = (*SuggestionService)(nil)

// SuggestionService drives the accept, reject and scroll-to lifecycle of
// suggestions in the active generation. Storage writes go through the
// annotation store; an accept either completes in storage and flips the
// suggestion's state, or leaves both untouched.
type SuggestionService struct {
	cache        *PredictionCache
	store        driven.AnnotationStore
	recommenders driven.RecommenderStore
	learning     driven.LearningRecordStore
	now          func() time.Time
}

// NewSuggestionService creates a new suggestion service.
// The recommenders and learning stores are optional.
func NewSuggestionService(
	cache *PredictionCache,
	store driven.AnnotationStore,
	recommenders driven.RecommenderStore,
	learning driven.LearningRecordStore,
) *SuggestionService {
	return &SuggestionService{
		cache:        cache,
		store:        store,
		recommenders: recommenders,
		learning:     learning,
		now:          time.Now,
	}
}

// HandleAction dispatches an action on a suggestion.
func (s *SuggestionService) HandleAction(
	ctx context.Context,
	key domain.PredictionKey,
	action domain.Action,
	vid, reason string,
) (*driving.ActionResult, error) {
	switch action {
	case domain.ActionAccept:
		return s.Accept(ctx, key, vid)
	case domain.ActionReject:
		return s.Reject(ctx, key, vid, reason)
	case domain.ActionScroll:
		return s.ScrollTo(ctx, key, vid)
	default:
		return nil, &domain.ActionError{
			Action: action,
			VID:    vid,
			Err:    fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action),
		}
	}
}

// Accept materialises a pending suggestion and returns the storage ref.
func (s *SuggestionService) Accept(
	ctx context.Context,
	key domain.PredictionKey,
	vid string,
) (*driving.ActionResult, error) {
	if s.store == nil {
		return nil, &domain.ActionError{Action: domain.ActionAccept, VID: vid, Err: domain.ErrNotImplemented}
	}

	preds := s.cache.GetActive(key)
	var ref string
	sug, err := preds.Transition(vid, domain.StateAccepted, "", func(sug domain.Suggestion) error {
		var err error
		ref, err = s.materialise(ctx, key, sug)
		return err
	})
	if err != nil {
		return nil, &domain.ActionError{Action: domain.ActionAccept, VID: vid, Err: err}
	}

	logger.Debug("Accepted %s as %s in %s", vid, ref, sug.Document)
	s.record(ctx, key, &sug, domain.ActionAccept, "")

	return &driving.ActionResult{
		Action:        domain.ActionAccept,
		VID:           vid,
		Suggestion:    sug,
		AnnotationRef: ref,
		Document:      sug.Document,
		Anchor:        sug.Anchor(),
	}, nil
}

// Reject dismisses a pending suggestion.
func (s *SuggestionService) Reject(
	ctx context.Context,
	key domain.PredictionKey,
	vid, reason string,
) (*driving.ActionResult, error) {
	preds := s.cache.GetActive(key)
	sug, err := preds.Transition(vid, domain.StateRejected, reason, nil)
	if err != nil {
		return nil, &domain.ActionError{Action: domain.ActionReject, VID: vid, Err: err}
	}

	logger.Debug("Rejected %s in %s", vid, sug.Document)
	s.record(ctx, key, &sug, domain.ActionReject, reason)

	return &driving.ActionResult{
		Action:     domain.ActionReject,
		VID:        vid,
		Suggestion: sug,
		Document:   sug.Document,
		Anchor:     sug.Anchor(),
	}, nil
}

// ScrollTo resolves where a pending suggestion sits without changing it.
func (s *SuggestionService) ScrollTo(
	_ context.Context,
	key domain.PredictionKey,
	vid string,
) (*driving.ActionResult, error) {
	sug, err := s.resolvePending(key, vid)
	if err != nil {
		return nil, &domain.ActionError{Action: domain.ActionScroll, VID: vid, Err: err}
	}
	return &driving.ActionResult{
		Action:     domain.ActionScroll,
		VID:        vid,
		Suggestion: sug,
		Document:   sug.Document,
		Anchor:     sug.Anchor(),
	}, nil
}

// GetPredictions returns the active generation of a key.
func (s *SuggestionService) GetPredictions(key domain.PredictionKey) *domain.Predictions {
	return s.cache.GetActive(key)
}

// SwitchPredictions reports whether a newer generation became active.
func (s *SuggestionService) SwitchPredictions(key domain.PredictionKey) bool {
	return s.cache.SwitchPredictions(key)
}

// GetFeatureValue returns the value a pending suggestion would set.
func (s *SuggestionService) GetFeatureValue(key domain.PredictionKey, vid string) (string, bool) {
	sug, err := s.resolvePending(key, vid)
	if err != nil {
		return "", false
	}
	return sug.Label, true
}

// LookupDetails returns the visible alternatives at a suggestion's position,
// best first.
func (s *SuggestionService) LookupDetails(key domain.PredictionKey, vid string) ([]driving.SuggestionDetail, bool) {
	preds := s.cache.GetActive(key)
	sug, err := preds.Resolve(vid)
	if err != nil {
		return nil, false
	}

	pos := sug.Position()
	var details []driving.SuggestionDetail
	for _, g := range preds.Groups(sug.Document, sug.LayerID, pos.First) {
		if g.Position != pos {
			continue
		}
		for _, alt := range g.Suggestions {
			if !alt.Visible {
				continue
			}
			if state, _ := preds.State(alt.ID); state != domain.StatePending {
				continue
			}
			details = append(details, driving.SuggestionDetail{
				RecommenderName: alt.RecommenderName,
				Label:           alt.Label,
				Score:           alt.Score,
				Explanation:     alt.Explanation,
			})
		}
	}
	return details, true
}

func (s *SuggestionService) resolvePending(key domain.PredictionKey, vid string) (domain.Suggestion, error) {
	preds := s.cache.GetActive(key)
	sug, err := preds.Resolve(vid)
	if err != nil {
		return domain.Suggestion{}, err
	}
	if state, _ := preds.State(sug.ID); state != domain.StatePending {
		return domain.Suggestion{}, domain.ErrSuggestionNotFound
	}
	return sug, nil
}

// materialise writes a suggestion to the annotation store and returns the ref
// of the annotation carrying its label. A partially created annotation is
// removed again when setting the label fails.
func (s *SuggestionService) materialise(ctx context.Context, key domain.PredictionKey, sug domain.Suggestion) (string, error) {
	switch sug.Kind {
	case domain.KindSpan:
		return s.materialiseSpan(ctx, key, sug)
	case domain.KindRelation:
		return s.materialiseRelation(ctx, key, sug)
	default:
		return "", fmt.Errorf("%w: unknown suggestion kind %d", domain.ErrInvalidInput, sug.Kind)
	}
}

func (s *SuggestionService) materialiseSpan(ctx context.Context, key domain.PredictionKey, sug domain.Suggestion) (string, error) {
	if sug.ExistingAnnotation != "" {
		if err := s.store.UpdateFeature(ctx, sug.ExistingAnnotation, sug.Feature, sug.Label); err != nil {
			return "", fmt.Errorf("update feature: %w", err)
		}
		return sug.ExistingAnnotation, nil
	}

	existing, err := s.store.ListConfirmedAnnotations(ctx, key.ProjectID, sug.Document, key.DataOwner, sug.LayerID)
	if err != nil {
		return "", fmt.Errorf("list annotations: %w", err)
	}
	for _, a := range existing {
		if a.Source != "" || a.Span != sug.Span {
			continue
		}
		if sug.Feature == "" {
			return a.Ref, nil
		}
		value, labelled := a.Feature(sug.Feature)
		if labelled && value == sug.Label {
			return a.Ref, nil
		}
		if !labelled {
			if err := s.store.UpdateFeature(ctx, a.Ref, sug.Feature, sug.Label); err != nil {
				return "", fmt.Errorf("update feature: %w", err)
			}
			return a.Ref, nil
		}
	}

	ref, err := s.store.CreateAnnotation(ctx, key.ProjectID, sug.Document, key.DataOwner, sug.LayerID, sug.Span)
	if err != nil {
		return "", fmt.Errorf("create annotation: %w", err)
	}
	return s.label(ctx, ref, sug)
}

func (s *SuggestionService) materialiseRelation(
	ctx context.Context,
	key domain.PredictionKey,
	sug domain.Suggestion,
) (string, error) {
	attachLayer := s.attachLayer(ctx, sug)
	anchors, err := s.store.ListConfirmedAnnotations(ctx, key.ProjectID, sug.Document, key.DataOwner, attachLayer)
	if err != nil {
		return "", fmt.Errorf("list anchors: %w", err)
	}

	var sourceRef, targetRef string
	for _, a := range anchors {
		if a.Source != "" {
			continue
		}
		if sourceRef == "" && a.Span == sug.Source {
			sourceRef = a.Ref
		}
		if targetRef == "" && a.Span == sug.Target {
			targetRef = a.Ref
		}
	}
	if sourceRef == "" {
		return "", fmt.Errorf("%w: source %s on %s", domain.ErrAnchorNotFound, sug.Source, attachLayer)
	}
	if targetRef == "" {
		return "", fmt.Errorf("%w: target %s on %s", domain.ErrAnchorNotFound, sug.Target, attachLayer)
	}

	ref, err := s.store.CreateRelation(ctx, key.ProjectID, sug.Document, key.DataOwner, sug.LayerID, sourceRef, targetRef)
	if err != nil {
		return "", fmt.Errorf("create relation: %w", err)
	}
	return s.label(ctx, ref, sug)
}

// label sets the predicted value on a freshly created annotation, deleting the
// annotation if that fails.
func (s *SuggestionService) label(ctx context.Context, ref string, sug domain.Suggestion) (string, error) {
	if sug.Feature == "" {
		return ref, nil
	}
	err := s.store.UpdateFeature(ctx, ref, sug.Feature, sug.Label)
	if err == nil {
		return ref, nil
	}
	if delErr := s.store.DeleteAnnotation(ctx, ref); delErr != nil {
		logger.Error("Failed to remove partially created annotation %s: %v", ref, delErr)
		return "", errors.Join(fmt.Errorf("update feature: %w", err), delErr)
	}
	return "", fmt.Errorf("update feature: %w", err)
}

// attachLayer returns the span layer relation endpoints live on.
func (s *SuggestionService) attachLayer(ctx context.Context, sug domain.Suggestion) string {
	if s.recommenders != nil {
		rec, err := s.recommenders.Get(ctx, sug.RecommenderID)
		if err == nil && rec.AttachLayerID != "" {
			return rec.AttachLayerID
		}
	}
	return sug.LayerID
}

// record writes a learning record. Failures are logged only; the action has
// already taken effect.
func (s *SuggestionService) record(
	ctx context.Context,
	key domain.PredictionKey,
	sug *domain.Suggestion,
	action domain.Action,
	reason string,
) {
	if s.learning == nil {
		return
	}
	rec := domain.LearningRecord{
		User:       key.DataOwner,
		ProjectID:  key.ProjectID,
		Document:   sug.Document,
		LayerID:    sug.LayerID,
		Feature:    sug.Feature,
		Kind:       sug.Kind,
		Span:       sug.Span,
		Label:      sug.Label,
		Action:     action,
		Reason:     reason,
		OccurredAt: s.now(),
	}
	if sug.Kind == domain.KindRelation {
		rec.Span, rec.Target = sug.Source, sug.Target
	}
	if err := s.learning.Record(ctx, rec); err != nil {
		logger.Warn("Failed to record %s of %s: %v", action, sug.Document, err)
	}
}
