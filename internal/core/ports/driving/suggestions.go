package driving

import (
	"context"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// ActionResult is the outcome of a successful suggestion action.
type ActionResult struct {
	Action     domain.Action
	VID        string
	Suggestion domain.Suggestion

	// AnnotationRef is the stored annotation created or updated by an accept.
	AnnotationRef string

	// Document and Anchor tell the caller where to navigate or what to select.
	Document string
	Anchor   domain.Offset
}

// SuggestionDetail is one alternative shown in a suggestion tooltip.
type SuggestionDetail struct {
	RecommenderName string
	Label           string
	Score           float64
	Explanation     string
}

// SuggestionService provides suggestion lifecycle actions for external actors.
// This is used by CLI, HTTP and MCP adapters.
type SuggestionService interface {
	// HandleAction dispatches accept, reject and scroll actions.
	HandleAction(ctx context.Context, key domain.PredictionKey, action domain.Action, vid, reason string) (*ActionResult, error)

	// Accept materialises a pending suggestion in the annotation store.
	Accept(ctx context.Context, key domain.PredictionKey, vid string) (*ActionResult, error)

	// Reject dismisses a pending suggestion, recording the reason.
	Reject(ctx context.Context, key domain.PredictionKey, vid, reason string) (*ActionResult, error)

	// ScrollTo resolves a suggestion's anchor without changing it.
	ScrollTo(ctx context.Context, key domain.PredictionKey, vid string) (*ActionResult, error)

	// GetPredictions returns the active generation. Never nil.
	GetPredictions(key domain.PredictionKey) *domain.Predictions

	// SwitchPredictions reports whether a newer generation became active since
	// the last call for this key.
	SwitchPredictions(key domain.PredictionKey) bool

	// GetFeatureValue returns the predicted value of a suggestion; ok is false
	// when the suggestion or its generation expired.
	GetFeatureValue(key domain.PredictionKey, vid string) (value string, ok bool)

	// LookupDetails returns the alternatives at a suggestion's position; ok is
	// false when the suggestion or its generation expired.
	LookupDetails(key domain.PredictionKey, vid string) (details []SuggestionDetail, ok bool)
}
