package domain

import (
	"fmt"
	"sort"
	"strings"
)

// NoScore marks a suggestion whose engine produced no confidence score.
const NoScore = -1.0

// SuggestionKind discriminates the suggestion variants.
type SuggestionKind int

const (
	// KindSpan is a predicted span (or a feature value on an existing span).
	KindSpan SuggestionKind = iota + 1

	// KindRelation is a predicted relation between two existing spans.
	KindRelation
)

// String returns the short name of the kind.
func (k SuggestionKind) String() string {
	switch k {
	case KindSpan:
		return "span"
	case KindRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Offset is a half-open character range [Begin, End).
type Offset struct {
	Begin int
	End   int
}

// Overlaps reports whether o intersects [begin, end).
func (o Offset) Overlaps(begin, end int) bool {
	return o.Begin < end && begin < o.End
}

// Len returns the number of characters covered.
func (o Offset) Len() int {
	return o.End - o.Begin
}

func (o Offset) String() string {
	return fmt.Sprintf("%d-%d", o.Begin, o.End)
}

// HideReason is a bit set explaining why a suggestion is not visible.
type HideReason uint8

const (
	// HiddenOverlap marks a suggestion already present as a confirmed annotation.
	HiddenOverlap HideReason = 1 << iota

	// HiddenRejected marks a suggestion the user rejected or skipped before.
	HiddenRejected

	// HiddenThreshold marks a suggestion scoring below the recommender threshold.
	HiddenThreshold

	// HiddenRank marks a suggestion outside the top-N of its group.
	HiddenRank
)

// String lists the reasons in a stable order.
func (h HideReason) String() string {
	if h == 0 {
		return ""
	}
	var parts []string
	if h&HiddenOverlap != 0 {
		parts = append(parts, "overlaps existing annotation")
	}
	if h&HiddenRejected != 0 {
		parts = append(parts, "previously rejected")
	}
	if h&HiddenThreshold != 0 {
		parts = append(parts, "below score threshold")
	}
	if h&HiddenRank != 0 {
		parts = append(parts, "outside top recommendations")
	}
	return strings.Join(parts, ", ")
}

// Prediction is a raw engine output before it is given an identity in a generation.
type Prediction struct {
	Kind        SuggestionKind
	Document    string
	Label       string
	Score       float64
	Explanation string

	// Span is used by KindSpan.
	Span Offset

	// ExistingAnnotation references a stored annotation when the prediction only
	// fills in a feature value.
	ExistingAnnotation string

	// Source and Target are used by KindRelation.
	Source Offset
	Target Offset

	// Window is the range the prediction was computed over.
	Window Offset
}

// Suggestion is a machine-predicted annotation addressable within one generation.
// Values are immutable once part of a committed generation; lifecycle state is
// tracked separately by Predictions.
type Suggestion struct {
	ID              int
	Kind            SuggestionKind
	RecommenderID   string
	RecommenderName string
	LayerID         string
	Feature         string
	Label           string
	Score           float64
	Explanation     string
	Document        string
	Window          Offset

	// Span is set for KindSpan.
	Span Offset

	// ExistingAnnotation is set when accepting updates a stored annotation.
	ExistingAnnotation string

	// Source and Target are set for KindRelation.
	Source Offset
	Target Offset

	Visible     bool
	HideReasons HideReason
}

// HasScore reports whether the engine provided a confidence score.
func (s *Suggestion) HasScore() bool {
	return s.Score != NoScore
}

// Anchor is the range a caller navigates to for this suggestion.
func (s *Suggestion) Anchor() Offset {
	if s.Kind == KindRelation {
		return s.Source
	}
	return s.Span
}

// Position identifies where a suggestion sits, independent of its label.
type Position struct {
	Kind     SuggestionKind
	Document string
	LayerID  string
	Feature  string
	First    Offset
	Second   Offset
}

// Position returns the grouping position of the suggestion.
func (s *Suggestion) Position() Position {
	p := Position{
		Kind:     s.Kind,
		Document: s.Document,
		LayerID:  s.LayerID,
		Feature:  s.Feature,
	}
	if s.Kind == KindRelation {
		p.First, p.Second = s.Source, s.Target
	} else {
		p.First = s.Span
	}
	return p
}

// identity is the per-generation uniqueness tuple.
type identity struct {
	recommenderID string
	position      Position
	label         string
}

func (s *Suggestion) identity() identity {
	return identity{recommenderID: s.RecommenderID, position: s.Position(), label: s.Label}
}

// SuggestionState is the lifecycle state of one suggestion instance.
type SuggestionState int

const (
	// StatePending is the initial state.
	StatePending SuggestionState = iota

	// StateAccepted is terminal: the suggestion was materialised in storage.
	StateAccepted

	// StateRejected is terminal: the suggestion was rejected or skipped.
	StateRejected
)

func (s SuggestionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Group collects the alternatives predicted at one position, best first.
type Group struct {
	Position    Position
	Suggestions []Suggestion
}

// Top returns the best-scoring suggestion of the group.
func (g *Group) Top() (Suggestion, bool) {
	if len(g.Suggestions) == 0 {
		return Suggestion{}, false
	}
	return g.Suggestions[0], true
}

// sortByScore orders suggestions by descending score, then by ID.
func sortByScore(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].ID < suggestions[j].ID
	})
}
