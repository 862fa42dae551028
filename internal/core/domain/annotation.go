package domain

import (
	"encoding/binary"
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"time"
)

// Annotation is a confirmed annotation held by the storage collaborator.
type Annotation struct {
	// Ref is the storage reference of the annotation.
	Ref string

	Document string
	LayerID  string
	Span     Offset

	// Features maps feature names to values.
	Features map[string]string

	// Source and Target are set for relation annotations and reference
	// the endpoint annotations.
	Source string
	Target string
}

// Feature returns a feature value and whether it is set.
func (a *Annotation) Feature(name string) (string, bool) {
	v, ok := a.Features[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Document is a text document of a project as seen by the engine.
type Document struct {
	// Name is unique within a project.
	Name string

	ProjectID string

	// Text is the document text. It may be empty in listings.
	Text string

	// UpdatedAt is the last modification time; zero when unknown.
	UpdatedAt time.Time

	// AnnotatedAt is the last change of the loading user's annotations on
	// the document. Zero when they never changed or were not loaded.
	AnnotatedAt time.Time
}

// UnknownVersion marks a document whose version cannot be determined.
const UnknownVersion int64 = -1

// Version derives the document version from the later of its text and
// annotation modification times. An unknown text time makes the version unknown.
func (d *Document) Version() int64 {
	if d.UpdatedAt.IsZero() {
		return UnknownVersion
	}
	return max(d.UpdatedAt.UnixMilli(), d.AnnotatedAt.UnixMilli())
}

// Action is an operation a user performs on a suggestion.
type Action string

const (
	// ActionAccept materialises the suggestion as an annotation.
	ActionAccept Action = "accept"

	// ActionReject dismisses the suggestion.
	ActionReject Action = "reject"

	// ActionScroll navigates to the suggestion without changing it.
	ActionScroll Action = "scroll"
)

// ParseAction converts a string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAccept, ActionReject, ActionScroll:
		return Action(s), nil
	default:
		return "", ErrInvalidInput
	}
}

// LearningRecord is the audit trail of a user decision on a suggestion.
type LearningRecord struct {
	User       string
	ProjectID  string
	Document   string
	LayerID    string
	Feature    string
	Kind       SuggestionKind
	Span       Offset
	Target     Offset
	Label      string
	Action     Action
	Reason     string
	OccurredAt time.Time
}

// Matches reports whether the record concerns the same decision target as s.
func (r *LearningRecord) Matches(s *Suggestion) bool {
	if r.Document != s.Document || r.LayerID != s.LayerID || r.Feature != s.Feature ||
		r.Label != s.Label || r.Kind != s.Kind {
		return false
	}
	if s.Kind == KindRelation {
		return r.Span == s.Source && r.Target == s.Target
	}
	return r.Span == s.Span
}

// TrainingRun records one background generation run.
type TrainingRun struct {
	ID          string
	Key         PredictionKey
	Generation  uint64
	StartedAt   time.Time
	EndedAt     time.Time
	Suggestions int
	Committed   bool
	Errors      []string
}

// AnnotatedDocument is a document together with the confirmed annotations of
// one user on the layers a recommender reads.
type AnnotatedDocument struct {
	Document    Document
	Annotations []Annotation
}

// CorpusVersion fingerprints a loaded corpus: its documents, their versions
// and the annotations on them. Documents with an unknown version also
// contribute their text.
func CorpusVersion(corpus []AnnotatedDocument) string {
	h := fnv.New64a()
	writeString := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeInt := func(v int64) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(v))
		h.Write(n[:])
	}

	writeInt(int64(len(corpus)))
	for i := range corpus {
		doc := &corpus[i].Document
		writeString(doc.Name)
		version := doc.Version()
		writeInt(version)
		if version == UnknownVersion {
			writeString(doc.Text)
		}

		writeInt(int64(len(corpus[i].Annotations)))
		for _, a := range corpus[i].Annotations {
			writeString(a.Ref)
			writeString(a.LayerID)
			writeInt(int64(a.Span.Begin))
			writeInt(int64(a.Span.End))
			writeString(a.Source)
			writeString(a.Target)
			for _, name := range slices.Sorted(maps.Keys(a.Features)) {
				writeString(name)
				writeString(a.Features[name])
			}
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
