package domain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// PredictionKey scopes a prediction cache entry.
// The session owner is the user viewing, the data owner the user whose
// annotations are being worked on (they differ in curation/review modes).
type PredictionKey struct {
	SessionOwner string
	DataOwner    string
	ProjectID    string
}

func (k PredictionKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.SessionOwner, k.DataOwner, k.ProjectID)
}

// Validate ensures all parts of the key are set.
func (k PredictionKey) Validate() error {
	if k.SessionOwner == "" || k.DataOwner == "" || k.ProjectID == "" {
		return fmt.Errorf("%w: prediction key requires session owner, data owner and project", ErrInvalidInput)
	}
	return nil
}

type lifecycle struct {
	state  SuggestionState
	reason string
}

// Predictions is one generation of suggestions for a PredictionKey.
//
// The suggestion values and indexes are immutable after Build; only the
// per-suggestion lifecycle overlay changes, and every change goes through
// Transition which serialises actions per document.
type Predictions struct {
	Key        PredictionKey
	Generation uint64
	CreatedAt  time.Time

	suggestions []Suggestion
	byID        map[int]int
	byDocument  map[string][]int
	groups      map[string][]Group

	// locksMu guards docLocks.
	locksMu  sync.Mutex
	docLocks map[string]*sync.Mutex

	stateMu sync.RWMutex
	states   map[int]lifecycle
}

// EmptyPredictions returns generation 0 for a key.
func EmptyPredictions(key PredictionKey) *Predictions {
	return &Predictions{
		Key:        key,
		byID:       map[int]int{},
		byDocument: map[string][]int{},
		groups:     map[string][]Group{},
		states:     map[int]lifecycle{},
	}
}

// Size returns the number of suggestions in the generation.
func (p *Predictions) Size() int {
	return len(p.suggestions)
}

// IsEmpty reports whether the generation holds no suggestions.
func (p *Predictions) IsEmpty() bool {
	return len(p.suggestions) == 0
}

// Documents returns the names of documents with suggestions, sorted.
func (p *Predictions) Documents() []string {
	docs := make([]string, 0, len(p.byDocument))
	for doc := range p.byDocument {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// ForDocument returns all suggestions for a document ordered by position.
func (p *Predictions) ForDocument(doc string) []Suggestion {
	idx := p.byDocument[doc]
	out := make([]Suggestion, 0, len(idx))
	for _, i := range idx {
		out = append(out, p.suggestions[i])
	}
	return out
}

// Offered returns the suggestions of a document that are visible and still pending.
func (p *Predictions) Offered(doc string) []Suggestion {
	var out []Suggestion
	for _, s := range p.ForDocument(doc) {
		if !s.Visible {
			continue
		}
		if state, _ := p.State(s.ID); state != StatePending {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Get returns a suggestion by synthetic id.
func (p *Predictions) Get(id int) (Suggestion, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Suggestion{}, false
	}
	return p.suggestions[i], true
}

// VID returns the address of a suggestion in this generation.
func (p *Predictions) VID(s *Suggestion) string {
	return EncodeVID(p.Generation, s)
}

// Resolve decodes a VID and finds the suggestion it designates in this generation.
// Malformed input fails with *MalformedAddressError; well-formed addresses from
// another generation, or that match no suggestion, fail with ErrSuggestionNotFound.
func (p *Predictions) Resolve(vid string) (Suggestion, error) {
	addr, err := DecodeVID(vid)
	if err != nil {
		return Suggestion{}, err
	}
	return p.lookup(addr)
}

func (p *Predictions) lookup(addr SuggestionAddress) (Suggestion, error) {
	if p.Generation == 0 || addr.Generation != p.Generation {
		return Suggestion{}, ErrSuggestionNotFound
	}
	s, ok := p.Get(addr.ID)
	if !ok || !addr.matches(p.Generation, &s) {
		return Suggestion{}, ErrSuggestionNotFound
	}
	return s, nil
}

// State returns the lifecycle state of a suggestion and the recorded reason.
func (p *Predictions) State(id int) (SuggestionState, string) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	l := p.states[id]
	return l.state, l.reason
}

// Groups returns the groups of a document on a layer whose position overlaps
// the window. A zero-length window selects the whole document. An empty
// layerID selects all layers.
func (p *Predictions) Groups(doc, layerID string, window Offset) []Group {
	var out []Group
	for _, g := range p.groups[doc] {
		if layerID != "" && g.Position.LayerID != layerID {
			continue
		}
		if window.Len() > 0 && !g.Position.First.Overlaps(window.Begin, window.End) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Transition moves a pending suggestion to a terminal state.
//
// apply runs while the action lock of the suggestion's document is held and
// before the state changes; if it fails the suggestion stays pending and the
// error is returned. Actions on different documents run concurrently.
// A suggestion that is already terminal fails with ErrSuggestionNotFound.
func (p *Predictions) Transition(
	vid string,
	to SuggestionState,
	reason string,
	apply func(s Suggestion) error,
) (Suggestion, error) {
	if to == StatePending {
		return Suggestion{}, fmt.Errorf("%w: cannot transition back to pending", ErrInvalidInput)
	}

	addr, err := DecodeVID(vid)
	if err != nil {
		return Suggestion{}, err
	}

	s, err := p.lookup(addr)
	if err != nil {
		return Suggestion{}, err
	}

	lock := p.documentLock(s.Document)
	lock.Lock()
	defer lock.Unlock()

	if state, _ := p.State(s.ID); state != StatePending {
		return Suggestion{}, ErrSuggestionNotFound
	}

	if apply != nil {
		if err := apply(s); err != nil {
			return Suggestion{}, err
		}
	}

	p.stateMu.Lock()
	p.states[s.ID] = lifecycle{state: to, reason: reason}
	p.stateMu.Unlock()
	return s, nil
}

func (p *Predictions) documentLock(doc string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	if p.docLocks == nil {
		p.docLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := p.docLocks[doc]
	if !ok {
		lock = &sync.Mutex{}
		p.docLocks[doc] = lock
	}
	return lock
}

// Counts returns the number of suggestions per lifecycle state.
func (p *Predictions) Counts() map[SuggestionState]int {
	counts := map[SuggestionState]int{StatePending: 0, StateAccepted: 0, StateRejected: 0}
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	for _, s := range p.suggestions {
		counts[p.states[s.ID].state]++
	}
	return counts
}

// ErrBuilderSealed is returned when a builder is used after Build.
var ErrBuilderSealed = errors.New("predictions builder already built")

type recommenderLimits struct {
	name      string
	threshold float64
	limit     int
}

// PredictionsBuilder accumulates engine output for one generation.
// It deduplicates identical predictions keeping the highest score; on equal
// scores the first one seen wins.
type PredictionsBuilder struct {
	key         PredictionKey
	items       []Suggestion
	byIdentity  map[identity]int
	recommender map[string]recommenderLimits
	sealed      bool
}

// NewPredictionsBuilder creates a builder for a key.
func NewPredictionsBuilder(key PredictionKey) *PredictionsBuilder {
	return &PredictionsBuilder{
		key:         key,
		byIdentity:  make(map[identity]int),
		recommender: make(map[string]recommenderLimits),
	}
}

// Len returns the number of distinct predictions collected so far.
func (b *PredictionsBuilder) Len() int {
	return len(b.items)
}

// Add records a prediction produced by rec.
func (b *PredictionsBuilder) Add(rec *Recommender, pred Prediction) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if pred.Kind != KindSpan && pred.Kind != KindRelation {
		return fmt.Errorf("%w: unknown prediction kind %d", ErrInvalidInput, pred.Kind)
	}

	b.recommender[rec.ID] = recommenderLimits{name: rec.Name, threshold: rec.Threshold, limit: rec.VisibleLimit()}

	s := Suggestion{
		Kind:               pred.Kind,
		RecommenderID:      rec.ID,
		RecommenderName:    rec.Name,
		LayerID:            rec.LayerID,
		Feature:            rec.Feature,
		Label:              pred.Label,
		Score:              pred.Score,
		Explanation:        pred.Explanation,
		Document:           pred.Document,
		Window:             pred.Window,
		Span:               pred.Span,
		ExistingAnnotation: pred.ExistingAnnotation,
		Source:             pred.Source,
		Target:             pred.Target,
		Visible:            true,
	}

	id := s.identity()
	if i, ok := b.byIdentity[id]; ok {
		if s.Score > b.items[i].Score {
			b.items[i] = s
		}
		return nil
	}
	b.byIdentity[id] = len(b.items)
	b.items = append(b.items, s)
	return nil
}

// Build seals the builder and produces an immutable generation.
// hide, if non-nil, contributes per-suggestion hide reasons (overlap, rejection).
func (b *PredictionsBuilder) Build(generation uint64, hide func(s *Suggestion) HideReason) *Predictions {
	b.sealed = true

	items := make([]Suggestion, len(b.items))
	copy(items, b.items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Document != items[j].Document {
			return items[i].Document < items[j].Document
		}
		ai, aj := items[i].Anchor(), items[j].Anchor()
		if ai.Begin != aj.Begin {
			return ai.Begin < aj.Begin
		}
		return ai.End < aj.End
	})

	p := &Predictions{
		Key:         b.key,
		Generation:  generation,
		CreatedAt:   time.Now(),
		suggestions: items,
		byID:        make(map[int]int, len(items)),
		byDocument:  make(map[string][]int),
		groups:      make(map[string][]Group),
		states:      make(map[int]lifecycle, len(items)),
	}

	for i := range p.suggestions {
		s := &p.suggestions[i]
		s.ID = i + 1
		limits := b.recommender[s.RecommenderID]
		if hide != nil {
			s.HideReasons |= hide(s)
		}
		if limits.threshold > 0 && s.HasScore() && s.Score < limits.threshold {
			s.HideReasons |= HiddenThreshold
		}
		p.byID[s.ID] = i
		p.byDocument[s.Document] = append(p.byDocument[s.Document], i)
	}

	b.rank(p)

	for i := range p.suggestions {
		s := &p.suggestions[i]
		s.Visible = s.HideReasons == 0
	}

	p.buildGroups()
	return p
}

// rank hides suggestions outside the top-N of their position.
func (b *PredictionsBuilder) rank(p *Predictions) {
	byPosition := make(map[Position][]*Suggestion)
	var order []Position
	for i := range p.suggestions {
		s := &p.suggestions[i]
		if s.HideReasons != 0 {
			continue
		}
		pos := s.Position()
		if _, ok := byPosition[pos]; !ok {
			order = append(order, pos)
		}
		byPosition[pos] = append(byPosition[pos], s)
	}
	for _, pos := range order {
		candidates := byPosition[pos]
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
		for rank, s := range candidates {
			if rank >= b.recommender[s.RecommenderID].limit {
				s.HideReasons |= HiddenRank
			}
		}
	}
}

func (p *Predictions) buildGroups() {
	for doc, idx := range p.byDocument {
		byPosition := make(map[Position]int)
		var groups []Group
		for _, i := range idx {
			s := p.suggestions[i]
			pos := s.Position()
			gi, ok := byPosition[pos]
			if !ok {
				gi = len(groups)
				byPosition[pos] = gi
				groups = append(groups, Group{Position: pos})
			}
			groups[gi].Suggestions = append(groups[gi].Suggestions, s)
		}
		for gi := range groups {
			sortByScore(groups[gi].Suggestions)
		}
		p.groups[doc] = groups
	}
}
