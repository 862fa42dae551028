package httpapi

import (
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

type suggestionView struct {
	VID         string    `json:"vid"`
	Document    string    `json:"document"`
	Kind        string    `json:"kind"`
	Layer       string    `json:"layer"`
	Feature     string    `json:"feature"`
	Label       string    `json:"label"`
	Score       *float64  `json:"score,omitempty"`
	Begin       int       `json:"begin"`
	End         int       `json:"end"`
	Target      *spanView `json:"target,omitempty"`
	Recommender string    `json:"recommender"`
	Explanation string    `json:"explanation,omitempty"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	Visible     bool      `json:"visible"`
	Hidden      string    `json:"hidden,omitempty"`
}

type spanView struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

func toSuggestionView(preds *domain.Predictions, sug *domain.Suggestion) suggestionView {
	state, reason := preds.State(sug.ID)
	anchor := sug.Anchor()
	view := suggestionView{
		VID:         preds.VID(sug),
		Document:    sug.Document,
		Kind:        sug.Kind.String(),
		Layer:       sug.LayerID,
		Feature:     sug.Feature,
		Label:       sug.Label,
		Begin:       anchor.Begin,
		End:         anchor.End,
		Recommender: sug.RecommenderName,
		Explanation: sug.Explanation,
		State:       state.String(),
		Reason:      reason,
		Visible:     sug.Visible,
		Hidden:      sug.HideReasons.String(),
	}
	if sug.HasScore() {
		score := sug.Score
		view.Score = &score
	}
	if sug.Kind == domain.KindRelation {
		view.Target = &spanView{Begin: sug.Target.Begin, End: sug.Target.End}
	}
	return view
}

type actionView struct {
	Action     string         `json:"action"`
	Suggestion suggestionView `json:"suggestion"`
	Annotation string         `json:"annotation,omitempty"`
	Document   string         `json:"document"`
	Anchor     spanView       `json:"anchor"`
}

func toActionView(preds *domain.Predictions, result *driving.ActionResult) actionView {
	return actionView{
		Action:     string(result.Action),
		Suggestion: toSuggestionView(preds, &result.Suggestion),
		Annotation: result.AnnotationRef,
		Document:   result.Document,
		Anchor:     spanView{Begin: result.Anchor.Begin, End: result.Anchor.End},
	}
}

type detailView struct {
	Recommender string   `json:"recommender"`
	Label       string   `json:"label"`
	Score       *float64 `json:"score,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func toDetailViews(details []driving.SuggestionDetail) []detailView {
	views := make([]detailView, len(details))
	for i, d := range details {
		views[i] = detailView{Recommender: d.RecommenderName, Label: d.Label, Explanation: d.Explanation}
		if d.Score != domain.NoScore {
			score := d.Score
			views[i].Score = &score
		}
	}
	return views
}

type runView struct {
	ID          string     `json:"id"`
	Generation  uint64     `json:"generation"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Suggestions int        `json:"suggestions"`
	Committed   bool       `json:"committed"`
	Errors      []string   `json:"errors,omitempty"`
}

type statusView struct {
	Running          bool     `json:"running"`
	ActiveGeneration uint64   `json:"active_generation"`
	LastRun          *runView `json:"last_run,omitempty"`
}

func toStatusView(status *driving.RunStatus) statusView {
	view := statusView{Running: status.Running, ActiveGeneration: status.ActiveGeneration}
	if run := status.LastRun; run != nil {
		view.LastRun = &runView{
			ID:          run.ID,
			Generation:  run.Generation,
			StartedAt:   run.StartedAt,
			Suggestions: run.Suggestions,
			Committed:   run.Committed,
			Errors:      run.Errors,
		}
		if !run.EndedAt.IsZero() {
			ended := run.EndedAt
			view.LastRun.EndedAt = &ended
		}
	}
	return view
}

type documentView struct {
	Name      string     `json:"name"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type syncView struct {
	Dataset   string   `json:"dataset"`
	Uploaded  int      `json:"uploaded"`
	Deleted   int      `json:"deleted"`
	Unchanged int      `json:"unchanged"`
	Failed    []string `json:"failed,omitempty"`
}

type classifierView struct {
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Model     string `json:"model,omitempty"`
	Trainable bool   `json:"trainable"`
}

type evaluationView struct {
	Step       int                       `json:"step"`
	TrainSize  int                       `json:"train_size"`
	TestSize   int                       `json:"test_size"`
	Metrics    map[string]float64        `json:"metrics,omitempty"`
	Confusion  map[string]map[string]int `json:"confusion,omitempty"`
	Skipped    bool                      `json:"skipped,omitempty"`
	SkipReason string                    `json:"skip_reason,omitempty"`
}

func toEvaluationView(r domain.EvaluationResult) evaluationView {
	return evaluationView{
		Step:       r.Step,
		TrainSize:  r.TrainSize,
		TestSize:   r.TestSize,
		Metrics:    r.Metrics,
		Confusion:  r.Confusion,
		Skipped:    r.Skipped,
		SkipReason: r.SkipReason,
	}
}

type taskView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Interval    string     `json:"interval"`
	Enabled     bool       `json:"enabled"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func toTaskView(t domain.ScheduledTask) taskView {
	return taskView{
		ID:          t.ID,
		Name:        t.Name,
		Interval:    t.Interval.String(),
		Enabled:     t.Enabled,
		LastRun:     optionalTime(t.LastRun),
		NextRun:     optionalTime(t.NextRun),
		LastSuccess: optionalTime(t.LastSuccess),
		LastError:   t.LastError,
	}
}

type resultView struct {
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	ItemsProcessed int       `json:"items_processed"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toResultView(r domain.TaskResult) resultView {
	return resultView{
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		Success:        r.Success,
		Error:          r.Error,
		ItemsProcessed: r.ItemsProcessed,
	}
}
