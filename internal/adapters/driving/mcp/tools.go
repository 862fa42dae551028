package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// KeyInput identifies the prediction cache entry a tool works on.
type KeyInput struct {
	User    string `json:"user" jsonschema:"the user viewing the suggestions"`
	Owner   string `json:"owner,omitempty" jsonschema:"the user whose annotations are edited (defaults to user)"`
	Project string `json:"project" jsonschema:"the project identifier"`
}

func (in KeyInput) key() (domain.PredictionKey, error) {
	owner := in.Owner
	if owner == "" {
		owner = in.User
	}
	key := domain.PredictionKey{SessionOwner: in.User, DataOwner: owner, ProjectID: in.Project}
	if err := key.Validate(); err != nil {
		return domain.PredictionKey{}, err
	}
	return key, nil
}

// PredictInput is the input schema for the predict tool.
type PredictInput struct {
	KeyInput
	Retrain bool `json:"retrain,omitempty" jsonschema:"drop trained models before predicting"`
	Wait    bool `json:"wait,omitempty" jsonschema:"block until the run finished"`
}

// PredictOutput is the output schema for the predict tool.
type PredictOutput struct {
	Generation uint64 `json:"generation"`
	Running    bool   `json:"running"`
	Offered    int    `json:"offered"`
}

// ListInput is the input schema for the list_suggestions tool.
type ListInput struct {
	KeyInput
	Document      string `json:"document,omitempty" jsonschema:"restrict to one document"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"include hidden and decided suggestions"`
}

// ListOutput is the output schema for the list_suggestions tool.
type ListOutput struct {
	Generation  uint64             `json:"generation"`
	Suggestions []SuggestionOutput `json:"suggestions"`
	Count       int                `json:"count"`
}

// SuggestionOutput represents a single suggestion.
type SuggestionOutput struct {
	VID         string   `json:"vid"`
	Document    string   `json:"document"`
	Kind        string   `json:"kind"`
	Layer       string   `json:"layer"`
	Feature     string   `json:"feature"`
	Label       string   `json:"label"`
	Score       *float64 `json:"score,omitempty"`
	Begin       int      `json:"begin"`
	End         int      `json:"end"`
	TargetBegin *int     `json:"target_begin,omitempty"`
	TargetEnd   *int     `json:"target_end,omitempty"`
	Recommender string   `json:"recommender"`
	Explanation string   `json:"explanation,omitempty"`
	State       string   `json:"state"`
	Visible     bool     `json:"visible"`
	Hidden      string   `json:"hidden,omitempty"`
}

// ActionInput is the input schema for the accept and reject tools.
type ActionInput struct {
	KeyInput
	VID    string `json:"vid" jsonschema:"the suggestion address returned by list_suggestions"`
	Reason string `json:"reason,omitempty" jsonschema:"why the suggestion is rejected"`
}

// ActionOutput is the output schema for the accept and reject tools.
type ActionOutput struct {
	Action     string           `json:"action"`
	Suggestion SuggestionOutput `json:"suggestion"`
	Annotation string           `json:"annotation,omitempty"`
	Document   string           `json:"document"`
	Begin      int              `json:"begin"`
	End        int              `json:"end"`
}

// SwitchOutput is the output schema for the switch_predictions tool.
type SwitchOutput struct {
	Switched   bool   `json:"switched"`
	Generation uint64 `json:"generation"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	if s.ports.Recommendation != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "predict",
			Description: "Run the project's recommenders in the background",
		}, s.handlePredict)
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_suggestions",
		Description: "List the suggestions of the active generation",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "accept_suggestion",
		Description: "Accept a suggestion, creating or updating an annotation",
	}, s.handleAccept)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reject_suggestion",
		Description: "Reject a suggestion so it is not offered again",
	}, s.handleReject)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "switch_predictions",
		Description: "Report whether a newer generation became active since the last call",
	}, s.handleSwitch)
}

// handlePredict handles the predict tool invocation.
func (s *Server) handlePredict(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PredictInput,
) (*mcp.CallToolResult, PredictOutput, error) {
	key, err := input.key()
	if err != nil {
		return nil, PredictOutput{}, err
	}
	if s.ports.Recommendation == nil {
		return nil, PredictOutput{}, domain.ErrNotImplemented
	}

	trigger := s.ports.Recommendation.Trigger
	if input.Retrain {
		trigger = s.ports.Recommendation.Retrain
	}
	gen, err := trigger(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrGenerationInProgress) {
		return nil, PredictOutput{}, fmt.Errorf("starting prediction: %w", err)
	}

	output := PredictOutput{Generation: gen, Running: true}
	if input.Wait {
		if err := s.ports.Recommendation.Wait(ctx, key); err != nil {
			return nil, PredictOutput{}, fmt.Errorf("waiting for prediction: %w", err)
		}
		output.Running = false
	}

	preds := s.ports.Suggestions.GetPredictions(key)
	for _, doc := range preds.Documents() {
		output.Offered += len(preds.Offered(doc))
	}
	return nil, output, nil
}

// handleList handles the list_suggestions tool invocation.
func (s *Server) handleList(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	key, err := input.key()
	if err != nil {
		return nil, ListOutput{}, err
	}

	preds := s.ports.Suggestions.GetPredictions(key)
	docs := preds.Documents()
	if input.Document != "" {
		docs = []string{input.Document}
	}

	output := ListOutput{Generation: preds.Generation, Suggestions: []SuggestionOutput{}}
	for _, doc := range docs {
		list := preds.Offered(doc)
		if input.IncludeHidden {
			list = preds.ForDocument(doc)
		}
		for i := range list {
			output.Suggestions = append(output.Suggestions, toSuggestionOutput(preds, &list[i]))
		}
	}
	output.Count = len(output.Suggestions)
	return nil, output, nil
}

// handleAccept handles the accept_suggestion tool invocation.
func (s *Server) handleAccept(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ActionInput,
) (*mcp.CallToolResult, ActionOutput, error) {
	key, err := input.key()
	if err != nil {
		return nil, ActionOutput{}, err
	}
	result, err := s.ports.Suggestions.Accept(ctx, key, input.VID)
	if err != nil {
		return nil, ActionOutput{}, err
	}
	return nil, toActionOutput(s.ports.Suggestions.GetPredictions(key), result), nil
}

// handleReject handles the reject_suggestion tool invocation.
func (s *Server) handleReject(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ActionInput,
) (*mcp.CallToolResult, ActionOutput, error) {
	key, err := input.key()
	if err != nil {
		return nil, ActionOutput{}, err
	}
	result, err := s.ports.Suggestions.Reject(ctx, key, input.VID, input.Reason)
	if err != nil {
		return nil, ActionOutput{}, err
	}
	return nil, toActionOutput(s.ports.Suggestions.GetPredictions(key), result), nil
}

// handleSwitch handles the switch_predictions tool invocation.
func (s *Server) handleSwitch(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input KeyInput,
) (*mcp.CallToolResult, SwitchOutput, error) {
	key, err := input.key()
	if err != nil {
		return nil, SwitchOutput{}, err
	}
	switched := s.ports.Suggestions.SwitchPredictions(key)
	return nil, SwitchOutput{
		Switched:   switched,
		Generation: s.ports.Suggestions.GetPredictions(key).Generation,
	}, nil
}

func toSuggestionOutput(preds *domain.Predictions, sug *domain.Suggestion) SuggestionOutput {
	state, _ := preds.State(sug.ID)
	out := SuggestionOutput{
		VID:         preds.VID(sug),
		Document:    sug.Document,
		Kind:        sug.Kind.String(),
		Layer:       sug.LayerID,
		Feature:     sug.Feature,
		Label:       sug.Label,
		Begin:       sug.Anchor().Begin,
		End:         sug.Anchor().End,
		Recommender: sug.RecommenderName,
		Explanation: sug.Explanation,
		State:       state.String(),
		Visible:     sug.Visible,
		Hidden:      sug.HideReasons.String(),
	}
	if sug.HasScore() {
		score := sug.Score
		out.Score = &score
	}
	if sug.Kind == domain.KindRelation {
		begin, end := sug.Target.Begin, sug.Target.End
		out.TargetBegin = &begin
		out.TargetEnd = &end
	}
	return out
}

func toActionOutput(preds *domain.Predictions, result *driving.ActionResult) ActionOutput {
	return ActionOutput{
		Action:     string(result.Action),
		Suggestion: toSuggestionOutput(preds, &result.Suggestion),
		Annotation: result.AnnotationRef,
		Document:   result.Document,
		Begin:      result.Anchor.Begin,
		End:        result.Anchor.End,
	}
}
