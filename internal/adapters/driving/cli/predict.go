package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

var (
	predictRetrain  bool
	predictAll      bool
	predictDocument string
	predictJSON     bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run the project's recommenders and list their suggestions",
	Long: `Runs every enabled recommender of the project for the given user and
prints the suggestions of the resulting generation.

Suggestions hidden because they overlap confirmed annotations, were rejected
before or score below the recommender threshold are shown with --all.`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().BoolVar(&predictRetrain, "retrain", false, "drop trained models before predicting")
	predictCmd.Flags().BoolVarP(&predictAll, "all", "a", false, "include hidden and decided suggestions")
	predictCmd.Flags().StringVarP(&predictDocument, "document", "d", "", "only list suggestions of this document")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "output suggestions as JSON")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, _ []string) error {
	key, err := predictionKey()
	if err != nil {
		return err
	}

	preds, err := predict(cmd, key, predictRetrain)
	if err != nil {
		return err
	}

	list := collectSuggestions(preds, predictDocument, predictAll)
	if predictJSON {
		return outputSuggestionsJSON(cmd, preds, list)
	}

	cmd.Println(titleStyle.Render(fmt.Sprintf("Generation %d", preds.Generation)) +
		mutedStyle.Render(fmt.Sprintf(" (%d suggestions)", len(list))))
	printSuggestions(cmd, preds, list)
	return nil
}

// predict starts a run, waits for it and returns the active generation.
func predict(cmd *cobra.Command, key domain.PredictionKey, retrain bool) (*domain.Predictions, error) {
	ctx := cmd.Context()
	if recommendationService == nil {
		return nil, errors.New("recommendation service not configured")
	}
	if suggestionService == nil {
		return nil, errors.New("suggestion service not configured")
	}

	trigger := recommendationService.Trigger
	if retrain {
		trigger = recommendationService.Retrain
	}
	if _, err := trigger(ctx, key); err != nil && !errors.Is(err, domain.ErrGenerationInProgress) {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	if err := recommendationService.Wait(ctx, key); err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	if status, err := recommendationService.Status(ctx, key); err == nil && status.LastRun != nil {
		for _, msg := range status.LastRun.Errors {
			cmd.PrintErrln(warningStyle.Render("warning: " + msg))
		}
	}
	return suggestionService.GetPredictions(key), nil
}

type suggestionJSON struct {
	VID         string   `json:"vid"`
	Document    string   `json:"document"`
	Kind        string   `json:"kind"`
	Layer       string   `json:"layer"`
	Feature     string   `json:"feature"`
	Label       string   `json:"label"`
	Score       *float64 `json:"score,omitempty"`
	Begin       int      `json:"begin"`
	End         int      `json:"end"`
	Recommender string   `json:"recommender"`
	State       string   `json:"state"`
	Visible     bool     `json:"visible"`
}

func outputSuggestionsJSON(cmd *cobra.Command, preds *domain.Predictions, list []domain.Suggestion) error {
	out := make([]suggestionJSON, len(list))
	for i := range list {
		s := &list[i]
		state, _ := preds.State(s.ID)
		anchor := s.Anchor()
		out[i] = suggestionJSON{
			VID:         preds.VID(s),
			Document:    s.Document,
			Kind:        s.Kind.String(),
			Layer:       s.LayerID,
			Feature:     s.Feature,
			Label:       s.Label,
			Begin:       anchor.Begin,
			End:         anchor.End,
			Recommender: s.RecommenderName,
			State:       state.String(),
			Visible:     s.Visible,
		}
		if s.HasScore() {
			score := s.Score
			out[i].Score = &score
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
