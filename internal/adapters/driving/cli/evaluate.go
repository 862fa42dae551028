package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

var (
	evalTrainRatio float64
	evalStep       int
	evalMinSamples int
	evalJSON       bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <recommender-id>",
	Short: "Compute a learning curve for a recommender",
	Long: `Evaluates a recommender on the user's confirmed annotations.

The annotations are split into a training and a test set. The recommender is
trained on a growing share of the training set and scored on the test set
after every step, producing one learning curve point per step.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().Float64Var(&evalTrainRatio, "train-ratio", 0, "fraction of samples used for training")
	evaluateCmd.Flags().IntVar(&evalStep, "step", 0, "training samples added per step")
	evaluateCmd.Flags().IntVar(&evalMinSamples, "min-samples", 0, "minimum training set size")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if corpusService == nil {
		return errors.New("corpus service not configured")
	}
	if evaluationService == nil {
		return errors.New("evaluation service not configured")
	}
	owner, err := dataOwner()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rec, corpus, err := corpusService.LoadCorpus(ctx, args[0], owner)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	cfg := splitterConfig(cmd)
	var results []domain.EvaluationResult
	for result, err := range evaluationService.Evaluate(ctx, *rec, corpus, cfg) {
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}
		results = append(results, result)
		if !evalJSON {
			printEvaluationResult(cmd, rec, result)
		}
	}

	if evalJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
	}
	return nil
}

// splitterConfig starts from the configured settings and applies the flags.
func splitterConfig(cmd *cobra.Command) domain.SplitterConfig {
	cfg := domain.DefaultSplitterConfig()
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			cfg = settings.Evaluation
		}
	}
	if cmd.Flags().Changed("train-ratio") {
		cfg.TrainRatio = evalTrainRatio
	}
	if cmd.Flags().Changed("step") {
		cfg.Step = evalStep
	}
	if cmd.Flags().Changed("min-samples") {
		cfg.MinSamples = evalMinSamples
	}
	return cfg
}

func printEvaluationResult(cmd *cobra.Command, rec *domain.Recommender, r domain.EvaluationResult) {
	if r.Skipped {
		cmd.Println(warningStyle.Render(fmt.Sprintf("Skipped %s: %s", rec.ID, r.SkipReason)))
		return
	}
	if r.Step == 1 {
		cmd.Println(titleStyle.Render("Learning curve for " + rec.ID))
		cmd.Printf("  %4s %6s %6s %9s %9s %9s %9s\n", "step", "train", "test", "accuracy", "precision", "recall", "f1")
	}
	cmd.Printf("  %4d %6d %6d %9.3f %9.3f %9.3f %9.3f\n", r.Step, r.TrainSize, r.TestSize,
		r.Metrics[domain.MetricAccuracy], r.Metrics[domain.MetricPrecision],
		r.Metrics[domain.MetricRecall], r.Metrics[domain.MetricF1])
}
