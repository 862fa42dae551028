package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change the application settings stored in config.toml.

Recommenders are configured as [[recommenders]] tables in the file itself.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a single configuration value, e.g.

  suggest settings set remote.base_url http://localhost:5000
  suggest settings set evaluation.train_ratio 0.7
  suggest settings set scheduler.tasks.dataset-sync.interval 30m`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	s, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	section := func(title string) { cmd.Println(titleStyle.Render(title)) }
	field := func(name string, value any) {
		cmd.Printf("  %-18s %v\n", labelStyle.Render(name), value)
	}

	section("General")
	field("data dir", orNone(s.DataDir))
	field("log file", orNone(s.Log.File))
	field("verbose", s.Log.Verbose)

	section("Remote recommender service")
	field("base url", orNone(s.Remote.BaseURL))
	field("connect timeout", s.Remote.ConnectTimeout)
	field("read timeout", s.Remote.ReadTimeout)
	field("rate", fmt.Sprintf("%.1f/s burst %d", s.Remote.RatePerSecond, s.Remote.Burst))

	section("Prediction")
	field("workers", s.Prediction.Workers)
	field("context ttl", s.Prediction.ContextTTL)

	section("Evaluation")
	field("train ratio", s.Evaluation.TrainRatio)
	if s.Evaluation.Step > 0 {
		field("step", s.Evaluation.Step)
	} else {
		field("step fraction", s.Evaluation.StepFraction)
	}
	field("min samples", s.Evaluation.MinSamples)

	section("HTTP")
	field("addr", s.HTTP.Addr)

	section("Scheduler")
	field("enabled", s.Scheduler.Enabled)
	taskIDs := make([]string, 0, len(s.Scheduler.TaskConfigs))
	for id := range s.Scheduler.TaskConfigs {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)
	for _, id := range taskIDs {
		tc := s.Scheduler.TaskConfigs[id]
		field(id, fmt.Sprintf("enabled=%t every %s", tc.Enabled, tc.Interval))
	}

	section("Recommenders")
	if len(s.Recommenders) == 0 {
		cmd.Println(mutedStyle.Render("  none configured"))
	}
	for i := range s.Recommenders {
		printRecommender(cmd, &s.Recommenders[i])
	}
	return nil
}

func printRecommender(cmd *cobra.Command, r *domain.Recommender) {
	state := ""
	if !r.Enabled {
		state = mutedStyle.Render(" (disabled)")
	}
	cmd.Printf("  %s%s  %s  %s/%s  project %s\n", labelStyle.Render(r.ID), state,
		r.Tool, r.LayerID, r.Feature, r.ProjectID)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Set(args[0], parseValue(args[1])); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	cmd.Printf("%s = %s\n", args[0], args[1])
	return nil
}

// parseValue keeps TOML types for booleans and numbers.
func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
