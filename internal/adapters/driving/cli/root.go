// Package cli implements the suggest command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

// skipBootstrap marks commands that run without services.
const skipBootstrap = "skip-bootstrap"

// Options are the global flags passed to the bootstrap function.
type Options struct {
	ConfigDir string
	Verbose   bool
}

// Services holds the driving ports used by the commands.
type Services struct {
	Settings       driving.SettingsService
	Suggestions    driving.SuggestionService
	Recommendation driving.RecommendationService
	Sync           driving.DatasetSyncService
	Evaluation     driving.EvaluationService
	Corpus         driving.CorpusService
	Scheduler      driving.Scheduler
}

// BootstrapFunc wires the services. The returned cleanup runs after the command.
type BootstrapFunc func(opts Options) (*Services, func(), error)

var (
	version = "dev"

	configDir   string
	verbose     bool
	flagUser    string
	flagOwner   string
	flagProject string

	bootstrap BootstrapFunc
	cleanup   func()

	settingsService       driving.SettingsService
	suggestionService     driving.SuggestionService
	recommendationService driving.RecommendationService
	syncService           driving.DatasetSyncService
	evaluationService     driving.EvaluationService
	corpusService         driving.CorpusService
	scheduler             driving.Scheduler
)

var rootCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Annotation suggestions from pluggable recommenders",
	Long: `suggest runs recommenders over a project's documents and offers their
predictions as suggestions that can be accepted or rejected.

Documents are imported from a directory of .txt files with optional
.ann.json annotation sidecars. Recommenders are configured in config.toml.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: runBootstrap,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.suggest)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", os.Getenv("USER"), "user viewing the suggestions")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "user whose annotations are edited (default: --user)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "project identifier")
}

// SetServices installs the services used by the commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	settingsService = s.Settings
	suggestionService = s.Suggestions
	recommendationService = s.Recommendation
	syncService = s.Sync
	evaluationService = s.Evaluation
	corpusService = s.Corpus
	scheduler = s.Scheduler
}

// Execute runs the root command. boot may be nil when services were set with
// SetServices.
func Execute(v string, boot BootstrapFunc) error {
	version = v
	bootstrap = boot
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		return err
	}
	return nil
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || cmd.Annotations[skipBootstrap] != "" {
		return nil
	}

	services, done, err := bootstrap(Options{ConfigDir: configDir, Verbose: verbose})
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = done
	return nil
}

// predictionKey builds the key from the global flags.
func predictionKey() (domain.PredictionKey, error) {
	owner := flagOwner
	if owner == "" {
		owner = flagUser
	}
	key := domain.PredictionKey{SessionOwner: flagUser, DataOwner: owner, ProjectID: flagProject}
	if err := key.Validate(); err != nil {
		return domain.PredictionKey{}, errors.New("--user and --project are required")
	}
	return key, nil
}

// dataOwner returns the user whose annotations a command reads.
func dataOwner() (string, error) {
	owner := flagOwner
	if owner == "" {
		owner = flagUser
	}
	if owner == "" {
		return "", errors.New("--user is required")
	}
	return owner, nil
}
