// Command suggest runs recommenders over annotated text documents and offers
// their predictions as suggestions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-labs/suggest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/suggest/internal/adapters/driven/engines"
	"github.com/custodia-labs/suggest/internal/adapters/driven/remote"
	"github.com/custodia-labs/suggest/internal/adapters/driven/storage/contextcache"
	"github.com/custodia-labs/suggest/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/suggest/internal/adapters/driving/cli"
	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/services"
	"github.com/custodia-labs/suggest/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// envFile holds local overrides of configuration keys.
const envFile = ".env"

func main() {
	if err := cli.Execute(version, bootstrap); err != nil {
		os.Exit(1)
	}
}

// bootstrap wires the driven adapters into the core services.
func bootstrap(opts cli.Options) (*cli.Services, func(), error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	overrides, err := configStore.ApplyEnv(envFile, services.ConfigKeys()...)
	if err != nil {
		return nil, nil, err
	}

	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	logger.SetVerbose(opts.Verbose || settings.Log.Verbose)
	if settings.Log.File != "" {
		if err := logger.SetFile(settings.Log.File); err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
	}
	logger.Debug("Applied %d configuration overrides from the environment", overrides)

	store, err := sqlite.NewStore(settings.DataDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Database: %s", store.Path())

	annotations := store.AnnotationStore()
	recommenders := store.RecommenderStore()
	registered, err := settingsService.RegisterRecommenders(context.Background(), recommenders)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Debug("Registered %d recommenders", registered)

	// client stays a nil interface when no remote service is configured.
	var client driven.RemoteRecommenderClient
	var synchronizer *services.DatasetSynchronizer
	if settings.Remote.IsConfigured() {
		c, err := remote.NewClient(remote.Config{
			BaseURL:        settings.Remote.BaseURL,
			ConnectTimeout: settings.Remote.ConnectTimeout,
			ReadTimeout:    settings.Remote.ReadTimeout,
			RatePerSecond:  settings.Remote.RatePerSecond,
			Burst:          settings.Remote.Burst,
		})
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		client = c
		synchronizer = services.NewDatasetSynchronizer(c)
	}

	engineFactory := engines.NewFactory()
	engineFactory.Register(services.ToolExternal, func(rec domain.Recommender) (driven.RecommendationEngine, error) {
		return services.NewExternalRecommender(rec, client, synchronizer)
	})

	cache := services.NewPredictionCache()
	learning := store.LearningRecordStore()

	recommendation := services.NewRecommendationService(
		cache, annotations, recommenders, engineFactory,
		contextcache.New(settings.Prediction.ContextTTL),
		services.WithLearningRecords(learning),
		services.WithRunHistory(store.TrainingRunStore()),
		services.WithWorkers(settings.Prediction.Workers),
	)
	datasets := services.NewDatasetSyncService(recommenders, annotations, client, synchronizer)

	svc := &cli.Services{
		Settings:       settingsService,
		Suggestions:    services.NewSuggestionService(cache, annotations, recommenders, learning),
		Recommendation: recommendation,
		Sync:           datasets,
		Evaluation:     services.NewEvaluationService(engineFactory),
		Corpus:         services.NewCorpusService(annotations, annotations, recommenders),
		Scheduler: services.NewScheduler(
			settings.Scheduler, store.SchedulerStore(), cache, recommenders, recommendation, datasets),
	}

	cleanup := func() {
		recommendation.Shutdown()
		if err := store.Close(); err != nil {
			logger.Warn("Closing database: %v", err)
		}
		logger.Sync() //nolint:errcheck
	}
	return svc, cleanup, nil
}
