package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyDataDir              = "data_dir"
	keyLogFile              = "log.file"
	keyLogVerbose           = "log.verbose"
	keyRemoteBaseURL        = "remote.base_url"
	keyRemoteConnectTimeout = "remote.connect_timeout"
	keyRemoteReadTimeout    = "remote.read_timeout"
	keyRemoteRate           = "remote.rate_per_second"
	keyRemoteBurst          = "remote.burst"
	keyPredictionWorkers    = "prediction.workers"
	keyPredictionContextTTL = "prediction.context_ttl"
	keyEvaluationTrainRatio = "evaluation.train_ratio"
	keyEvaluationStep       = "evaluation.step"
	keyEvaluationStepFrac   = "evaluation.step_fraction"
	keyEvaluationMinSamples = "evaluation.min_samples"
	keyHTTPAddr             = "http.addr"
	keySchedulerEnabled     = "scheduler.enabled"
	keyRecommenders         = "recommenders"
	schedulerTaskKeyPrefix  = "scheduler.tasks."
)

// ConfigKeys lists the scalar keys that may be overridden from the environment.
func ConfigKeys() []string {
	keys := []string{
		keyDataDir, keyLogFile, keyLogVerbose,
		keyRemoteBaseURL, keyRemoteConnectTimeout, keyRemoteReadTimeout, keyRemoteRate, keyRemoteBurst,
		keyPredictionWorkers, keyPredictionContextTTL,
		keyEvaluationTrainRatio, keyEvaluationStep, keyEvaluationStepFrac, keyEvaluationMinSamples,
		keyHTTPAddr, keySchedulerEnabled,
	}
	for _, taskID := range []string{domain.TaskIDPredictionRefresh, domain.TaskIDDatasetSync} {
		keys = append(keys,
			schedulerTaskKeyPrefix+taskID+".enabled",
			schedulerTaskKeyPrefix+taskID+".interval")
	}
	return keys
}

// SettingsService builds typed settings from a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	recommenders, err := s.recommenders()
	if err != nil {
		return nil, err
	}

	settings := &domain.AppSettings{
		DataDir: s.configStore.GetString(keyDataDir),
		Log: domain.LogSettings{
			File:    s.configStore.GetString(keyLogFile),
			Verbose: s.getBool(keyLogVerbose, false),
		},
		Remote: domain.RemoteSettings{
			BaseURL:        s.configStore.GetString(keyRemoteBaseURL),
			ConnectTimeout: s.getDuration(keyRemoteConnectTimeout, defaults.Remote.ConnectTimeout),
			ReadTimeout:    s.getDuration(keyRemoteReadTimeout, defaults.Remote.ReadTimeout),
			RatePerSecond:  s.getFloat(keyRemoteRate, defaults.Remote.RatePerSecond),
			Burst:          s.getInt(keyRemoteBurst, defaults.Remote.Burst),
		},
		Prediction: domain.PredictionSettings{
			Workers:    s.getInt(keyPredictionWorkers, defaults.Prediction.Workers),
			ContextTTL: s.getDuration(keyPredictionContextTTL, defaults.Prediction.ContextTTL),
		},
		Evaluation: domain.SplitterConfig{
			TrainRatio:   s.getFloat(keyEvaluationTrainRatio, defaults.Evaluation.TrainRatio),
			Step:         s.getInt(keyEvaluationStep, defaults.Evaluation.Step),
			StepFraction: s.getFloat(keyEvaluationStepFrac, defaults.Evaluation.StepFraction),
			MinSamples:   s.getInt(keyEvaluationMinSamples, defaults.Evaluation.MinSamples),
		},
		HTTP: domain.HTTPSettings{
			Addr: s.getString(keyHTTPAddr, defaults.HTTP.Addr),
		},
		Scheduler:    s.GetSchedulerConfig(),
		Recommenders: recommenders,
	}

	return settings, nil
}

// Set stores a single configuration value.
func (s *SettingsService) Set(key string, value any) error {
	if key == "" {
		return domain.ErrInvalidInput
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()
	defaults.Enabled = s.getBool(keySchedulerEnabled, defaults.Enabled)

	for taskID, taskCfg := range defaults.TaskConfigs {
		prefix := schedulerTaskKeyPrefix + taskID + "."
		taskCfg.Enabled = s.getBool(prefix+"enabled", taskCfg.Enabled)
		taskCfg.Interval = s.getDuration(prefix+"interval", taskCfg.Interval)
		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// RegisterRecommenders saves the configured recommenders into store.
func (s *SettingsService) RegisterRecommenders(ctx context.Context, store driven.RecommenderStore) (int, error) {
	recommenders, err := s.recommenders()
	if err != nil {
		return 0, err
	}
	for _, rec := range recommenders {
		if err := store.Save(ctx, rec); err != nil {
			return 0, fmt.Errorf("save recommender %s: %w", rec.ID, err)
		}
	}
	return len(recommenders), nil
}

// recommenders parses the [[recommenders]] tables.
func (s *SettingsService) recommenders() ([]domain.Recommender, error) {
	tables := s.configStore.GetTables(keyRecommenders)
	result := make([]domain.Recommender, 0, len(tables))
	var errs []error

	for i, t := range tables {
		rec := domain.Recommender{
			ID:                 tableString(t, "id"),
			ProjectID:          tableString(t, "project"),
			Name:               tableString(t, "name"),
			LayerID:            tableString(t, "layer"),
			Feature:            tableString(t, "feature"),
			Tool:               tableString(t, "tool"),
			Traits:             tableString(t, "traits"),
			Enabled:            tableBool(t, "enabled", true),
			Threshold:          tableFloat(t, "threshold"),
			AttachLayerID:      tableString(t, "attach_layer"),
			MaxRecommendations: int(tableFloat(t, "max_recommendations")),
		}
		if rec.Name == "" {
			rec.Name = rec.ID
		}

		var missing []string
		for _, f := range [][2]string{
			{"id", rec.ID}, {"project", rec.ProjectID}, {"layer", rec.LayerID},
			{"feature", rec.Feature}, {"tool", rec.Tool},
		} {
			if f[1] == "" {
				missing = append(missing, f[0])
			}
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("%w: recommenders[%d] missing %v", domain.ErrInvalidInput, i, missing))
			continue
		}
		result = append(result, rec)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func tableString(t map[string]any, key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}

func tableBool(t map[string]any, key string, defaultVal bool) bool {
	if v, ok := t[key].(bool); ok {
		return v
	}
	return defaultVal
}

// tableFloat reads a number; TOML integers decode as int64.
func tableFloat(t map[string]any, key string) float64 {
	switch v := t[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
