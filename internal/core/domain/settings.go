package domain

import "time"

// LogSettings configures logging.
type LogSettings struct {
	// File is an optional path of a rotating JSON log file.
	File    string
	Verbose bool
}

// RemoteSettings configures the client of the remote recommender service.
type RemoteSettings struct {
	// BaseURL is empty when no remote service is configured.
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// RatePerSecond and Burst throttle outgoing requests.
	RatePerSecond float64
	Burst         int
}

// IsConfigured reports whether a remote service is configured.
func (r RemoteSettings) IsConfigured() bool {
	return r.BaseURL != ""
}

// PredictionSettings configures background prediction runs.
type PredictionSettings struct {
	// Workers bounds the documents predicted in parallel per run.
	Workers int

	// ContextTTL is the idle time after which a trained recommender context
	// is dropped.
	ContextTTL time.Duration
}

// HTTPSettings configures the REST adapter.
type HTTPSettings struct {
	Addr string
}

// AppSettings is the typed application configuration.
type AppSettings struct {
	DataDir      string
	Log          LogSettings
	Remote       RemoteSettings
	Prediction   PredictionSettings
	Evaluation   SplitterConfig
	HTTP         HTTPSettings
	Scheduler    SchedulerConfig
	Recommenders []Recommender
}

// DefaultAppSettings returns the defaults used when nothing is configured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Remote: RemoteSettings{
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    30 * time.Second,
			RatePerSecond:  10,
			Burst:          5,
		},
		Prediction: PredictionSettings{
			Workers:    4,
			ContextTTL: 30 * time.Minute,
		},
		Evaluation: DefaultSplitterConfig(),
		HTTP:       HTTPSettings{Addr: ":8089"},
		Scheduler:  DefaultSchedulerConfig(),
	}
}
