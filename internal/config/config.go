package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServerPort          = 8070
	defaultReadTimeoutSec      = 30
	defaultWriteTimeoutSec     = 30
	defaultIdleTimeoutSec      = 60
	defaultConcurrencyLimit    = 5
	defaultDispatchIntervalSec = 1
	defaultJobTimeoutMin       = 10
	defaultRetryDelaySec       = 30
	defaultMaxAttempts         = 3
	defaultGraceTimeoutSec     = 30
	defaultStopTimeoutSec      = 30
	defaultStuckThresholdHr    = 2
	defaultPollIntervalSec     = 2
	defaultCycleTimeoutHr      = 1
	defaultMaxResults          = 10
	defaultCleanupDays         = 30
	defaultCollectorTimeoutSec = 120
	defaultCollectorRateLimit  = 1.0
	defaultCollectorBurst      = 1
	defaultEventBufferSize     = 64
	defaultQueryFile           = "queries.yml"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
)

// DefaultEngines is the engine pool collected from when a cycle does not name
// its own.
var DefaultEngines = []string{"google", "bing", "duckduckgo"}

// Config is the engine configuration loaded from YAML with env overrides.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Queue        QueueConfig        `yaml:"queue"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Collector    CollectorConfig    `yaml:"collector"`
	Queries      QueriesConfig      `yaml:"queries"`
	Events       EventsConfig       `yaml:"events"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the HTTP status API configuration.
type ServerConfig struct {
	// Enabled toggles the API server. Unset means enabled.
	Enabled      *bool         `yaml:"enabled"`
	Address      string        `env:"SERVER_ADDRESS" yaml:"address"`
	Port         int           `env:"ENGINE_PORT"    yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	// ConcurrencyLimit caps the number of simultaneously running jobs.
	ConcurrencyLimit int `env:"QUEUE_CONCURRENCY" yaml:"concurrency_limit"`
	// DispatchInterval is the dispatch tick period.
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	// JobTimeout bounds a single handler invocation.
	JobTimeout time.Duration `yaml:"job_timeout"`
	// RetryDelay is the fixed delay before a failed job becomes eligible again.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxAttempts is the default attempt budget for jobs that do not set one.
	MaxAttempts int `yaml:"max_attempts"`
	// GraceTimeout bounds the wait for in-flight jobs on Stop.
	GraceTimeout time.Duration `yaml:"grace_timeout"`
}

// SchedulerConfig holds cron scheduler configuration.
type SchedulerConfig struct {
	// StopTimeout bounds the wait for active executions on Stop.
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// StuckThreshold is the running duration after which an execution is
	// reported as stuck.
	StuckThreshold time.Duration `yaml:"stuck_threshold"`
	// CriticalJobs lists job ids whose failures raise a critical signal.
	CriticalJobs []string `yaml:"critical_jobs"`
	// Jobs overrides cadence or enablement of the default job set by id.
	Jobs []ScheduledJobOverride `yaml:"jobs"`
}

// ScheduledJobOverride adjusts one default scheduled job.
type ScheduledJobOverride struct {
	ID      string `yaml:"id"`
	Cron    string `yaml:"cron"`
	Enabled *bool  `yaml:"enabled"`
}

// OrchestratorConfig holds collection orchestrator configuration.
type OrchestratorConfig struct {
	// PollInterval is the cadence at which running executions check their jobs.
	PollInterval time.Duration `yaml:"poll_interval"`
	// DefaultTimeout bounds a cycle execution that does not set its own.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// MaxResults is the per-engine result cap for collection requests.
	MaxResults int `yaml:"max_results"`
	// CleanupDays is the age after which terminal executions are removed.
	CleanupDays int `yaml:"cleanup_days"`
	// Engines is the engine pool used by cycles without their own list and by
	// the engine-rotation recovery strategy.
	Engines []string `env:"COLLECTION_ENGINES" yaml:"engines"`
	// Cycles declares collection cycles registered at startup.
	Cycles []CycleConfig `yaml:"cycles"`
}

// CycleConfig declares one collection cycle in the config file.
type CycleConfig struct {
	ID               string        `yaml:"id"`
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description"`
	QuerySet         string        `yaml:"query_set"`
	Engines          []string      `yaml:"engines"`
	QueryCount       int           `yaml:"query_count"`
	RotationStrategy string        `yaml:"rotation_strategy"`
	Priority         string        `yaml:"priority"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResults       int           `yaml:"max_results"`
}

// CollectorConfig holds the collector service client configuration.
type CollectorConfig struct {
	BaseURL string        `env:"COLLECTOR_URL" yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// JWTSecret enables service-to-service auth tokens when set.
	JWTSecret string  `env:"COLLECTOR_JWT_SECRET" yaml:"jwt_secret"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// QueriesConfig holds the query-set provider configuration.
type QueriesConfig struct {
	File string `env:"QUERY_SETS_FILE" yaml:"file"`
}

// EventsConfig holds signal bus configuration.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `env:"LOG_LEVEL"  yaml:"level"`
	Format      string `env:"LOG_FORMAT" yaml:"format"`
	Development bool   `env:"APP_DEBUG"  yaml:"development"`
}

// Load loads the engine configuration from the given path.
func Load(path string) (*Config, error) {
	cfg, err := LoadFileWithDefaults[Config](path, SetDefaults)
	if err != nil {
		return nil, err
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied, for hosts that
// embed the engine without a config file.
func Default() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}

// SetDefaults applies default values to the config.
func SetDefaults(cfg *Config) {
	setServerDefaults(&cfg.Server)
	setQueueDefaults(&cfg.Queue)
	setSchedulerDefaults(&cfg.Scheduler)
	setOrchestratorDefaults(&cfg.Orchestrator)
	setCollectorDefaults(&cfg.Collector)
	setQueriesDefaults(&cfg.Queries)
	setEventsDefaults(&cfg.Events)
	setLoggingDefaults(&cfg.Logging)
}

func setServerDefaults(s *ServerConfig) {
	if s.Port == 0 {
		s.Port = defaultServerPort
	}
	if s.Address == "" {
		s.Address = fmt.Sprintf(":%d", s.Port)
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultReadTimeoutSec * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaultWriteTimeoutSec * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = defaultIdleTimeoutSec * time.Second
	}
}

func setQueueDefaults(q *QueueConfig) {
	if q.ConcurrencyLimit == 0 {
		q.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if q.DispatchInterval == 0 {
		q.DispatchInterval = defaultDispatchIntervalSec * time.Second
	}
	if q.JobTimeout == 0 {
		q.JobTimeout = defaultJobTimeoutMin * time.Minute
	}
	if q.RetryDelay == 0 {
		q.RetryDelay = defaultRetryDelaySec * time.Second
	}
	if q.MaxAttempts == 0 {
		q.MaxAttempts = defaultMaxAttempts
	}
	if q.GraceTimeout == 0 {
		q.GraceTimeout = defaultGraceTimeoutSec * time.Second
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.StopTimeout == 0 {
		s.StopTimeout = defaultStopTimeoutSec * time.Second
	}
	if s.StuckThreshold == 0 {
		s.StuckThreshold = defaultStuckThresholdHr * time.Hour
	}
}

func setOrchestratorDefaults(o *OrchestratorConfig) {
	if o.PollInterval == 0 {
		o.PollInterval = defaultPollIntervalSec * time.Second
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = defaultCycleTimeoutHr * time.Hour
	}
	if o.MaxResults == 0 {
		o.MaxResults = defaultMaxResults
	}
	if o.CleanupDays == 0 {
		o.CleanupDays = defaultCleanupDays
	}
	if len(o.Engines) == 0 {
		o.Engines = append([]string(nil), DefaultEngines...)
	}
}

func setCollectorDefaults(c *CollectorConfig) {
	if c.Timeout == 0 {
		c.Timeout = defaultCollectorTimeoutSec * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultCollectorRateLimit
	}
	if c.Burst == 0 {
		c.Burst = defaultCollectorBurst
	}
}

func setQueriesDefaults(q *QueriesConfig) {
	if q.File == "" {
		q.File = defaultQueryFile
	}
}

func setEventsDefaults(e *EventsConfig) {
	if e.BufferSize == 0 {
		e.BufferSize = defaultEventBufferSize
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if err := ValidatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := ValidatePositive("queue.concurrency_limit", c.Queue.ConcurrencyLimit); err != nil {
		return err
	}
	if err := ValidatePositive("queue.max_attempts", c.Queue.MaxAttempts); err != nil {
		return err
	}
	if c.Queue.DispatchInterval <= 0 {
		return &ValidationError{Field: "queue.dispatch_interval", Message: "must be positive"}
	}
	if c.Orchestrator.PollInterval <= 0 {
		return &ValidationError{Field: "orchestrator.poll_interval", Message: "must be positive"}
	}
	if c.Collector.RateLimit < 0 {
		return &ValidationError{Field: "collector.rate_limit", Message: "must not be negative"}
	}
	for i := range c.Orchestrator.Cycles {
		cy := &c.Orchestrator.Cycles[i]
		if cy.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("orchestrator.cycles[%d].id", i), Message: "is required"}
		}
		if cy.QuerySet == "" {
			return &ValidationError{Field: fmt.Sprintf("orchestrator.cycles[%d].query_set", i), Message: "is required"}
		}
	}
	if err := ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return ValidateLogFormat(c.Logging.Format)
}

// ServerEnabled reports whether the HTTP API should be served. The server is
// on unless the config turns it off.
func (c *Config) ServerEnabled() bool {
	return c.Server.Enabled == nil || *c.Server.Enabled
}

// GetAddress returns the HTTP server address.
func (c *Config) GetAddress() string {
	if c.Server.Address != "" {
		return c.Server.Address
	}
	return fmt.Sprintf(":%d", c.Server.Port)
}
