package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Progress   ProgressConfig   `yaml:"progress" mapstructure:"progress"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Sweep      SweepConfig      `yaml:"sweep" mapstructure:"sweep"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Partners   PartnersConfig   `yaml:"partners" mapstructure:"partners"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ScoringConfig holds the external risk scoring API settings.
type ScoringConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportConfig configures report lifetime.
type ReportConfig struct {
	ValidityDays int `yaml:"validity_days" mapstructure:"validity_days"`
}

// RetryConfig configures exponential backoff for report generation.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the scoring API circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ProgressConfig configures the generation progress tracker.
type ProgressConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	InMemory   bool   `yaml:"in_memory" mapstructure:"in_memory"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// NotifyConfig configures user notifications.
type NotifyConfig struct {
	Realtime     bool   `yaml:"realtime" mapstructure:"realtime"`
	Email        bool   `yaml:"email" mapstructure:"email"`
	SMTPHost     string `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" mapstructure:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username" mapstructure:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password" mapstructure:"smtp_password"`
	FromAddress  string `yaml:"from_address" mapstructure:"from_address"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SchedulerConfig selects how generation runs are launched.
type SchedulerConfig struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	Temporal    TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
}

// TemporalConfig holds the Temporal connection settings.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// SweepConfig configures the stuck-pipeline sweep.
type SweepConfig struct {
	IntervalMins int     `yaml:"interval_mins" mapstructure:"interval_mins"`
	StaleMinutes int     `yaml:"stale_minutes" mapstructure:"stale_minutes"`
	Limit        int     `yaml:"limit" mapstructure:"limit"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// MonitoringConfig configures pipeline health checks and alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	StuckThreshold       int     `yaml:"stuck_threshold" mapstructure:"stuck_threshold"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	AlertCooldownMins    int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// PartnersConfig points at the partner policy file.
type PartnersConfig struct {
	File                   string `yaml:"file" mapstructure:"file"`
	DefaultRequiresPayment bool   `yaml:"default_requires_payment" mapstructure:"default_requires_payment"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("scoring.timeout_secs", 30)
	v.SetDefault("report.validity_days", 365)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("progress.path", "data/progress")
	v.SetDefault("progress.ttl_minutes", 30)
	v.SetDefault("notify.realtime", true)
	v.SetDefault("notify.smtp_port", 587)
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("scheduler.driver", "inprocess")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.temporal.host_port", "localhost:7233")
	v.SetDefault("scheduler.temporal.namespace", "default")
	v.SetDefault("scheduler.temporal.task_queue", "report-generation")
	v.SetDefault("sweep.stale_minutes", 15)
	v.SetDefault("sweep.limit", 200)
	v.SetDefault("sweep.rate_per_sec", 2.0)
	v.SetDefault("monitoring.stuck_threshold", 20)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.alert_cooldown_mins", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
