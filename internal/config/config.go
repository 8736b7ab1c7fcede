package config

import (
	"fmt"
	"time"

	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/store"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Default configuration values.
const (
	defaultServerAddress   = ":8090"
	defaultShutdownTimeout = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultDBHost          = "localhost"
	defaultDBPort          = "5432"
	defaultDBUser          = "postgres"
	defaultDBName          = "eventpulse"
	defaultDBSSLMode       = "disable"
	defaultLogLevel        = "info"
	defaultModelTimeout    = 2 * time.Second
)

// Config holds all configuration for the eventpulse service.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Storage  StorageConfig        `yaml:"storage"`
	Redis    notify.RedisConfig   `yaml:"redis"`
	Logging  logger.Config        `yaml:"logging"`
	Queue    queue.Config         `yaml:"queue"`
	Sweep    alerting.SweepConfig `yaml:"sweep"`
	Models   ModelsConfig         `yaml:"models"`
	Alerting AlertingConfig       `yaml:"alerting"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address         string        `yaml:"address" env:"SERVER_ADDRESS"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug" env:"APP_DEBUG"`
}

// StorageConfig selects and configures the persistence backend. The memory
// driver keeps everything in-process and is meant for development.
type StorageConfig struct {
	Driver   string               `yaml:"driver" env:"STORAGE_DRIVER"`
	Postgres store.PostgresConfig `yaml:"postgres"`
}

// ModelsConfig points at the optional external classifier services. A stage
// is only added to its chain when the corresponding URL is set.
type ModelsConfig struct {
	SentimentURL string        `yaml:"sentiment_url" env:"SENTIMENT_MODEL_URL"`
	IssueURL     string        `yaml:"issue_url" env:"ISSUE_MODEL_URL"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AlertingConfig carries service-wide alert rule defaults. Per-event
// settings override these.
type AlertingConfig struct {
	SentimentThreshold float64       `yaml:"sentiment_threshold" env:"ALERT_SENTIMENT_THRESHOLD"`
	IssueThreshold     int           `yaml:"issue_threshold" env:"ALERT_ISSUE_THRESHOLD"`
	AutoResolveAfter   time.Duration `yaml:"auto_resolve_after" env:"ALERT_AUTO_RESOLVE_AFTER"`
}

// Load reads configuration from path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := load[Config](path)
	if err != nil {
		return nil, err
	}
	setDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverPostgres
	}
	pg := &cfg.Storage.Postgres
	if pg.Host == "" {
		pg.Host = defaultDBHost
	}
	if pg.Port == "" {
		pg.Port = defaultDBPort
	}
	if pg.User == "" {
		pg.User = defaultDBUser
	}
	if pg.DBName == "" {
		pg.DBName = defaultDBName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = defaultDBSSLMode
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Models.Timeout == 0 {
		cfg.Models.Timeout = defaultModelTimeout
	}

	cfg.Queue = cfg.Queue.WithDefaults()
	cfg.Sweep = cfg.Sweep.WithDefaults()
}

// Validate checks the boundary values an operator could get wrong. Alert
// thresholds outside their meaningful ranges are rejected rather than
// silently clamped.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	if t := c.Alerting.SentimentThreshold; t < -1 || t > 0 {
		return fmt.Errorf("alerting.sentiment_threshold: %v is outside [-1, 0]", t)
	}
	if c.Alerting.IssueThreshold < 0 {
		return fmt.Errorf("alerting.issue_threshold: must not be negative")
	}
	if c.Alerting.AutoResolveAfter < 0 {
		return fmt.Errorf("alerting.auto_resolve_after: must not be negative")
	}
	return nil
}
