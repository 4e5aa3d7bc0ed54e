// Package config provides configuration management for AgentCom.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for AgentCom.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	EventBus     EventBusConfig     `mapstructure:"eventBus"`
	Routing      RoutingConfig      `mapstructure:"routing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// StorageConfig selects and configures the durable store backend.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	// SQLitePath is the database file path for the sqlite driver.
	SQLitePath string `mapstructure:"sqlitePath"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AuthConfig holds agent authentication configuration.
type AuthConfig struct {
	// AgentToken is the shared token agents present in their identify
	// frame. Empty means a dev token is generated at startup.
	AgentToken string `mapstructure:"agentToken"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EventBusConfig tunes the in-memory bus.
type EventBusConfig struct {
	// SubscriberQueueSize bounds each subscriber's delivery queue; the
	// oldest entry is dropped on overflow.
	SubscriberQueueSize int `mapstructure:"subscriberQueueSize"`
}

// RoutingConfig feeds the static routing resolver and the per-agent
// rate limiter.
type RoutingConfig struct {
	// SeedPath points at an optional YAML file of repo registry entries
	// and endpoint definitions loaded into the config table at startup.
	SeedPath string `mapstructure:"seedPath"`

	// AgentRatePerSecond and AgentBurst parameterize the per-agent token
	// bucket consulted during scheduling. Zero rate disables limiting.
	AgentRatePerSecond float64 `mapstructure:"agentRatePerSecond"`
	AgentBurst         int     `mapstructure:"agentBurst"`
}

// CoordinationConfig holds the runtime tunables of the coordination core.
// All are also writable at runtime through the config table.
type CoordinationConfig struct {
	HeartbeatIntervalMs    int64   `mapstructure:"heartbeatIntervalMs"`
	AcceptanceTimeoutMs    int64   `mapstructure:"acceptanceTimeoutMs"`
	StuckSweepIntervalMs   int64   `mapstructure:"stuckSweepIntervalMs"`
	StuckThresholdMs       int64   `mapstructure:"stuckThresholdMs"`
	TTLSweepIntervalMs     int64   `mapstructure:"ttlSweepIntervalMs"`
	TaskTTLMs              int64   `mapstructure:"taskTtlMs"`
	FallbackWaitMs         int64   `mapstructure:"fallbackWaitMs"`
	ViolationThreshold     int     `mapstructure:"violationThreshold"`
	ViolationWindowMs      int64   `mapstructure:"violationWindowMs"`
	BackoffLadderMs        []int64 `mapstructure:"backoffLadderMs"`
	OverdueSweepIntervalMs int64   `mapstructure:"overdueSweepIntervalMs"`
	ReaperIntervalMs       int64   `mapstructure:"reaperIntervalMs"`
	AgentStaleThresholdMs  int64   `mapstructure:"agentStaleThresholdMs"`
	DefaultMaxRetries      int     `mapstructure:"defaultMaxRetries"`
	WakeMaxAttempts        int     `mapstructure:"wakeMaxAttempts"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// HeartbeatInterval returns the ping interval as a time.Duration.
func (c *CoordinationConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// PongWait returns the pong watchdog window (half the ping interval).
func (c *CoordinationConfig) PongWait() time.Duration {
	return c.HeartbeatInterval() / 2
}

// AcceptanceTimeout returns the assigned-to-reclaim window.
func (c *CoordinationConfig) AcceptanceTimeout() time.Duration {
	return time.Duration(c.AcceptanceTimeoutMs) * time.Millisecond
}

// StuckSweepInterval returns the stuck scan period.
func (c *CoordinationConfig) StuckSweepInterval() time.Duration {
	return time.Duration(c.StuckSweepIntervalMs) * time.Millisecond
}

// StuckThreshold returns the no-progress reclaim threshold.
func (c *CoordinationConfig) StuckThreshold() time.Duration {
	return time.Duration(c.StuckThresholdMs) * time.Millisecond
}

// TTLSweepInterval returns the queued-expiration scan period.
func (c *CoordinationConfig) TTLSweepInterval() time.Duration {
	return time.Duration(c.TTLSweepIntervalMs) * time.Millisecond
}

// TaskTTL returns the queued lifetime ceiling.
func (c *CoordinationConfig) TaskTTL() time.Duration {
	return time.Duration(c.TaskTTLMs) * time.Millisecond
}

// FallbackWait returns the routing fallback tier delay.
func (c *CoordinationConfig) FallbackWait() time.Duration {
	return time.Duration(c.FallbackWaitMs) * time.Millisecond
}

// ViolationWindow returns the sliding violation window.
func (c *CoordinationConfig) ViolationWindow() time.Duration {
	return time.Duration(c.ViolationWindowMs) * time.Millisecond
}

// OverdueSweepInterval returns the complete_by scan period.
func (c *CoordinationConfig) OverdueSweepInterval() time.Duration {
	return time.Duration(c.OverdueSweepIntervalMs) * time.Millisecond
}

// ReaperInterval returns the stale-agent scan period.
func (c *CoordinationConfig) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalMs) * time.Millisecond
}

// AgentStaleThreshold returns the heartbeat staleness eviction threshold.
func (c *CoordinationConfig) AgentStaleThreshold() time.Duration {
	return time.Duration(c.AgentStaleThresholdMs) * time.Millisecond
}

// BackoffLadder returns the reconnect cooldown ladder as durations.
func (c *CoordinationConfig) BackoffLadder() []time.Duration {
	out := make([]time.Duration, len(c.BackoffLadderMs))
	for i, ms := range c.BackoffLadderMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// detectDefaultLogFormat returns "json" in production-like environments and
// "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTCOM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Storage defaults - sqlite file in the working directory
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlitePath", "agentcom.db")
	v.SetDefault("storage.host", "")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.user", "agentcom")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.dbName", "agentcom")
	v.SetDefault("storage.sslMode", "disable")
	v.SetDefault("storage.maxConns", 10)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentcom-hub")
	v.SetDefault("nats.maxReconnects", 10)

	// Auth defaults
	v.SetDefault("auth.agentToken", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Event bus defaults
	v.SetDefault("eventBus.subscriberQueueSize", 256)

	// Routing defaults
	v.SetDefault("routing.seedPath", "")
	v.SetDefault("routing.agentRatePerSecond", 0.0)
	v.SetDefault("routing.agentBurst", 1)

	// Coordination defaults
	v.SetDefault("coordination.heartbeatIntervalMs", 30_000)
	v.SetDefault("coordination.acceptanceTimeoutMs", 60_000)
	v.SetDefault("coordination.stuckSweepIntervalMs", 30_000)
	v.SetDefault("coordination.stuckThresholdMs", 300_000)
	v.SetDefault("coordination.ttlSweepIntervalMs", 60_000)
	v.SetDefault("coordination.taskTtlMs", 600_000)
	v.SetDefault("coordination.fallbackWaitMs", 5_000)
	v.SetDefault("coordination.violationThreshold", 10)
	v.SetDefault("coordination.violationWindowMs", 60_000)
	v.SetDefault("coordination.backoffLadderMs", []int64{30_000, 60_000, 300_000})
	v.SetDefault("coordination.overdueSweepIntervalMs", 30_000)
	v.SetDefault("coordination.reaperIntervalMs", 30_000)
	v.SetDefault("coordination.agentStaleThresholdMs", 60_000)
	v.SetDefault("coordination.defaultMaxRetries", 3)
	v.SetDefault("coordination.wakeMaxAttempts", 3)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTCOM_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/agentcom/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AGENTCOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion.
	_ = v.BindEnv("storage.sqlitePath", "AGENTCOM_STORAGE_SQLITE_PATH")
	_ = v.BindEnv("auth.agentToken", "AGENTCOM_AUTH_AGENT_TOKEN")
	_ = v.BindEnv("routing.seedPath", "AGENTCOM_ROUTING_SEED_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentcom/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			errs = append(errs, "storage.sqlitePath is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Storage.Host == "" {
			errs = append(errs, "storage.host is required for the postgres driver")
		}
		if cfg.Storage.User == "" {
			errs = append(errs, "storage.user is required for the postgres driver")
		}
		if cfg.Storage.DBName == "" {
			errs = append(errs, "storage.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, "storage.driver must be sqlite or postgres")
	}

	if cfg.Auth.AgentToken == "" {
		cfg.Auth.AgentToken = generateDevToken()
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.EventBus.SubscriberQueueSize <= 0 {
		errs = append(errs, "eventBus.subscriberQueueSize must be positive")
	}

	c := &cfg.Coordination
	for key, val := range map[string]int64{
		"coordination.heartbeatIntervalMs":    c.HeartbeatIntervalMs,
		"coordination.acceptanceTimeoutMs":    c.AcceptanceTimeoutMs,
		"coordination.stuckSweepIntervalMs":   c.StuckSweepIntervalMs,
		"coordination.stuckThresholdMs":       c.StuckThresholdMs,
		"coordination.ttlSweepIntervalMs":     c.TTLSweepIntervalMs,
		"coordination.taskTtlMs":              c.TaskTTLMs,
		"coordination.fallbackWaitMs":         c.FallbackWaitMs,
		"coordination.violationWindowMs":      c.ViolationWindowMs,
		"coordination.overdueSweepIntervalMs": c.OverdueSweepIntervalMs,
		"coordination.reaperIntervalMs":       c.ReaperIntervalMs,
		"coordination.agentStaleThresholdMs":  c.AgentStaleThresholdMs,
	} {
		if val <= 0 {
			errs = append(errs, key+" must be positive")
		}
	}
	if c.ViolationThreshold <= 0 {
		errs = append(errs, "coordination.violationThreshold must be positive")
	}
	if len(c.BackoffLadderMs) == 0 {
		errs = append(errs, "coordination.backoffLadderMs must have at least one rung")
	}
	if c.DefaultMaxRetries < 0 {
		errs = append(errs, "coordination.defaultMaxRetries must not be negative")
	}
	if c.WakeMaxAttempts <= 0 {
		errs = append(errs, "coordination.wakeMaxAttempts must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *StorageConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// generateDevToken generates a throwaway agent token for development mode.
// Production deployments should set AGENTCOM_AUTH_AGENT_TOKEN.
func generateDevToken() string {
	return "dev-token-change-in-production-" + fmt.Sprintf("%d", time.Now().UnixNano())
}
