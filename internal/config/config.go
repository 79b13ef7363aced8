package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch engine
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Log        LogConfig                 `yaml:"log"`
	Database   DatabaseConfig            `yaml:"database"`
	Redis      RedisConfig               `yaml:"redis"`
	Valkey     ValkeyConfig              `yaml:"valkey"`
	AWS        AWSConfig                 `yaml:"aws"`
	Waterfall  WaterfallConfig           `yaml:"waterfall"`
	Providers  []ProviderConfig          `yaml:"providers"`
	Channels   map[string]string         `yaml:"channels"` // channel -> sender provider id
	Pool       PoolConfig                `yaml:"pool"`
	Compliance ComplianceConfig          `yaml:"compliance"`
	Dispatch   DispatchConfig            `yaml:"dispatch"`
	Worker     WorkerConfig              `yaml:"worker"`
	Clients    map[string]ClientSettings `yaml:"clients"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the HTTP listener
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig selects the repository backend.
// Driver is one of "postgres", "sqlite" or "memory".
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for usage counters and locks.
// An empty URL keeps both in process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ValkeyConfig holds the Valkey connection used for the DNCR result cache.
// An empty Addr selects the in-memory cache.
type ValkeyConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds shared AWS settings for SES senders and the review queue
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// WaterfallConfig holds contact resolution settings
type WaterfallConfig struct {
	// Tiers maps a contact field to its ordered provider ids. Lower index = tried first.
	Tiers                 map[string][]string `yaml:"tiers"`
	CooldownHours         int                 `yaml:"cooldown_hours"`
	MaxTierAttempts       int                 `yaml:"max_tier_attempts"`
	AdapterTimeoutSeconds int                 `yaml:"adapter_timeout_seconds"`
	// DefaultCountryCode is the dialing code assumed for national phone numbers.
	DefaultCountryCode string `yaml:"default_country_code"`
}

// Cooldown returns how long a not_found result suppresses a tier
func (c WaterfallConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

// AdapterTimeout returns the default per-call adapter deadline
func (c WaterfallConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSeconds) * time.Second
}

// ProviderConfig defines one adapter instance. Variant selects the
// implementation; the remaining fields are read by the variants that need them.
type ProviderConfig struct {
	ID             string            `yaml:"id"`
	Variant        string            `yaml:"variant"`
	BaseURL        string            `yaml:"base_url"`
	APIKey         string            `yaml:"api_key"`
	APIKeyEnv      string            `yaml:"api_key_env"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	CostPerCall    float64           `yaml:"cost_per_call"`
	MaxRetries     int               `yaml:"max_retries"`
	Subject        string            `yaml:"subject"`
	Template       string            `yaml:"template"`
	ClientID       string            `yaml:"client_id"`
	ClientSecret   string            `yaml:"client_secret"`
	TokenURL       string            `yaml:"token_url"`
	Scopes         []string          `yaml:"scopes"`
	Region         string            `yaml:"region"`
	ConfigSet      string            `yaml:"configuration_set"`
	Values         map[string]string `yaml:"values"` // static variant: field -> value
	FailWith       string            `yaml:"fail_with"`
}

// Timeout returns the configured timeout as a duration
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Key returns the API key, preferring the named environment variable
func (c ProviderConfig) Key() string {
	if c.APIKeyEnv != "" {
		if v := os.Getenv(c.APIKeyEnv); v != "" {
			return v
		}
	}
	return c.APIKey
}

// WarmupStep is one entry of the day-indexed warming schedule
type WarmupStep struct {
	Day    int `yaml:"day"`
	Volume int `yaml:"volume"`
}

// PoolConfig holds shared resource pool settings
type PoolConfig struct {
	WindowHours  int          `yaml:"window_hours"`
	DegradeAfter int          `yaml:"degrade_after"`
	SuspendAfter int          `yaml:"suspend_after"`
	Warmup       []WarmupStep `yaml:"warmup"`
}

// Window returns the usage counting window
func (c PoolConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// BusinessHoursConfig holds the contact window in the lead's local time
type BusinessHoursConfig struct {
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
	Days      []string `yaml:"days"`
}

// DNCRConfig holds do-not-call registry settings
type DNCRConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	CacheTTLHours     int    `yaml:"cache_ttl_hours"`
	RetryAfterMinutes int    `yaml:"retry_after_minutes"` // when the registry is unreachable
}

// Timeout returns the configured timeout as a duration
func (c DNCRConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryAfter returns the deferral used while the registry is unreachable
func (c DNCRConfig) RetryAfter() time.Duration {
	return time.Duration(c.RetryAfterMinutes) * time.Minute
}

// CacheTTL returns how long a registry answer stays valid
func (c DNCRConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// ComplianceConfig holds gate settings
type ComplianceConfig struct {
	BusinessHours         BusinessHoursConfig `yaml:"business_hours"`
	DefaultTimezone       string              `yaml:"default_timezone"`
	DefaultPermissionMode string              `yaml:"default_permission_mode"`
	DNCR                  DNCRConfig          `yaml:"dncr"`
	ReviewQueueURL        string              `yaml:"review_queue_url"`
}

// DispatchConfig holds orchestrator settings
type DispatchConfig struct {
	LockTTLSeconds           int `yaml:"lock_ttl_seconds"`
	NoCapacityBackoffMinutes int `yaml:"no_capacity_backoff_minutes"`
	InProgressRetrySeconds   int `yaml:"in_progress_retry_seconds"`
	EscalateAfterDeferrals   int `yaml:"escalate_after_deferrals"`
	SendTimeoutSeconds       int `yaml:"send_timeout_seconds"`
}

// LockTTL returns the idempotency lock lifetime
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SendTimeout bounds one sender call.
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// NoCapacityBackoff returns the retry delay after a no_capacity deferral
func (c DispatchConfig) NoCapacityBackoff() time.Duration {
	return time.Duration(c.NoCapacityBackoffMinutes) * time.Minute
}

// InProgressRetry returns the retry delay when another run holds the key
func (c DispatchConfig) InProgressRetry() time.Duration {
	return time.Duration(c.InProgressRetrySeconds) * time.Second
}

// WorkerConfig holds dispatch worker pool settings
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// ClientSettings holds per-client overrides
type ClientSettings struct {
	Timezone string `yaml:"timezone"`
}

// DefaultWarmup is the ramp used when no schedule is configured.
func DefaultWarmup() []WarmupStep {
	return []WarmupStep{
		{1, 20}, {2, 20}, {3, 40}, {4, 40}, {5, 60},
		{6, 80}, {7, 100}, {10, 150}, {14, 250}, {21, 400}, {30, 600},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}

	// Waterfall defaults
	if cfg.Waterfall.CooldownHours == 0 {
		cfg.Waterfall.CooldownHours = 72
	}
	if cfg.Waterfall.MaxTierAttempts == 0 {
		cfg.Waterfall.MaxTierAttempts = 2
	}
	if cfg.Waterfall.AdapterTimeoutSeconds == 0 {
		cfg.Waterfall.AdapterTimeoutSeconds = 10
	}
	if cfg.Waterfall.DefaultCountryCode == "" {
		cfg.Waterfall.DefaultCountryCode = "1"
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.TimeoutSeconds == 0 {
			if p.Variant == "scraper" {
				p.TimeoutSeconds = 60
			} else {
				p.TimeoutSeconds = cfg.Waterfall.AdapterTimeoutSeconds
			}
		}
		if p.Region == "" {
			p.Region = cfg.AWS.Region
		}
	}

	// Pool defaults
	if cfg.Pool.WindowHours == 0 {
		cfg.Pool.WindowHours = 24
	}
	if cfg.Pool.DegradeAfter == 0 {
		cfg.Pool.DegradeAfter = 3
	}
	if cfg.Pool.SuspendAfter == 0 {
		cfg.Pool.SuspendAfter = 6
	}
	if len(cfg.Pool.Warmup) == 0 {
		cfg.Pool.Warmup = DefaultWarmup()
	}

	// Compliance defaults
	if cfg.Compliance.BusinessHours.StartHour == 0 && cfg.Compliance.BusinessHours.EndHour == 0 {
		cfg.Compliance.BusinessHours.StartHour = 9
		cfg.Compliance.BusinessHours.EndHour = 17
	}
	if len(cfg.Compliance.BusinessHours.Days) == 0 {
		cfg.Compliance.BusinessHours.Days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	if cfg.Compliance.DefaultTimezone == "" {
		cfg.Compliance.DefaultTimezone = "America/New_York"
	}
	if cfg.Compliance.DNCR.TimeoutSeconds == 0 {
		cfg.Compliance.DNCR.TimeoutSeconds = 5
	}
	if cfg.Compliance.DNCR.CacheTTLHours == 0 {
		cfg.Compliance.DNCR.CacheTTLHours = 24
	}
	if cfg.Compliance.DNCR.RetryAfterMinutes == 0 {
		cfg.Compliance.DNCR.RetryAfterMinutes = 15
	}
	if cfg.Compliance.DefaultPermissionMode == "" {
		cfg.Compliance.DefaultPermissionMode = "co_pilot"
	}

	// Dispatch defaults
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 120
	}
	if cfg.Dispatch.NoCapacityBackoffMinutes == 0 {
		cfg.Dispatch.NoCapacityBackoffMinutes = 15
	}
	if cfg.Dispatch.InProgressRetrySeconds == 0 {
		cfg.Dispatch.InProgressRetrySeconds = 30
	}
	if cfg.Dispatch.EscalateAfterDeferrals == 0 {
		cfg.Dispatch.EscalateAfterDeferrals = 5
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 8
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 256
	}
}

// ClientTimezone returns the client's configured timezone or the global default
func (cfg *Config) ClientTimezone(clientID string) string {
	if s, ok := cfg.Clients[clientID]; ok && s.Timezone != "" {
		return s.Timezone
	}
	return cfg.Compliance.DefaultTimezone
}

// Provider returns the provider definition with the given id
func (cfg *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range cfg.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		if cfg.Database.Driver == "memory" {
			cfg.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Valkey.Addr = v
	}
	if v := os.Getenv("VALKEY_PASSWORD"); v != "" {
		cfg.Valkey.Password = v
	}

	// AWS overrides
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("REVIEW_QUEUE_URL"); v != "" {
		cfg.Compliance.ReviewQueueURL = v
	}

	// DNCR overrides
	if v := os.Getenv("DNCR_BASE_URL"); v != "" {
		cfg.Compliance.DNCR.BaseURL = v
	}
	if v := os.Getenv("DNCR_API_KEY"); v != "" {
		cfg.Compliance.DNCR.APIKey = v
	}

	return cfg, nil
}
