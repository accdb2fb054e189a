package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/platinummonkey/bookrank/pkg/scheduler"
	"github.com/platinummonkey/bookrank/pkg/stats"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/platinummonkey/bookrank/pkg/storage/postgres"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file
const ConfigFileEnv = "BOOKRANK_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	Stats   StatsConfig   `yaml:"stats"`
	Flush   FlushConfig   `yaml:"flush"`
	Ranking RankingConfig `yaml:"ranking"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	location *time.Location
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string `yaml:"health_port"`

	// IncrementRateLimit caps counter increments per client IP; zero disables
	IncrementRateLimit httputil.RateLimitConfig `yaml:"increment_rate_limit"`
}

// StatsConfig configures the Redis counter buffer
type StatsConfig struct {
	// Timezone decides the civil day counters are recorded under
	Timezone  string        `yaml:"timezone"`
	TTL       time.Duration `yaml:"ttl"`
	ScanCount int64         `yaml:"scan_count"`
}

// FlushConfig configures the daily counter flush
type FlushConfig struct {
	Schedule          string        `yaml:"schedule"`
	Workers           int           `yaml:"workers"`
	CumulativeTimeout time.Duration `yaml:"cumulative_timeout"`
}

// RankingConfig configures generation and queries
type RankingConfig struct {
	Schedule   string        `yaml:"schedule"`
	Limit      int           `yaml:"limit"`
	JobTimeout time.Duration `yaml:"job_timeout"`

	// PeakWeights switches peak scoring to a weighted sum; all zero means view count only
	PeakWeights ranking.Weights `yaml:"peak_weights"`

	DisplayCacheSize int           `yaml:"display_cache_size"`
	DisplayCacheTTL  time.Duration `yaml:"display_cache_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Stats: StatsConfig{
			Timezone:  "UTC",
			TTL:       stats.DefaultTTL,
			ScanCount: stats.DefaultScanCount,
		},
		Flush: FlushConfig{
			Schedule:          scheduler.DefaultFlushSchedule,
			Workers:           8,
			CumulativeTimeout: 10 * time.Second,
		},
		Ranking: RankingConfig{
			Schedule:         scheduler.DefaultRankingSchedule,
			Limit:            ranking.DefaultLimit,
			JobTimeout:       scheduler.DefaultJobTimeout,
			DisplayCacheSize: ranking.DefaultEnricherConfig().Size,
			DisplayCacheTTL:  ranking.DefaultEnricherConfig().TTL,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "bookrank",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// BOOKRANK_CONFIG_FILE if any, then BOOKRANK_* environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyServerEnv()
	cfg.applyStorageEnv()
	cfg.applyJobEnv()
	cfg.applyObservabilityEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyServerEnv() {
	s := &c.Server
	s.Host = getEnv("BOOKRANK_HOST", s.Host)
	s.Port = getEnv("BOOKRANK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("BOOKRANK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("BOOKRANK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("BOOKRANK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("BOOKRANK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("BOOKRANK_HEALTH_PORT", s.HealthPort)
	s.IncrementRateLimit.RequestsPerWindow = getEnvInt("BOOKRANK_INCREMENT_RATE_LIMIT", s.IncrementRateLimit.RequestsPerWindow)
	s.IncrementRateLimit.WindowDuration = getEnvDuration("BOOKRANK_INCREMENT_RATE_WINDOW", s.IncrementRateLimit.WindowDuration)
	if proxies := getEnv("BOOKRANK_TRUSTED_PROXIES", ""); proxies != "" {
		s.IncrementRateLimit.TrustedProxies = strings.Split(proxies, ",")
	}
}

func (c *Config) applyStorageEnv() {
	s := &c.Storage

	// PostgreSQL config
	s.PostgresURL = getEnv("BOOKRANK_POSTGRES_URL", s.PostgresURL)
	if replicaURLs := getEnv("BOOKRANK_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		s.PostgresReplicaURLs = postgres.ParseReplicaURLs(replicaURLs)
	}
	if maxConns := getEnvInt("BOOKRANK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		s.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("BOOKRANK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		s.PostgresMinConns = minConns
	}
	s.PostgresTimeout = getEnvDuration("BOOKRANK_POSTGRES_TIMEOUT", s.PostgresTimeout)
	if batch := getEnvInt("BOOKRANK_UPSERT_BATCH_SIZE", 0); batch > 0 {
		s.UpsertBatchSize = batch
	}

	// Redis config
	s.RedisURL = getEnv("BOOKRANK_REDIS_URL", s.RedisURL)
	s.RedisPassword = getEnv("BOOKRANK_REDIS_PASSWORD", s.RedisPassword)
	if redisDB := getEnvInt("BOOKRANK_REDIS_DB", -1); redisDB >= 0 {
		s.RedisDB = redisDB
	}
	if retries := getEnvInt("BOOKRANK_REDIS_MAX_RETRIES", 0); retries > 0 {
		s.RedisMaxRetries = retries
	}
	if poolSize := getEnvInt("BOOKRANK_REDIS_POOL_SIZE", 0); poolSize > 0 {
		s.RedisPoolSize = poolSize
	}

	// Cache config
	s.CacheEnabled = getEnvBool("BOOKRANK_CACHE_ENABLED", s.CacheEnabled)
	s.CacheEntriesTTL = getEnvDuration("BOOKRANK_CACHE_ENTRIES_TTL", s.CacheEntriesTTL)
	s.CacheLatestTTL = getEnvDuration("BOOKRANK_CACHE_LATEST_TTL", s.CacheLatestTTL)
}

func (c *Config) applyJobEnv() {
	c.Stats.Timezone = getEnv("BOOKRANK_TIMEZONE", c.Stats.Timezone)
	c.Stats.TTL = getEnvDuration("BOOKRANK_STATS_TTL", c.Stats.TTL)
	c.Stats.ScanCount = getEnvInt64("BOOKRANK_STATS_SCAN_COUNT", c.Stats.ScanCount)

	c.Flush.Schedule = getEnv("BOOKRANK_FLUSH_SCHEDULE", c.Flush.Schedule)
	c.Flush.Workers = getEnvInt("BOOKRANK_FLUSH_WORKERS", c.Flush.Workers)
	c.Flush.CumulativeTimeout = getEnvDuration("BOOKRANK_FLUSH_CUMULATIVE_TIMEOUT", c.Flush.CumulativeTimeout)

	r := &c.Ranking
	r.Schedule = getEnv("BOOKRANK_RANKING_SCHEDULE", r.Schedule)
	r.Limit = getEnvInt("BOOKRANK_RANKING_LIMIT", r.Limit)
	r.JobTimeout = getEnvDuration("BOOKRANK_RANKING_JOB_TIMEOUT", r.JobTimeout)
	r.PeakWeights.View = getEnvInt64("BOOKRANK_PEAK_WEIGHT_VIEW", r.PeakWeights.View)
	r.PeakWeights.Recommend = getEnvInt64("BOOKRANK_PEAK_WEIGHT_RECOMMEND", r.PeakWeights.Recommend)
	r.PeakWeights.MonthlyTicket = getEnvInt64("BOOKRANK_PEAK_WEIGHT_MONTHLY_TICKET", r.PeakWeights.MonthlyTicket)
	r.PeakWeights.Collection = getEnvInt64("BOOKRANK_PEAK_WEIGHT_COLLECTION", r.PeakWeights.Collection)
	r.DisplayCacheSize = getEnvInt("BOOKRANK_DISPLAY_CACHE_SIZE", r.DisplayCacheSize)
	r.DisplayCacheTTL = getEnvDuration("BOOKRANK_DISPLAY_CACHE_TTL", r.DisplayCacheTTL)
}

func (c *Config) applyObservabilityEnv() {
	o := &c.Observability
	o.LogLevel = getEnv("BOOKRANK_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("BOOKRANK_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("BOOKRANK_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("BOOKRANK_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("BOOKRANK_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("BOOKRANK_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("BOOKRANK_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Server.IncrementRateLimit.RequestsPerWindow < 0 {
		return fmt.Errorf("increment rate limit must not be negative")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.IncrementRateLimit.TrustedProxies); err != nil {
		return err
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Storage.CacheEnabled && (c.Storage.CacheEntriesTTL <= 0 || c.Storage.CacheLatestTTL <= 0) {
		return fmt.Errorf("ranking cache TTLs must be positive when the cache is enabled")
	}

	loc, err := time.LoadLocation(c.Stats.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Stats.Timezone, err)
	}
	c.location = loc

	// a day's hash must outlive the next day's flush
	if c.Stats.TTL < 26*time.Hour {
		return fmt.Errorf("stats TTL %s is shorter than the flush window (26h)", c.Stats.TTL)
	}

	if _, err := cron.ParseStandard(c.Flush.Schedule); err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", c.Flush.Schedule, err)
	}
	if _, err := cron.ParseStandard(c.Ranking.Schedule); err != nil {
		return fmt.Errorf("invalid ranking schedule %q: %w", c.Ranking.Schedule, err)
	}
	if c.Flush.Workers <= 0 {
		return fmt.Errorf("flush workers must be positive")
	}
	if c.Ranking.Limit <= 0 {
		return fmt.Errorf("ranking limit must be positive")
	}
	w := c.Ranking.PeakWeights
	if w.View < 0 || w.Recommend < 0 || w.MonthlyTicket < 0 || w.Collection < 0 {
		return fmt.Errorf("peak weights must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Location is the validated timezone; UTC before Validate has run
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLevel(c.Observability.LogLevel)
}

// OTel returns the tracing exporter settings
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// Enricher returns the ranking display cache settings
func (c *Config) Enricher() ranking.EnricherConfig {
	return ranking.EnricherConfig{Size: c.Ranking.DisplayCacheSize, TTL: c.Ranking.DisplayCacheTTL}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
