package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/trellis/pkg/observability"
)

// Settings backend types
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Discovery     DiscoveryConfig
	Settings      SettingsConfig
	Updates       UpdateConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DiscoveryConfig locates extension sources
type DiscoveryConfig struct {
	DataDir     string
	PackagesDir string
	SideloadDir string
	// MusicDir is the library root of the shipped local files extension
	MusicDir string
	// Namespace prefixes package feature markers, "<namespace>.<kind>_extension"
	Namespace       string
	ParserCacheSize int
	// ActivationWorkers realize and activate extensions in the background
	ActivationWorkers int
	ActivationTimeout time.Duration
}

// SettingsConfig selects and configures the settings backend
type SettingsConfig struct {
	Backend     string
	SQLitePath  string
	PostgresURL string

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	CacheSize int
}

// UpdateConfig controls the update checker
type UpdateConfig struct {
	Enabled     bool
	Schedule    string
	MinInterval time.Duration
	// ABI is matched against asset names, e.g. "linux-amd64"
	ABI string
	// AssetSuffix overrides the per-kind artifact suffix when set
	AssetSuffix string
	Concurrency int
	HTTPTimeout time.Duration
	// MaxArtifactMB bounds a downloaded release artifact
	MaxArtifactMB int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Discovery:     loadDiscoveryConfig(),
		Updates:       loadUpdateConfig(),
		Observability: loadObservabilityConfig(),
	}
	cfg.Settings = loadSettingsConfig(cfg.Discovery.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TRELLIS_HOST", "0.0.0.0"),
		Port:            getEnv("TRELLIS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TRELLIS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TRELLIS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TRELLIS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TRELLIS_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDiscoveryConfig() DiscoveryConfig {
	dataDir := getEnv("TRELLIS_DATA_DIR", "/var/lib/trellis")
	return DiscoveryConfig{
		DataDir:           dataDir,
		PackagesDir:       getEnv("TRELLIS_PACKAGES_DIR", filepath.Join(dataDir, "packages")),
		SideloadDir:       getEnv("TRELLIS_SIDELOAD_DIR", filepath.Join(dataDir, "extensions")),
		MusicDir:          getEnv("TRELLIS_MUSIC_DIR", filepath.Join(dataDir, "music")),
		Namespace:         getEnv("TRELLIS_NAMESPACE", "trellis"),
		ParserCacheSize:   getEnvInt("TRELLIS_PARSER_CACHE_SIZE", 256),
		ActivationWorkers: getEnvInt("TRELLIS_ACTIVATION_WORKERS", 4),
		ActivationTimeout: getEnvDuration("TRELLIS_ACTIVATION_TIMEOUT", 2*time.Minute),
	}
}

func loadSettingsConfig(dataDir string) SettingsConfig {
	return SettingsConfig{
		Backend:         strings.ToLower(getEnv("TRELLIS_SETTINGS_BACKEND", BackendSQLite)),
		SQLitePath:      getEnv("TRELLIS_SQLITE_PATH", filepath.Join(dataDir, "settings.db")),
		PostgresURL:     getEnv("TRELLIS_POSTGRES_URL", ""),
		RedisURL:        getEnv("TRELLIS_REDIS_URL", ""),
		RedisPassword:   getEnv("TRELLIS_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("TRELLIS_REDIS_DB", 0),
		RedisMaxRetries: getEnvInt("TRELLIS_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:   getEnvInt("TRELLIS_REDIS_POOL_SIZE", 10),
		CacheSize:       getEnvInt("TRELLIS_SETTINGS_CACHE_SIZE", 1024),
	}
}

func loadUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Enabled:       getEnvBool("TRELLIS_UPDATES_ENABLED", true),
		Schedule:      getEnv("TRELLIS_UPDATE_SCHEDULE", "@every 6h"),
		MinInterval:   getEnvDuration("TRELLIS_UPDATE_MIN_INTERVAL", time.Hour),
		ABI:           getEnv("TRELLIS_UPDATE_ABI", runtime.GOOS+"-"+runtime.GOARCH),
		AssetSuffix:   getEnv("TRELLIS_UPDATE_ASSET_SUFFIX", ""),
		Concurrency:   getEnvInt("TRELLIS_UPDATE_CONCURRENCY", 4),
		HTTPTimeout:   getEnvDuration("TRELLIS_UPDATE_HTTP_TIMEOUT", 60*time.Second),
		MaxArtifactMB: getEnvInt("TRELLIS_UPDATE_MAX_ARTIFACT_MB", 256),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	level, err := observability.ParseLogLevel(getEnv("TRELLIS_LOG_LEVEL", "info"))
	if err != nil {
		level = observability.InfoLevel
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("TRELLIS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TRELLIS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TRELLIS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TRELLIS_OTEL_SERVICE_NAME", "trellis"),
		OTelServiceVersion: getEnv("TRELLIS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TRELLIS_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TRELLIS_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Discovery.PackagesDir == "" || c.Discovery.SideloadDir == "" {
		return fmt.Errorf("packages and sideload directories are required")
	}
	if c.Discovery.PackagesDir == c.Discovery.SideloadDir {
		return fmt.Errorf("packages and sideload directories must be different")
	}
	if c.Discovery.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Discovery.ActivationWorkers < 1 {
		return fmt.Errorf("activation workers must be at least 1")
	}

	switch c.Settings.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Settings.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite settings")
		}
	case BackendPostgres:
		if c.Settings.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres settings")
		}
	case BackendRedis:
		if c.Settings.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis settings")
		}
	default:
		return fmt.Errorf("invalid settings backend: %s (must be memory, sqlite, postgres, or redis)", c.Settings.Backend)
	}

	if c.Updates.Enabled {
		if _, err := cron.ParseStandard(c.Updates.Schedule); err != nil {
			return fmt.Errorf("invalid update schedule %q: %w", c.Updates.Schedule, err)
		}
		if c.Updates.ABI == "" {
			return fmt.Errorf("update ABI is required when updates are enabled")
		}
		if c.Updates.Concurrency < 1 {
			return fmt.Errorf("update concurrency must be at least 1")
		}
		if c.Updates.MaxArtifactMB < 1 {
			return fmt.Errorf("update artifact limit must be at least 1 MB")
		}
	}

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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
