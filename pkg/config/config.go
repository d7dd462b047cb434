package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/curlens/curlens/pkg/awsauth"
	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Data source configuration (immutable after load)
	DataSource DataSourceConfig

	// Sync and materializer configuration
	Sync  SyncConfig
	Views ViewsConfig

	// Query plane limits
	Query QueryConfig

	// Operational HTTP server (health + metrics)
	Server ServerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// DataSourceConfig describes one billing export data source. It is
// constructed once and held read-only for the process lifetime.
type DataSourceConfig struct {
	Bucket     string
	Prefix     string
	ExportType export.Type
	TableName  string

	// Inclusive partition window; either bound may be empty (open).
	DateStart string
	DateEnd   string

	// LocalRoot enables the local cache mirror; empty means remote-only.
	// PreferLocal is ignored when LocalRoot is empty.
	LocalRoot   string
	PreferLocal bool

	Region      string
	Credentials awsauth.Credentials
}

// SyncConfig holds transfer settings
type SyncConfig struct {
	Workers     int
	MaxRetries  int
	RetryBase   time.Duration
	RetryCap    time.Duration
	CallTimeout time.Duration
}

// ViewsConfig holds materializer settings
type ViewsConfig struct {
	ManifestPath string
	OutputRoot   string
	Schedule     string
	QueryLibrary string
}

// QueryConfig holds query plane limits
type QueryConfig struct {
	MaxRows      int
	MaxQueryLen  int
	Deadline     time.Duration
	Diagnostics  bool
	LibraryCache int
	ClientCache  int
}

// ServerConfig holds the operational HTTP server configuration
type ServerConfig struct {
	HealthPort      string
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataSource:    loadDataSourceConfig(),
		Sync:          loadSyncConfig(),
		Views:         loadViewsConfig(),
		Query:         loadQueryConfig(),
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDataSourceConfig() DataSourceConfig {
	exportType, _ := export.ParseType(getEnv("CURLENS_EXPORT_TYPE", string(export.CUR20)))
	return DataSourceConfig{
		Bucket:      getEnv("CURLENS_BUCKET", ""),
		Prefix:      strings.Trim(getEnv("CURLENS_PREFIX", ""), "/"),
		ExportType:  exportType,
		TableName:   getEnv("CURLENS_TABLE_NAME", export.DefaultTableName),
		DateStart:   getEnv("CURLENS_DATE_START", ""),
		DateEnd:     getEnv("CURLENS_DATE_END", ""),
		LocalRoot:   getEnv("CURLENS_LOCAL_ROOT", ""),
		PreferLocal: getEnvBool("CURLENS_PREFER_LOCAL", true),
		Region:      getEnv("CURLENS_REGION", "us-east-1"),
		Credentials: awsauth.Credentials{
			AccessKeyID:     getEnv("CURLENS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("CURLENS_SECRET_ACCESS_KEY", ""),
			SessionToken:    getEnv("CURLENS_SESSION_TOKEN", ""),
			Profile:         getEnv("CURLENS_PROFILE", ""),
			RoleARN:         getEnv("CURLENS_ROLE_ARN", ""),
			ExternalID:      getEnv("CURLENS_EXTERNAL_ID", ""),
		},
	}
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Workers:     getEnvInt("CURLENS_SYNC_WORKERS", 5),
		MaxRetries:  getEnvInt("CURLENS_SYNC_MAX_RETRIES", 3),
		RetryBase:   getEnvDuration("CURLENS_SYNC_RETRY_BASE", 500*time.Millisecond),
		RetryCap:    getEnvDuration("CURLENS_SYNC_RETRY_CAP", 30*time.Second),
		CallTimeout: getEnvDuration("CURLENS_SYNC_CALL_TIMEOUT", 5*time.Minute),
	}
}

func loadViewsConfig() ViewsConfig {
	return ViewsConfig{
		ManifestPath: getEnv("CURLENS_VIEW_MANIFEST", ""),
		OutputRoot:   getEnv("CURLENS_VIEW_OUTPUT_ROOT", ""),
		Schedule:     getEnv("CURLENS_MATERIALIZE_SCHEDULE", "0 2 * * *"),
		QueryLibrary: getEnv("CURLENS_QUERY_LIBRARY", ""),
	}
}

func loadQueryConfig() QueryConfig {
	return QueryConfig{
		MaxRows:      getEnvInt("CURLENS_MAX_ROWS", 50000),
		MaxQueryLen:  getEnvInt("CURLENS_MAX_QUERY_LEN", 100000),
		Deadline:     getEnvDuration("CURLENS_QUERY_DEADLINE", 5*time.Minute),
		Diagnostics:  getEnvBool("CURLENS_DIAGNOSTICS", false),
		LibraryCache: getEnvInt("CURLENS_LIBRARY_CACHE_SIZE", 128),
		ClientCache:  getEnvInt("CURLENS_CLIENT_CACHE_SIZE", 32),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HealthPort:      getEnv("CURLENS_HEALTH_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("CURLENS_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CURLENS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CURLENS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CURLENS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CURLENS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CURLENS_OTEL_SERVICE_NAME", "curlens"),
		OTelServiceVersion: getEnv("CURLENS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CURLENS_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataSource.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	layout, err := export.LayoutFor(c.DataSource.ExportType)
	if err != nil {
		return err
	}
	if c.DataSource.TableName == "" {
		return fmt.Errorf("table name is required")
	}

	if err := layout.ValidateWindow(c.DataSource.DateStart, c.DataSource.DateEnd); err != nil {
		return fmt.Errorf("invalid date window: %w", err)
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1")
	}
	if c.Query.MaxRows < 1 {
		return fmt.Errorf("max rows must be at least 1")
	}
	if c.Query.MaxQueryLen < 1 {
		return fmt.Errorf("max query length must be at least 1")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
