package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Auth     AuthConfig
	TVDB     TVDBConfig
	Sync     SyncConfig
	Cache    CacheConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration.
// Backend selects the storage implementation: "s3" or "disabled".
type StorageConfig struct {
	Backend         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SecretKey        string
	TokenTTL         time.Duration
	DefaultRateLimit int
	AdminClients     []string
	SeedKeys         []SeedKey
}

// SeedKey describes a credential inserted once at startup
type SeedKey struct {
	Key       string
	Name      string
	RateLimit int
}

// TVDBConfig holds upstream API configuration
type TVDBConfig struct {
	BaseURL string
	APIKey  string
	PIN     string
}

// SyncConfig holds synchronization cadence and batch configuration
type SyncConfig struct {
	FullSyncCron      string
	IncrementalCron   string
	CacheCleanupCron  string
	PrefetchCron      string
	StaticDataCron    string
	BatchPages        int
	ImageFanout       int
	JobHardTimeout    time.Duration
	JobSoftTimeout    time.Duration
	ImageRetryLimit   int
	ImageRetryDelay   time.Duration
	MissingImageLimit int
}

// CacheConfig holds cache TTL tiers
type CacheConfig struct {
	TTLStatic  time.Duration
	TTLDynamic time.Duration
	TTLPopular time.Duration
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Auth.SecretKey == "" {
		return nil, fmt.Errorf("auth.secretKey is required")
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.baseURL", "")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "tvdbproxy")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.backend", "s3")
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "tvdb-images")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Auth defaults
	viper.SetDefault("auth.tokenTTL", "720h") // 30 days, TVDB session length
	viper.SetDefault("auth.defaultRateLimit", 100)
	viper.SetDefault("auth.adminClients", []string{})

	// Upstream defaults
	viper.SetDefault("tvdb.baseURL", "https://api4.thetvdb.com/v4")
	viper.SetDefault("tvdb.pin", "")

	// Sync defaults
	viper.SetDefault("sync.fullSyncCron", "0 */6 * * *")
	viper.SetDefault("sync.incrementalCron", "*/15 * * * *")
	viper.SetDefault("sync.cacheCleanupCron", "0 * * * *")
	viper.SetDefault("sync.prefetchCron", "*/30 * * * *")
	viper.SetDefault("sync.staticDataCron", "0 2 * * *")
	viper.SetDefault("sync.batchPages", 10)
	viper.SetDefault("sync.imageFanout", 4)
	viper.SetDefault("sync.jobHardTimeout", "30m")
	viper.SetDefault("sync.jobSoftTimeout", "25m")
	viper.SetDefault("sync.imageRetryLimit", 3)
	viper.SetDefault("sync.imageRetryDelay", "60s")
	viper.SetDefault("sync.missingImageLimit", 100)

	// Cache TTL tiers
	viper.SetDefault("cache.ttlStatic", "24h")
	viper.SetDefault("cache.ttlDynamic", "1h")
	viper.SetDefault("cache.ttlPopular", "30m")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.serviceName", "tvdbproxy")
	viper.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}
