// Package config provides configuration structures and validation for the ledger services.
// Both binaries (the API gateway and the outbox relay) share one layout so a single
// .env file can drive a local deployment.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a subsystem and is validated during application startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Kafka        KafkaConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Outbox       OutboxConfig
	WorkerPool   WorkerPoolConfig
	Identity     IdentityConfig
	Receipts     ReceiptsConfig
	Cache        CacheConfig
	Provisioning ProvisioningConfig
	Session      SessionConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	LedgerEventsTopic string // Topic the relay publishes ledger events to
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
	CacheSyncEnabled  bool // Gateway consumes ledger events to drop process-local cache entries
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the activity log
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox relay configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// IdentityConfig points at the GoTrue-compatible authentication server
type IdentityConfig struct {
	BaseURL        string
	APIKey         string
	JWTSecret      string
	RequestTimeout time.Duration
}

// ReceiptsConfig configures the receipt object store
type ReceiptsConfig struct {
	Driver            string // "s3" or "gcs"
	Bucket            string
	Region            string
	Endpoint          string
	AccessKey         string
	SecretKey         string
	UsePathStyle      bool
	PublicBaseURL     string // Prefix used to build public receipt URLs
	CredentialsFile   string // GCS service account file, optional
	MaxSizeBytes      int64
	UploadMaxAttempts int
	UploadBackoff     time.Duration
}

// CacheConfig configures the read cache and the pending-provisioning markers
type CacheConfig struct {
	Driver           string // "memory" or "redis"
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TTL              time.Duration
	PendingMarkerTTL time.Duration
}

// ProvisioningConfig controls account provisioning retries and defaults
type ProvisioningConfig struct {
	MaxAttempts        int
	Backoff            time.Duration // Multiplied by the attempt number
	TaskTimeout        time.Duration
	DefaultAccountType string
	DefaultCurrency    string
}

// SessionConfig controls device sessions held by the gateway
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// validate performs validation of all configuration values and reports every
// violation at once
func (c *Config) validate() error {
	var validationErrors []string

	// Server
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.LedgerEventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_LEDGER_EVENTS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	// PostgreSQL
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// MongoDB
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	// Outbox
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Identity
	if c.Identity.BaseURL == "" {
		validationErrors = append(validationErrors, "IDENTITY_BASE_URL is required")
	}
	if c.Identity.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "IDENTITY_REQUEST_TIMEOUT must be greater than 0")
	}

	// Receipts
	switch c.Receipts.Driver {
	case "s3", "gcs":
	default:
		validationErrors = append(validationErrors, "RECEIPTS_DRIVER must be one of: s3, gcs")
	}
	if c.Receipts.Bucket == "" {
		validationErrors = append(validationErrors, "RECEIPTS_BUCKET is required")
	}
	if c.Receipts.MaxSizeBytes <= 0 {
		validationErrors = append(validationErrors, "RECEIPTS_MAX_SIZE_BYTES must be greater than 0")
	}
	if c.Receipts.UploadMaxAttempts <= 0 {
		validationErrors = append(validationErrors, "RECEIPTS_UPLOAD_MAX_ATTEMPTS must be greater than 0")
	}

	// Cache
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			validationErrors = append(validationErrors, "CACHE_REDIS_ADDR is required when CACHE_DRIVER=redis")
		}
	default:
		validationErrors = append(validationErrors, "CACHE_DRIVER must be one of: memory, redis")
	}
	if c.Cache.TTL <= 0 {
		validationErrors = append(validationErrors, "CACHE_TTL must be greater than 0")
	}
	if c.Cache.PendingMarkerTTL <= 0 {
		validationErrors = append(validationErrors, "CACHE_PENDING_MARKER_TTL must be greater than 0")
	}

	// Provisioning
	if c.Provisioning.MaxAttempts <= 0 || c.Provisioning.MaxAttempts > 3 {
		validationErrors = append(validationErrors, "PROVISIONING_MAX_ATTEMPTS must be between 1 and 3")
	}
	if c.Provisioning.Backoff < 0 {
		validationErrors = append(validationErrors, "PROVISIONING_BACKOFF must not be negative")
	}
	if c.Provisioning.TaskTimeout <= 0 {
		validationErrors = append(validationErrors, "PROVISIONING_TASK_TIMEOUT must be greater than 0")
	}
	if len(c.Provisioning.DefaultCurrency) != 3 {
		validationErrors = append(validationErrors, "PROVISIONING_DEFAULT_CURRENCY must be a 3-letter code")
	}

	// Session
	if c.Session.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SESSION_IDLE_TIMEOUT must be greater than 0")
	}
	if c.Session.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "SESSION_SWEEP_INTERVAL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
