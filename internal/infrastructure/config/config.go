package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Plugin        PluginConfig        `mapstructure:"plugin"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	RetryQueue    RetryQueueConfig    `mapstructure:"retry_queue"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// RateLimitPerMinute caps requests per client IP; 0 disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	// JWTSecret verifies API bearer tokens; empty disables authentication.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PluginConfig bounds calls to payment plugins.
type PluginConfig struct {
	CallTimeout             time.Duration `mapstructure:"call_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerRatio     float64       `mapstructure:"circuit_breaker_ratio"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	// Mock lists plugin names backed by the in-memory plugin.
	Mock []string `mapstructure:"mock"`
}

// ReconcileConfig tunes the account lock taken by corrective writes.
type ReconcileConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
}

type RetryQueueConfig struct {
	Service   string `mapstructure:"service"`
	QueueName string `mapstructure:"queue_name"`
}

// WorkerConfig configures the reconciliation event consumer.
type WorkerConfig struct {
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	// ClaimMinIdle is how long a delivered but unacked event waits before
	// another read claims it again.
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paymentrecon")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute must not be negative"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Plugin.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("plugin.call_timeout must be positive"))
	}
	if c.Plugin.CircuitBreakerRatio < 0 || c.Plugin.CircuitBreakerRatio > 1 {
		errs = append(errs, fmt.Errorf("plugin.circuit_breaker_ratio must be between 0 and 1"))
	}
	if c.Reconcile.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.lock_ttl must be positive"))
	}
	if c.Reconcile.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.lock_timeout must be positive"))
	}
	if c.Reconcile.LockTimeout > c.Reconcile.LockTTL {
		errs = append(errs, fmt.Errorf("reconcile.lock_timeout must not exceed reconcile.lock_ttl"))
	}
	if c.RetryQueue.Service == "" || c.RetryQueue.QueueName == "" {
		errs = append(errs, fmt.Errorf("retry_queue.service and retry_queue.queue_name are required"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.ClaimMinIdle <= 0 {
		errs = append(errs, fmt.Errorf("worker.claim_min_idle must be positive"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Server.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("server.jwt_secret required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit_per_minute", 600)
	v.SetDefault("server.jwt_secret", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "payments")
	v.SetDefault("database.database", "payments")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Plugin defaults
	v.SetDefault("plugin.call_timeout", "10s")
	v.SetDefault("plugin.circuit_breaker_threshold", 10)
	v.SetDefault("plugin.circuit_breaker_ratio", 0.6)
	v.SetDefault("plugin.circuit_breaker_timeout", "30s")
	v.SetDefault("plugin.mock", []string{"__EXTERNAL_PAYMENT__"})

	// Reconcile defaults
	v.SetDefault("reconcile.lock_ttl", "30s")
	v.SetDefault("reconcile.lock_timeout", "5s")
	v.SetDefault("reconcile.lock_retry_delay", "100ms")

	// Retry queue defaults
	v.SetDefault("retry_queue.service", "payment-service")
	v.SetDefault("retry_queue.queue_name", "payment-retry")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "reconciliation-audit")
	v.SetDefault("worker.claim_min_idle", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	v.SetDefault("instance_id", "paymentrecon-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL renders the connection as a URL, the form golang-migrate expects.
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
