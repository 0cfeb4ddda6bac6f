package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Plugin: PluginConfig{
			CallTimeout:         10 * time.Second,
			CircuitBreakerRatio: 0.6,
		},
		Reconcile: ReconcileConfig{
			LockTTL:     30 * time.Second,
			LockTimeout: 5 * time.Second,
		},
		RetryQueue: RetryQueueConfig{
			Service:   "payment-service",
			QueueName: "payment-retry",
		},
		Worker: WorkerConfig{
			BatchSize:    10,
			ClaimMinIdle: 30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 99999 }, "server.port"},
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout"},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, "write_timeout"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "rate_limit_per_minute"},
		{"database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"database port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"redis port", func(c *Config) { c.Redis.Port = 0 }, "redis.port"},
		{"plugin timeout", func(c *Config) { c.Plugin.CallTimeout = 0 }, "plugin.call_timeout"},
		{"breaker ratio", func(c *Config) { c.Plugin.CircuitBreakerRatio = 1.5 }, "plugin.circuit_breaker_ratio"},
		{"lock ttl", func(c *Config) { c.Reconcile.LockTTL = 0 }, "reconcile.lock_ttl"},
		{"lock timeout", func(c *Config) { c.Reconcile.LockTimeout = 0 }, "reconcile.lock_timeout"},
		{"lock timeout above ttl", func(c *Config) { c.Reconcile.LockTimeout = time.Minute }, "must not exceed"},
		{"retry queue name", func(c *Config) { c.RetryQueue.QueueName = "" }, "retry_queue"},
		{"worker batch size", func(c *Config) { c.Worker.BatchSize = 0 }, "worker.batch_size"},
		{"worker claim idle", func(c *Config) { c.Worker.ClaimMinIdle = 0 }, "worker.claim_min_idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "plugin.call_timeout")
	assert.Contains(t, errStr, "reconcile.lock_ttl")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestConfig_Validate_ProductionRequiresPassword(t *testing.T) {
	t.Setenv("ENV", "production")
	cfg := validConfig()
	cfg.Database.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")
	assert.Contains(t, err.Error(), "server.jwt_secret")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Plugin.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.LockTimeout)
	assert.Equal(t, "payment-retry", cfg.RetryQueue.QueueName)
	assert.Equal(t, []string{"__EXTERNAL_PAYMENT__"}, cfg.Plugin.Mock)
	assert.Equal(t, 600, cfg.Server.RateLimitPerMinute)
	assert.Empty(t, cfg.Server.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Worker.ClaimMinIdle)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAYMENTS_SERVER_PORT", "9090")
	t.Setenv("PAYMENTS_RECONCILE_LOCK_TIMEOUT", "2s")
	t.Setenv("PAYMENTS_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Reconcile.LockTimeout)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestConfig_Addresses(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=require", db.DatabaseDSN())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.RedisAddr())

	db.Password = "p@ss/word"
	assert.Equal(t, "postgres://u:p%40ss%2Fword@db:5432/d?sslmode=require", db.MigrationURL())
}
