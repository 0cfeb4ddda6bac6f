package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cassiomorais/paymentrecon/internal/infrastructure/config"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paymentrecon/internal/infrastructure/redis"
	"github.com/cassiomorais/paymentrecon/internal/plugin"
	"github.com/cassiomorais/paymentrecon/internal/reconcile"
	"github.com/cassiomorais/paymentrecon/internal/repository/postgres"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

type options struct {
	logOutput io.Writer
}

// Option customizes New.
type Option func(*options)

// WithLogOutput sends logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

func New(ctx context.Context, serviceName string, metricsNamespace string, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, o.logOutput)
	log.Logger = logger
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)

	pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
	}, nil
}

// PluginRegistry registers the configured plugins behind circuit breakers
// whose state is exported as a gauge.
func (a *App) PluginRegistry() *plugin.Registry {
	pc := a.Config.Plugin
	settings := plugin.BreakerSettings{
		MinRequests:  uint32(pc.CircuitBreakerThreshold),
		FailureRatio: pc.CircuitBreakerRatio,
		OpenTimeout:  pc.CircuitBreakerTimeout,
		OnStateChange: func(name string, state gobreaker.State) {
			a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			a.Logger.Warn().Str("plugin", name).Str("state", state.String()).Msg("Plugin circuit breaker changed state")
		},
	}

	registry := plugin.NewRegistry(settings)
	for _, name := range pc.Mock {
		registry.Register(plugin.NewMockPlugin(name))
		a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}
	a.Logger.Info().Strs("plugins", registry.Names()).Msg("Plugins registered")
	return registry
}

// PaymentService wires the read path: storage, plugins, the reconciling
// janitor and the retry queue.
func (a *App) PaymentService(ctx context.Context) (*service.PaymentService, error) {
	repo := postgres.NewPaymentRepository(a.Pool)
	txManager := postgres.NewTxManager(a.Pool)

	retryQueue := infraRedis.NewRetryQueue(a.Redis, a.Config.RetryQueue.Service, a.Config.RetryQueue.QueueName)
	if err := retryQueue.Register(ctx); err != nil {
		return nil, fmt.Errorf("register retry queue: %w", err)
	}

	locker := infraRedis.NewAccountLocker(a.Redis, a.Config.Reconcile, a.Logger)
	janitor := reconcile.NewJanitor(repo, txManager, locker, infraRedis.NewStreamProducer(a.Redis), a.Logger, a.Metrics)
	fetcher := plugin.NewFetcher(a.PluginRegistry(), repo, a.Config.Plugin.CallTimeout, a.Logger, a.Metrics)

	return service.NewPaymentService(repo, fetcher, janitor, retryQueue, a.Logger, a.Metrics), nil
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
