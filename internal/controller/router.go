package controller

import (
	"time"

	"github.com/cassiomorais/paymentrecon/internal/infrastructure/config"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paymentrecon/internal/middleware"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Health         *HealthController
	PaymentService *service.PaymentService
	Metrics        *observability.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer   prometheus.Gatherer
	CORSConfig config.CORSConfig
	// RateLimitPerMinute caps requests per client IP; zero disables it.
	RateLimitPerMinute int
	// JWTSecret guards /api/v1; empty leaves the API open.
	JWTSecret string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	paymentH := NewPaymentController(deps.PaymentService)
	accountH := NewAccountController(deps.PaymentService)

	if deps.Health != nil {
		r.Get("/health", deps.Health.Health)
		r.Get("/health/live", deps.Health.Liveness)
		r.Get("/health/ready", deps.Health.Readiness)
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.RateLimitPerMinute))
		r.Use(customMW.RequireAuth(deps.JWTSecret))

		r.Get("/accounts/{id}/payments", accountH.GetPayments)

		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/search", paymentH.SearchPayments)
		r.Get("/payments/{id}", paymentH.GetPayment)
	})

	return r
}
