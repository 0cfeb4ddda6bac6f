package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentMethodGetter resolves a payment method to the plugin serving it.
type PaymentMethodGetter interface {
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (*payment.PaymentMethod, error)
}

// Fetcher retrieves plugin transaction info. Failures never reach the
// caller: they are logged and turned into "no plugin info".
type Fetcher struct {
	registry *Registry
	methods  PaymentMethodGetter
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewFetcher creates a Fetcher. timeout bounds every plugin call.
func NewFetcher(registry *Registry, methods PaymentMethodGetter, timeout time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		registry: registry,
		methods:  methods,
		timeout:  timeout,
		logger:   observability.Component(logger, "plugin_fetcher"),
		metrics:  metrics,
	}
}

// Registry returns the plugin registry backing the fetcher.
func (f *Fetcher) Registry() *Registry {
	return f.registry
}

// FetchPaymentInfo returns the plugin's transaction info for p. The boolean
// is false when no info is available: no plugin, or the call failed.
func (f *Fetcher) FetchPaymentInfo(ctx context.Context, plg Plugin, p *payment.Payment, properties []payment.PluginProperty) ([]payment.PluginTransactionInfo, bool) {
	if plg == nil {
		return nil, false
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	infos, err := plg.GetPaymentInfo(callCtx, p.AccountID, p.ID, properties)
	if err != nil {
		f.metrics.PluginInfoRequests.WithLabelValues(plg.Name(), "error").Inc()
		f.logger.Warn().
			Err(err).
			Str("plugin", plg.Name()).
			Str("payment_id", p.ID.String()).
			Msg("Unable to retrieve plugin info for payment")
		return nil, false
	}

	f.metrics.PluginInfoRequests.WithLabelValues(plg.Name(), "ok").Inc()
	return infos, true
}

// SearchPayments runs a bounded search against plg. Unlike FetchPaymentInfo
// the error is returned so the caller can skip the plugin.
func (f *Fetcher) SearchPayments(ctx context.Context, plg Plugin, searchKey string, offset, limit int, properties []payment.PluginProperty) (*pagination.Page[payment.PluginTransactionInfo], error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	page, err := plg.SearchPayments(ctx, searchKey, offset, limit, properties)
	if err != nil {
		f.metrics.PluginInfoRequests.WithLabelValues(plg.Name(), "error").Inc()
		return nil, fmt.Errorf("search plugin %s: %w", plg.Name(), err)
	}
	f.metrics.PluginInfoRequests.WithLabelValues(plg.Name(), "ok").Inc()
	return page, nil
}

// NewResolver returns a resolver whose cache lives as long as the resolver.
// Create one per bulk call and drop it afterwards.
func (f *Fetcher) NewResolver() *Resolver {
	return &Resolver{
		fetcher: f,
		found:   make(map[uuid.UUID]Plugin),
		absent:  make(map[uuid.UUID]struct{}),
	}
}

// Resolver maps payment methods to plugins, remembering both hits and misses.
type Resolver struct {
	fetcher *Fetcher
	found   map[uuid.UUID]Plugin
	absent  map[uuid.UUID]struct{}
}

// Resolve returns the plugin for a payment method or nil when it cannot be
// resolved. A miss is cached and logged once.
func (r *Resolver) Resolve(ctx context.Context, paymentMethodID uuid.UUID) Plugin {
	if plg, ok := r.found[paymentMethodID]; ok {
		return plg
	}
	if _, ok := r.absent[paymentMethodID]; ok {
		return nil
	}

	plg, reason, err := r.lookup(ctx, paymentMethodID)
	if err != nil {
		r.fetcher.metrics.PluginResolutionFailures.WithLabelValues(reason).Inc()
		r.fetcher.logger.Warn().
			Err(err).
			Str("payment_method_id", paymentMethodID.String()).
			Msg("Unable to retrieve plugin for payment method")
		r.absent[paymentMethodID] = struct{}{}
		return nil
	}

	r.found[paymentMethodID] = plg
	return plg
}

func (r *Resolver) lookup(ctx context.Context, paymentMethodID uuid.UUID) (Plugin, string, error) {
	pm, err := r.fetcher.methods.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return nil, "payment_method", err
	}
	plg, err := r.fetcher.registry.Get(pm.PluginName)
	if err != nil {
		return nil, "plugin", err
	}
	return plg, "", nil
}
