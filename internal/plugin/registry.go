package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-plugin circuit breaker.
type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	// OnStateChange is called with the plugin name and the new state.
	OnStateChange func(name string, state gobreaker.State)
}

// DefaultBreakerSettings mirrors the thresholds used for gateway calls.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
	}
}

// Registry holds the registered plugins, each wrapped in a circuit breaker.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	settings BreakerSettings
}

// NewRegistry creates a registry with the given plugins.
func NewRegistry(settings BreakerSettings, plugins ...Plugin) *Registry {
	r := &Registry{
		plugins:  make(map[string]Plugin),
		settings: settings,
	}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register registers a plugin and creates a circuit breaker for it.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = &guardedPlugin{
		Plugin:  p,
		breaker: r.newBreaker(p.Name()),
	}
}

func (r *Registry) newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	s := r.settings
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			if s.OnStateChange != nil {
				s.OnStateChange(name, to)
			}
		},
	})
}

// Get returns the breaker-guarded plugin registered under name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q: %w", name, domainErrors.ErrPluginNotFound)
	}
	return p, nil
}

// Names returns the registered plugin names in a stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// guardedPlugin routes every call through the plugin's circuit breaker.
type guardedPlugin struct {
	Plugin
	breaker *gobreaker.CircuitBreaker[any]
}

func (g *guardedPlugin) GetPaymentInfo(ctx context.Context, accountID, paymentID uuid.UUID, properties []payment.PluginProperty) ([]payment.PluginTransactionInfo, error) {
	return execute(g.breaker, func() ([]payment.PluginTransactionInfo, error) {
		return g.Plugin.GetPaymentInfo(ctx, accountID, paymentID, properties)
	})
}

func (g *guardedPlugin) SearchPayments(ctx context.Context, searchKey string, offset, limit int, properties []payment.PluginProperty) (*pagination.Page[payment.PluginTransactionInfo], error) {
	return execute(g.breaker, func() (*pagination.Page[payment.PluginTransactionInfo], error) {
		return g.Plugin.SearchPayments(ctx, searchKey, offset, limit, properties)
	})
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", cb.Name(), domainErrors.ErrPluginUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w", cb.Name(), domainErrors.ErrPluginTimeout)
		}
		return zero, err
	}
	return res.(T), nil
}
