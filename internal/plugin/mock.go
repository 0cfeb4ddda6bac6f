package plugin

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
)

// MockPlugin is an in-memory plugin. Records are kept in insertion order, so
// search results group a payment's records contiguously as long as they were
// added together.
type MockPlugin struct {
	name        string
	latency     time.Duration
	failureRate float64 // 0.0 to 1.0
	failWith    error

	mu      sync.RWMutex
	records []payment.PluginTransactionInfo
	calls   int
}

type MockPluginOption func(*MockPlugin)

func WithLatency(d time.Duration) MockPluginOption {
	return func(p *MockPlugin) { p.latency = d }
}

func WithFailureRate(rate float64) MockPluginOption {
	return func(p *MockPlugin) { p.failureRate = rate }
}

// WithError makes every call fail with err.
func WithError(err error) MockPluginOption {
	return func(p *MockPlugin) { p.failWith = err }
}

func NewMockPlugin(name string, opts ...MockPluginOption) *MockPlugin {
	p := &MockPlugin{name: name}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockPlugin) Name() string { return p.name }

// AddRecords appends plugin records.
func (p *MockPlugin) AddRecords(records ...payment.PluginTransactionInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, records...)
}

// SetStatus changes the status the plugin reports for a transaction.
func (p *MockPlugin) SetStatus(transactionID uuid.UUID, status payment.PluginStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.records {
		if p.records[i].TransactionID == transactionID {
			p.records[i].Status = status
		}
	}
}

// Calls returns how many plugin calls were made.
func (p *MockPlugin) Calls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls
}

func (p *MockPlugin) simulate(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.failWith != nil {
		return p.failWith
	}
	if p.failureRate > 0 && rand.Float64() < p.failureRate {
		return fmt.Errorf("%s: simulated failure: %w", p.name, domainErrors.ErrPluginUnavailable)
	}
	return nil
}

func (p *MockPlugin) GetPaymentInfo(ctx context.Context, _ uuid.UUID, paymentID uuid.UUID, _ []payment.PluginProperty) ([]payment.PluginTransactionInfo, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []payment.PluginTransactionInfo
	for _, r := range p.records {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *MockPlugin) SearchPayments(ctx context.Context, searchKey string, offset, limit int, _ []payment.PluginProperty) (*pagination.Page[payment.PluginTransactionInfo], error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	var matched []payment.PluginTransactionInfo
	for _, r := range p.records {
		if matches(r, searchKey) {
			matched = append(matched, r)
		}
	}

	page := pagination.Empty[payment.PluginTransactionInfo](offset, limit)
	page.TotalCount = int64(len(matched))
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		page.Items = append(page.Items, matched[offset:end]...)
	}
	return page, nil
}

func matches(r payment.PluginTransactionInfo, searchKey string) bool {
	if searchKey == "" {
		return true
	}
	return strings.Contains(r.PaymentID.String(), searchKey) ||
		strings.Contains(r.TransactionID.String(), searchKey) ||
		strings.Contains(r.FirstReferenceID, searchKey)
}
