package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMethods struct {
	methods map[uuid.UUID]*payment.PaymentMethod
	calls   int
}

func (s *stubMethods) GetPaymentMethod(_ context.Context, id uuid.UUID) (*payment.PaymentMethod, error) {
	s.calls++
	pm, ok := s.methods[id]
	if !ok {
		return nil, domainErrors.ErrPaymentMethodNotFound
	}
	return pm, nil
}

func setupFetcher(t *testing.T, timeout time.Duration, plugins ...Plugin) (*Fetcher, *stubMethods, *observability.Metrics) {
	t.Helper()
	methods := &stubMethods{methods: make(map[uuid.UUID]*payment.PaymentMethod)}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	reg := NewRegistry(DefaultBreakerSettings(), plugins...)
	return NewFetcher(reg, methods, timeout, zerolog.Nop(), metrics), methods, metrics
}

func TestFetcher_FetchPaymentInfo_Success(t *testing.T) {
	mock := NewMockPlugin("stripe")
	p := &payment.Payment{ID: uuid.New(), AccountID: uuid.New()}
	mock.AddRecords(
		payment.PluginTransactionInfo{PaymentID: p.ID, TransactionID: uuid.New()},
		payment.PluginTransactionInfo{PaymentID: uuid.New(), TransactionID: uuid.New()},
	)
	f, _, metrics := setupFetcher(t, time.Second, mock)
	plg, err := f.Registry().Get("stripe")
	require.NoError(t, err)

	infos, ok := f.FetchPaymentInfo(context.Background(), plg, p, nil)
	assert.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, p.ID, infos[0].PaymentID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PluginInfoRequests.WithLabelValues("stripe", "ok")))
}

func TestFetcher_FetchPaymentInfo_NilPlugin(t *testing.T) {
	f, _, _ := setupFetcher(t, time.Second)

	infos, ok := f.FetchPaymentInfo(context.Background(), nil, &payment.Payment{ID: uuid.New()}, nil)
	assert.False(t, ok)
	assert.Nil(t, infos)
}

func TestFetcher_FetchPaymentInfo_FailureIsAbsorbed(t *testing.T) {
	mock := NewMockPlugin("stripe", WithError(errors.New("connection refused")))
	f, _, metrics := setupFetcher(t, time.Second, mock)
	plg, err := f.Registry().Get("stripe")
	require.NoError(t, err)

	infos, ok := f.FetchPaymentInfo(context.Background(), plg, &payment.Payment{ID: uuid.New()}, nil)
	assert.False(t, ok)
	assert.Nil(t, infos)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PluginInfoRequests.WithLabelValues("stripe", "error")))
}

func TestFetcher_FetchPaymentInfo_Timeout(t *testing.T) {
	mock := NewMockPlugin("slow", WithLatency(time.Second))
	f, _, _ := setupFetcher(t, 10*time.Millisecond, mock)
	plg, err := f.Registry().Get("slow")
	require.NoError(t, err)

	start := time.Now()
	_, ok := f.FetchPaymentInfo(context.Background(), plg, &payment.Payment{ID: uuid.New()}, nil)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestResolver_CachesHitsAndMisses(t *testing.T) {
	f, methods, metrics := setupFetcher(t, time.Second, NewMockPlugin("stripe"))

	known := uuid.New()
	unknownPlugin := uuid.New()
	missing := uuid.New()
	methods.methods[known] = &payment.PaymentMethod{ID: known, PluginName: "stripe"}
	methods.methods[unknownPlugin] = &payment.PaymentMethod{ID: unknownPlugin, PluginName: "paypal"}

	ctx := context.Background()
	r := f.NewResolver()

	for i := 0; i < 3; i++ {
		plg := r.Resolve(ctx, known)
		require.NotNil(t, plg)
		assert.Equal(t, "stripe", plg.Name())
		assert.Nil(t, r.Resolve(ctx, unknownPlugin))
		assert.Nil(t, r.Resolve(ctx, missing))
	}

	assert.Equal(t, 3, methods.calls, "each payment method is looked up once per resolver")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PluginResolutionFailures.WithLabelValues("plugin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PluginResolutionFailures.WithLabelValues("payment_method")))
}

func TestResolver_CacheIsPerResolver(t *testing.T) {
	f, methods, _ := setupFetcher(t, time.Second, NewMockPlugin("stripe"))
	id := uuid.New()
	methods.methods[id] = &payment.PaymentMethod{ID: id, PluginName: "stripe"}

	ctx := context.Background()
	require.NotNil(t, f.NewResolver().Resolve(ctx, id))
	require.NotNil(t, f.NewResolver().Resolve(ctx, id))

	assert.Equal(t, 2, methods.calls)
}
