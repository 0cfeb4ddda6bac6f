package audit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paymentrecon/internal/infrastructure/redis"
	"github.com/cassiomorais/paymentrecon/internal/testutil"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client   *redis.Client
	consumer *infraRedis.StreamConsumer
	repo     *testutil.MockPaymentRepository
	auditor  *Auditor
	metrics  *observability.Metrics
}

func (f *fixture) count(result string) float64 {
	return promtest.ToFloat64(f.metrics.AuditEvents.WithLabelValues(result))
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithClaimIdle(t, time.Hour)
}

func setupWithClaimIdle(t *testing.T, claimMinIdle time.Duration) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	consumer := infraRedis.NewStreamConsumer(client, infraRedis.ReconciliationStream, "audit", "c1", 10, 10*time.Millisecond)
	require.NoError(t, consumer.CreateGroup(context.Background()))

	repo := testutil.NewMockPaymentRepository()
	metrics := testutil.NewTestMetrics()
	auditor := NewAuditor(consumer, repo, claimMinIdle, zerolog.Nop(), metrics)
	auditor.retryDelay = 10 * time.Millisecond

	return &fixture{client: client, consumer: consumer, repo: repo, auditor: auditor, metrics: metrics}
}

func (f *fixture) publish(t *testing.T, tx *payment.Transaction, to payment.TransactionStatus) {
	t.Helper()
	require.NoError(t, infraRedis.NewStreamProducer(f.client).PublishReconciliation(context.Background(), payment.ReconciliationEvent{
		PaymentID:     tx.PaymentID,
		TransactionID: tx.ID,
		AccountID:     uuid.New(),
		FromStatus:    payment.StatusPending,
		ToStatus:      to,
		PluginStatus:  payment.PluginProcessed,
		ReconciledAt:  testutil.BaseTime,
	}))
}

func (f *fixture) storedTransaction(status payment.TransactionStatus) *payment.Transaction {
	p := testutil.NewTestPayment(uuid.New(), uuid.New())
	f.repo.AddPayment(p)
	tx := testutil.NewTestTransaction(p, payment.TransactionAuthorize, status, testutil.BaseTime)
	f.repo.AddTransactions(tx)
	return tx
}

func (f *fixture) readOne(t *testing.T) redis.XMessage {
	t.Helper()
	messages, err := f.consumer.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	return messages[0]
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name     string
		stored   payment.TransactionStatus
		to       payment.TransactionStatus
		missing  bool
		expected string
	}{
		{name: "status still matches", stored: payment.StatusSuccess, to: payment.StatusSuccess, expected: ResultVerified},
		{name: "status changed since", stored: payment.StatusPaymentFailure, to: payment.StatusSuccess, expected: ResultDiverged},
		{name: "transaction gone", to: payment.StatusSuccess, missing: true, expected: ResultDiverged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			tx := f.storedTransaction(tt.stored)
			if tt.missing {
				tx = &payment.Transaction{ID: uuid.New(), PaymentID: uuid.New()}
			}
			f.publish(t, tx, tt.to)

			assert.Equal(t, tt.expected, f.auditor.Handle(context.Background(), f.readOne(t)))
			assert.Equal(t, 1.0, f.count(tt.expected))
		})
	}
}

func TestHandle_MalformedMessage(t *testing.T) {
	f := setup(t)

	got := f.auditor.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{"payload": "{not json"}})
	assert.Equal(t, ResultMalformed, got)

	got = f.auditor.Handle(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]any{}})
	assert.Equal(t, ResultMalformed, got)
	assert.Equal(t, 2.0, f.count(ResultMalformed))
}

func TestHandle_StorageFailure(t *testing.T) {
	f := setup(t)
	tx := f.storedTransaction(payment.StatusSuccess)
	f.repo.GetTransactionFunc = func(context.Context, uuid.UUID) (*payment.Transaction, error) {
		return nil, errors.New("connection refused")
	}
	f.publish(t, tx, payment.StatusSuccess)

	assert.Equal(t, ResultFailed, f.auditor.Handle(context.Background(), f.readOne(t)))
}

func TestRun_AcksHandledMessages(t *testing.T) {
	f := setup(t)
	verified := f.storedTransaction(payment.StatusSuccess)
	diverged := f.storedTransaction(payment.StatusPending)
	f.publish(t, verified, payment.StatusSuccess)
	f.publish(t, diverged, payment.StatusSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.auditor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.count(ResultVerified) == 1 && f.count(ResultDiverged) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := f.client.XPending(context.Background(), infraRedis.ReconciliationStream, "audit").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("auditor did not stop after cancellation")
	}
}

func TestRun_LeavesFailedMessagesPending(t *testing.T) {
	f := setup(t)
	tx := f.storedTransaction(payment.StatusSuccess)
	f.repo.GetTransactionFunc = func(context.Context, uuid.UUID) (*payment.Transaction, error) {
		return nil, errors.New("connection refused")
	}
	f.publish(t, tx, payment.StatusSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.auditor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.count(ResultFailed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	pending, err := f.client.XPending(context.Background(), infraRedis.ReconciliationStream, "audit").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestRun_RedeliversFailedMessageOnceIdle(t *testing.T) {
	f := setupWithClaimIdle(t, 50*time.Millisecond)
	tx := f.storedTransaction(payment.StatusSuccess)

	var calls atomic.Int32
	f.repo.GetTransactionFunc = func(context.Context, uuid.UUID) (*payment.Transaction, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return tx, nil
	}
	f.publish(t, tx, payment.StatusSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.auditor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.count(ResultFailed) == 1 && f.count(ResultVerified) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := f.client.XPending(context.Background(), infraRedis.ReconciliationStream, "audit").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStreamConsumer_ClaimIdleSkipsRecentDeliveries(t *testing.T) {
	f := setup(t)
	tx := f.storedTransaction(payment.StatusSuccess)
	f.publish(t, tx, payment.StatusSuccess)
	msg := f.readOne(t)

	claimed, err := f.consumer.ClaimIdle(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	time.Sleep(20 * time.Millisecond)
	claimed, err = f.consumer.ClaimIdle(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, msg.ID, claimed[0].ID)
}
