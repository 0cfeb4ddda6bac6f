package service

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/testutil"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrouper_EmitsOnPaymentChange(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	pA, txsA := f.addPayment(payment.StatusSuccess, 0, time.Hour)
	pB, txsB := f.addPayment(payment.StatusSuccess, 0)

	g := f.svc.NewGrouper("stripe", true)

	got, err := g.Add(ctx, testutil.PluginInfoFor(txsA[0], payment.PluginProcessed))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = g.Add(ctx, testutil.PluginInfoFor(txsA[1], payment.PluginProcessed))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = g.Add(ctx, testutil.PluginInfoFor(txsB[0], payment.PluginProcessed))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pA.ID, got.ID)
	require.Len(t, got.Transactions, 2)
	for _, tx := range got.Transactions {
		assert.NotNil(t, tx.PluginInfo)
	}

	got, err = g.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pB.ID, got.ID)

	got, err = g.Flush(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "flush on an empty buffer emits nothing")
}

func TestGrouper_WithoutPluginInfo(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	p, txs := f.addPayment(payment.StatusPending, 0)

	g := f.svc.NewGrouper("stripe", false)
	_, err := g.Add(ctx, testutil.PluginInfoFor(txs[0], payment.PluginProcessed))
	require.NoError(t, err)

	got, err := g.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Nil(t, got.Transactions[0].PluginInfo)
	assert.Equal(t, payment.StatusPending, got.Transactions[0].Status)
}

func TestGrouper_DiscardsRecordWithoutPaymentID(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	p, txs := f.addPayment(payment.StatusSuccess, 0)

	malformed := testutil.PluginInfoFor(txs[0], payment.PluginProcessed)
	malformed.PaymentID = uuid.Nil

	g := f.svc.NewGrouper("stripe", true)
	got, err := g.Add(ctx, malformed)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = g.Flush(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.MalformedPluginRecords.WithLabelValues("stripe")))

	// a well-formed record after the malformed one still groups normally
	_, err = g.Add(ctx, testutil.PluginInfoFor(txs[0], payment.PluginProcessed))
	require.NoError(t, err)
	got, err = g.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}

func TestGrouper_SkipsPaymentMissingFromStorage(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	ghost := testutil.NewTestPayment(f.method.AccountID, f.method.ID)
	ghostTx := testutil.NewTestTransaction(ghost, payment.TransactionPurchase, payment.StatusSuccess, testutil.BaseTime)
	p, txs := f.addPayment(payment.StatusSuccess, 0)

	g := f.svc.NewGrouper("stripe", true)
	_, err := g.Add(ctx, testutil.PluginInfoFor(ghostTx, payment.PluginProcessed))
	require.NoError(t, err)

	got, err := g.Add(ctx, testutil.PluginInfoFor(txs[0], payment.PluginProcessed))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = g.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}
