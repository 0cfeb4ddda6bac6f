//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("payments"),
		tcpostgres.WithUsername("payments"),
		tcpostgres.WithPassword("payments"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	m.Close()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type seeded struct {
	method  uuid.UUID
	account uuid.UUID
	payment *payment.Payment
	txs     []uuid.UUID
}

func seed(t *testing.T, pool *pgxpool.Pool, pluginName, externalKey string, effective ...time.Time) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{method: uuid.New(), account: uuid.New()}

	_, err := pool.Exec(ctx,
		`INSERT INTO payment_methods (id, account_id, plugin_name) VALUES ($1, $2, $3)`,
		s.method, s.account, pluginName)
	require.NoError(t, err)

	paymentID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO payments (id, tenant_id, account_id, payment_method_id, external_key, state_name)
		 VALUES ($1, $2, $3, $4, $5, 'AUTH_PENDING')`,
		paymentID, uuid.New(), s.account, s.method, externalKey)
	require.NoError(t, err)

	for i, eff := range effective {
		txID := uuid.New()
		_, err = pool.Exec(ctx,
			`INSERT INTO payment_transactions
			  (id, transaction_external_key, payment_id, transaction_type, transaction_status, amount, currency, effective_date)
			 VALUES ($1, $2, $3, 'AUTHORIZE', 'PENDING', $4, 'USD', $5)`,
			txID, externalKey+"-tx", paymentID, decimal.NewFromInt(int64(10*(i+1))).String(), eff)
		require.NoError(t, err)
		s.txs = append(s.txs, txID)
	}

	s.payment, err = NewPaymentRepository(pool).GetPayment(ctx, paymentID)
	require.NoError(t, err)
	return s
}

func TestPaymentRepository_Reads(t *testing.T) {
	pool := setupDatabase(t)
	repo := NewPaymentRepository(pool)
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	s := seed(t, pool, "stripe", "order-1001", base.Add(time.Hour), base)
	seed(t, pool, "adyen", "order-2002", base)

	byKey, err := repo.GetPaymentByExternalKey(ctx, "order-1001")
	require.NoError(t, err)
	assert.Equal(t, s.payment.ID, byKey.ID)
	assert.Positive(t, byKey.PaymentNumber)

	_, err = repo.GetPayment(ctx, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)

	txs, err := repo.GetTransactionsForPayment(ctx, s.payment.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	// storage order, not effective order
	assert.Equal(t, s.txs, []uuid.UUID{txs[0].ID, txs[1].ID})
	assert.True(t, decimal.NewFromInt(10).Equal(txs[0].Amount.Value))
	assert.Equal(t, "USD", txs[0].Amount.Currency)

	accountTxs, err := repo.GetTransactionsForAccount(ctx, s.account)
	require.NoError(t, err)
	assert.Len(t, accountTxs, 2)

	page, total, err := repo.GetPaymentsByPlugin(ctx, "stripe", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, s.payment.ID, page[0].ID)

	found, total, err := repo.SearchPayments(ctx, "ORDER-1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)

	method, err := repo.GetPaymentMethod(ctx, s.method)
	require.NoError(t, err)
	assert.Equal(t, "stripe", method.PluginName)

	attempts, err := repo.GetPaymentAttempts(ctx, "order-1001")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestPaymentRepository_UpdateTransactionStatusIsConditional(t *testing.T) {
	pool := setupDatabase(t)
	repo := NewPaymentRepository(pool)
	txManager := NewTxManager(pool)
	ctx := context.Background()

	s := seed(t, pool, "stripe", "order-3003", time.Now())
	processed := payment.Amount{Value: decimal.RequireFromString("9.99"), Currency: "USD"}
	update := payment.TransactionStatusUpdate{
		PaymentID:       s.payment.ID,
		TransactionID:   s.txs[0],
		FromStatus:      payment.StatusPending,
		ToStatus:        payment.StatusSuccess,
		ProcessedAmount: &processed,
	}

	var applied bool
	err := txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if applied, err = repo.UpdateTransactionStatus(ctx, update); err != nil {
			return err
		}
		success := "AUTH_SUCCESS"
		return repo.UpdatePaymentState(ctx, s.payment.ID, "AUTH_SUCCESS", &success)
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// a second writer with the same snapshot changes nothing
	applied, err = repo.UpdateTransactionStatus(ctx, update)
	require.NoError(t, err)
	assert.False(t, applied)

	tx, err := repo.GetTransaction(ctx, s.txs[0])
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, tx.Status)
	assert.True(t, processed.Value.Equal(tx.ProcessedAmount.Value))

	p, err := repo.GetPayment(ctx, s.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "AUTH_SUCCESS", p.StateName)
	assert.Equal(t, "AUTH_SUCCESS", p.LastSuccessStateName)

	update.TransactionID = uuid.New()
	_, err = repo.UpdateTransactionStatus(ctx, update)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	pool := setupDatabase(t)
	repo := NewPaymentRepository(pool)
	ctx := context.Background()
	s := seed(t, pool, "stripe", "order-4004")

	boom := errors.New("boom")
	err := NewTxManager(pool).WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.UpdatePaymentState(ctx, s.payment.ID, "VOIDED", nil))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := repo.GetPayment(ctx, s.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "AUTH_PENDING", p.StateName)
}
