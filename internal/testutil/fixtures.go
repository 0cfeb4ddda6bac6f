package testutil

import (
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// BaseTime is a fixed instant fixtures are anchored to.
var BaseTime = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// NewTestMetrics returns metrics registered against a throwaway registry.
func NewTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func USD(value string) payment.Amount {
	return payment.Amount{Value: decimal.RequireFromString(value), Currency: "USD"}
}

func NewTestPayment(accountID, paymentMethodID uuid.UUID) *payment.Payment {
	return &payment.Payment{
		ID:              uuid.New(),
		TenantID:        uuid.New(),
		AccountID:       accountID,
		PaymentMethodID: paymentMethodID,
		PaymentNumber:   1,
		ExternalKey:     "pay-" + uuid.NewString()[:8],
		StateName:       "AUTH_PENDING",
		CreatedAt:       BaseTime,
		UpdatedAt:       BaseTime,
	}
}

func NewTestTransaction(
	p *payment.Payment,
	txType payment.TransactionType,
	status payment.TransactionStatus,
	effective time.Time,
) *payment.Transaction {
	return &payment.Transaction{
		ID:            uuid.New(),
		ExternalKey:   "tx-" + uuid.NewString()[:8],
		PaymentID:     p.ID,
		Type:          txType,
		Status:        status,
		Amount:        USD("100.00"),
		EffectiveDate: effective,
		CreatedAt:     effective,
		UpdatedAt:     effective,
	}
}

// NewTestAttempt returns a persisted attempt that produced tx.
func NewTestAttempt(p *payment.Payment, tx *payment.Transaction, pluginName string) *payment.Attempt {
	created := tx.CreatedAt
	txID := tx.ID
	return &payment.Attempt{
		ID:                     uuid.New(),
		AccountID:              p.AccountID,
		PaymentMethodID:        p.PaymentMethodID,
		PaymentExternalKey:     p.ExternalKey,
		TransactionID:          &txID,
		TransactionExternalKey: tx.ExternalKey,
		TransactionType:        tx.Type,
		StateName:              "SUCCESS",
		Amount:                 tx.Amount,
		PluginName:             pluginName,
		CreatedAt:              &created,
		UpdatedAt:              &created,
		EffectiveDate:          tx.EffectiveDate,
	}
}

// PluginInfoFor returns the plugin's view of tx reported with the given status.
func PluginInfoFor(tx *payment.Transaction, status payment.PluginStatus) payment.PluginTransactionInfo {
	amount := tx.Amount
	return payment.PluginTransactionInfo{
		PaymentID:       tx.PaymentID,
		TransactionID:   tx.ID,
		TransactionType: tx.Type,
		Status:          status,
		Amount:          &amount,
		CreatedDate:     tx.CreatedAt,
		EffectiveDate:   tx.EffectiveDate,
		Properties:      []payment.PluginProperty{{Key: "gateway_ref", Value: "ref-" + tx.ID.String()[:8]}},
	}
}
