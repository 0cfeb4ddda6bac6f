package payment

import (
	"time"

	"github.com/google/uuid"
)

const EventTransactionReconciled = "transaction.reconciled"

// ReconciliationEvent records a transaction status corrected from plugin data.
type ReconciliationEvent struct {
	PaymentID     uuid.UUID         `json:"payment_id"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	AccountID     uuid.UUID         `json:"account_id"`
	FromStatus    TransactionStatus `json:"from_status"`
	ToStatus      TransactionStatus `json:"to_status"`
	PluginStatus  PluginStatus      `json:"plugin_status"`
	ReconciledAt  time.Time         `json:"reconciled_at"`
}
