package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence.
// Single-row lookups return a wrapped ErrPaymentNotFound / ErrTransactionNotFound
// / ErrPaymentMethodNotFound when the row does not exist.
type Repository interface {
	// GetPayment retrieves a payment record (without transactions) by ID
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetPaymentByExternalKey retrieves a payment record by external key
	GetPaymentByExternalKey(ctx context.Context, externalKey string) (*Payment, error)

	// GetPaymentsForAccount lists every payment of an account, oldest first
	GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]*Payment, error)

	// GetPaymentsByPlugin pages through payments whose payment method is served
	// by pluginName and returns the total number of such payments
	GetPaymentsByPlugin(ctx context.Context, pluginName string, offset, limit int) ([]*Payment, int64, error)

	// SearchPayments matches searchKey against ids and external keys
	SearchPayments(ctx context.Context, searchKey string, offset, limit int) ([]*Payment, int64, error)

	// GetTransactionsForPayment lists the transactions of one payment in insertion order
	GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]*Transaction, error)

	// GetTransactionsForAccount lists the transactions of every payment of an account
	GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]*Transaction, error)

	// GetTransaction retrieves a single transaction
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetPaymentAttempts lists persisted attempts for a payment external key, oldest first
	GetPaymentAttempts(ctx context.Context, paymentExternalKey string) ([]*Attempt, error)

	// GetPaymentMethod retrieves a payment method
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)

	// UpdateTransactionStatus is a compare-and-write: it applies the update only
	// while the stored status still equals update.FromStatus, and reports
	// whether a row changed.
	UpdateTransactionStatus(ctx context.Context, update TransactionStatusUpdate) (bool, error)

	// UpdatePaymentState rewrites the payment state names after a transaction changed
	UpdatePaymentState(ctx context.Context, paymentID uuid.UUID, stateName string, lastSuccessStateName *string) error
}

// TransactionStatusUpdate carries a corrective write derived from a plugin snapshot.
type TransactionStatusUpdate struct {
	PaymentID        uuid.UUID
	TransactionID    uuid.UUID
	FromStatus       TransactionStatus
	ToStatus         TransactionStatus
	ProcessedAmount  *Amount
	GatewayErrorCode string
	GatewayErrorMsg  string
}
