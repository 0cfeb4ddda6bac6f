package payment

import (
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amount is a monetary value with its ISO currency code.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.Value.IsNegative() {
		return errors.NewValidationError("amount", "cannot be negative")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// Payment is the aggregate returned to callers: the payment record, its
// transactions ordered by effective date and, when requested, its attempts.
type Payment struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	AccountID            uuid.UUID
	PaymentMethodID      uuid.UUID
	PaymentNumber        int64
	ExternalKey          string
	StateName            string
	LastSuccessStateName string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Transactions []*Transaction
	// Attempts is nil unless attempts were requested.
	Attempts []*Attempt
}

// LastTransaction returns the most recent transaction or nil.
func (p *Payment) LastTransaction() *Transaction {
	if len(p.Transactions) == 0 {
		return nil
	}
	return p.Transactions[len(p.Transactions)-1]
}

// Transaction is one operation performed on a payment.
type Transaction struct {
	ID               uuid.UUID
	AttemptID        *uuid.UUID
	ExternalKey      string
	PaymentID        uuid.UUID
	Type             TransactionType
	Status           TransactionStatus
	Amount           Amount
	ProcessedAmount  Amount
	GatewayErrorCode string
	GatewayErrorMsg  string
	EffectiveDate    time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// PluginInfo is the matching plugin snapshot, set only when plugin info
	// was requested and the plugin reported this transaction.
	PluginInfo *PluginTransactionInfo
}

// Clone returns a shallow copy safe to annotate without touching the stored record.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// PluginProperty is an opaque key/value pair returned by a plugin.
type PluginProperty struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// PluginTransactionInfo is a plugin-owned snapshot of one transaction.
type PluginTransactionInfo struct {
	PaymentID        uuid.UUID
	TransactionID    uuid.UUID
	TransactionType  TransactionType
	Status           PluginStatus
	Amount           *Amount
	GatewayErrorCode string
	GatewayError     string
	FirstReferenceID string
	CreatedDate      time.Time
	EffectiveDate    time.Time
	Properties       []PluginProperty
}

// HasPaymentID reports whether the plugin filled in the payment id.
func (i PluginTransactionInfo) HasPaymentID() bool {
	return i.PaymentID != uuid.Nil
}

// Attempt is a payment attempt, either persisted or projected from the retry queue.
type Attempt struct {
	ID                     uuid.UUID
	AccountID              uuid.UUID
	PaymentMethodID        uuid.UUID
	PaymentExternalKey     string
	TransactionID          *uuid.UUID
	TransactionExternalKey string
	TransactionType        TransactionType
	StateName              string
	Amount                 Amount
	PluginName             string
	CreatedAt              *time.Time
	UpdatedAt              *time.Time
	EffectiveDate          time.Time
	PluginProperties       []PluginProperty
}

// IsScheduled reports whether the attempt has not been executed yet.
func (a *Attempt) IsScheduled() bool {
	return a.StateName == StateScheduled
}

// ScheduledRetryEntry is a pending retry notification.
type ScheduledRetryEntry struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	EffectiveDate time.Time `json:"effective_date"`
	PluginNames   []string  `json:"plugin_names"`
}

// PaymentMethod ties an account payment method to the plugin that serves it.
type PaymentMethod struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	PluginName string
	IsActive   bool
}
