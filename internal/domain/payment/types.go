package payment

import (
	"fmt"

	"github.com/cassiomorais/paymentrecon/internal/domain/errors"
)

// TransactionType is the operation a transaction performed against the gateway.
type TransactionType string

const (
	TransactionAuthorize  TransactionType = "AUTHORIZE"
	TransactionCapture    TransactionType = "CAPTURE"
	TransactionPurchase   TransactionType = "PURCHASE"
	TransactionVoid       TransactionType = "VOID"
	TransactionRefund     TransactionType = "REFUND"
	TransactionCredit     TransactionType = "CREDIT"
	TransactionChargeback TransactionType = "CHARGEBACK"
)

// ParseTransactionType validates a stored or wire value.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionAuthorize, TransactionCapture, TransactionPurchase, TransactionVoid,
		TransactionRefund, TransactionCredit, TransactionChargeback:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidTransactionType, s)
	}
}

// statePrefix is the prefix used to build payment state names, e.g. AUTH_SUCCESS.
func (t TransactionType) statePrefix() string {
	switch t {
	case TransactionAuthorize:
		return "AUTH"
	case TransactionCapture:
		return "CAPTURE"
	case TransactionPurchase:
		return "PURCHASE"
	case TransactionVoid:
		return "VOID"
	case TransactionRefund:
		return "REFUND"
	case TransactionCredit:
		return "CREDIT"
	case TransactionChargeback:
		return "CHARGEBACK"
	default:
		return string(t)
	}
}

// TransactionStatus is the locally persisted outcome of a transaction.
type TransactionStatus string

const (
	StatusPending        TransactionStatus = "PENDING"
	StatusSuccess        TransactionStatus = "SUCCESS"
	StatusPaymentFailure TransactionStatus = "PAYMENT_FAILURE"
	StatusUnknown        TransactionStatus = "UNKNOWN"
	StatusPluginFailure  TransactionStatus = "PLUGIN_FAILURE"
)

// ParseTransactionStatus validates a stored or wire value.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case StatusPending, StatusSuccess, StatusPaymentFailure, StatusUnknown, StatusPluginFailure:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidTransactionStatus, s)
	}
}

// IsIncomplete reports whether the outcome may still change once the plugin
// learns more. Only incomplete transactions are candidates for reconciliation.
func (s TransactionStatus) IsIncomplete() bool {
	switch s {
	case StatusPending, StatusUnknown:
		return true
	case StatusSuccess, StatusPaymentFailure, StatusPluginFailure:
		return false
	default:
		return false
	}
}

func (s TransactionStatus) stateSuffix() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusPending:
		return "PENDING"
	case StatusPaymentFailure:
		return "FAILED"
	case StatusPluginFailure, StatusUnknown:
		return "ERRORED"
	default:
		return "ERRORED"
	}
}

// StateName returns the payment state name a transaction of type t ending in
// status s leaves the payment in.
func StateName(t TransactionType, s TransactionStatus) string {
	return t.statePrefix() + "_" + s.stateSuffix()
}

// StateScheduled tags attempts projected from the retry queue that have not run yet.
const StateScheduled = "SCHEDULED"

// PluginStatus is the status as reported by a payment plugin.
type PluginStatus string

const (
	PluginProcessed PluginStatus = "PROCESSED"
	PluginPending   PluginStatus = "PENDING"
	PluginError     PluginStatus = "ERROR"
	PluginCanceled  PluginStatus = "CANCELED"
	PluginUndefined PluginStatus = "UNDEFINED"
)

// ParsePluginStatus validates a plugin supplied value.
func ParsePluginStatus(s string) (PluginStatus, error) {
	switch st := PluginStatus(s); st {
	case PluginProcessed, PluginPending, PluginError, PluginCanceled, PluginUndefined:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidPluginStatus, s)
	}
}

// TransactionStatus maps the plugin view onto the local status set.
func (s PluginStatus) TransactionStatus() TransactionStatus {
	switch s {
	case PluginProcessed:
		return StatusSuccess
	case PluginPending:
		return StatusPending
	case PluginError:
		return StatusPaymentFailure
	case PluginCanceled:
		return StatusPluginFailure
	case PluginUndefined:
		return StatusUnknown
	default:
		return StatusUnknown
	}
}
