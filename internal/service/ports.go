package service

import (
	"context"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
)

// Reconciler corrects a stale local transaction from a plugin snapshot and
// reports whether storage changed.
type Reconciler interface {
	Reconcile(ctx context.Context, p *payment.Payment, tx *payment.Transaction, info payment.PluginTransactionInfo) bool
}

// RetryQueue exposes the scheduled retries of an account.
type RetryQueue interface {
	// FutureEntries returns pending retries ordered by effective time, or an
	// error wrapping ErrRetryQueueNotFound when the queue is not configured.
	FutureEntries(ctx context.Context, accountID, tenantID uuid.UUID) ([]payment.ScheduledRetryEntry, error)
}
