// Package reconcile corrects locally persisted transaction statuses that a
// payment plugin reports differently.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("paymentrecon/reconcile")

// Store is the slice of payment storage the janitor writes through.
type Store interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, update payment.TransactionStatusUpdate) (bool, error)
	UpdatePaymentState(ctx context.Context, paymentID uuid.UUID, stateName string, lastSuccessStateName *string) error
}

// TransactionManager runs fn in a single storage transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountLocker serializes writes per account and releases on every exit path.
type AccountLocker interface {
	WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error
}

// EventPublisher announces corrections. Publication is best-effort.
type EventPublisher interface {
	PublishReconciliation(ctx context.Context, event payment.ReconciliationEvent) error
}

// Janitor applies plugin-reported outcomes to stale local transactions.
type Janitor struct {
	store     Store
	txManager TransactionManager
	locker    AccountLocker
	publisher EventPublisher
	logger    zerolog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewJanitor creates a Janitor. publisher may be nil.
func NewJanitor(store Store, txManager TransactionManager, locker AccountLocker, publisher EventPublisher, logger zerolog.Logger, metrics *observability.Metrics) *Janitor {
	return &Janitor{
		store:     store,
		txManager: txManager,
		locker:    locker,
		publisher: publisher,
		logger:    observability.Component(logger, "janitor"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// IsStale reports whether the plugin knows a newer outcome than the one
// stored locally. Only incomplete local statuses can be stale, and an
// undefined plugin status never overrides local state.
func IsStale(local payment.TransactionStatus, reported payment.PluginStatus) bool {
	if !local.IsIncomplete() {
		return false
	}
	target := reported.TransactionStatus()
	return target != payment.StatusUnknown && target != local
}

// errNoLongerStale aborts the write when another request already corrected
// the transaction.
var errNoLongerStale = errors.New("transaction no longer stale")

// Reconcile corrects tx from info when it is stale and reports whether a
// correction was written. Failures are logged and reported as no correction.
func (j *Janitor) Reconcile(ctx context.Context, p *payment.Payment, tx *payment.Transaction, info payment.PluginTransactionInfo) bool {
	if !IsStale(tx.Status, info.Status) {
		return false
	}

	ctx, span := tracer.Start(ctx, "janitor.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", p.ID.String()),
		attribute.String("transaction.id", tx.ID.String()),
	)

	start := j.now()
	target := info.Status.TransactionStatus()
	var from payment.TransactionStatus

	err := j.locker.WithAccountLock(ctx, p.AccountID, func(ctx context.Context) error {
		current, err := j.store.GetTransaction(ctx, tx.ID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		if !IsStale(current.Status, info.Status) {
			return errNoLongerStale
		}
		from = current.Status

		return j.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			changed, err := j.store.UpdateTransactionStatus(ctx, payment.TransactionStatusUpdate{
				PaymentID:        p.ID,
				TransactionID:    tx.ID,
				FromStatus:       current.Status,
				ToStatus:         target,
				ProcessedAmount:  info.Amount,
				GatewayErrorCode: info.GatewayErrorCode,
				GatewayErrorMsg:  info.GatewayError,
			})
			if err != nil {
				return fmt.Errorf("update transaction status: %w", err)
			}
			if !changed {
				return errNoLongerStale
			}

			var lastSuccess *string
			state := payment.StateName(current.Type, target)
			if target == payment.StatusSuccess {
				lastSuccess = &state
			}
			if err := j.store.UpdatePaymentState(ctx, p.ID, state, lastSuccess); err != nil {
				return fmt.Errorf("update payment state: %w", err)
			}
			return nil
		})
	})
	j.metrics.ReconciliationDuration.Observe(j.now().Sub(start).Seconds())

	switch {
	case errors.Is(err, errNoLongerStale):
		j.metrics.Reconciliations.WithLabelValues("unchanged").Inc()
		return false
	case err != nil:
		j.metrics.Reconciliations.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		j.logger.Warn().
			Err(err).
			Str("payment_id", p.ID.String()).
			Str("transaction_id", tx.ID.String()).
			Str("plugin_status", string(info.Status)).
			Msg("Failed to reconcile transaction, serving stored state")
		return false
	}

	j.metrics.Reconciliations.WithLabelValues("corrected").Inc()
	j.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("transaction_id", tx.ID.String()).
		Str("from_status", string(from)).
		Str("to_status", string(target)).
		Msg("Transaction reconciled from plugin")

	j.publish(ctx, payment.ReconciliationEvent{
		PaymentID:     p.ID,
		TransactionID: tx.ID,
		AccountID:     p.AccountID,
		FromStatus:    from,
		ToStatus:      target,
		PluginStatus:  info.Status,
		ReconciledAt:  j.now().UTC(),
	})
	return true
}

func (j *Janitor) publish(ctx context.Context, event payment.ReconciliationEvent) {
	if j.publisher == nil {
		return
	}
	if err := j.publisher.PublishReconciliation(ctx, event); err != nil {
		j.logger.Warn().
			Err(err).
			Str("transaction_id", event.TransactionID.String()).
			Msg("Failed to publish reconciliation event")
	}
}
