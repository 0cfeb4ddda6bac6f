package audit

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paymentrecon/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Audit results, also used as metric labels.
const (
	ResultVerified  = "verified"
	ResultDiverged  = "diverged"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// Stream is the consumer side of the reconciliation stream.
type Stream interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	ClaimIdle(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

// TransactionGetter loads the transaction an event refers to.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
}

// Auditor consumes transaction.reconciled events and checks each correction
// still holds in storage. A failed check leaves the message pending; once it
// has been idle for claimMinIdle it is claimed and audited again.
type Auditor struct {
	stream       Stream
	txs          TransactionGetter
	logger       zerolog.Logger
	metrics      *observability.Metrics
	claimMinIdle time.Duration
	retryDelay   time.Duration
}

func NewAuditor(stream Stream, txs TransactionGetter, claimMinIdle time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Auditor {
	return &Auditor{
		stream:       stream,
		txs:          txs,
		logger:       observability.Component(logger, "reconciliation_audit"),
		metrics:      metrics,
		claimMinIdle: claimMinIdle,
		retryDelay:   time.Second,
	}
}

// Run consumes the stream until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		messages, err := a.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.retryDelay):
			}
			continue
		}

		for _, msg := range messages {
			if a.Handle(ctx, msg) == ResultFailed {
				continue
			}
			if err := a.stream.Ack(ctx, msg.ID); err != nil {
				a.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
			}
		}
	}
}

// next returns idle pending messages first, then new ones.
func (a *Auditor) next(ctx context.Context) ([]redis.XMessage, error) {
	claimed, err := a.stream.ClaimIdle(ctx, a.claimMinIdle)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		a.logger.Debug().Int("count", len(claimed)).Msg("Claimed idle reconciliation events")
		return claimed, nil
	}
	return a.stream.Read(ctx)
}

// Handle audits one message and returns its result.
func (a *Auditor) Handle(ctx context.Context, msg redis.XMessage) string {
	result := a.handle(ctx, msg)
	a.metrics.AuditEvents.WithLabelValues(result).Inc()
	return result
}

func (a *Auditor) handle(ctx context.Context, msg redis.XMessage) string {
	event, err := infraRedis.DecodeReconciliation(msg)
	if err != nil {
		a.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Discarding malformed reconciliation event")
		return ResultMalformed
	}

	log := a.logger.With().
		Str("payment_id", event.PaymentID.String()).
		Str("transaction_id", event.TransactionID.String()).
		Str("from_status", string(event.FromStatus)).
		Str("to_status", string(event.ToStatus)).
		Time("reconciled_at", event.ReconciledAt).
		Logger()

	tx, err := a.txs.GetTransaction(ctx, event.TransactionID)
	switch {
	case errors.Is(err, domainErrors.ErrTransactionNotFound):
		log.Warn().Msg("Reconciled transaction no longer exists")
		return ResultDiverged
	case err != nil:
		log.Error().Err(err).Msg("Failed to load reconciled transaction")
		return ResultFailed
	}

	if tx.Status != event.ToStatus {
		log.Warn().Str("current_status", string(tx.Status)).Msg("Transaction status diverged after reconciliation")
		return ResultDiverged
	}

	log.Info().Msg("Reconciliation verified")
	return ResultVerified
}
