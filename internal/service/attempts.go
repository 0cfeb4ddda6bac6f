package service

import (
	"context"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
)

// buildAttempts returns the persisted attempts of p followed by the retries
// still scheduled for its account. timeline must be sorted and non-empty.
//
// Attempt records carry no plugin properties of their own; every entry
// borrows those of the most recent transaction.
func (s *PaymentService) buildAttempts(ctx context.Context, p *payment.Payment, timeline []*payment.Transaction, persisted []*payment.Attempt) []*payment.Attempt {
	attempts := make([]*payment.Attempt, 0, len(persisted))
	if len(timeline) == 0 || len(persisted) == 0 {
		return attempts
	}

	lastTx := timeline[len(timeline)-1]
	var properties []payment.PluginProperty
	if lastTx.PluginInfo != nil {
		properties = lastTx.PluginInfo.Properties
	}

	for _, a := range persisted {
		past := *a
		if a.CreatedAt != nil {
			past.EffectiveDate = *a.CreatedAt
		}
		past.PluginProperties = properties
		attempts = append(attempts, &past)
	}

	entries, err := s.retryQueue.FutureEntries(ctx, p.AccountID, p.TenantID)
	if err != nil {
		s.metrics.RetryQueueFailures.Inc()
		s.logger.Error().
			Err(err).
			Str("payment_id", p.ID.String()).
			Str("account_id", p.AccountID.String()).
			Msg("Failed to load scheduled retries, returning persisted attempts only")
		return attempts
	}

	lastAttempt := persisted[len(persisted)-1]
	for _, entry := range entries {
		if len(entry.PluginNames) == 0 {
			s.logger.Warn().
				Str("attempt_id", entry.AttemptID.String()).
				Msg("Scheduled retry has no plugin, skipping")
			continue
		}
		attempts = append(attempts, &payment.Attempt{
			ID:                     entry.AttemptID,
			AccountID:              lastAttempt.AccountID,
			PaymentMethodID:        lastAttempt.PaymentMethodID,
			PaymentExternalKey:     lastAttempt.PaymentExternalKey,
			TransactionExternalKey: lastAttempt.TransactionExternalKey,
			TransactionType:        lastAttempt.TransactionType,
			StateName:              payment.StateScheduled,
			Amount:                 lastTx.Amount,
			PluginName:             entry.PluginNames[0],
			EffectiveDate:          entry.EffectiveDate,
			PluginProperties:       properties,
		})
		s.metrics.ScheduledAttempts.Inc()
	}

	return attempts
}
