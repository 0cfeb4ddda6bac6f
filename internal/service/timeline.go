package service

import (
	"context"
	"fmt"
	"sort"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
)

// assemble builds the transaction timeline of p. Every local transaction with
// a matching plugin record goes through the reconciler; after a correction
// both the payment and the transaction are read again so the view never
// carries pre-correction data. Transactions of other payments are ignored.
func (s *PaymentService) assemble(ctx context.Context, p *payment.Payment, txs []*payment.Transaction, infos []payment.PluginTransactionInfo) (*payment.Payment, error) {
	current := p
	seen := make(map[uuid.UUID]struct{}, len(txs))
	timeline := make([]*payment.Transaction, 0, len(txs))

	for _, tx := range txs {
		if tx.PaymentID != p.ID {
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			return nil, domainErrors.NewDomainError(
				"DUPLICATE_TRANSACTION",
				fmt.Sprintf("payment %s lists transaction %s twice", p.ID, tx.ID),
				domainErrors.ErrDuplicateTransaction,
			)
		}
		seen[tx.ID] = struct{}{}

		info, matched := findPluginInfo(infos, tx.ID)
		if matched && s.reconciler.Reconcile(ctx, current, tx, info) {
			refreshed, err := s.repo.GetPayment(ctx, current.ID)
			if err != nil {
				return nil, fmt.Errorf("reload payment %s after reconciliation: %w", current.ID, err)
			}
			refreshedTx, err := s.repo.GetTransaction(ctx, tx.ID)
			if err != nil {
				return nil, fmt.Errorf("reload transaction %s after reconciliation: %w", tx.ID, err)
			}
			current, tx = refreshed, refreshedTx
		}

		view := tx.Clone()
		if matched {
			snapshot := info
			view.PluginInfo = &snapshot
		}
		timeline = append(timeline, view)
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].EffectiveDate.Before(timeline[j].EffectiveDate)
	})

	result := *current
	result.Transactions = timeline
	result.Attempts = nil
	return &result, nil
}

// findPluginInfo matches by transaction id, never by position.
func findPluginInfo(infos []payment.PluginTransactionInfo, transactionID uuid.UUID) (payment.PluginTransactionInfo, bool) {
	for _, info := range infos {
		if info.TransactionID == transactionID {
			return info, true
		}
	}
	return payment.PluginTransactionInfo{}, false
}
