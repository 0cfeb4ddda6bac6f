package service

import (
	"context"
	"errors"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
)

// Grouper folds a plugin's transaction stream into payments. Records of one
// payment must arrive contiguously; the grouper does not re-sort.
//
// A Grouper is not safe for concurrent use. Callers must call Flush once the
// stream is exhausted or the last group is lost.
type Grouper struct {
	svc            *PaymentService
	pluginName     string
	withPluginInfo bool
	buffer         []payment.PluginTransactionInfo
}

// NewGrouper returns a grouper for the stream of pluginName. Without plugin
// info the emitted payments are built from storage alone.
func (s *PaymentService) NewGrouper(pluginName string, withPluginInfo bool) *Grouper {
	return &Grouper{
		svc:            s,
		pluginName:     pluginName,
		withPluginInfo: withPluginInfo,
	}
}

// Add consumes one record. It returns the previous group's payment when the
// record starts a new group, nil otherwise.
func (g *Grouper) Add(ctx context.Context, info payment.PluginTransactionInfo) (*payment.Payment, error) {
	if !info.HasPaymentID() {
		g.svc.metrics.MalformedPluginRecords.WithLabelValues(g.pluginName).Inc()
		g.svc.logger.Debug().
			Str("plugin", g.pluginName).
			Str("transaction_id", info.TransactionID.String()).
			Msg("Plugin returned a record without payment id, discarding")
		return nil, nil
	}

	if len(g.buffer) == 0 || g.buffer[0].PaymentID == info.PaymentID {
		g.buffer = append(g.buffer, info)
		return nil, nil
	}

	p, err := g.materialize(ctx)
	g.buffer = []payment.PluginTransactionInfo{info}
	return p, err
}

// Flush emits the buffered group, if any.
func (g *Grouper) Flush(ctx context.Context) (*payment.Payment, error) {
	if len(g.buffer) == 0 {
		return nil, nil
	}
	p, err := g.materialize(ctx)
	g.buffer = nil
	return p, err
}

func (g *Grouper) materialize(ctx context.Context) (*payment.Payment, error) {
	paymentID := g.buffer[0].PaymentID
	var infos []payment.PluginTransactionInfo
	if g.withPluginInfo {
		infos = append(infos, g.buffer...)
	}
	return g.svc.paymentFromStorage(ctx, paymentID, infos)
}

// paymentFromStorage loads a payment reported by a plugin. A payment the
// plugin knows but storage does not is skipped with a warning.
func (s *PaymentService) paymentFromStorage(ctx context.Context, paymentID uuid.UUID, infos []payment.PluginTransactionInfo) (*payment.Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			s.logger.Warn().Str("payment_id", paymentID.String()).Msg("Unable to find payment reported by plugin")
			return nil, nil
		}
		return nil, err
	}

	txs, err := s.repo.GetTransactionsForPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, p, txs, infos)
}
