package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/observability"
	"github.com/cassiomorais/paymentrecon/internal/plugin"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("paymentrecon/service")

// PaymentService assembles read views of payments, reconciling local state
// with what the payment plugins report along the way.
type PaymentService struct {
	repo       payment.Repository
	fetcher    *plugin.Fetcher
	reconciler Reconciler
	retryQueue RetryQueue
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	repo payment.Repository,
	fetcher *plugin.Fetcher,
	reconciler Reconciler,
	retryQueue RetryQueue,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PaymentService {
	return &PaymentService{
		repo:       repo,
		fetcher:    fetcher,
		reconciler: reconciler,
		retryQueue: retryQueue,
		logger:     observability.Component(logger, "payment_service"),
		metrics:    metrics,
	}
}

func (s *PaymentService) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func()) {
	ctx, span := tracer.Start(ctx, "PaymentService."+operation, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, span, func() {
		s.metrics.PaymentViewDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// GetPayment returns the payment with its ordered transactions and, when
// requested, its attempts. A missing payment yields an error wrapping
// ErrPaymentNotFound. Plugin failures degrade to a view without plugin info.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID, opts ViewOptions) (_ *payment.Payment, err error) {
	ctx, span, done := s.startSpan(ctx, "GetPayment", attribute.String("payment.id", id.String()))
	defer done()
	defer func() { recordError(span, err) }()

	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toPayment(ctx, p, opts)
}

// GetPaymentByExternalKey is GetPayment by external key. Attempts are never
// loaded on this path.
func (s *PaymentService) GetPaymentByExternalKey(ctx context.Context, externalKey string, opts ViewOptions) (_ *payment.Payment, err error) {
	ctx, span, done := s.startSpan(ctx, "GetPaymentByExternalKey", attribute.String("payment.external_key", externalKey))
	defer done()
	defer func() { recordError(span, err) }()

	p, err := s.repo.GetPaymentByExternalKey(ctx, externalKey)
	if err != nil {
		return nil, err
	}
	opts.WithAttempts = false
	return s.toPayment(ctx, p, opts)
}

func (s *PaymentService) toPayment(ctx context.Context, p *payment.Payment, opts ViewOptions) (*payment.Payment, error) {
	var infos []payment.PluginTransactionInfo
	if opts.WithPluginInfo {
		plg := s.fetcher.NewResolver().Resolve(ctx, p.PaymentMethodID)
		infos, _ = s.fetcher.FetchPaymentInfo(ctx, plg, p, opts.Properties)
	}

	txs, err := s.repo.GetTransactionsForPayment(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load transactions of payment %s: %w", p.ID, err)
	}

	result, err := s.assemble(ctx, p, txs, infos)
	if err != nil {
		return nil, err
	}

	if opts.WithAttempts && len(result.Transactions) > 0 {
		persisted, err := s.repo.GetPaymentAttempts(ctx, result.ExternalKey)
		if err != nil {
			return nil, fmt.Errorf("load attempts of payment %s: %w", p.ID, err)
		}
		result.Attempts = s.buildAttempts(ctx, result, result.Transactions, persisted)
	}
	return result, nil
}

// GetAccountPayments returns every payment of an account. Payments and
// transactions are loaded in one query each and each payment is assembled
// exactly once.
func (s *PaymentService) GetAccountPayments(ctx context.Context, accountID uuid.UUID, withPluginInfo bool) (_ []*payment.Payment, err error) {
	ctx, span, done := s.startSpan(ctx, "GetAccountPayments", attribute.String("account.id", accountID.String()))
	defer done()
	defer func() { recordError(span, err) }()

	payments, err := s.repo.GetPaymentsForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load payments of account %s: %w", accountID, err)
	}
	txs, err := s.repo.GetTransactionsForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load transactions of account %s: %w", accountID, err)
	}

	byPayment := make(map[uuid.UUID][]*payment.Transaction, len(payments))
	for _, tx := range txs {
		byPayment[tx.PaymentID] = append(byPayment[tx.PaymentID], tx)
	}

	resolver := s.fetcher.NewResolver()
	result := make([]*payment.Payment, 0, len(payments))
	for _, p := range payments {
		var infos []payment.PluginTransactionInfo
		if withPluginInfo {
			infos, _ = s.fetcher.FetchPaymentInfo(ctx, resolver.Resolve(ctx, p.PaymentMethodID), p, nil)
		}

		assembled, err := s.assemble(ctx, p, byPayment[p.ID], infos)
		if err != nil {
			return nil, err
		}
		result = append(result, assembled)
	}
	return result, nil
}

// GetPayments pages through the locally stored payments served by one plugin.
func (s *PaymentService) GetPayments(ctx context.Context, offset, limit int, pluginName string, withPluginInfo bool) (_ *pagination.Page[*payment.Payment], err error) {
	ctx, span, done := s.startSpan(ctx, "GetPayments", attribute.String("plugin", pluginName))
	defer done()
	defer func() { recordError(span, err) }()

	return s.getPayments(ctx, offset, limit, pluginName, withPluginInfo)
}

func (s *PaymentService) getPayments(ctx context.Context, offset, limit int, pluginName string, withPluginInfo bool) (*pagination.Page[*payment.Payment], error) {
	var plg plugin.Plugin
	if withPluginInfo {
		var err error
		if plg, err = s.fetcher.Registry().Get(pluginName); err != nil {
			return nil, err
		}
	}

	rows, total, err := s.repo.GetPaymentsByPlugin(ctx, pluginName, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments of plugin %s: %w", pluginName, err)
	}

	page := pagination.Empty[*payment.Payment](offset, limit)
	page.TotalCount = total
	for _, p := range rows {
		infos, _ := s.fetcher.FetchPaymentInfo(ctx, plg, p, nil)
		txs, err := s.repo.GetTransactionsForPayment(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load transactions of payment %s: %w", p.ID, err)
		}
		assembled, err := s.assemble(ctx, p, txs, infos)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, assembled)
	}
	return page, nil
}

// GetPaymentsAcrossPlugins spans one offset/limit window over the payments
// of every registered plugin, in plugin name order. A failing plugin is
// skipped.
func (s *PaymentService) GetPaymentsAcrossPlugins(ctx context.Context, offset, limit int, withPluginInfo bool) (*pagination.Page[*payment.Payment], error) {
	ctx, _, done := s.startSpan(ctx, "GetPaymentsAcrossPlugins")
	defer done()

	page := pagination.FromSources(ctx, s.fetcher.Registry().Names(), offset, limit,
		func(ctx context.Context, pluginName string, offset, limit int) (*pagination.Page[*payment.Payment], error) {
			return s.getPayments(ctx, offset, limit, pluginName, withPluginInfo)
		},
		s.skipPlugin("list"),
	)
	return page, nil
}

// SearchPayments searches payments. With plugin info every plugin's own
// search is folded into payments through a Grouper; without it storage is
// searched and a storage failure yields an empty page.
func (s *PaymentService) SearchPayments(ctx context.Context, searchKey string, offset, limit int, withPluginInfo bool) (*pagination.Page[*payment.Payment], error) {
	ctx, _, done := s.startSpan(ctx, "SearchPayments", attribute.Bool("plugin_info", withPluginInfo))
	defer done()

	if withPluginInfo {
		return pagination.FromSources(ctx, s.fetcher.Registry().Names(), offset, limit,
			func(ctx context.Context, pluginName string, offset, limit int) (*pagination.Page[*payment.Payment], error) {
				return s.searchPlugin(ctx, searchKey, offset, limit, pluginName)
			},
			s.skipPlugin("search"),
		), nil
	}

	page, err := s.searchLocal(ctx, searchKey, offset, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("search_key", searchKey).Msg("Unable to search through payments")
		return pagination.Empty[*payment.Payment](offset, limit), nil
	}
	return page, nil
}

func (s *PaymentService) searchLocal(ctx context.Context, searchKey string, offset, limit int) (*pagination.Page[*payment.Payment], error) {
	rows, total, err := s.repo.SearchPayments(ctx, searchKey, offset, limit)
	if err != nil {
		return nil, err
	}

	page := pagination.Empty[*payment.Payment](offset, limit)
	page.TotalCount = total
	for _, p := range rows {
		txs, err := s.repo.GetTransactionsForPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		assembled, err := s.assemble(ctx, p, txs, nil)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, assembled)
	}
	return page, nil
}

func (s *PaymentService) searchPlugin(ctx context.Context, searchKey string, offset, limit int, pluginName string) (*pagination.Page[*payment.Payment], error) {
	plg, err := s.fetcher.Registry().Get(pluginName)
	if err != nil {
		return nil, err
	}

	records, err := s.fetcher.SearchPayments(ctx, plg, searchKey, offset, limit, nil)
	if err != nil {
		return nil, err
	}

	page := pagination.Empty[*payment.Payment](offset, limit)
	page.TotalCount = records.TotalCount

	grouper := s.NewGrouper(pluginName, true)
	for _, record := range records.Items {
		p, err := grouper.Add(ctx, record)
		if err != nil {
			return nil, err
		}
		if p != nil {
			page.Items = append(page.Items, p)
		}
	}
	p, err := grouper.Flush(ctx)
	if err != nil {
		return nil, err
	}
	if p != nil {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (s *PaymentService) skipPlugin(operation string) func(string, error) {
	return func(pluginName string, err error) {
		s.logger.Warn().
			Err(err).
			Str("plugin", pluginName).
			Str("operation", operation).
			Msg("Skipping plugin")
	}
}
