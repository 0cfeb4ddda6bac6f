package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `p.id, p.tenant_id, p.account_id, p.payment_method_id, p.payment_number,
	p.external_key, p.state_name, COALESCE(p.last_success_state_name, ''), p.created_date, p.updated_date`

const transactionColumns = `t.id, t.attempt_id, t.transaction_external_key, t.payment_id,
	t.transaction_type, t.transaction_status, t.amount::text, t.currency,
	t.processed_amount::text, t.processed_currency,
	COALESCE(t.gateway_error_code, ''), COALESCE(t.gateway_error_msg, ''),
	t.effective_date, t.created_date, t.updated_date`

const attemptColumns = `a.id, a.account_id, a.payment_method_id, a.payment_external_key,
	a.transaction_id, a.transaction_external_key, a.transaction_type, a.state_name,
	a.amount::text, a.currency, a.plugin_name, a.created_date, a.updated_date`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetPayment retrieves a payment record by ID.
func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", id, domainErrors.ErrPaymentNotFound)
	}
	return p, err
}

// GetPaymentByExternalKey retrieves a payment record by external key.
func (r *PaymentRepository) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*payment.Payment, error) {
	p, err := scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.external_key = $1`, externalKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %q: %w", externalKey, domainErrors.ErrPaymentNotFound)
	}
	return p, err
}

// GetPaymentsForAccount lists every payment of an account, oldest first.
func (r *PaymentRepository) GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]*payment.Payment, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments p
		 WHERE p.account_id = $1
		 ORDER BY p.payment_number ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account payments: %w", err)
	}
	return collectPayments(rows)
}

// GetPaymentsByPlugin pages through the payments whose payment method is
// served by pluginName.
func (r *PaymentRepository) GetPaymentsByPlugin(ctx context.Context, pluginName string, offset, limit int) ([]*payment.Payment, int64, error) {
	var total int64
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM payments p
		 JOIN payment_methods pm ON pm.id = p.payment_method_id
		 WHERE pm.plugin_name = $1`, pluginName).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count plugin payments: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments p
		 JOIN payment_methods pm ON pm.id = p.payment_method_id
		 WHERE pm.plugin_name = $1
		 ORDER BY p.payment_number ASC
		 LIMIT $2 OFFSET $3`, pluginName, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list plugin payments: %w", err)
	}
	payments, err := collectPayments(rows)
	return payments, total, err
}

// SearchPayments matches searchKey against payment ids, external keys and
// payment numbers.
func (r *PaymentRepository) SearchPayments(ctx context.Context, searchKey string, offset, limit int) ([]*payment.Payment, int64, error) {
	const where = ` WHERE p.id::text = $1 OR p.external_key ILIKE '%' || $1 || '%' OR p.payment_number::text = $1`

	var total int64
	if err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payments p`+where, searchKey).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments p`+where+`
		 ORDER BY p.payment_number ASC
		 LIMIT $2 OFFSET $3`, searchKey, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search payments: %w", err)
	}
	payments, err := collectPayments(rows)
	return payments, total, err
}

// GetTransactionsForPayment lists the transactions of one payment in insertion order.
func (r *PaymentRepository) GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]*payment.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions t
		 WHERE t.payment_id = $1
		 ORDER BY t.record_id ASC`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetTransactionsForAccount lists the transactions of every payment of an account.
func (r *PaymentRepository) GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]*payment.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions t
		 JOIN payments p ON p.id = t.payment_id
		 WHERE p.account_id = $1
		 ORDER BY t.record_id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetTransaction retrieves a single transaction.
func (r *PaymentRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	tx, err := scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions t WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, domainErrors.ErrTransactionNotFound)
	}
	return tx, err
}

// GetPaymentAttempts lists persisted attempts for a payment external key, oldest first.
func (r *PaymentRepository) GetPaymentAttempts(ctx context.Context, paymentExternalKey string) ([]*payment.Attempt, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts a
		 WHERE a.payment_external_key = $1
		 ORDER BY a.record_id ASC`, paymentExternalKey)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*payment.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetPaymentMethod retrieves a payment method.
func (r *PaymentRepository) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*payment.PaymentMethod, error) {
	pm := &payment.PaymentMethod{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, account_id, plugin_name, is_active FROM payment_methods WHERE id = $1`, id,
	).Scan(&pm.ID, &pm.AccountID, &pm.PluginName, &pm.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment method %s: %w", id, domainErrors.ErrPaymentMethodNotFound)
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	return pm, nil
}

// UpdateTransactionStatus writes the corrected status only while the stored
// status still equals update.FromStatus.
func (r *PaymentRepository) UpdateTransactionStatus(ctx context.Context, update payment.TransactionStatusUpdate) (bool, error) {
	var processedAmount, processedCurrency *string
	if update.ProcessedAmount != nil {
		amount := amountToNumeric(*update.ProcessedAmount)
		processedAmount, processedCurrency = &amount, &update.ProcessedAmount.Currency
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_transactions SET
		  transaction_status = $1,
		  processed_amount = COALESCE($2::numeric, processed_amount),
		  processed_currency = COALESCE($3, processed_currency),
		  gateway_error_code = $4,
		  gateway_error_msg = $5,
		  updated_date = NOW()
		 WHERE id = $6 AND payment_id = $7 AND transaction_status = $8`,
		string(update.ToStatus), processedAmount, processedCurrency,
		nullIfEmpty(update.GatewayErrorCode), nullIfEmpty(update.GatewayErrorMsg),
		update.TransactionID, update.PaymentID, string(update.FromStatus),
	)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payment_transactions WHERE id = $1 AND payment_id = $2)`,
		update.TransactionID, update.PaymentID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check transaction: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("transaction %s: %w", update.TransactionID, domainErrors.ErrTransactionNotFound)
	}
	return false, nil
}

// UpdatePaymentState rewrites the payment state names.
func (r *PaymentRepository) UpdatePaymentState(ctx context.Context, paymentID uuid.UUID, stateName string, lastSuccessStateName *string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  state_name = $1,
		  last_success_state_name = COALESCE($2, last_success_state_name),
		  updated_date = NOW()
		 WHERE id = $3`,
		stateName, lastSuccessStateName, paymentID,
	)
	if err != nil {
		return fmt.Errorf("update payment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s: %w", paymentID, domainErrors.ErrPaymentNotFound)
	}
	return nil
}

// --- scanning helpers ---

func scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	err := s.Scan(
		&p.ID, &p.TenantID, &p.AccountID, &p.PaymentMethodID, &p.PaymentNumber,
		&p.ExternalKey, &p.StateName, &p.LastSuccessStateName, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

func collectPayments(rows pgx.Rows) ([]*payment.Payment, error) {
	defer rows.Close()

	payments := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanTransaction(s scanner) (*payment.Transaction, error) {
	tx := &payment.Transaction{}
	var (
		txType, status          string
		amount, currency        string
		processed, processedCur *string
	)
	err := s.Scan(
		&tx.ID, &tx.AttemptID, &tx.ExternalKey, &tx.PaymentID,
		&txType, &status, &amount, &currency,
		&processed, &processedCur,
		&tx.GatewayErrorCode, &tx.GatewayErrorMsg,
		&tx.EffectiveDate, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if tx.Type, err = payment.ParseTransactionType(txType); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.Status, err = payment.ParseTransactionStatus(status); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.Amount, err = numericToAmount(amount, currency); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	if tx.ProcessedAmount, err = nullableAmount(processed, processedCur); err != nil {
		return nil, fmt.Errorf("transaction %s processed amount: %w", tx.ID, err)
	}
	return tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*payment.Transaction, error) {
	defer rows.Close()

	var txs []*payment.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanAttempt(s scanner) (*payment.Attempt, error) {
	a := &payment.Attempt{}
	var txType, amount, currency string
	err := s.Scan(
		&a.ID, &a.AccountID, &a.PaymentMethodID, &a.PaymentExternalKey,
		&a.TransactionID, &a.TransactionExternalKey, &txType, &a.StateName,
		&amount, &currency, &a.PluginName, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	if a.TransactionType, err = payment.ParseTransactionType(txType); err != nil {
		return nil, fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	if a.Amount, err = numericToAmount(amount, currency); err != nil {
		return nil, fmt.Errorf("attempt %s amount: %w", a.ID, err)
	}
	return a, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
