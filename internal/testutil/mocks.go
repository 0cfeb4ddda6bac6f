package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Reads return
// copies, so a caller only sees a correction after reading again.
type MockPaymentRepository struct {
	mu           sync.Mutex
	payments     []*payment.Payment
	transactions []*payment.Transaction
	attempts     []*payment.Attempt
	methods      map[uuid.UUID]*payment.PaymentMethod
	calls        map[string]int

	GetPaymentFunc                func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetTransactionsForPaymentFunc func(ctx context.Context, paymentID uuid.UUID) ([]*payment.Transaction, error)
	GetTransactionFunc            func(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
	GetPaymentAttemptsFunc        func(ctx context.Context, externalKey string) ([]*payment.Attempt, error)
	SearchPaymentsFunc            func(ctx context.Context, searchKey string, offset, limit int) ([]*payment.Payment, int64, error)
	UpdateTransactionStatusFunc   func(ctx context.Context, update payment.TransactionStatusUpdate) (bool, error)
	UpdatePaymentStateFunc        func(ctx context.Context, paymentID uuid.UUID, stateName string, lastSuccessStateName *string) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		methods: make(map[uuid.UUID]*payment.PaymentMethod),
		calls:   make(map[string]int),
	}
}

// Calls returns how often the named repository method was invoked.
func (m *MockPaymentRepository) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockPaymentRepository) record(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, copyPayment(p))
}

func (m *MockPaymentRepository) AddTransactions(txs ...*payment.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.transactions = append(m.transactions, tx.Clone())
	}
}

func (m *MockPaymentRepository) AddAttempts(attempts ...*payment.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range attempts {
		cp := *a
		m.attempts = append(m.attempts, &cp)
	}
}

func (m *MockPaymentRepository) AddPaymentMethod(pm *payment.PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pm
	m.methods[pm.ID] = &cp
}

func (m *MockPaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.record("GetPayment")
	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			return copyPayment(p), nil
		}
	}
	return nil, fmt.Errorf("payment %s: %w", id, domainErrors.ErrPaymentNotFound)
}

func (m *MockPaymentRepository) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*payment.Payment, error) {
	m.record("GetPaymentByExternalKey")
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ExternalKey == externalKey {
			return copyPayment(p), nil
		}
	}
	return nil, fmt.Errorf("payment %q: %w", externalKey, domainErrors.ErrPaymentNotFound)
}

func (m *MockPaymentRepository) GetPaymentsForAccount(ctx context.Context, accountID uuid.UUID) ([]*payment.Payment, error) {
	m.record("GetPaymentsForAccount")
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.AccountID == accountID {
			out = append(out, copyPayment(p))
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) GetPaymentsByPlugin(ctx context.Context, pluginName string, offset, limit int) ([]*payment.Payment, int64, error) {
	m.record("GetPaymentsByPlugin")
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*payment.Payment
	for _, p := range m.payments {
		if pm, ok := m.methods[p.PaymentMethodID]; ok && pm.PluginName == pluginName {
			matched = append(matched, p)
		}
	}
	return window(matched, offset, limit), int64(len(matched)), nil
}

func (m *MockPaymentRepository) SearchPayments(ctx context.Context, searchKey string, offset, limit int) ([]*payment.Payment, int64, error) {
	m.record("SearchPayments")
	if m.SearchPaymentsFunc != nil {
		return m.SearchPaymentsFunc(ctx, searchKey, offset, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*payment.Payment
	for _, p := range m.payments {
		if strings.Contains(p.ID.String(), searchKey) || strings.Contains(p.ExternalKey, searchKey) {
			matched = append(matched, p)
		}
	}
	return window(matched, offset, limit), int64(len(matched)), nil
}

func (m *MockPaymentRepository) GetTransactionsForPayment(ctx context.Context, paymentID uuid.UUID) ([]*payment.Transaction, error) {
	m.record("GetTransactionsForPayment")
	if m.GetTransactionsForPaymentFunc != nil {
		return m.GetTransactionsForPaymentFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Transaction
	for _, tx := range m.transactions {
		if tx.PaymentID == paymentID {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) GetTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]*payment.Transaction, error) {
	m.record("GetTransactionsForAccount")
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := make(map[uuid.UUID]bool)
	for _, p := range m.payments {
		if p.AccountID == accountID {
			owned[p.ID] = true
		}
	}
	var out []*payment.Transaction
	for _, tx := range m.transactions {
		if owned[tx.PaymentID] {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	m.record("GetTransaction")
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.ID == id {
			return tx.Clone(), nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, domainErrors.ErrTransactionNotFound)
}

func (m *MockPaymentRepository) GetPaymentAttempts(ctx context.Context, externalKey string) ([]*payment.Attempt, error) {
	m.record("GetPaymentAttempts")
	if m.GetPaymentAttemptsFunc != nil {
		return m.GetPaymentAttemptsFunc(ctx, externalKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Attempt
	for _, a := range m.attempts {
		if a.PaymentExternalKey == externalKey {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*payment.PaymentMethod, error) {
	m.record("GetPaymentMethod")
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.methods[id]
	if !ok {
		return nil, fmt.Errorf("payment method %s: %w", id, domainErrors.ErrPaymentMethodNotFound)
	}
	cp := *pm
	return &cp, nil
}

// UpdateTransactionStatus applies the update only while the stored status
// equals update.FromStatus.
func (m *MockPaymentRepository) UpdateTransactionStatus(ctx context.Context, update payment.TransactionStatusUpdate) (bool, error) {
	m.record("UpdateTransactionStatus")
	if m.UpdateTransactionStatusFunc != nil {
		return m.UpdateTransactionStatusFunc(ctx, update)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.ID != update.TransactionID || tx.PaymentID != update.PaymentID {
			continue
		}
		if tx.Status != update.FromStatus {
			return false, nil
		}
		tx.Status = update.ToStatus
		if update.ProcessedAmount != nil {
			tx.ProcessedAmount = *update.ProcessedAmount
		}
		tx.GatewayErrorCode = update.GatewayErrorCode
		tx.GatewayErrorMsg = update.GatewayErrorMsg
		return true, nil
	}
	return false, fmt.Errorf("transaction %s: %w", update.TransactionID, domainErrors.ErrTransactionNotFound)
}

func (m *MockPaymentRepository) UpdatePaymentState(ctx context.Context, paymentID uuid.UUID, stateName string, lastSuccessStateName *string) error {
	m.record("UpdatePaymentState")
	if m.UpdatePaymentStateFunc != nil {
		return m.UpdatePaymentStateFunc(ctx, paymentID, stateName, lastSuccessStateName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == paymentID {
			p.StateName = stateName
			if lastSuccessStateName != nil {
				p.LastSuccessStateName = *lastSuccessStateName
			}
			return nil
		}
	}
	return fmt.Errorf("payment %s: %w", paymentID, domainErrors.ErrPaymentNotFound)
}

func copyPayment(p *payment.Payment) *payment.Payment {
	cp := *p
	cp.Transactions = nil
	cp.Attempts = nil
	return &cp
}

func window(items []*payment.Payment, offset, limit int) []*payment.Payment {
	out := make([]*payment.Payment, 0)
	if offset >= len(items) {
		return out
	}
	end := min(offset+limit, len(items))
	for _, p := range items[offset:end] {
		out = append(out, copyPayment(p))
	}
	return out
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn directly without a real transaction.
type MockTransactionManager struct {
	mu    sync.Mutex
	Calls int
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	return fn(ctx)
}

// --- Account Locker Mock ---

// MockAccountLocker serializes per account with in-process mutexes.
type MockAccountLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
	held  map[uuid.UUID]bool
	calls int

	// Err, when set, simulates a lock that cannot be acquired.
	Err error
}

func NewMockAccountLocker() *MockAccountLocker {
	return &MockAccountLocker{
		locks: make(map[uuid.UUID]*sync.Mutex),
		held:  make(map[uuid.UUID]bool),
	}
}

func (m *MockAccountLocker) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	if m.Err != nil {
		m.mu.Unlock()
		return m.Err
	}
	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}
	m.mu.Unlock()

	l.Lock()
	m.setHeld(accountID, true)
	defer func() {
		m.setHeld(accountID, false)
		l.Unlock()
	}()
	return fn(ctx)
}

func (m *MockAccountLocker) setHeld(accountID uuid.UUID, held bool) {
	m.mu.Lock()
	m.held[accountID] = held
	m.mu.Unlock()
}

// Held reports whether the account lock is currently taken.
func (m *MockAccountLocker) Held(accountID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[accountID]
}

func (m *MockAccountLocker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Retry Queue Mock ---

// MockRetryQueue returns canned future entries per account.
type MockRetryQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]payment.ScheduledRetryEntry

	// Err is returned by FutureEntries when set.
	Err error
}

func NewMockRetryQueue() *MockRetryQueue {
	return &MockRetryQueue{entries: make(map[uuid.UUID][]payment.ScheduledRetryEntry)}
}

func (m *MockRetryQueue) Schedule(_ context.Context, accountID, _ uuid.UUID, entry payment.ScheduledRetryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[accountID] = append(m.entries[accountID], entry)
	sort.SliceStable(m.entries[accountID], func(i, j int) bool {
		return m.entries[accountID][i].EffectiveDate.Before(m.entries[accountID][j].EffectiveDate)
	})
	return nil
}

func (m *MockRetryQueue) FutureEntries(_ context.Context, accountID, _ uuid.UUID) ([]payment.ScheduledRetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]payment.ScheduledRetryEntry(nil), m.entries[accountID]...), nil
}

// --- Event Publisher Mock ---

type MockEventPublisher struct {
	mu     sync.Mutex
	events []payment.ReconciliationEvent

	Err error
}

func (m *MockEventPublisher) PublishReconciliation(_ context.Context, event payment.ReconciliationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventPublisher) Events() []payment.ReconciliationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.ReconciliationEvent(nil), m.events...)
}
