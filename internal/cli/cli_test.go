package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/paymentrecon/internal/controller"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/plugin"
	"github.com/cassiomorais/paymentrecon/internal/reconcile"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/cassiomorais/paymentrecon/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type cliFixture struct {
	repo   *testutil.MockPaymentRepository
	plugin *plugin.MockPlugin
	method *payment.PaymentMethod
	svc    *service.PaymentService
	loads  int
	closed int
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()
	metrics := testutil.NewTestMetrics()
	logger := zerolog.Nop()
	repo := testutil.NewMockPaymentRepository()

	stripe := plugin.NewMockPlugin("stripe")
	registry := plugin.NewRegistry(plugin.DefaultBreakerSettings(), stripe)
	method := &payment.PaymentMethod{ID: uuid.New(), AccountID: uuid.New(), PluginName: "stripe", IsActive: true}
	repo.AddPaymentMethod(method)

	fetcher := plugin.NewFetcher(registry, repo, time.Second, logger, metrics)
	janitor := reconcile.NewJanitor(repo, testutil.NewMockTransactionManager(), testutil.NewMockAccountLocker(), nil, logger, metrics)

	return &cliFixture{
		repo:   repo,
		plugin: stripe,
		method: method,
		svc:    service.NewPaymentService(repo, fetcher, janitor, testutil.NewMockRetryQueue(), logger, metrics),
	}
}

func (f *cliFixture) addPayment(status payment.TransactionStatus) (*payment.Payment, *payment.Transaction) {
	p := testutil.NewTestPayment(f.method.AccountID, f.method.ID)
	f.repo.AddPayment(p)
	tx := testutil.NewTestTransaction(p, payment.TransactionPurchase, status, testutil.BaseTime)
	f.repo.AddTransactions(tx)
	return p, tx
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	load := func(context.Context) (PaymentViewer, func(), error) {
		f.loads++
		return f.svc, func() { f.closed++ }, nil
	}
	err := Execute(context.Background(), load, &out, args)
	return out.String(), err
}

func TestPaymentCommand_YAML(t *testing.T) {
	f := setupCLI(t)
	p, tx := f.addPayment(payment.StatusSuccess)

	out, err := f.run(t, "payment", p.ID.String())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, p.ID.String(), doc["id"])
	assert.Equal(t, p.ExternalKey, doc["external_key"])
	txs, ok := doc["transactions"].([]any)
	require.True(t, ok)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID.String(), txs[0].(map[string]any)["id"])

	assert.NotContains(t, out, "{", "yaml output is block style")
	assert.Equal(t, 1, f.loads)
	assert.Equal(t, 1, f.closed)
}

func TestPaymentCommand_JSONWithPluginInfo(t *testing.T) {
	f := setupCLI(t)
	p, tx := f.addPayment(payment.StatusPending)
	f.plugin.AddRecords(testutil.PluginInfoFor(tx, payment.PluginProcessed))

	out, err := f.run(t, "payment", p.ID.String(), "-o", "json", "--plugin-info", "--property", "region=eu")
	require.NoError(t, err)

	var resp controller.PaymentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, string(payment.StatusSuccess), resp.Transactions[0].Status)
	require.NotNil(t, resp.Transactions[0].PluginInfo)
}

func TestPaymentCommand_ByExternalKey(t *testing.T) {
	f := setupCLI(t)
	p, _ := f.addPayment(payment.StatusSuccess)

	out, err := f.run(t, "payment", "--external-key", p.ExternalKey, "-o", "json")
	require.NoError(t, err)

	var resp controller.PaymentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, p.ID.String(), resp.ID)
}

func TestPaymentCommand_Errors(t *testing.T) {
	f := setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid id", []string{"payment", "nope"}},
		{"unknown payment", []string{"payment", uuid.NewString()}},
		{"bad property", []string{"payment", uuid.NewString(), "--property", "region"}},
		{"bad output", []string{"payment", uuid.NewString(), "-o", "xml"}},
		{"missing argument", []string{"payment"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestAccountCommand(t *testing.T) {
	f := setupCLI(t)
	f.addPayment(payment.StatusSuccess)
	f.addPayment(payment.StatusSuccess)

	out, err := f.run(t, "account", f.method.AccountID.String(), "-o", "json")
	require.NoError(t, err)

	var resp []controller.PaymentResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp, 2)
}

func TestListCommand(t *testing.T) {
	f := setupCLI(t)
	for range 3 {
		f.addPayment(payment.StatusSuccess)
	}

	out, err := f.run(t, "list", "--plugin", "stripe", "--limit", "2", "-o", "json")
	require.NoError(t, err)
	var page controller.PageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.TotalCount)

	out, err = f.run(t, "list", "--offset", "1", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Len(t, page.Items, 2)

	_, err = f.run(t, "list", "--limit", "0")
	assert.Error(t, err)
}

func TestSearchCommand(t *testing.T) {
	f := setupCLI(t)
	p, _ := f.addPayment(payment.StatusSuccess)
	f.addPayment(payment.StatusSuccess)

	out, err := f.run(t, "search", p.ExternalKey, "-o", "json")
	require.NoError(t, err)

	var page controller.PageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, p.ID.String(), page.Items[0].ID)
}

func TestLoaderFailure(t *testing.T) {
	var out bytes.Buffer
	load := func(context.Context) (PaymentViewer, func(), error) {
		return nil, nil, errors.New("dial tcp: connection refused")
	}

	err := Execute(context.Background(), load, &out, []string{"search", "x"})
	assert.EqualError(t, err, "dial tcp: connection refused")
}

func TestVersionCommand_SkipsLoader(t *testing.T) {
	f := setupCLI(t)

	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "paymentctl version "+Version)
	assert.Zero(t, f.loads)
}
