package plugin

import (
	"context"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
)

// Plugin is the boundary to an external payment plugin. Implementations talk
// to a gateway; this service only reads what they report.
type Plugin interface {
	// Name returns the plugin name.
	Name() string
	// GetPaymentInfo returns the plugin's view of every transaction of a payment.
	GetPaymentInfo(ctx context.Context, accountID, paymentID uuid.UUID, properties []payment.PluginProperty) ([]payment.PluginTransactionInfo, error)
	// SearchPayments pages through the plugin's transaction records matching
	// searchKey. Records of one payment must be contiguous.
	SearchPayments(ctx context.Context, searchKey string, offset, limit int, properties []payment.PluginProperty) (*pagination.Page[payment.PluginTransactionInfo], error)
}
