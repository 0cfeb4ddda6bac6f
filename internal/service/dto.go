package service

import "github.com/cassiomorais/paymentrecon/internal/domain/payment"

// ViewOptions selects what a payment view is assembled with.
// Controllers convert their query parameters to this type.
type ViewOptions struct {
	WithPluginInfo bool
	WithAttempts   bool
	Properties     []payment.PluginProperty
}
