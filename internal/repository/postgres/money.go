package postgres

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// numericToAmount parses a NUMERIC column rendered as text.
func numericToAmount(s, currency string) (payment.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return payment.Amount{}, fmt.Errorf("empty numeric string")
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return payment.Amount{}, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return payment.Amount{Value: value, Currency: currency}, nil
}

// nullableAmount parses an optional NUMERIC column. A NULL value yields the
// zero amount.
func nullableAmount(s, currency *string) (payment.Amount, error) {
	if s == nil {
		return payment.Amount{}, nil
	}
	cur := ""
	if currency != nil {
		cur = *currency
	}
	return numericToAmount(*s, cur)
}

func amountToNumeric(a payment.Amount) string {
	return a.Value.String()
}
