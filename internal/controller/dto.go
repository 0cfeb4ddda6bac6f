package controller

import (
	"time"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/shopspring/decimal"
)

const defaultPageLimit = 100

// --- Request DTOs ---
// Every endpoint is a GET; query parameters are parsed into these types and
// checked with their validation tags.

// PageQuery holds the paging parameters shared by list endpoints.
type PageQuery struct {
	Offset         int `validate:"gte=0"`
	Limit          int `validate:"gte=1,lte=500"`
	WithPluginInfo bool
}

// ListPaymentsQuery selects payments of one plugin, or of all plugins when
// Plugin is empty.
type ListPaymentsQuery struct {
	PageQuery
	Plugin string `validate:"omitempty,max=64"`
}

// SearchPaymentsQuery holds a search request.
type SearchPaymentsQuery struct {
	PageQuery
	Key string `validate:"required,max=255"`
}

// --- Response DTOs ---

// AmountResponse renders money with the decimal as a string.
type AmountResponse struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// PluginInfoResponse is the plugin's own view of a transaction.
type PluginInfoResponse struct {
	Status           string                   `json:"status"`
	Amount           *AmountResponse          `json:"amount,omitempty"`
	GatewayErrorCode string                   `json:"gateway_error_code,omitempty"`
	GatewayError     string                   `json:"gateway_error,omitempty"`
	FirstReferenceID string                   `json:"first_reference_id,omitempty"`
	CreatedDate      time.Time                `json:"created_date"`
	EffectiveDate    time.Time                `json:"effective_date"`
	Properties       []payment.PluginProperty `json:"properties,omitempty"`
}

// TransactionResponse represents a payment transaction in API responses.
type TransactionResponse struct {
	ID               string              `json:"id"`
	ExternalKey      string              `json:"external_key"`
	Type             string              `json:"type"`
	Status           string              `json:"status"`
	Amount           AmountResponse      `json:"amount"`
	ProcessedAmount  *AmountResponse     `json:"processed_amount,omitempty"`
	GatewayErrorCode string              `json:"gateway_error_code,omitempty"`
	GatewayErrorMsg  string              `json:"gateway_error_msg,omitempty"`
	EffectiveDate    time.Time           `json:"effective_date"`
	PluginInfo       *PluginInfoResponse `json:"plugin_info,omitempty"`
}

// AttemptResponse represents a past or scheduled payment attempt.
type AttemptResponse struct {
	ID                     string                   `json:"id"`
	TransactionID          *string                  `json:"transaction_id,omitempty"`
	TransactionExternalKey string                   `json:"transaction_external_key"`
	TransactionType        string                   `json:"transaction_type"`
	StateName              string                   `json:"state_name"`
	Amount                 AmountResponse           `json:"amount"`
	PluginName             string                   `json:"plugin_name"`
	EffectiveDate          time.Time                `json:"effective_date"`
	PluginProperties       []payment.PluginProperty `json:"plugin_properties,omitempty"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                   string                `json:"id"`
	AccountID            string                `json:"account_id"`
	PaymentMethodID      string                `json:"payment_method_id"`
	PaymentNumber        int64                 `json:"payment_number"`
	ExternalKey          string                `json:"external_key"`
	StateName            string                `json:"state_name"`
	LastSuccessStateName string                `json:"last_success_state_name,omitempty"`
	Transactions         []TransactionResponse `json:"transactions"`
	Attempts             []AttemptResponse     `json:"attempts,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// PageResponse wraps one page of payments.
type PageResponse struct {
	Items      []*PaymentResponse `json:"items"`
	Offset     int                `json:"offset"`
	Limit      int                `json:"limit"`
	TotalCount int64              `json:"total_count"`
	NextOffset *int               `json:"next_offset,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func fromAmount(a payment.Amount) AmountResponse {
	return AmountResponse{Value: a.Value, Currency: a.Currency}
}

// FromPayment converts a payment view to its API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:                   p.ID.String(),
		AccountID:            p.AccountID.String(),
		PaymentMethodID:      p.PaymentMethodID.String(),
		PaymentNumber:        p.PaymentNumber,
		ExternalKey:          p.ExternalKey,
		StateName:            p.StateName,
		LastSuccessStateName: p.LastSuccessStateName,
		Transactions:         make([]TransactionResponse, 0, len(p.Transactions)),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	for _, tx := range p.Transactions {
		resp.Transactions = append(resp.Transactions, fromTransaction(tx))
	}
	if p.Attempts != nil {
		resp.Attempts = make([]AttemptResponse, 0, len(p.Attempts))
		for _, a := range p.Attempts {
			resp.Attempts = append(resp.Attempts, fromAttempt(a))
		}
	}
	return resp
}

func fromTransaction(tx *payment.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:               tx.ID.String(),
		ExternalKey:      tx.ExternalKey,
		Type:             string(tx.Type),
		Status:           string(tx.Status),
		Amount:           fromAmount(tx.Amount),
		GatewayErrorCode: tx.GatewayErrorCode,
		GatewayErrorMsg:  tx.GatewayErrorMsg,
		EffectiveDate:    tx.EffectiveDate,
	}
	if tx.ProcessedAmount.Currency != "" {
		processed := fromAmount(tx.ProcessedAmount)
		resp.ProcessedAmount = &processed
	}
	if info := tx.PluginInfo; info != nil {
		resp.PluginInfo = &PluginInfoResponse{
			Status:           string(info.Status),
			GatewayErrorCode: info.GatewayErrorCode,
			GatewayError:     info.GatewayError,
			FirstReferenceID: info.FirstReferenceID,
			CreatedDate:      info.CreatedDate,
			EffectiveDate:    info.EffectiveDate,
			Properties:       info.Properties,
		}
		if info.Amount != nil {
			amount := fromAmount(*info.Amount)
			resp.PluginInfo.Amount = &amount
		}
	}
	return resp
}

func fromAttempt(a *payment.Attempt) AttemptResponse {
	resp := AttemptResponse{
		ID:                     a.ID.String(),
		TransactionExternalKey: a.TransactionExternalKey,
		TransactionType:        string(a.TransactionType),
		StateName:              a.StateName,
		Amount:                 fromAmount(a.Amount),
		PluginName:             a.PluginName,
		EffectiveDate:          a.EffectiveDate,
		PluginProperties:       a.PluginProperties,
	}
	if a.TransactionID != nil {
		id := a.TransactionID.String()
		resp.TransactionID = &id
	}
	return resp
}

// FromPage converts a page of payment views.
func FromPage(page *pagination.Page[*payment.Payment]) *PageResponse {
	resp := &PageResponse{
		Items:      make([]*PaymentResponse, 0, len(page.Items)),
		Offset:     page.Offset,
		Limit:      page.Limit,
		TotalCount: page.TotalCount,
	}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, FromPayment(p))
	}
	if next := page.NextOffset(); next >= 0 {
		resp.NextOffset = &next
	}
	return resp
}
