package controller

import (
	"net/http"

	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentController serves the payment read API.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	opts, err := parseViewOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentService.GetPayment(r.Context(), id, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments. With external_key it returns
// that single payment; otherwise a page of one plugin's payments, or of all
// plugins when no plugin is named.
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	if key := r.URL.Query().Get("external_key"); key != "" {
		h.getByExternalKey(w, r, key)
		return
	}

	page, err := parsePageQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := ListPaymentsQuery{PageQuery: page, Plugin: r.URL.Query().Get("plugin")}
	if err := validateQuery(q); err != nil {
		writeError(w, err)
		return
	}

	if q.Plugin == "" {
		result, err := h.paymentService.GetPaymentsAcrossPlugins(r.Context(), q.Offset, q.Limit, q.WithPluginInfo)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, FromPage(result))
		return
	}

	result, err := h.paymentService.GetPayments(r.Context(), q.Offset, q.Limit, q.Plugin, q.WithPluginInfo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPage(result))
}

func (h *PaymentController) getByExternalKey(w http.ResponseWriter, r *http.Request, key string) {
	opts, err := parseViewOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentService.GetPaymentByExternalKey(r.Context(), key, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// SearchPayments handles GET /api/v1/payments/search?key=
func (h *PaymentController) SearchPayments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := SearchPaymentsQuery{PageQuery: page, Key: r.URL.Query().Get("key")}
	if err := validateQuery(q); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.paymentService.SearchPayments(r.Context(), q.Key, q.Offset, q.Limit, q.WithPluginInfo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPage(result))
}
