package controller

import (
	"net/http"

	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AccountController struct {
	paymentService *service.PaymentService
}

func NewAccountController(paymentService *service.PaymentService) *AccountController {
	return &AccountController{paymentService: paymentService}
}

// GetPayments handles GET /api/v1/accounts/{id}/payments
func (h *AccountController) GetPayments(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid account id", Code: "invalid_id"})
		return
	}

	withPluginInfo, err := queryBool(r, "withPluginInfo")
	if err != nil {
		writeError(w, err)
		return
	}

	payments, err := h.paymentService.GetAccountPayments(r.Context(), accountID, withPluginInfo)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
