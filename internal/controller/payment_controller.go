package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/application/orchestrator"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	orch     *orchestrator.Orchestrator
	payments *app.GetPaymentQuery
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(orch *orchestrator.Orchestrator, payments *app.GetPaymentQuery) *PaymentController {
	return &PaymentController{orch: orch, payments: payments}
}

// CreatePayment handles POST /api/v1/payments. The caller-supplied
// Idempotency-Key header deduplicates retried submissions; a replay returns
// 200 with the original correlation id instead of 202.
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Idempotency-Key header is required", Code: "missing_idempotency_key"})
		return
	}

	payer, err := payment.ParseAccountID(req.PayerAccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payer_account_id", Code: "invalid_id"})
		return
	}
	payee, err := payment.ParseAccountID(req.PayeeAccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payee_account_id", Code: "invalid_id"})
		return
	}

	res, err := h.orch.Initiate(r.Context(), orchestrator.InitiateRequest{
		Amount:         moneyFromRequest(req.Amount, req.Currency),
		PayerAccountID: payer,
		PayeeAccountID: payee,
		Reference:      req.Reference,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, InitiateResponse{
		CorrelationID: res.CorrelationID.String(),
		PaymentID:     res.PaymentID.String(),
		Status:        string(res.Status),
		Duplicate:     res.Duplicate,
	})
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := payment.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	view, err := h.payments.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPaymentView(view))
}

// CancelPayment handles POST /api/v1/payments/{id}/cancel
func (h *PaymentController) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := payment.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	var req CancelPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.orch.Cancel(r.Context(), id, req.CancelledBy, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}

	switch res.Outcome {
	case saga.OutcomeSucceeded, saga.OutcomeDuplicate:
		view, err := h.payments.Execute(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, FromPaymentView(view))
	case saga.OutcomeNotFound:
		writeError(w, domainErrors.ErrPaymentNotFound)
	default:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: res.Reason, Code: "cancel_rejected"})
	}
}
