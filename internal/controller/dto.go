package controller

import (
	"math"
	"time"

	"github.com/vhorak/payflow/internal/application/orchestrator"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for IDs,
// validation tags). Controllers convert these to application inputs before
// calling the orchestrator.

// CreatePaymentRequest holds the input for initiating a payment.
type CreatePaymentRequest struct {
	PayerAccountID string  `json:"payer_account_id" validate:"required,uuid"`
	PayeeAccountID string  `json:"payee_account_id" validate:"required,uuid"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Currency       string  `json:"currency" validate:"required,len=3"`
	Reference      string  `json:"reference" validate:"max=140"`
}

// CancelPaymentRequest holds the input for cancelling a payment.
type CancelPaymentRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Force       bool   `json:"force"`
}

// ReviewDecisionRequest holds a manual-review decision.
type ReviewDecisionRequest struct {
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by" validate:"required"`
}

// --- Response DTOs ---

// InitiateResponse acknowledges an accepted payment instruction.
type InitiateResponse struct {
	CorrelationID string `json:"correlation_id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                    string     `json:"id"`
	PayerAccountID        string     `json:"payer_account_id"`
	PayeeAccountID        string     `json:"payee_account_id"`
	Amount                float64    `json:"amount"`
	Currency              string     `json:"currency"`
	Reference             string     `json:"reference,omitempty"`
	State                 string     `json:"state"`
	ReservationID         *string    `json:"reservation_id,omitempty"`
	ReconciliationFlagged bool       `json:"reconciliation_flagged,omitempty"`
	Version               int        `json:"version"`
	RequestedAt           time.Time  `json:"requested_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	SettledAt             *time.Time `json:"settled_at,omitempty"`
}

// SagaResponse represents a workflow status in API responses.
type SagaResponse struct {
	CorrelationID string     `json:"correlation_id"`
	PaymentID     string     `json:"payment_id"`
	CurrentStep   string     `json:"current_step"`
	Status        string     `json:"status"`
	EnhancedAudit bool       `json:"enhanced_audit,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromPaymentView converts the read model to an API response.
func FromPaymentView(v *app.PaymentView) *PaymentResponse {
	resp := &PaymentResponse{
		ID:                    v.ID.String(),
		PayerAccountID:        v.PayerAccountID.String(),
		PayeeAccountID:        v.PayeeAccountID.String(),
		Amount:                minorToFloat(v.Amount.ValueMinor),
		Currency:              v.Amount.Currency,
		Reference:             v.Reference,
		State:                 string(v.State),
		ReconciliationFlagged: v.ReconciliationFlagged,
		Version:               v.Version,
		RequestedAt:           v.RequestedAt,
		UpdatedAt:             v.UpdatedAt,
		SettledAt:             v.SettledAt,
	}
	if v.ReservationID != nil {
		id := v.ReservationID.String()
		resp.ReservationID = &id
	}
	return resp
}

// FromStatusView converts a workflow status to an API response.
func FromStatusView(v *orchestrator.StatusView) *SagaResponse {
	return &SagaResponse{
		CorrelationID: v.CorrelationID.String(),
		PaymentID:     v.PaymentID.String(),
		CurrentStep:   string(v.CurrentStep),
		Status:        string(v.Status),
		EnhancedAudit: v.EnhancedAudit,
		FailureReason: v.FailureReason,
		StartedAt:     v.StartedAt,
		CompletedAt:   v.CompletedAt,
	}
}

// floatToMinor converts a major-unit amount to minor units. Rounding here
// keeps 12.34 from becoming 1233.
func floatToMinor(f float64) int64 {
	return int64(math.Round(f * 100))
}

// minorToFloat converts minor units to a major-unit amount.
func minorToFloat(minor int64) float64 {
	return float64(minor) / 100.0
}

// moneyFromRequest builds domain money from the request fields.
func moneyFromRequest(amount float64, currency string) payment.Money {
	return payment.Money{ValueMinor: floatToMinor(amount), Currency: currency}
}
