package payment

import (
	"context"

	"github.com/vhorak/payflow/internal/domain/payment"
)

// ScreeningRequest is the input to a compliance screening call.
type ScreeningRequest struct {
	PaymentID payment.PaymentID
	Payer     payment.AccountID
	Payee     payment.AccountID
	Amount    payment.Money
	Reference string
}

// ScreeningResult is the verdict returned by the compliance service.
type ScreeningResult struct {
	Passed         bool
	RiskScore      float64
	Flags          []string
	RuleSetVersion string
}

// ComplianceScreeningPort screens a payment against AML/sanctions rules.
type ComplianceScreeningPort interface {
	Screen(ctx context.Context, req ScreeningRequest) (*ScreeningResult, error)
}

// FundsReservationPort places and releases holds on payer accounts. The
// accounts service guarantees each operation is atomic per account.
type FundsReservationPort interface {
	// Reserve places a hold; fails with errors.ErrInsufficientFunds when
	// the account cannot cover the amount.
	Reserve(ctx context.Context, accountID payment.AccountID, amount payment.Money) (payment.ReservationID, error)
	// Release removes a previously placed hold.
	Release(ctx context.Context, reservationID payment.ReservationID) error
}

// LedgerPort produces and reverses matched debit/credit entries.
type LedgerPort interface {
	// Journal writes a balanced debit/credit pair for the payment.
	Journal(ctx context.Context, paymentID payment.PaymentID, debit, credit payment.AccountID, amount payment.Money) ([]payment.LedgerEntry, error)
	// Reverse writes offsetting entries undoing the payment's journal.
	Reverse(ctx context.Context, paymentID payment.PaymentID) ([]payment.LedgerEntry, error)
}

// SettlementResult is the outcome of a settlement attempt.
type SettlementResult struct {
	Succeeded   bool
	ExternalRef string
	Reason      string
}

// SettlementPort settles a payment through an external channel.
type SettlementPort interface {
	Settle(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*SettlementResult, error)
}

// NotificationPort delivers a fire-and-forget notification. It is
// best-effort and outside the saga's transactional boundary.
type NotificationPort interface {
	Notify(ctx context.Context, paymentID payment.PaymentID, channel string) error
}
