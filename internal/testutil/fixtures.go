package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// CZK builds money in Czech koruna minor units.
func CZK(minor int64) payment.Money {
	return payment.Money{ValueMinor: minor, Currency: "CZK"}
}

// NewTestPayment creates a freshly requested payment with distinct payer
// and payee accounts.
func NewTestPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p, err := payment.Create(
		payment.NewPaymentID(),
		amount,
		payment.NewAccountID(),
		payment.NewAccountID(),
		"invoice 2026-001",
	)
	require.NoError(t, err)
	return p
}

// NewReservedPayment creates a payment moved through screening and funds
// reservation.
func NewReservedPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p := NewTestPayment(t, amount)
	require.NoError(t, p.MarkAMLPassed("test-rules", 0.1))
	require.NoError(t, p.ReserveFunds(payment.NewReservationID()))
	return p
}

// NewJournaledPayment creates a payment moved through journaling.
func NewJournaledPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p := NewReservedPayment(t, amount)
	entry := payment.NewLedgerEntry(p.ID(), p.PayerAccountID(), p.PayeeAccountID(), amount)
	require.NoError(t, p.Journal([]payment.LedgerEntry{entry}))
	return p
}
