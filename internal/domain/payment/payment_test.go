package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

func newPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p, err := payment.Create(payment.NewPaymentID(), amount, payment.NewAccountID(), payment.NewAccountID(), "invoice 2026-001")
	require.NoError(t, err)
	return p
}

func reservedPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p := newPayment(t, amount)
	require.NoError(t, p.MarkAMLPassed("aml-rules-2026.1", 0.12))
	require.NoError(t, p.ReserveFunds(payment.NewReservationID()))
	return p
}

func journaledPayment(t *testing.T, amount payment.Money) *payment.Payment {
	t.Helper()
	p := reservedPayment(t, amount)
	entry := payment.NewLedgerEntry(p.ID(), p.PayerAccountID(), p.PayeeAccountID(), amount)
	require.NoError(t, p.Journal([]payment.LedgerEntry{entry}))
	return p
}

func TestCreate_Valid(t *testing.T) {
	id := payment.NewPaymentID()
	payer := payment.NewAccountID()
	payee := payment.NewAccountID()

	p, err := payment.Create(id, czk(150000), payer, payee, "rent august")
	require.NoError(t, err)

	assert.Equal(t, id, p.ID())
	assert.Equal(t, payment.StateRequested, p.State())
	assert.Equal(t, payer, p.PayerAccountID())
	assert.Equal(t, payee, p.PayeeAccountID())
	assert.Equal(t, "rent august", p.Reference())
	assert.Equal(t, 1, p.Version())
	assert.Equal(t, 0, p.CommittedVersion())
	assert.Len(t, p.UncommittedEvents(), 1)
	assert.False(t, p.RequestedAt().IsZero())
}

func TestCreate_InvalidAmount(t *testing.T) {
	_, err := payment.Create(payment.NewPaymentID(), czk(0), payment.NewAccountID(), payment.NewAccountID(), "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount)
}

func TestCreate_SamePayerAndPayee(t *testing.T) {
	account := payment.NewAccountID()
	_, err := payment.Create(payment.NewPaymentID(), czk(100), account, account, "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidPayment)
}

func TestCreate_ZeroIDs(t *testing.T) {
	_, err := payment.Create(payment.PaymentID{}, czk(100), payment.NewAccountID(), payment.NewAccountID(), "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	_, err = payment.Create(payment.NewPaymentID(), czk(100), payment.AccountID{}, payment.NewAccountID(), "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestPayment_HappyPathLifecycle(t *testing.T) {
	amount := czk(250000)
	p := newPayment(t, amount)

	require.NoError(t, p.MarkAMLPassed("aml-rules-2026.1", 0.1))
	assert.Equal(t, payment.StateRequested, p.State())

	reservationID := payment.NewReservationID()
	require.NoError(t, p.ReserveFunds(reservationID))
	assert.Equal(t, payment.StateReserved, p.State())
	require.NotNil(t, p.ReservationID())
	assert.Equal(t, reservationID, *p.ReservationID())

	entry := payment.NewLedgerEntry(p.ID(), p.PayerAccountID(), p.PayeeAccountID(), amount)
	require.NoError(t, p.Journal([]payment.LedgerEntry{entry}))
	assert.Equal(t, payment.StateJournaled, p.State())

	require.NoError(t, p.Settle("sepa", "sepa_txn_001", amount))
	assert.Equal(t, payment.StateSettled, p.State())
	assert.False(t, p.ReconciliationFlagged())
	assert.True(t, p.State().IsTerminal())

	require.NoError(t, p.MarkNotified("email"))
	assert.True(t, p.Notified())
	assert.Equal(t, 6, p.Version())
}

func TestPayment_FlagAndRelease(t *testing.T) {
	p := newPayment(t, czk(900000))

	require.NoError(t, p.Flag("risk score above review threshold", "high", 0.75))
	assert.Equal(t, payment.StateFlagged, p.State())
	assert.Equal(t, 0.75, p.RiskScore())

	require.NoError(t, p.MarkAMLPassed("manual-review", 0.75))
	assert.Equal(t, payment.StateReleased, p.State())
	assert.Equal(t, 0.75, p.RiskScore())

	require.NoError(t, p.ReserveFunds(payment.NewReservationID()))
	assert.Equal(t, payment.StateReserved, p.State())
}

func TestPayment_Flag_OnlyFromRequested(t *testing.T) {
	p := reservedPayment(t, czk(100))
	err := p.Flag("late flag", "low", 0.4)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)

	var ste *domainerrors.StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, "Flag", ste.Operation)
	assert.Equal(t, string(payment.StateReserved), ste.State)
}

func TestPayment_FailReservation_KeepsState(t *testing.T) {
	p := newPayment(t, czk(100))
	before := p.Version()

	require.NoError(t, p.FailReservation("insufficient funds"))

	assert.Equal(t, payment.StateRequested, p.State())
	assert.Equal(t, before+1, p.Version())
}

func TestPayment_Journal_RequiresReserved(t *testing.T) {
	p := newPayment(t, czk(100))
	entry := payment.NewLedgerEntry(p.ID(), p.PayerAccountID(), p.PayeeAccountID(), czk(100))
	err := p.Journal([]payment.LedgerEntry{entry})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestPayment_Journal_RejectsEmptyEntries(t *testing.T) {
	p := reservedPayment(t, czk(100))
	err := p.Journal(nil)
	assert.ErrorIs(t, err, domainerrors.ErrEmptyJournal)
	assert.Equal(t, payment.StateReserved, p.State())
}

func TestPayment_Settle_PartialFlagsReconciliation(t *testing.T) {
	p := journaledPayment(t, czk(10000))

	require.NoError(t, p.Settle("sepa", "sepa_txn_002", czk(9500)))

	assert.Equal(t, payment.StateSettled, p.State())
	assert.True(t, p.ReconciliationFlagged())
}

func TestPayment_Settle_ExceedsAmount(t *testing.T) {
	p := journaledPayment(t, czk(10000))
	err := p.Settle("sepa", "sepa_txn_003", czk(10001))
	assert.ErrorIs(t, err, domainerrors.ErrSettlementExceedsReserved)
	assert.Equal(t, payment.StateJournaled, p.State())
}

func TestPayment_Settle_CurrencyMismatch(t *testing.T) {
	p := journaledPayment(t, czk(10000))
	err := p.Settle("sepa", "sepa_txn_004", payment.Money{ValueMinor: 10000, Currency: "EUR"})
	assert.ErrorIs(t, err, domainerrors.ErrSettlementExceedsReserved)
}

func TestPayment_Cancel_BeforeReservation(t *testing.T) {
	p := newPayment(t, czk(100))
	require.NoError(t, p.Cancel("customer", false))
	assert.Equal(t, payment.StateDeclined, p.State())
}

func TestPayment_Cancel_SettledWithoutForce(t *testing.T) {
	p := journaledPayment(t, czk(100))
	require.NoError(t, p.Settle("sepa", "sepa_txn_005", czk(100)))

	err := p.Cancel("customer", false)
	assert.ErrorIs(t, err, domainerrors.ErrCannotCancelSettledPayment)
	assert.Equal(t, payment.StateSettled, p.State())
}

func TestPayment_Cancel_SettledWithForce(t *testing.T) {
	p := journaledPayment(t, czk(100))
	require.NoError(t, p.Settle("sepa", "sepa_txn_006", czk(100)))

	require.NoError(t, p.Cancel("ops-admin", true))
	assert.Equal(t, payment.StateDeclined, p.State())
}

func TestPayment_Cancel_ForceRefusedWhenAlreadyTerminal(t *testing.T) {
	p := newPayment(t, czk(100))
	require.NoError(t, p.Decline("blocked by compliance"))

	err := p.Cancel("ops-admin", true)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestPayment_Cancel_ReservedWithoutForce(t *testing.T) {
	p := reservedPayment(t, czk(100))
	err := p.Cancel("customer", false)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestPayment_Decline_FromReserved(t *testing.T) {
	p := reservedPayment(t, czk(100))
	require.NoError(t, p.Decline("compensated after settlement failure"))
	assert.Equal(t, payment.StateDeclined, p.State())
}

func TestPayment_Decline_FromJournaled(t *testing.T) {
	p := journaledPayment(t, czk(100))
	err := p.Decline("too late")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestPayment_Fail_FromAnyState(t *testing.T) {
	p := journaledPayment(t, czk(100))
	require.NoError(t, p.Fail("settlement rail unavailable"))
	assert.Equal(t, payment.StateFailed, p.State())

	settled := journaledPayment(t, czk(100))
	require.NoError(t, settled.Settle("sepa", "sepa_txn_007", czk(100)))
	require.NoError(t, settled.Fail("reconciliation mismatch"))
	assert.Equal(t, payment.StateFailed, settled.State())
}

func TestPayment_MarkNotified_RequiresSettled(t *testing.T) {
	p := journaledPayment(t, czk(100))
	err := p.MarkNotified("email")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestPayment_VersionTracking(t *testing.T) {
	p := reservedPayment(t, czk(100))

	assert.Equal(t, 3, p.Version())
	assert.Equal(t, 0, p.CommittedVersion())
	assert.Len(t, p.UncommittedEvents(), 3)

	p.MarkCommitted()
	assert.Equal(t, 3, p.Version())
	assert.Equal(t, 3, p.CommittedVersion())
	assert.Empty(t, p.UncommittedEvents())
}

func TestReplay_Empty(t *testing.T) {
	_, err := payment.Replay(nil)
	assert.ErrorIs(t, err, domainerrors.ErrPaymentNotFound)
}

func TestReplay_ReconstructsAggregate(t *testing.T) {
	amount := czk(340000)
	original := journaledPayment(t, amount)
	require.NoError(t, original.Settle("card", "card_txn_001", amount))
	require.NoError(t, original.MarkNotified("webhook"))

	replayed, err := payment.Replay(original.UncommittedEvents())
	require.NoError(t, err)

	assert.Equal(t, original.ID(), replayed.ID())
	assert.Equal(t, original.Amount(), replayed.Amount())
	assert.Equal(t, original.PayerAccountID(), replayed.PayerAccountID())
	assert.Equal(t, payment.StateSettled, replayed.State())
	assert.True(t, replayed.Notified())
	assert.Equal(t, original.Version(), replayed.Version())
	assert.Empty(t, replayed.UncommittedEvents())
	require.NotNil(t, replayed.ReservationID())
	assert.Equal(t, *original.ReservationID(), *replayed.ReservationID())
}

func TestReplay_AfterCodecRoundTrip(t *testing.T) {
	original := reservedPayment(t, czk(5000))

	var decoded []payment.Event
	for _, e := range original.UncommittedEvents() {
		eventType, payload, err := payment.MarshalEvent(e)
		require.NoError(t, err)
		d, err := payment.UnmarshalEvent(eventType, payload)
		require.NoError(t, err)
		decoded = append(decoded, d)
	}

	replayed, err := payment.Replay(decoded)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), replayed.ID())
	assert.Equal(t, payment.StateReserved, replayed.State())
	require.NotNil(t, replayed.ReservationID())
	assert.Equal(t, *original.ReservationID(), *replayed.ReservationID())
}

func TestUnmarshalEvent_UnknownType(t *testing.T) {
	_, err := payment.UnmarshalEvent("payment.exploded", []byte(`{}`))
	assert.Error(t, err)
}
