package payment

import (
	"github.com/vhorak/payflow/internal/domain/errors"
)

// LedgerEntry is one matched debit/credit pair recording a financial
// movement. The debit and credit legs always carry the same amount, so a
// single entry is balanced by construction; ValidateEntries guards the
// journal as a whole.
type LedgerEntry struct {
	EntryID         LedgerEntryID `json:"entry_id"`
	PaymentID       PaymentID     `json:"payment_id"`
	DebitAccountID  AccountID     `json:"debit_account_id"`
	CreditAccountID AccountID     `json:"credit_account_id"`
	Amount          Money         `json:"amount"`
	ReversalOf      *LedgerEntryID `json:"reversal_of,omitempty"`
}

// NewLedgerEntry creates a balanced debit/credit pair for a payment.
func NewLedgerEntry(paymentID PaymentID, debit, credit AccountID, amount Money) LedgerEntry {
	return LedgerEntry{
		EntryID:         NewLedgerEntryID(),
		PaymentID:       paymentID,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          amount,
	}
}

// Reverse produces an offsetting entry that undoes this one.
func (e LedgerEntry) Reverse() LedgerEntry {
	id := e.EntryID
	return LedgerEntry{
		EntryID:         NewLedgerEntryID(),
		PaymentID:       e.PaymentID,
		DebitAccountID:  e.CreditAccountID,
		CreditAccountID: e.DebitAccountID,
		Amount:          e.Amount,
		ReversalOf:      &id,
	}
}

// ValidateEntries checks the journal invariant for one PaymentJournaled
// event: entries are non-empty, every entry carries a positive amount in a
// single currency, and no entry debits and credits the same account. An
// entry pairs its debit and credit legs at the same amount, so the sum of
// debits equals the sum of credits whenever each entry is well-formed.
func ValidateEntries(entries []LedgerEntry) error {
	if len(entries) == 0 {
		return errors.ErrEmptyJournal
	}

	currency := entries[0].Amount.Currency
	for _, e := range entries {
		if err := e.Amount.EnsurePositive(); err != nil {
			return err
		}
		if e.Amount.Currency != currency {
			return errors.ErrUnbalancedJournal
		}
		if e.DebitAccountID == e.CreditAccountID {
			return errors.ErrUnbalancedJournal
		}
	}
	return nil
}
