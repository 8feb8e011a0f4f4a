package providers

import (
	"context"
	"sync"

	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// MemoryLedger implements the ledger port in memory, for tests and local
// development without PostgreSQL.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[payment.PaymentID][]payment.LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[payment.PaymentID][]payment.LedgerEntry)}
}

// Journal writes a balanced debit/credit pair. A payment journaled twice
// returns the existing entries unchanged.
func (l *MemoryLedger) Journal(ctx context.Context, paymentID payment.PaymentID, debit, credit payment.AccountID, amount payment.Money) ([]payment.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[paymentID]; ok {
		return existing, nil
	}

	entries := []payment.LedgerEntry{payment.NewLedgerEntry(paymentID, debit, credit, amount)}
	l.entries[paymentID] = entries
	return entries, nil
}

// Reverse writes offsetting entries for everything journaled under the
// payment. Reversing twice is a no-op returning the existing reversals.
func (l *MemoryLedger) Reverse(ctx context.Context, paymentID payment.PaymentID) ([]payment.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.entries[paymentID]
	if !ok {
		return nil, domainErrors.ErrEmptyJournal
	}

	var originals, reversals []payment.LedgerEntry
	for _, e := range existing {
		if e.ReversalOf != nil {
			reversals = append(reversals, e)
		} else {
			originals = append(originals, e)
		}
	}
	if len(reversals) > 0 {
		return reversals, nil
	}

	for _, e := range originals {
		reversals = append(reversals, e.Reverse())
	}
	l.entries[paymentID] = append(existing, reversals...)
	return reversals, nil
}

// Entries returns everything journaled under the payment.
func (l *MemoryLedger) Entries(paymentID payment.PaymentID) []payment.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]payment.LedgerEntry(nil), l.entries[paymentID]...)
}
