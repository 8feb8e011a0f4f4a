package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// LedgerRepository writes matched debit/credit entries to PostgreSQL. It
// implements the application's ledger port. Journal and Reverse are both
// idempotent per payment: a re-delivered command finds the existing entries
// and returns them unchanged.
type LedgerRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewLedgerRepository creates a LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool, tx: NewTxManager(pool)}
}

func (r *LedgerRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Journal writes a balanced debit/credit pair for the payment.
func (r *LedgerRepository) Journal(ctx context.Context, paymentID payment.PaymentID, debit, credit payment.AccountID, amount payment.Money) ([]payment.LedgerEntry, error) {
	var out []payment.LedgerEntry
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.entriesFor(ctx, paymentID, false)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			out = existing
			return nil
		}

		entry := payment.NewLedgerEntry(paymentID, debit, credit, amount)
		if err := r.insert(ctx, entry); err != nil {
			return err
		}
		out = []payment.LedgerEntry{entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reverse writes offsetting entries undoing the payment's journal.
func (r *LedgerRepository) Reverse(ctx context.Context, paymentID payment.PaymentID) ([]payment.LedgerEntry, error) {
	var out []payment.LedgerEntry
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		reversals, err := r.entriesFor(ctx, paymentID, true)
		if err != nil {
			return err
		}
		if len(reversals) > 0 {
			out = reversals
			return nil
		}

		originals, err := r.entriesFor(ctx, paymentID, false)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return domainErrors.ErrEmptyJournal
		}

		for _, e := range originals {
			rev := e.Reverse()
			if err := r.insert(ctx, rev); err != nil {
				return err
			}
			out = append(out, rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LedgerRepository) insert(ctx context.Context, e payment.LedgerEntry) error {
	var reversalOf *uuid.UUID
	if e.ReversalOf != nil {
		id := e.ReversalOf.UUID()
		reversalOf = &id
	}

	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO ledger_entries
		 (entry_id, payment_id, debit_account_id, credit_account_id, amount_minor, currency, reversal_of)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.EntryID.UUID(), e.PaymentID.UUID(), e.DebitAccountID.UUID(), e.CreditAccountID.UUID(),
		e.Amount.ValueMinor, e.Amount.Currency, reversalOf,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) entriesFor(ctx context.Context, paymentID payment.PaymentID, reversals bool) ([]payment.LedgerEntry, error) {
	cond := "reversal_of IS NULL"
	if reversals {
		cond = "reversal_of IS NOT NULL"
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT entry_id, payment_id, debit_account_id, credit_account_id, amount_minor, currency, reversal_of
		 FROM ledger_entries WHERE payment_id = $1 AND `+cond+` ORDER BY created_at`,
		paymentID.UUID(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []payment.LedgerEntry
	for rows.Next() {
		var (
			e          payment.LedgerEntry
			entryID    uuid.UUID
			payID      uuid.UUID
			debitID    uuid.UUID
			creditID   uuid.UUID
			reversalOf *uuid.UUID
		)
		if err := rows.Scan(&entryID, &payID, &debitID, &creditID, &e.Amount.ValueMinor, &e.Amount.Currency, &reversalOf); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.EntryID = payment.LedgerEntryIDFrom(entryID)
		e.PaymentID = payment.PaymentIDFrom(payID)
		e.DebitAccountID = payment.AccountIDFrom(debitID)
		e.CreditAccountID = payment.AccountIDFrom(creditID)
		if reversalOf != nil {
			id := payment.LedgerEntryIDFrom(*reversalOf)
			e.ReversalOf = &id
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}
