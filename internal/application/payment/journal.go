package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/eventstore"
	"github.com/vhorak/payflow/pkg/retry"
)

// JournalCommand asks for the payment's debit/credit entries to be written.
type JournalCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
}

// JournalHandler writes the ledger entries and records PaymentJournaled.
type JournalHandler struct {
	mutator
	ledger LedgerPort
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(store eventstore.Store, ledger LedgerPort, retryCfg retry.Config, logger zerolog.Logger) *JournalHandler {
	return &JournalHandler{
		mutator: mutator{store: store, retryCfg: retryCfg, logger: logger},
		ledger:  ledger,
	}
}

// Execute journals the payment. A payment already Journaled (or beyond, at
// Settled) returns a duplicate-success.
func (h *JournalHandler) Execute(ctx context.Context, cmd JournalCommand) (Result, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}, nil
	}
	if p.State() == payment.StateJournaled || p.State() == payment.StateSettled {
		return duplicate(cmd.CorrelationID, p), nil
	}

	entries, err := h.ledger.Journal(ctx, p.ID(), p.PayerAccountID(), p.PayeeAccountID(), p.Amount())
	if err != nil {
		h.logger.Warn().Err(err).Str("payment_id", cmd.PaymentID.String()).Msg("ledger journal call failed")
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeFailed, Reason: err.Error()}, nil
	}

	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.State() == payment.StateJournaled {
			return nil
		}
		return p.Journal(entries)
	})
	if err != nil {
		return classify(cmd.CorrelationID, err)
	}
	return success(cmd.CorrelationID, updated), nil
}
