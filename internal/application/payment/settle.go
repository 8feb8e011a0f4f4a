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

// SettleCommand asks for final settlement of a journaled payment. A zero
// Amount settles the full payment amount; a smaller amount is a partial
// settlement flagged for reconciliation.
type SettleCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
	Channel        string
	Amount         payment.Money
}

// SettleHandler settles the payment through the settlement port and records
// PaymentSettled.
type SettleHandler struct {
	mutator
	settlement SettlementPort
}

// NewSettleHandler creates a SettleHandler.
func NewSettleHandler(store eventstore.Store, settlement SettlementPort, retryCfg retry.Config, logger zerolog.Logger) *SettleHandler {
	return &SettleHandler{
		mutator:    mutator{store: store, retryCfg: retryCfg, logger: logger},
		settlement: settlement,
	}
}

// Execute settles the payment. Settlement gateway failures surface as step
// failures for the saga to compensate, never as faults.
func (h *SettleHandler) Execute(ctx context.Context, cmd SettleCommand) (Result, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}, nil
	}
	if p.State() == payment.StateSettled {
		return duplicate(cmd.CorrelationID, p), nil
	}

	amount := cmd.Amount
	if amount.ValueMinor == 0 {
		amount = p.Amount()
	}
	if amount.GreaterThan(p.Amount()) || amount.Currency != p.Amount().Currency {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeRejected, Reason: errors.ErrSettlementExceedsReserved.Error()}, nil
	}

	res, err := h.settlement.Settle(ctx, p.ID(), amount)
	if err != nil {
		h.logger.Warn().Err(err).Str("payment_id", cmd.PaymentID.String()).Msg("settlement call failed")
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeFailed, Reason: err.Error()}, nil
	}
	if !res.Succeeded {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeFailed, Reason: res.Reason}, nil
	}

	channel := cmd.Channel
	if channel == "" {
		channel = "internal"
	}
	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.State() == payment.StateSettled {
			return nil
		}
		return p.Settle(channel, res.ExternalRef, amount)
	})
	if err != nil {
		return classify(cmd.CorrelationID, err)
	}
	return success(cmd.CorrelationID, updated), nil
}
