package payment

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/eventstore"
	"github.com/vhorak/payflow/pkg/retry"
)

// ReserveFundsCommand asks for a hold on the payer account.
type ReserveFundsCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
}

// ReserveFundsHandler places a fund reservation and records FundsReserved.
type ReserveFundsHandler struct {
	mutator
	funds FundsReservationPort
}

// NewReserveFundsHandler creates a ReserveFundsHandler.
func NewReserveFundsHandler(store eventstore.Store, funds FundsReservationPort, retryCfg retry.Config, logger zerolog.Logger) *ReserveFundsHandler {
	return &ReserveFundsHandler{
		mutator: mutator{store: store, retryCfg: retryCfg, logger: logger},
		funds:   funds,
	}
}

// Execute reserves funds for the payment. Re-delivery is detected by the
// aggregate already being Reserved and returns a duplicate-success carrying
// the existing reservation.
func (h *ReserveFundsHandler) Execute(ctx context.Context, cmd ReserveFundsCommand) (Result, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}, nil
	}
	if p.State() == payment.StateReserved {
		return duplicate(cmd.CorrelationID, p), nil
	}

	reservationID, err := h.funds.Reserve(ctx, p.PayerAccountID(), p.Amount())
	if err != nil {
		if stderrors.Is(err, errors.ErrInsufficientFunds) {
			return h.recordReservationFailure(ctx, cmd, err.Error())
		}
		// Transient accounts-service failure after the adapter's own
		// retries: escalate to the saga as a step failure.
		h.logger.Warn().Err(err).Str("payment_id", cmd.PaymentID.String()).Msg("fund reservation call failed")
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeFailed, Reason: err.Error()}, nil
	}

	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.State() == payment.StateReserved {
			return nil
		}
		return p.ReserveFunds(reservationID)
	})
	if err != nil {
		// The hold was placed but could not be recorded; release it so no
		// funds stay locked behind a lost reservation.
		if relErr := h.funds.Release(ctx, reservationID); relErr != nil {
			h.logger.Error().Err(relErr).Str("reservation_id", reservationID.String()).Msg("failed to release orphaned reservation")
		}
		return classify(cmd.CorrelationID, err)
	}
	return success(cmd.CorrelationID, updated), nil
}

// recordReservationFailure appends FundsReservationFailed without changing
// state; the orchestrator decides between retry and decline.
func (h *ReserveFundsHandler) recordReservationFailure(ctx context.Context, cmd ReserveFundsCommand, reason string) (Result, error) {
	_, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		return p.FailReservation(reason)
	})
	if err != nil {
		return classify(cmd.CorrelationID, err)
	}
	return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeRejected, Reason: reason}, nil
}
