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

// CancelCommand asks for caller-initiated cancellation. Force is reserved
// for authorized callers and permits cancelling a settled payment.
type CancelCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
	CancelledBy    string
	Force          bool
}

// CancelHandler declines a payment on behalf of a caller.
type CancelHandler struct {
	mutator
}

// NewCancelHandler creates a CancelHandler.
func NewCancelHandler(store eventstore.Store, retryCfg retry.Config, logger zerolog.Logger) *CancelHandler {
	return &CancelHandler{mutator: mutator{store: store, retryCfg: retryCfg, logger: logger}}
}

// Execute cancels the payment. An already-declined payment returns a
// duplicate-success; cancelling a settled payment without the force flag
// is rejected with CannotCancelSettledPayment.
func (h *CancelHandler) Execute(ctx context.Context, cmd CancelCommand) (Result, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}, nil
	}
	if p.State() == payment.StateDeclined {
		return duplicate(cmd.CorrelationID, p), nil
	}

	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.State() == payment.StateDeclined {
			return nil
		}
		return p.Cancel(cmd.CancelledBy, cmd.Force)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrCannotCancelSettledPayment) {
			return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeRejected, Reason: err.Error()}, nil
		}
		return classify(cmd.CorrelationID, err)
	}
	return success(cmd.CorrelationID, updated), nil
}
