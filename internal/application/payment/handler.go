// Package payment holds the command handlers that load the aggregate,
// validate preconditions, invoke the domain operation, and persist the
// resulting events idempotently. Every handler follows the same contract:
// structured results the saga can branch on, never business errors escaping
// as faults.
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

// Result is the structured outcome every command handler returns.
type Result struct {
	CorrelationID uuid.UUID
	Outcome       saga.Outcome
	State         payment.State
	ReservationID *payment.ReservationID
	Reason        string
}

// mutator bundles the load→modify→append path shared by all handlers.
// Concurrency conflicts are retried with bounded backoff by reloading the
// aggregate and re-applying the domain operation.
type mutator struct {
	store    eventstore.Store
	retryCfg retry.Config
	logger   zerolog.Logger
}

// update loads the aggregate, applies fn, and saves. Only
// ErrConcurrencyConflict is retried; every other error aborts immediately.
func (m *mutator) update(ctx context.Context, id payment.PaymentID, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	var p *payment.Payment
	err := retry.DoOn(ctx, m.retryCfg, func() error {
		loaded, err := eventstore.LoadPayment(ctx, m.store, id)
		if err != nil {
			return err
		}
		if loaded == nil {
			return errors.ErrPaymentNotFound
		}
		if err := fn(loaded); err != nil {
			return err
		}
		if err := eventstore.SavePayment(ctx, m.store, loaded); err != nil {
			return err
		}
		p = loaded
		return nil
	}, errors.ErrConcurrencyConflict)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// classify maps a handler error to a structured result. Unexpected faults
// are returned as-is so they surface to the operator instead of silently
// becoming saga branches.
func classify(correlationID uuid.UUID, err error) (Result, error) {
	switch {
	case stderrors.Is(err, errors.ErrPaymentNotFound):
		return Result{CorrelationID: correlationID, Outcome: saga.OutcomeNotFound, Reason: err.Error()}, nil
	case stderrors.Is(err, errors.ErrInvalidStateTransition),
		stderrors.Is(err, errors.ErrCannotCancelSettledPayment),
		stderrors.Is(err, errors.ErrEmptyJournal),
		stderrors.Is(err, errors.ErrUnbalancedJournal),
		stderrors.Is(err, errors.ErrSettlementExceedsReserved):
		return Result{CorrelationID: correlationID, Outcome: saga.OutcomeRejected, Reason: err.Error()}, nil
	case stderrors.Is(err, errors.ErrConcurrencyConflict):
		// Retries exhausted: escalate as a step failure, not a fault.
		return Result{CorrelationID: correlationID, Outcome: saga.OutcomeFailed, Reason: err.Error()}, nil
	default:
		return Result{}, err
	}
}

func success(correlationID uuid.UUID, p *payment.Payment) Result {
	return Result{
		CorrelationID: correlationID,
		Outcome:       saga.OutcomeSucceeded,
		State:         p.State(),
		ReservationID: p.ReservationID(),
	}
}

func duplicate(correlationID uuid.UUID, p *payment.Payment) Result {
	return Result{
		CorrelationID: correlationID,
		Outcome:       saga.OutcomeDuplicate,
		State:         p.State(),
		ReservationID: p.ReservationID(),
	}
}
