package payment

import (
	"context"
	"time"

	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/eventstore"
)

// PaymentView is the reconstructed read model for one payment.
type PaymentView struct {
	ID                    payment.PaymentID
	Amount                payment.Money
	PayerAccountID        payment.AccountID
	PayeeAccountID        payment.AccountID
	Reference             string
	State                 payment.State
	ReservationID         *payment.ReservationID
	ReconciliationFlagged bool
	Version               int
	RequestedAt           time.Time
	UpdatedAt             time.Time
	SettledAt             *time.Time
}

// GetPaymentQuery reconstructs a payment's current state from its stream.
type GetPaymentQuery struct {
	store eventstore.Store
}

// NewGetPaymentQuery creates a GetPaymentQuery.
func NewGetPaymentQuery(store eventstore.Store) *GetPaymentQuery {
	return &GetPaymentQuery{store: store}
}

// Execute returns the payment view, or ErrPaymentNotFound.
func (q *GetPaymentQuery) Execute(ctx context.Context, id payment.PaymentID) (*PaymentView, error) {
	events, err := q.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.ErrPaymentNotFound
	}
	p, err := payment.Replay(events)
	if err != nil {
		return nil, err
	}

	view := &PaymentView{
		ID:                    p.ID(),
		Amount:                p.Amount(),
		PayerAccountID:        p.PayerAccountID(),
		PayeeAccountID:        p.PayeeAccountID(),
		Reference:             p.Reference(),
		State:                 p.State(),
		ReservationID:         p.ReservationID(),
		ReconciliationFlagged: p.ReconciliationFlagged(),
		Version:               p.Version(),
		RequestedAt:           p.RequestedAt(),
		UpdatedAt:             p.UpdatedAt(),
	}
	for _, e := range events {
		if settled, ok := e.(payment.PaymentSettled); ok {
			at := settled.At
			view.SettledAt = &at
		}
	}
	return view, nil
}
