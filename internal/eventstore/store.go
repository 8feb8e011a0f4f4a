// Package eventstore defines the append/load port the payment core persists
// through, plus fold helpers that turn a stream into an aggregate.
package eventstore

import (
	"context"

	"github.com/vhorak/payflow/internal/domain/payment"
)

// Store is the event stream port. Appends are all-or-nothing: a partial
// append is never observable. Two writers competing on the same expected
// version see exactly one success; the loser gets ErrConcurrencyConflict and
// is expected to reload and retry at the command-handler level.
type Store interface {
	// Append atomically appends events at expectedVersion. expectedVersion
	// is the number of events already in the stream (0 for a new stream).
	Append(ctx context.Context, streamID payment.PaymentID, expectedVersion int, events []payment.Event) error

	// Load returns the ordered event list for a stream, or an empty slice
	// if the stream does not exist.
	Load(ctx context.Context, streamID payment.PaymentID) ([]payment.Event, error)
}

// LoadPayment reconstructs a payment aggregate from its stream, or returns
// nil if the stream is absent.
func LoadPayment(ctx context.Context, s Store, id payment.PaymentID) (*payment.Payment, error) {
	events, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return payment.Replay(events)
}

// SavePayment appends the aggregate's uncommitted events at its committed
// version and clears the uncommitted list on success.
func SavePayment(ctx context.Context, s Store, p *payment.Payment) error {
	events := p.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	if err := s.Append(ctx, p.ID(), p.CommittedVersion(), events); err != nil {
		return err
	}
	p.MarkCommitted()
	return nil
}
