package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
)

// Repository persists saga instances. Implementations must enforce the
// uniqueness invariant: at most one saga per idempotency key.
type Repository interface {
	// Create inserts a new instance; fails with
	// errors.ErrDuplicateIdempotencyKey when the key is already taken.
	Create(ctx context.Context, in *saga.Instance) error

	// GetByCorrelationID returns the instance, or nil if absent.
	GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*saga.Instance, error)

	// GetByIdempotencyKey returns the instance, or nil if absent.
	GetByIdempotencyKey(ctx context.Context, key string) (*saga.Instance, error)

	// GetByPaymentID returns the instance driving the payment, or nil.
	GetByPaymentID(ctx context.Context, paymentID payment.PaymentID) (*saga.Instance, error)

	// Update persists the instance's current state.
	Update(ctx context.Context, in *saga.Instance) error

	// ListExpired returns running instances whose active deadline passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error)

	// ListStalledCompensations returns compensating instances not touched
	// since the cutoff, so an interrupted compensation can be re-driven.
	ListStalledCompensations(ctx context.Context, cutoff time.Time, limit int) ([]*saga.Instance, error)
}

// CommandPublisher hands a step command to the transport that delivers it to
// a worker.
type CommandPublisher interface {
	Publish(ctx context.Context, cmd saga.Command) error
}
