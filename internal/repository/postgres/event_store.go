package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// EventStore implements the event stream port on PostgreSQL. The primary
// key (stream_id, version) makes concurrent appends at the same expected
// version collide: exactly one writer wins, the loser gets
// ErrConcurrencyConflict.
type EventStore struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewEventStore creates an EventStore.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool, tx: NewTxManager(pool)}
}

func (s *EventStore) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, s.pool)
}

// Append writes the events at expectedVersion+1..+len(events) in one
// transaction, so a partial append is never observable.
func (s *EventStore) Append(ctx context.Context, streamID payment.PaymentID, expectedVersion int, events []payment.Event) error {
	if len(events) == 0 {
		return nil
	}

	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for i, e := range events {
			eventType, payload, err := payment.MarshalEvent(e)
			if err != nil {
				return err
			}

			_, err = s.db(ctx).Exec(ctx,
				`INSERT INTO payment_events (stream_id, version, event_type, payload, occurred_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				streamID.UUID(), expectedVersion+i+1, eventType, payload, e.OccurredAt(),
			)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return domainErrors.ErrConcurrencyConflict
				}
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return nil
	})
}

// Load returns the stream in version order, empty if the stream is absent.
func (s *EventStore) Load(ctx context.Context, streamID payment.PaymentID) ([]payment.Event, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT event_type, payload FROM payment_events
		 WHERE stream_id = $1 ORDER BY version`,
		streamID.UUID(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []payment.Event
	for rows.Next() {
		var eventType string
		var payload []byte
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := payment.UnmarshalEvent(eventType, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
