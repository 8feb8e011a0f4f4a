package eventstore

import (
	"context"
	"sync"

	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// MemoryStore is an in-process Store used by tests and local runs. Streams
// are guarded by a single mutex, which gives the same exactly-one-winner
// semantics as the SQL implementation's version constraint.
type MemoryStore struct {
	mu      sync.Mutex
	streams map[payment.PaymentID][]payment.Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[payment.PaymentID][]payment.Event)}
}

func (s *MemoryStore) Append(ctx context.Context, streamID payment.PaymentID, expectedVersion int, events []payment.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	if len(stream) != expectedVersion {
		return errors.ErrConcurrencyConflict
	}
	s.streams[streamID] = append(stream, events...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, streamID payment.PaymentID) ([]payment.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	out := make([]payment.Event, len(stream))
	copy(out, stream)
	return out, nil
}
