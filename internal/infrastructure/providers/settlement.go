package providers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// MockSettlementRail simulates the external settlement channel.
type MockSettlementRail struct {
	name        string
	latency     time.Duration
	failureRate float64
	timeoutRate float64
}

type MockSettlementOption func(*MockSettlementRail)

func WithSettlementLatency(d time.Duration) MockSettlementOption {
	return func(s *MockSettlementRail) { s.latency = d }
}

// WithSettlementFailureRate sets the rate of business declines from the
// rail.
func WithSettlementFailureRate(rate float64) MockSettlementOption {
	return func(s *MockSettlementRail) { s.failureRate = rate }
}

// WithSettlementTimeoutRate sets the rate of transport-level failures.
func WithSettlementTimeoutRate(rate float64) MockSettlementOption {
	return func(s *MockSettlementRail) { s.timeoutRate = rate }
}

func NewMockSettlementRail(name string, opts ...MockSettlementOption) *MockSettlementRail {
	s := &MockSettlementRail{
		name:    name,
		latency: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MockSettlementRail) Settle(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < s.timeoutRate {
		return nil, domainErrors.ErrSettlementUnavailable
	}
	if rand.Float64() < s.failureRate {
		return &app.SettlementResult{
			Succeeded: false,
			Reason:    fmt.Sprintf("%s: simulated settlement decline for payment %s", s.name, paymentID.String()),
		}, nil
	}

	return &app.SettlementResult{
		Succeeded:   true,
		ExternalRef: fmt.Sprintf("%s_txn_%s", s.name, uuid.New().String()[:8]),
	}, nil
}
