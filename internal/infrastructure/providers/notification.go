package providers

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// MockNotifier logs the notification instead of delivering it.
type MockNotifier struct {
	logger      zerolog.Logger
	latency     time.Duration
	failureRate float64
}

type MockNotifierOption func(*MockNotifier)

func WithNotifierLatency(d time.Duration) MockNotifierOption {
	return func(n *MockNotifier) { n.latency = d }
}

func WithNotifierFailureRate(rate float64) MockNotifierOption {
	return func(n *MockNotifier) { n.failureRate = rate }
}

func NewMockNotifier(logger zerolog.Logger, opts ...MockNotifierOption) *MockNotifier {
	n := &MockNotifier{
		logger:  logger,
		latency: 10 * time.Millisecond,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *MockNotifier) Notify(ctx context.Context, paymentID payment.PaymentID, channel string) error {
	select {
	case <-time.After(n.latency):
	case <-ctx.Done():
		return ctx.Err()
	}

	if rand.Float64() < n.failureRate {
		return domainErrors.ErrExternalCallTimeout
	}

	n.logger.Info().
		Str("payment_id", paymentID.String()).
		Str("channel", channel).
		Msg("settlement notification delivered")
	return nil
}
