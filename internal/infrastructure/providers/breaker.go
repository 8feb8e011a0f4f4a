package providers

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// BreakerSettings tunes the circuit breakers guarding external calls.
type BreakerSettings struct {
	Threshold uint32
	Timeout   time.Duration
}

func newBreaker[T any](name string, s BreakerSettings) *gobreaker.CircuitBreaker[T] {
	threshold := s.Threshold
	if threshold == 0 {
		threshold = 10
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.6
		},
	})
}

// BreakerCompliance guards the compliance service with a circuit breaker.
type BreakerCompliance struct {
	inner app.ComplianceScreeningPort
	cb    *gobreaker.CircuitBreaker[*app.ScreeningResult]
}

func NewBreakerCompliance(inner app.ComplianceScreeningPort, s BreakerSettings) *BreakerCompliance {
	return &BreakerCompliance{
		inner: inner,
		cb:    newBreaker[*app.ScreeningResult]("compliance", s),
	}
}

func (b *BreakerCompliance) Screen(ctx context.Context, req app.ScreeningRequest) (*app.ScreeningResult, error) {
	return b.cb.Execute(func() (*app.ScreeningResult, error) {
		return b.inner.Screen(ctx, req)
	})
}

// BreakerSettlement guards the settlement rail with a circuit breaker. A
// business decline from the rail does not count as a breaker failure.
type BreakerSettlement struct {
	inner app.SettlementPort
	cb    *gobreaker.CircuitBreaker[*app.SettlementResult]
}

func NewBreakerSettlement(inner app.SettlementPort, s BreakerSettings) *BreakerSettlement {
	return &BreakerSettlement{
		inner: inner,
		cb:    newBreaker[*app.SettlementResult]("settlement", s),
	}
}

func (b *BreakerSettlement) Settle(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
	return b.cb.Execute(func() (*app.SettlementResult, error) {
		return b.inner.Settle(ctx, paymentID, amount)
	})
}
