package providers

import (
	"context"
	"math/rand"
	"sync"
	"time"

	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// MockAccountsService simulates the accounts service that places and
// releases holds. Balances and holds live in memory, guarded by one mutex,
// so each reserve/release is atomic per process.
type MockAccountsService struct {
	mu             sync.Mutex
	balances       map[payment.AccountID]int64
	holds          map[payment.ReservationID]hold
	defaultBalance int64
	latency        time.Duration
	failureRate    float64
}

type hold struct {
	account payment.AccountID
	amount  int64
}

type MockAccountsOption func(*MockAccountsService)

func WithAccountsLatency(d time.Duration) MockAccountsOption {
	return func(s *MockAccountsService) { s.latency = d }
}

func WithAccountsFailureRate(rate float64) MockAccountsOption {
	return func(s *MockAccountsService) { s.failureRate = rate }
}

// WithBalance seeds a specific account balance in minor units.
func WithBalance(account payment.AccountID, minor int64) MockAccountsOption {
	return func(s *MockAccountsService) { s.balances[account] = minor }
}

// WithDefaultBalance sets the balance granted to accounts never seen
// before.
func WithDefaultBalance(minor int64) MockAccountsOption {
	return func(s *MockAccountsService) { s.defaultBalance = minor }
}

func NewMockAccountsService(opts ...MockAccountsOption) *MockAccountsService {
	s := &MockAccountsService{
		balances:       make(map[payment.AccountID]int64),
		holds:          make(map[payment.ReservationID]hold),
		defaultBalance: 1_000_000_00,
		latency:        20 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MockAccountsService) Reserve(ctx context.Context, accountID payment.AccountID, amount payment.Money) (payment.ReservationID, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return payment.ReservationID{}, ctx.Err()
	}

	if rand.Float64() < s.failureRate {
		return payment.ReservationID{}, domainErrors.ErrExternalCallTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		balance = s.defaultBalance
		s.balances[accountID] = balance
	}

	var held int64
	for _, h := range s.holds {
		if h.account == accountID {
			held += h.amount
		}
	}
	if balance-held < amount.ValueMinor {
		return payment.ReservationID{}, domainErrors.ErrInsufficientFunds
	}

	id := payment.NewReservationID()
	s.holds[id] = hold{account: accountID, amount: amount.ValueMinor}
	return id, nil
}

func (s *MockAccountsService) Release(ctx context.Context, reservationID payment.ReservationID) error {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holds[reservationID]; !ok {
		return domainErrors.ErrReservationNotFound
	}
	delete(s.holds, reservationID)
	return nil
}

// Held reports the total amount currently held for an account.
func (s *MockAccountsService) Held(accountID payment.AccountID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var held int64
	for _, h := range s.holds {
		if h.account == accountID {
			held += h.amount
		}
	}
	return held
}
