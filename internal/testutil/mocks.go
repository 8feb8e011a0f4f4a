package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	app "github.com/vhorak/payflow/internal/application/payment"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
)

// --- Saga Repository Mock ---

// MockSagaRepository is an in-memory saga store with per-method override
// hooks.
type MockSagaRepository struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*saga.Instance
	byCorr map[uuid.UUID]*saga.Instance
	byKey  map[string]*saga.Instance

	CreateFunc func(ctx context.Context, in *saga.Instance) error
	UpdateFunc func(ctx context.Context, in *saga.Instance) error
}

func NewMockSagaRepository() *MockSagaRepository {
	return &MockSagaRepository{
		byID:   make(map[uuid.UUID]*saga.Instance),
		byCorr: make(map[uuid.UUID]*saga.Instance),
		byKey:  make(map[string]*saga.Instance),
	}
}

func (m *MockSagaRepository) Create(ctx context.Context, in *saga.Instance) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[in.IdempotencyKey]; ok {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	cp := *in
	m.byID[in.SagaID] = &cp
	m.byCorr[in.CorrelationID] = &cp
	m.byKey[in.IdempotencyKey] = &cp
	return nil
}

func (m *MockSagaRepository) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.byCorr[correlationID]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

func (m *MockSagaRepository) GetByIdempotencyKey(ctx context.Context, key string) (*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

func (m *MockSagaRepository) GetByPaymentID(ctx context.Context, paymentID payment.PaymentID) (*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.byID {
		if in.PaymentID == paymentID {
			cp := *in
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockSagaRepository) Update(ctx context.Context, in *saga.Instance) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[in.SagaID]
	if !ok {
		return domainErrors.ErrSagaNotFound
	}
	*stored = *in
	return nil
}

func (m *MockSagaRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*saga.Instance
	for _, in := range m.byID {
		if in.Expired(now) {
			cp := *in
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockSagaRepository) ListStalledCompensations(ctx context.Context, cutoff time.Time, limit int) ([]*saga.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*saga.Instance
	for _, in := range m.byID {
		if in.Status == saga.StatusCompensating && in.UpdatedAt.Before(cutoff) {
			cp := *in
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// --- Command Publisher Mock ---

// MockPublisher records published commands in order.
type MockPublisher struct {
	mu       sync.Mutex
	commands []saga.Command

	PublishFunc func(ctx context.Context, cmd saga.Command) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, cmd saga.Command) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, cmd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
	return nil
}

// Commands returns all published commands.
func (m *MockPublisher) Commands() []saga.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]saga.Command(nil), m.commands...)
}

// Pop removes and returns the oldest published command, or false when the
// queue is empty.
func (m *MockPublisher) Pop() (saga.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return saga.Command{}, false
	}
	cmd := m.commands[0]
	m.commands = m.commands[1:]
	return cmd, true
}

// --- Port Mocks ---

// MockCompliance screens with a fixed verdict unless ScreenFunc overrides
// it.
type MockCompliance struct {
	Verdict    app.ScreeningResult
	ScreenFunc func(ctx context.Context, req app.ScreeningRequest) (*app.ScreeningResult, error)

	mu    sync.Mutex
	calls int
}

func (m *MockCompliance) Screen(ctx context.Context, req app.ScreeningRequest) (*app.ScreeningResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ScreenFunc != nil {
		return m.ScreenFunc(ctx, req)
	}
	v := m.Verdict
	return &v, nil
}

func (m *MockCompliance) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockFunds reserves successfully unless ReserveFunc/ReleaseFunc override.
type MockFunds struct {
	ReserveFunc func(ctx context.Context, accountID payment.AccountID, amount payment.Money) (payment.ReservationID, error)
	ReleaseFunc func(ctx context.Context, reservationID payment.ReservationID) error

	mu       sync.Mutex
	reserves int
	releases []payment.ReservationID
}

func (m *MockFunds) Reserve(ctx context.Context, accountID payment.AccountID, amount payment.Money) (payment.ReservationID, error) {
	m.mu.Lock()
	m.reserves++
	m.mu.Unlock()
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, accountID, amount)
	}
	return payment.NewReservationID(), nil
}

func (m *MockFunds) Release(ctx context.Context, reservationID payment.ReservationID) error {
	m.mu.Lock()
	m.releases = append(m.releases, reservationID)
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, reservationID)
	}
	return nil
}

func (m *MockFunds) Reserves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserves
}

func (m *MockFunds) Releases() []payment.ReservationID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.ReservationID(nil), m.releases...)
}

// MockLedger journals a single balanced entry pair per payment and records
// reversals.
type MockLedger struct {
	JournalFunc func(ctx context.Context, paymentID payment.PaymentID, debit, credit payment.AccountID, amount payment.Money) ([]payment.LedgerEntry, error)
	ReverseFunc func(ctx context.Context, paymentID payment.PaymentID) ([]payment.LedgerEntry, error)

	mu       sync.Mutex
	journals map[payment.PaymentID][]payment.LedgerEntry
	reversed []payment.PaymentID
}

func NewMockLedger() *MockLedger {
	return &MockLedger{journals: make(map[payment.PaymentID][]payment.LedgerEntry)}
}

func (m *MockLedger) Journal(ctx context.Context, paymentID payment.PaymentID, debit, credit payment.AccountID, amount payment.Money) ([]payment.LedgerEntry, error) {
	if m.JournalFunc != nil {
		return m.JournalFunc(ctx, paymentID, debit, credit, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.journals[paymentID]; ok {
		return existing, nil
	}
	entries := []payment.LedgerEntry{payment.NewLedgerEntry(paymentID, debit, credit, amount)}
	m.journals[paymentID] = entries
	return entries, nil
}

func (m *MockLedger) Reverse(ctx context.Context, paymentID payment.PaymentID) ([]payment.LedgerEntry, error) {
	if m.ReverseFunc != nil {
		return m.ReverseFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reversed = append(m.reversed, paymentID)
	originals := m.journals[paymentID]
	var reversals []payment.LedgerEntry
	for _, e := range originals {
		reversals = append(reversals, e.Reverse())
	}
	return reversals, nil
}

func (m *MockLedger) Reversed() []payment.PaymentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.PaymentID(nil), m.reversed...)
}

// MockSettlement settles successfully unless SettleFunc overrides.
type MockSettlement struct {
	SettleFunc func(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error)

	mu    sync.Mutex
	calls int
}

func (m *MockSettlement) Settle(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, paymentID, amount)
	}
	return &app.SettlementResult{Succeeded: true, ExternalRef: "mock_txn_" + uuid.New().String()[:8]}, nil
}

func (m *MockSettlement) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockNotifier records notifications.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, paymentID payment.PaymentID, channel string) error

	mu       sync.Mutex
	notified []payment.PaymentID
}

func (m *MockNotifier) Notify(ctx context.Context, paymentID payment.PaymentID, channel string) error {
	m.mu.Lock()
	m.notified = append(m.notified, paymentID)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, paymentID, channel)
	}
	return nil
}

func (m *MockNotifier) Notified() []payment.PaymentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.PaymentID(nil), m.notified...)
}
