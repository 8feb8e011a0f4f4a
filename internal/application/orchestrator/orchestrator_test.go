package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhorak/payflow/internal/application/orchestrator"
	app "github.com/vhorak/payflow/internal/application/payment"
	domainerrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/eventstore"
	"github.com/vhorak/payflow/internal/testutil"
	"github.com/vhorak/payflow/pkg/retry"
)

var (
	testPolicy   = saga.RiskPolicy{AcceptBelow: 0.3, MonitorBelow: 0.7, BlockAt: 0.9}
	testTimeouts = saga.Timeouts{Step: 5 * time.Minute, Review: 24 * time.Hour}
	testRetryCfg = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
)

// clock is a controllable time source for deadline tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().UTC()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	sagas      *testutil.MockSagaRepository
	store      *eventstore.MemoryStore
	publisher  *testutil.MockPublisher
	compliance *testutil.MockCompliance
	funds      *testutil.MockFunds
	ledger     *testutil.MockLedger
	settlement *testutil.MockSettlement
	notifier   *testutil.MockNotifier
	clock      *clock
	orch       *orchestrator.Orchestrator
}

func newEnv(t *testing.T, timeouts saga.Timeouts) *env {
	t.Helper()
	e := &env{
		sagas:      testutil.NewMockSagaRepository(),
		store:      eventstore.NewMemoryStore(),
		publisher:  testutil.NewMockPublisher(),
		compliance: &testutil.MockCompliance{Verdict: app.ScreeningResult{Passed: true, RiskScore: 0.1, RuleSetVersion: "aml-rules-2026.1"}},
		funds:      &testutil.MockFunds{},
		ledger:     testutil.NewMockLedger(),
		settlement: &testutil.MockSettlement{},
		notifier:   &testutil.MockNotifier{},
		clock:      newClock(),
	}

	logger := zerolog.Nop()
	handlers := orchestrator.Handlers{
		Screen:  app.NewScreenHandler(e.store, e.compliance, testPolicy, testRetryCfg, logger),
		Reserve: app.NewReserveFundsHandler(e.store, e.funds, testRetryCfg, logger),
		Journal: app.NewJournalHandler(e.store, e.ledger, testRetryCfg, logger),
		Settle:  app.NewSettleHandler(e.store, e.settlement, testRetryCfg, logger),
		Notify:  app.NewNotifyHandler(e.store, e.notifier, testRetryCfg, logger),
		Cancel:  app.NewCancelHandler(e.store, testRetryCfg, logger),
	}
	e.orch = orchestrator.New(
		e.sagas, e.store, e.publisher, handlers,
		e.funds, e.ledger, testPolicy, timeouts, testRetryCfg, logger,
	).WithClock(e.clock.Now)
	return e
}

func initiateRequest(key string) orchestrator.InitiateRequest {
	return orchestrator.InitiateRequest{
		Amount:         testutil.CZK(250000),
		PayerAccountID: payment.NewAccountID(),
		PayeeAccountID: payment.NewAccountID(),
		Reference:      "invoice 2026-001",
		IdempotencyKey: key,
	}
}

// drain processes published commands until the queue is empty, the way the
// worker loop would.
func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		cmd, ok := e.publisher.Pop()
		if !ok {
			return
		}
		require.NoError(t, e.orch.HandleCommand(ctx, cmd))
	}
	t.Fatal("command queue did not drain")
}

func (e *env) loadPayment(t *testing.T, id payment.PaymentID) *payment.Payment {
	t.Helper()
	p, err := eventstore.LoadPayment(context.Background(), e.store, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestOrchestrator_HappyPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-happy"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, saga.StatusRunning, res.Status)

	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
	assert.False(t, view.EnhancedAudit)
	require.NotNil(t, view.CompletedAt)

	p := e.loadPayment(t, res.PaymentID)
	assert.Equal(t, payment.StateSettled, p.State())
	assert.True(t, p.Notified())

	assert.Equal(t, 1, e.funds.Reserves())
	assert.Empty(t, e.funds.Releases())
	assert.Empty(t, e.ledger.Reversed())
	assert.Len(t, e.notifier.Notified(), 1)
}

func TestOrchestrator_MonitorBandCompletesWithEnhancedAudit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.compliance.Verdict = app.ScreeningResult{Passed: true, RiskScore: 0.5, RuleSetVersion: "aml-rules-2026.1"}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-monitor"))
	require.NoError(t, err)
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
	assert.True(t, view.EnhancedAudit)
	assert.Equal(t, payment.StateSettled, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_HighRiskDeclinedWithoutReservation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.compliance.Verdict = app.ScreeningResult{Passed: false, RiskScore: 0.95}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-blocked"))
	require.NoError(t, err)
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.NotEmpty(t, view.FailureReason)

	p := e.loadPayment(t, res.PaymentID)
	assert.Equal(t, payment.StateDeclined, p.State())

	// Funds were never touched.
	assert.Equal(t, 0, e.funds.Reserves())
	events, err := e.store.Load(ctx, res.PaymentID)
	require.NoError(t, err)
	for _, ev := range events {
		_, reserved := ev.(payment.FundsReserved)
		assert.False(t, reserved)
	}
}

func TestOrchestrator_InsufficientFundsDeclines(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.funds.ReserveFunc = func(ctx context.Context, accountID payment.AccountID, amount payment.Money) (payment.ReservationID, error) {
		return payment.ReservationID{}, domainerrors.ErrInsufficientFunds
	}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-nofunds"))
	require.NoError(t, err)
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Equal(t, payment.StateDeclined, e.loadPayment(t, res.PaymentID).State())

	// Nothing to undo: no hold was placed and no journal written.
	assert.Empty(t, e.funds.Releases())
	assert.Empty(t, e.ledger.Reversed())
}

func TestOrchestrator_SettlementFailureCompensates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.settlement.SettleFunc = func(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
		return &app.SettlementResult{Succeeded: false, Reason: "settlement rail declined"}, nil
	}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-settle-fail"))
	require.NoError(t, err)
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Equal(t, "settlement rail declined", view.FailureReason)

	// Journal reversed, hold released, payment failed technically.
	p := e.loadPayment(t, res.PaymentID)
	assert.Equal(t, payment.StateFailed, p.State())
	assert.Equal(t, []payment.PaymentID{res.PaymentID}, e.ledger.Reversed())
	require.Len(t, e.funds.Releases(), 1)
	require.NotNil(t, p.ReservationID())
	assert.Equal(t, *p.ReservationID(), e.funds.Releases()[0])
}

func TestOrchestrator_Initiate_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	first, err := e.orch.Initiate(ctx, initiateRequest("key-dup"))
	require.NoError(t, err)
	assert.Len(t, e.publisher.Commands(), 1)

	second, err := e.orch.Initiate(ctx, initiateRequest("key-dup"))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	// No second workflow was started.
	assert.Len(t, e.publisher.Commands(), 1)
}

func TestOrchestrator_Initiate_EmptyIdempotencyKey(t *testing.T) {
	e := newEnv(t, testTimeouts)
	_, err := e.orch.Initiate(context.Background(), initiateRequest(""))
	require.Error(t, err)
	var ve *domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestOrchestrator_ManualReview_Approve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.compliance.Verdict = app.ScreeningResult{Passed: true, RiskScore: 0.8, Flags: []string{"pattern-match"}, RuleSetVersion: "aml-rules-2026.1"}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-review-ok"))
	require.NoError(t, err)
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StepManualReview, view.CurrentStep)
	assert.Equal(t, saga.StatusRunning, view.Status)
	assert.Equal(t, payment.StateFlagged, e.loadPayment(t, res.PaymentID).State())

	require.NoError(t, e.orch.ApplyReviewDecision(ctx, res.CorrelationID, true, "analyst"))
	e.drain(t)

	view, err = e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
	assert.Equal(t, payment.StateSettled, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_ManualReview_Deny(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.compliance.Verdict = app.ScreeningResult{Passed: true, RiskScore: 0.8, RuleSetVersion: "aml-rules-2026.1"}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-review-no"))
	require.NoError(t, err)
	e.drain(t)

	require.NoError(t, e.orch.ApplyReviewDecision(ctx, res.CorrelationID, false, "analyst"))
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Contains(t, view.FailureReason, "manual review declined by analyst")
	assert.Equal(t, payment.StateDeclined, e.loadPayment(t, res.PaymentID).State())
	assert.Equal(t, 0, e.funds.Reserves())
}

func TestOrchestrator_ApplyReviewDecision_Guards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	err := e.orch.ApplyReviewDecision(ctx, uuid.New(), true, "analyst")
	assert.ErrorIs(t, err, domainerrors.ErrSagaNotFound)

	// A saga not suspended on review refuses the decision.
	res, err := e.orch.Initiate(ctx, initiateRequest("key-guards"))
	require.NoError(t, err)
	err = e.orch.ApplyReviewDecision(ctx, res.CorrelationID, true, "analyst")
	assert.ErrorIs(t, err, domainerrors.ErrSagaNotInReview)

	// A finished saga refuses it too.
	e.drain(t)
	err = e.orch.ApplyReviewDecision(ctx, res.CorrelationID, true, "analyst")
	assert.ErrorIs(t, err, domainerrors.ErrSagaTerminal)
}

func TestOrchestrator_SweepTimeouts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-timeout"))
	require.NoError(t, err)

	// The screen command is never delivered; the deadline passes.
	_, ok := e.publisher.Pop()
	require.True(t, ok)
	e.clock.Advance(testTimeouts.Step + time.Second)

	require.NoError(t, e.orch.SweepTimeouts(ctx, 100))
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Equal(t, "step deadline expired", view.FailureReason)
	assert.Equal(t, payment.StateDeclined, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_SweepTimeouts_NothingExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-not-expired"))
	require.NoError(t, err)

	require.NoError(t, e.orch.SweepTimeouts(ctx, 100))

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRunning, view.Status)
}

func TestOrchestrator_Cancel_InFlight(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-cancel"))
	require.NoError(t, err)
	// The screen command is in flight but not yet delivered.
	_, ok := e.publisher.Pop()
	require.True(t, ok)

	cancelRes, err := e.orch.Cancel(ctx, res.PaymentID, "customer", false)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeSucceeded, cancelRes.Outcome)

	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Contains(t, view.FailureReason, "cancelled by customer")
	assert.Equal(t, payment.StateDeclined, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_Cancel_UnknownPayment(t *testing.T) {
	e := newEnv(t, testTimeouts)
	res, err := e.orch.Cancel(context.Background(), payment.NewPaymentID(), "customer", false)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeNotFound, res.Outcome)
}

func TestOrchestrator_Cancel_SettledWithoutForce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-cancel-settled"))
	require.NoError(t, err)
	e.drain(t)

	cancelRes, err := e.orch.Cancel(ctx, res.PaymentID, "customer", false)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeRejected, cancelRes.Outcome)
	assert.Equal(t, payment.StateSettled, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_Cancel_SettledWithForce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-cancel-force"))
	require.NoError(t, err)
	e.drain(t)

	cancelRes, err := e.orch.Cancel(ctx, res.PaymentID, "ops-admin", true)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeSucceeded, cancelRes.Outcome)
	assert.Equal(t, payment.StateDeclined, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_HandleCommand_UnknownSagaDropped(t *testing.T) {
	e := newEnv(t, testTimeouts)
	cmd := saga.Command{Kind: saga.CmdSettle, CorrelationID: uuid.New(), PaymentID: payment.NewPaymentID()}
	require.NoError(t, e.orch.HandleCommand(context.Background(), cmd))
	assert.Empty(t, e.publisher.Commands())
}

func TestOrchestrator_HandleCommand_TerminalSagaDropsCommands(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-terminal"))
	require.NoError(t, err)
	e.drain(t)
	settleCalls := e.settlement.Calls()

	// Re-delivery after completion performs no work.
	cmd := saga.Command{Kind: saga.CmdSettle, CorrelationID: res.CorrelationID, PaymentID: res.PaymentID}
	require.NoError(t, e.orch.HandleCommand(ctx, cmd))
	assert.Equal(t, settleCalls, e.settlement.Calls())
	assert.Empty(t, e.publisher.Commands())
}

func TestOrchestrator_HandleCommand_NotBeforeRepublishes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	cmd := saga.Command{
		Kind:          saga.CmdSettle,
		CorrelationID: uuid.New(),
		PaymentID:     payment.NewPaymentID(),
		NotBefore:     e.clock.Now().Add(time.Hour),
	}
	require.NoError(t, e.orch.HandleCommand(ctx, cmd))

	republished, ok := e.publisher.Pop()
	require.True(t, ok)
	assert.Equal(t, cmd, republished)
}

func TestOrchestrator_SettlementDelay(t *testing.T) {
	ctx := context.Background()
	delayed := testTimeouts
	delayed.SettlementDelay = 10 * time.Minute
	e := newEnv(t, delayed)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-delay"))
	require.NoError(t, err)

	// Screen, reserve, journal.
	for i := 0; i < 3; i++ {
		cmd, ok := e.publisher.Pop()
		require.True(t, ok)
		require.NoError(t, e.orch.HandleCommand(ctx, cmd))
	}

	settleCmd, ok := e.publisher.Pop()
	require.True(t, ok)
	require.Equal(t, saga.CmdSettle, settleCmd.Kind)
	assert.Equal(t, e.clock.Now().Add(10*time.Minute), settleCmd.NotBefore)

	// Delivered early: handed back to the transport untouched.
	require.NoError(t, e.orch.HandleCommand(ctx, settleCmd))
	assert.Equal(t, 0, e.settlement.Calls())
	_, ok = e.publisher.Pop()
	require.True(t, ok)

	// After the hold period the settlement goes through.
	e.clock.Advance(11 * time.Minute)
	require.NoError(t, e.orch.HandleCommand(ctx, settleCmd))
	assert.Equal(t, 1, e.settlement.Calls())
	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
}

// step pops and handles one command, returning the command that was handled.
func (e *env) step(t *testing.T) saga.Command {
	t.Helper()
	cmd, ok := e.publisher.Pop()
	require.True(t, ok, "expected a published command")
	require.NoError(t, e.orch.HandleCommand(context.Background(), cmd))
	return cmd
}

func TestOrchestrator_RedeliveredScreenDuringManualReviewKeepsHold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.compliance.Verdict = app.ScreeningResult{Passed: true, RiskScore: 0.8, RuleSetVersion: "aml-rules-2026.1"}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-redeliver-review"))
	require.NoError(t, err)
	screenCmd := e.step(t)
	require.Equal(t, saga.CmdScreenCompliance, screenCmd.Kind)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, saga.StepManualReview, view.CurrentStep)

	// The screen command comes back while the saga is suspended on review.
	// It must not resume the workflow or touch the flagged payment.
	require.NoError(t, e.orch.HandleCommand(ctx, screenCmd))

	view, err = e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StepManualReview, view.CurrentStep)
	assert.Equal(t, saga.StatusRunning, view.Status)
	assert.Equal(t, payment.StateFlagged, e.loadPayment(t, res.PaymentID).State())
	assert.Equal(t, 1, e.compliance.Calls())
	assert.Equal(t, 0, e.funds.Reserves())

	// The hold still resolves normally afterwards.
	require.NoError(t, e.orch.ApplyReviewDecision(ctx, res.CorrelationID, true, "analyst"))
	e.drain(t)

	view, err = e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
	assert.Equal(t, payment.StateSettled, e.loadPayment(t, res.PaymentID).State())
}

func TestOrchestrator_RedeliveredCommandsAtLaterStepsDropped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-redeliver-later"))
	require.NoError(t, err)

	screenCmd := e.step(t)
	require.Equal(t, saga.CmdScreenCompliance, screenCmd.Kind)

	// Screen re-delivered after the saga moved on: no second screening.
	require.NoError(t, e.orch.HandleCommand(ctx, screenCmd))
	assert.Equal(t, 1, e.compliance.Calls())

	reserveCmd := e.step(t)
	require.Equal(t, saga.CmdReserveFunds, reserveCmd.Kind)

	// Reserve re-delivered after journaling started: no second hold.
	require.NoError(t, e.orch.HandleCommand(ctx, reserveCmd))
	assert.Equal(t, 1, e.funds.Reserves())

	e.drain(t)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, view.Status)
	assert.Equal(t, payment.StateSettled, e.loadPayment(t, res.PaymentID).State())
	assert.Equal(t, 1, e.funds.Reserves())
	assert.Empty(t, e.funds.Releases())
}

func TestOrchestrator_StepCommandDuringCompensationDropped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.settlement.SettleFunc = func(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
		return &app.SettlementResult{Succeeded: false, Reason: "settlement rail declined"}, nil
	}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-comp-stale"))
	require.NoError(t, err)

	e.step(t) // screen
	e.step(t) // reserve
	e.step(t) // journal
	settleCmd := e.step(t)
	require.Equal(t, saga.CmdSettle, settleCmd.Kind)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, saga.StatusCompensating, view.Status)

	// A re-delivered settle command during compensation must not reach the
	// settlement rail again.
	require.NoError(t, e.orch.HandleCommand(ctx, settleCmd))
	assert.Equal(t, 1, e.settlement.Calls())

	e.drain(t)

	view, err = e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	assert.Equal(t, payment.StateFailed, e.loadPayment(t, res.PaymentID).State())
	assert.Equal(t, 1, e.settlement.Calls())
}

func TestOrchestrator_CompensateCommandForRunningSagaDropped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)

	res, err := e.orch.Initiate(ctx, initiateRequest("key-spurious-comp"))
	require.NoError(t, err)

	require.NoError(t, e.orch.HandleCommand(ctx, saga.Command{
		Kind:          saga.CmdCompensate,
		CorrelationID: res.CorrelationID,
		PaymentID:     res.PaymentID,
		Reason:        "spurious",
	}))

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRunning, view.Status)
	assert.Equal(t, payment.StateRequested, e.loadPayment(t, res.PaymentID).State())
	assert.Empty(t, e.funds.Releases())
}

func TestOrchestrator_SweepRecoversStalledCompensation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testTimeouts)
	e.settlement.SettleFunc = func(ctx context.Context, paymentID payment.PaymentID, amount payment.Money) (*app.SettlementResult, error) {
		return &app.SettlementResult{Succeeded: false, Reason: "settlement rail declined"}, nil
	}

	res, err := e.orch.Initiate(ctx, initiateRequest("key-stalled-comp"))
	require.NoError(t, err)

	e.step(t) // screen
	e.step(t) // reserve
	e.step(t) // journal
	e.step(t) // settle fails, saga goes compensating

	// The compensate command is lost before any worker picks it up.
	lost, ok := e.publisher.Pop()
	require.True(t, ok)
	require.Equal(t, saga.CmdCompensate, lost.Kind)

	view, err := e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, saga.StatusCompensating, view.Status)

	// An immediate sweep leaves a fresh compensation alone.
	require.NoError(t, e.orch.SweepTimeouts(ctx, 100))
	assert.Empty(t, e.publisher.Commands())

	e.clock.Advance(testTimeouts.Step + time.Second)
	require.NoError(t, e.orch.SweepTimeouts(ctx, 100))

	reissued, ok := e.publisher.Pop()
	require.True(t, ok)
	assert.Equal(t, saga.CmdCompensate, reissued.Kind)
	assert.Equal(t, "settlement rail declined", reissued.Reason)

	require.NoError(t, e.orch.HandleCommand(ctx, reissued))

	view, err = e.orch.StatusByCorrelationID(ctx, res.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, view.Status)
	p := e.loadPayment(t, res.PaymentID)
	assert.Equal(t, payment.StateFailed, p.State())
	assert.Equal(t, []payment.PaymentID{res.PaymentID}, e.ledger.Reversed())
	require.Len(t, e.funds.Releases(), 1)
}
